package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
)

// StreamTurn sends one conversation turn and decodes the event stream
// the service answers with. Partial text frames are delivered through
// cb.OnText in receipt order; the single terminal frame arrives through
// cb.OnDone. An in-stream error frame or a connection failure ends the
// stream with an error instead, never both.
func (c *Client) StreamTurn(ctx context.Context, req TurnRequest, cb StreamCallbacks) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		SetBody(req).
		Post("/message/stream")
	if err != nil {
		return transportError(fmt.Sprintf("stream turn: %v", err))
	}

	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 400 {
		data, _ := io.ReadAll(io.LimitReader(body, 64*1024))
		var eb errorBody
		_ = json.Unmarshal(data, &eb)
		return classifyStatus(resp.StatusCode(), eb.text(), eb.ActiveJobID)
	}

	return c.decodeEventStream(body, cb)
}

// decodeEventStream reads server-sent events, one JSON frame per event.
// Lines may be split across network reads; only a complete event
// (terminated by a blank line) is ever parsed. A frame that fails to
// decode is logged and skipped, it does not end the stream.
func (c *Client) decodeEventStream(r io.Reader, cb StreamCallbacks) error {
	reader := bufio.NewReader(r)
	var data []string

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// A trailing partial line is not a complete event.
				break
			}
			return transportError(fmt.Sprintf("stream read: %v", err))
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			terminal, err := c.dispatchEvent(data, cb)
			data = data[:0]
			if err != nil {
				return err
			}
			if terminal {
				return nil
			}
			continue
		}

		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
		// event:, id:, retry: and comment lines are ignored.
	}

	return transportError("stream ended without a terminal frame")
}

// dispatchEvent decodes one buffered event and routes it. It reports
// whether the event terminated the stream.
func (c *Client) dispatchEvent(data []string, cb StreamCallbacks) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	payload := strings.Join(data, "\n")

	var frame Frame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		c.log.Warn("skipping malformed stream frame",
			zap.String("payload", payload), zap.Error(err))
		return false, nil
	}

	if frame.Error != "" {
		return true, &Error{Kind: ClassifyMessage(frame.Error), Message: frame.Error}
	}
	if frame.Done {
		if cb.OnDone != nil {
			cb.OnDone(frame)
		}
		return true, nil
	}
	if frame.Text != "" && cb.OnText != nil {
		cb.OnText(frame.Text)
	}
	return false, nil
}
