// Package api is the HTTP client for the remote site-builder service.
// It attaches the bearer credential, normalizes failures into tagged
// errors, and decodes the streamed conversation protocol.
package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/sumit-dhanorkar/sitewizard/internal/config"
)

// Client issues authenticated requests against the builder service.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}

	rc := resty.New()
	rc.SetBaseURL(cfg.APIBaseURL)
	rc.SetTimeout(cfg.RequestTimeout())
	rc.SetHeader("Content-Type", "application/json")
	if cfg.APIToken != "" {
		rc.SetAuthToken(cfg.APIToken)
	}

	return &Client{http: rc, log: log}
}

// SetToken replaces the bearer credential on the live client. Used when
// a config edit lands mid-session.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// errorBody is the failure payload shape the service uses across
// endpoints.
type errorBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	ActiveJobID string `json:"active_job_id"`
}

func (b errorBody) text() string {
	if b.Error != "" {
		return b.Error
	}
	if b.Message != "" {
		return b.Message
	}
	return "request failed"
}

func decodeFailure(resp *resty.Response) *Error {
	var body errorBody
	_ = json.Unmarshal(resp.Body(), &body)
	return classifyStatus(resp.StatusCode(), body.text(), body.ActiveJobID)
}

// CreateSession starts a fresh guided conversation for the user.
func (c *Client) CreateSession(ctx context.Context, userID string) (*SessionSnapshot, error) {
	var snap SessionSnapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"user_id": userID, "resume": false}).
		SetResult(&snap).
		Post("/session")
	if err != nil {
		return nil, transportError(fmt.Sprintf("create session: %v", err))
	}
	if resp.IsError() {
		return nil, decodeFailure(resp)
	}
	return &snap, nil
}

// ResumeSession picks up an existing session. Expired or unknown
// sessions come back as a not-found error; the caller falls through to
// fresh creation.
func (c *Client) ResumeSession(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	var snap SessionSnapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"session_id": sessionID}).
		SetResult(&snap).
		Post("/session/resume")
	if err != nil {
		return nil, transportError(fmt.Sprintf("resume session: %v", err))
	}
	if resp.IsError() {
		return nil, decodeFailure(resp)
	}
	return &snap, nil
}

// ActiveJob asks the service for the user's in-flight generation job.
// A nil job means none is active.
func (c *Client) ActiveJob(ctx context.Context) (*ActiveJob, error) {
	var result struct {
		ActiveJob *ActiveJob `json:"active_job"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/jobs/active")
	if err != nil {
		return nil, transportError(fmt.Sprintf("active job check: %v", err))
	}
	if resp.IsError() {
		return nil, decodeFailure(resp)
	}
	return result.ActiveJob, nil
}

// CreateJob starts a generation job. A conflict response carries the
// id of the job already running for this user.
func (c *Client) CreateJob(ctx context.Context, req GenerateRequest) (*Job, error) {
	var job Job
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&job).
		Post("/jobs/generate")
	if err != nil {
		return nil, transportError(fmt.Sprintf("create job: %v", err))
	}
	if resp.IsError() {
		return nil, decodeFailure(resp)
	}
	return &job, nil
}
