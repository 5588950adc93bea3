package api

import "encoding/json"

// WidgetDescriptor tells the client which input widget the assistant
// wants rendered for the next answer. Immutable once attached to a
// message.
type WidgetDescriptor struct {
	Type   string                 `json:"type"`
	Field  string                 `json:"field"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// SessionMessage is a transcript entry returned on create/resume.
type SessionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionSnapshot is the server's view of a conversation session,
// returned by both create and resume.
type SessionSnapshot struct {
	SessionID     string           `json:"session_id"`
	CurrentState  string           `json:"current_state"`
	Messages      []SessionMessage `json:"messages"`
	CollectedData json.RawMessage  `json:"collected_data"`
}

// TurnRequest is the payload for one streamed conversation turn.
type TurnRequest struct {
	SessionID     string          `json:"session_id"`
	Message       string          `json:"message"`
	CurrentState  string          `json:"current_state"`
	CollectedData json.RawMessage `json:"collected_data"`
}

// Frame is one decoded event from the turn stream. Non-terminal frames
// carry only Text; the terminal frame has Done set.
type Frame struct {
	Text string `json:"text,omitempty"`

	Done          bool              `json:"done,omitempty"`
	FullText      string            `json:"full_text,omitempty"`
	NextState     string            `json:"next_state,omitempty"`
	UpdatedData   json.RawMessage   `json:"updated_data,omitempty"`
	Widget        *WidgetDescriptor `json:"widget,omitempty"`
	SkipAvailable bool              `json:"skip_available,omitempty"`

	Error string `json:"error,omitempty"`
}

// StreamCallbacks are the observable moments of one streamed turn:
// partial text, then exactly one terminal frame. Errors are returned
// from StreamTurn itself.
type StreamCallbacks struct {
	OnText func(fragment string)
	OnDone func(frame Frame)
}

// ActiveJob is the remote service's authoritative in-flight job state.
type ActiveJob struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// GenerateRequest starts a site generation job.
type GenerateRequest struct {
	BusinessInfo  json.RawMessage        `json:"business_info"`
	WebsiteConfig map[string]interface{} `json:"website_config,omitempty"`
}

type Job struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}
