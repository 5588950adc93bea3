package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/sumit-dhanorkar/sitewizard/internal/api"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusError   Status = "error"
)

// Message is one entry in the append-only conversation log. During a
// streaming turn the assistant placeholder is the only message that
// gets mutated, exactly once per event.
type Message struct {
	ID        string                `json:"id"`
	Role      Role                  `json:"role"`
	Content   string                `json:"content"`
	Timestamp time.Time             `json:"timestamp"`
	Status    Status                `json:"status"`
	Widget    *api.WidgetDescriptor `json:"widget,omitempty"`
	Skippable bool                  `json:"skippable,omitempty"`
}

func newMessage(role Role, content string, status Status, at time.Time) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: at,
		Status:    status,
	}
}
