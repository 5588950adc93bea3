package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind partitions request failures by how the caller should react:
// validation errors surface verbatim and are never retried, transport
// errors are retried with backoff, the rest are terminal conditions with
// their own handling.
type Kind int

const (
	KindTransport Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "transport"
	}
}

// Error is the normalized failure shape for every remote call.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// JobID carries the already-active job on conflict responses.
	JobID string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == kind
}

// ConflictJobID extracts the active job id from a conflict error.
func ConflictJobID(err error) (string, bool) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return "", false
	}
	if apiErr.Kind != KindConflict {
		return "", false
	}
	return apiErr.JobID, apiErr.JobID != ""
}

// The remote service phrases field validation failures with these
// markers; anything else is treated as a transport problem.
var validationMarkers = []string{
	"required",
	"invalid",
	"must be",
	"please provide",
}

// ClassifyMessage decides validation-vs-transport from the failure text
// alone. Used for both HTTP error bodies and in-stream error frames.
func ClassifyMessage(message string) Kind {
	lower := strings.ToLower(message)
	for _, marker := range validationMarkers {
		if strings.Contains(lower, marker) {
			return KindValidation
		}
	}
	return KindTransport
}

func transportError(message string) *Error {
	return &Error{Kind: KindTransport, Message: message}
}

// classifyStatus maps an HTTP failure to a tagged error.
func classifyStatus(status int, message, jobID string) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuth, Status: status, Message: message}
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Status: status, Message: message}
	case status == http.StatusConflict:
		return &Error{Kind: KindConflict, Status: status, Message: message, JobID: jobID}
	case status >= 400 && status < 500:
		return &Error{Kind: ClassifyMessage(message), Status: status, Message: message}
	default:
		return &Error{Kind: KindTransport, Status: status, Message: message}
	}
}
