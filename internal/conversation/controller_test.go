package conversation

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sumit-dhanorkar/sitewizard/internal/api"
	"github.com/sumit-dhanorkar/sitewizard/internal/config"
	"github.com/sumit-dhanorkar/sitewizard/internal/profile"
	"github.com/sumit-dhanorkar/sitewizard/internal/store"
)

type fakeAPI struct {
	mu          sync.Mutex
	createCalls int
	resumeCalls int
	streamCalls int

	createFn func(userID string) (*api.SessionSnapshot, error)
	resumeFn func(sessionID string) (*api.SessionSnapshot, error)
	streamFn func(call int, req api.TurnRequest, cb api.StreamCallbacks) error
}

func (f *fakeAPI) CreateSession(_ context.Context, userID string) (*api.SessionSnapshot, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	if f.createFn != nil {
		return f.createFn(userID)
	}
	return &api.SessionSnapshot{SessionID: "fresh-session", CurrentState: "company_name"}, nil
}

func (f *fakeAPI) ResumeSession(_ context.Context, sessionID string) (*api.SessionSnapshot, error) {
	f.mu.Lock()
	f.resumeCalls++
	f.mu.Unlock()
	if f.resumeFn != nil {
		return f.resumeFn(sessionID)
	}
	return &api.SessionSnapshot{SessionID: sessionID, CurrentState: "products"}, nil
}

func (f *fakeAPI) StreamTurn(_ context.Context, req api.TurnRequest, cb api.StreamCallbacks) error {
	f.mu.Lock()
	f.streamCalls++
	call := f.streamCalls
	f.mu.Unlock()
	if f.streamFn != nil {
		return f.streamFn(call, req, cb)
	}
	cb.OnDone(api.Frame{Done: true, FullText: "ok"})
	return nil
}

func (f *fakeAPI) calls() (create, resume, stream int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.resumeCalls, f.streamCalls
}

func newTestController(t *testing.T, client API) (*Controller, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "durable"), filepath.Join(dir, "session"), zap.NewNop())
	require.NoError(t, err)

	cfg := config.DefaultConfigWithRoot(dir)
	ctrl := NewController(client, st, cfg, zap.NewNop())
	return ctrl, st
}

func TestInitializeFreshSynthesizesWelcome(t *testing.T) {
	fake := &fakeAPI{}
	ctrl, st := newTestController(t, fake)

	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	snap := ctrl.Snapshot()
	require.Equal(t, "fresh-session", snap.SessionID)
	require.Equal(t, StateCompanyName, snap.State)
	require.Len(t, snap.Messages, 1)
	require.Equal(t, RoleAssistant, snap.Messages[0].Role)
	require.NotEmpty(t, snap.Messages[0].Content)
	require.Equal(t, StatusSent, snap.Messages[0].Status)

	ref, ok := st.LoadConversationRef()
	require.True(t, ok)
	require.Equal(t, "fresh-session", ref.SessionID)
}

func TestResumeNeverAttemptedWithoutMeaningfulData(t *testing.T) {
	fake := &fakeAPI{}
	ctrl, st := newTestController(t, fake)

	// Cached session id exists, but the profile is all empty strings.
	require.NoError(t, st.SaveProfile(&profile.BusinessProfile{
		CompanyName: "",
		CompanyType: "",
		Description: "",
	}))
	require.NoError(t, st.SaveConversationRef(store.ConversationRef{
		SessionID: "old-session",
		CreatedAt: time.Now(),
	}))

	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	create, resume, _ := fake.calls()
	require.Equal(t, 0, resume, "resume must never be attempted without meaningful data")
	require.Equal(t, 1, create)
}

func TestResumeAttemptedWithMeaningfulDataAndFreshRef(t *testing.T) {
	fake := &fakeAPI{}
	ctrl, st := newTestController(t, fake)

	require.NoError(t, st.SaveProfile(&profile.BusinessProfile{CompanyName: "Acme Exports"}))
	require.NoError(t, st.SaveConversationRef(store.ConversationRef{
		SessionID: "old-session",
		CreatedAt: time.Now().Add(-1 * time.Hour),
	}))

	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	create, resume, _ := fake.calls()
	require.Equal(t, 1, resume)
	require.Equal(t, 0, create)
	require.Equal(t, "old-session", ctrl.Snapshot().SessionID)
}

func TestResumeSkippedWhenRefExpired(t *testing.T) {
	fake := &fakeAPI{}
	ctrl, st := newTestController(t, fake)

	require.NoError(t, st.SaveProfile(&profile.BusinessProfile{CompanyName: "Acme"}))
	require.NoError(t, st.SaveConversationRef(store.ConversationRef{
		SessionID: "ancient",
		CreatedAt: time.Now().Add(-25 * time.Hour),
	}))

	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	create, resume, _ := fake.calls()
	require.Equal(t, 0, resume)
	require.Equal(t, 1, create)
}

func TestResumeNotFoundFallsThroughToFreshOnce(t *testing.T) {
	fake := &fakeAPI{
		resumeFn: func(string) (*api.SessionSnapshot, error) {
			return nil, &api.Error{Kind: api.KindNotFound, Status: 404, Message: "session not found"}
		},
	}
	ctrl, st := newTestController(t, fake)

	require.NoError(t, st.SaveProfile(&profile.BusinessProfile{CompanyName: "Acme"}))
	require.NoError(t, st.SaveConversationRef(store.ConversationRef{
		SessionID: "forgotten",
		CreatedAt: time.Now(),
	}))

	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	create, resume, _ := fake.calls()
	require.Equal(t, 1, resume, "resume must not be retried in a loop")
	require.Equal(t, 1, create)

	// The stale ref was replaced with the fresh session's.
	ref, ok := st.LoadConversationRef()
	require.True(t, ok)
	require.Equal(t, "fresh-session", ref.SessionID)
}

func TestSendTurnEndToEnd(t *testing.T) {
	fake := &fakeAPI{
		streamFn: func(_ int, req api.TurnRequest, cb api.StreamCallbacks) error {
			cb.OnText("Nice ")
			cb.OnText("name!")
			cb.OnDone(api.Frame{
				Done:        true,
				FullText:    "Nice name! What type of business are you?",
				NextState:   "company_type",
				UpdatedData: json.RawMessage(`{"company_name": "Acme Exports"}`),
			})
			return nil
		},
	}
	ctrl, st := newTestController(t, fake)
	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	require.NoError(t, ctrl.SendTurn(context.Background(), "Acme Exports"))

	snap := ctrl.Snapshot()
	require.Equal(t, "Acme Exports", snap.Profile.CompanyName)
	require.Equal(t, StateCompanyType, snap.State)

	// welcome, user, assistant
	require.Len(t, snap.Messages, 3)
	user := snap.Messages[1]
	assistant := snap.Messages[2]
	require.Equal(t, RoleUser, user.Role)
	require.Equal(t, StatusSent, user.Status)
	require.Equal(t, RoleAssistant, assistant.Role)
	require.Equal(t, StatusSent, assistant.Status)

	// The server's full text is authoritative, not the partials.
	require.Equal(t, "Nice name! What type of business are you?", assistant.Content)

	// Profile persisted to the durable scope.
	persisted, ok := st.LoadProfile()
	require.True(t, ok)
	require.Equal(t, "Acme Exports", persisted.CompanyName)
}

func TestTerminalFullTextOverridesPartials(t *testing.T) {
	fake := &fakeAPI{
		streamFn: func(_ int, _ api.TurnRequest, cb api.StreamCallbacks) error {
			cb.OnText("draft one")
			cb.OnText(" draft two")
			cb.OnDone(api.Frame{Done: true, FullText: "the final answer"})
			return nil
		},
	}
	ctrl, _ := newTestController(t, fake)
	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))
	require.NoError(t, ctrl.SendTurn(context.Background(), "hello"))

	msgs := ctrl.Snapshot().Messages
	require.Equal(t, "the final answer", msgs[len(msgs)-1].Content)
}

func TestSendTurnWidgetAttachedAfterProfileMerge(t *testing.T) {
	var profileAtNotify string
	fake := &fakeAPI{
		streamFn: func(_ int, _ api.TurnRequest, cb api.StreamCallbacks) error {
			cb.OnDone(api.Frame{
				Done:        true,
				FullText:    "Pick your main export market.",
				UpdatedData: json.RawMessage(`{"company_type": "manufacturer"}`),
				Widget: &api.WidgetDescriptor{
					Type:  "select",
					Field: "export_destinations",
					Config: map[string]interface{}{
						"options": []interface{}{"Europe", "North America"},
					},
				},
				SkipAvailable: true,
			})
			return nil
		},
	}
	ctrl, _ := newTestController(t, fake)
	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	// When the widget becomes visible, the merged profile must already
	// be observable.
	ctrl.SetOnChange(func(s Snapshot) {
		last := s.Messages[len(s.Messages)-1]
		if last.Widget != nil {
			profileAtNotify = s.Profile.CompanyType
		}
	})

	require.NoError(t, ctrl.SendTurn(context.Background(), "we manufacture textiles"))
	require.Equal(t, "manufacturer", profileAtNotify)

	last := ctrl.Snapshot().Messages
	msg := last[len(last)-1]
	require.NotNil(t, msg.Widget)
	require.Equal(t, "select", msg.Widget.Type)
	require.True(t, msg.Skippable)
}

func TestSendTurnEmptyInputIsNoop(t *testing.T) {
	fake := &fakeAPI{}
	ctrl, _ := newTestController(t, fake)
	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	before := len(ctrl.Snapshot().Messages)
	require.NoError(t, ctrl.SendTurn(context.Background(), "   \n\t"))
	require.Len(t, ctrl.Snapshot().Messages, before)

	_, _, stream := fake.calls()
	require.Equal(t, 0, stream)
}

func TestSendTurnWithoutSessionIsNoop(t *testing.T) {
	fake := &fakeAPI{}
	ctrl, _ := newTestController(t, fake)

	require.NoError(t, ctrl.SendTurn(context.Background(), "hello"))
	_, _, stream := fake.calls()
	require.Equal(t, 0, stream)
}

func TestSecondTurnRejectedWhileStreaming(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeAPI{
		streamFn: func(_ int, _ api.TurnRequest, cb api.StreamCallbacks) error {
			close(started)
			<-release
			cb.OnDone(api.Frame{Done: true, FullText: "done"})
			return nil
		},
	}
	ctrl, _ := newTestController(t, fake)
	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- ctrl.SendTurn(context.Background(), "a")
	}()

	<-started
	err := ctrl.SendTurn(context.Background(), "b")
	require.ErrorIs(t, err, ErrTurnInFlight)

	close(release)
	require.NoError(t, <-firstDone)

	// Only turn "a" made it into the log: welcome, userA, aiA.
	msgs := ctrl.Snapshot().Messages
	require.Len(t, msgs, 3)
	require.Equal(t, "a", msgs[1].Content)
	require.Equal(t, "done", msgs[2].Content)
}

func TestTransportFailuresRetryUpToCap(t *testing.T) {
	fake := &fakeAPI{
		streamFn: func(_ int, _ api.TurnRequest, _ api.StreamCallbacks) error {
			return &api.Error{Kind: api.KindTransport, Message: "connection refused"}
		},
	}
	ctrl, _ := newTestController(t, fake)

	var slept []time.Duration
	ctrl.sleep = func(d time.Duration) { slept = append(slept, d) }
	ctrl.retryMax = 3
	ctrl.retryBase = 100 * time.Millisecond

	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))
	err := ctrl.SendTurn(context.Background(), "hello")
	require.Error(t, err)

	_, _, stream := fake.calls()
	require.Equal(t, 3, stream, "exactly 3 attempts, not 4")
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, slept,
		"linear backoff: attempt x base delay")

	msgs := ctrl.Snapshot().Messages
	assistant := msgs[len(msgs)-1]
	require.Equal(t, StatusError, assistant.Status)
	require.NotEmpty(t, assistant.Content)

	// The conversation stays interactable after an error.
	require.NoError(t, func() error {
		fake.streamFn = func(_ int, _ api.TurnRequest, cb api.StreamCallbacks) error {
			cb.OnDone(api.Frame{Done: true, FullText: "recovered"})
			return nil
		}
		return ctrl.SendTurn(context.Background(), "try again")
	}())
}

func TestValidationFailureNeverRetried(t *testing.T) {
	fake := &fakeAPI{
		streamFn: func(_ int, _ api.TurnRequest, _ api.StreamCallbacks) error {
			return &api.Error{Kind: api.KindValidation, Message: "company_name is required"}
		},
	}
	ctrl, _ := newTestController(t, fake)

	var slept []time.Duration
	ctrl.sleep = func(d time.Duration) { slept = append(slept, d) }

	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))
	err := ctrl.SendTurn(context.Background(), "hello")
	require.Error(t, err)

	_, _, stream := fake.calls()
	require.Equal(t, 1, stream, "validation failures produce zero retries")
	require.Empty(t, slept)

	msgs := ctrl.Snapshot().Messages
	assistant := msgs[len(msgs)-1]
	require.Equal(t, StatusError, assistant.Status)
	require.Equal(t, "company_name is required", assistant.Content,
		"validation text is surfaced verbatim")
}

func TestTransientFailureThenSuccessResetsRetry(t *testing.T) {
	fake := &fakeAPI{}
	fake.streamFn = func(call int, _ api.TurnRequest, cb api.StreamCallbacks) error {
		if call == 1 {
			return &api.Error{Kind: api.KindTransport, Message: "timeout"}
		}
		cb.OnDone(api.Frame{Done: true, FullText: "made it"})
		return nil
	}
	ctrl, _ := newTestController(t, fake)
	ctrl.sleep = func(time.Duration) {}

	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))
	require.NoError(t, ctrl.SendTurn(context.Background(), "hello"))

	msgs := ctrl.Snapshot().Messages
	require.Equal(t, "made it", msgs[len(msgs)-1].Content)
	require.Equal(t, StatusSent, msgs[len(msgs)-1].Status)
}

func TestJumpToFieldKnown(t *testing.T) {
	fake := &fakeAPI{}
	ctrl, _ := newTestController(t, fake)
	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	before := len(ctrl.Snapshot().Messages)
	require.NoError(t, ctrl.JumpToField("company_name"))

	snap := ctrl.Snapshot()
	require.Equal(t, StateCompanyName, snap.State)
	require.Len(t, snap.Messages, before+1, "exactly one local message appended")
	require.Equal(t, RoleAssistant, snap.Messages[before].Role)

	// No network call happened.
	_, _, stream := fake.calls()
	require.Equal(t, 0, stream)
}

func TestJumpToFieldUnknown(t *testing.T) {
	fake := &fakeAPI{}
	ctrl, _ := newTestController(t, fake)
	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	stateBefore := ctrl.CurrentState()
	before := len(ctrl.Snapshot().Messages)

	err := ctrl.JumpToField("unknown_field")
	require.ErrorIs(t, err, ErrFieldNotEditable)

	require.Equal(t, stateBefore, ctrl.CurrentState())
	require.Len(t, ctrl.Snapshot().Messages, before)
}

func TestResetDiscardsInFlightTurn(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	fake := &fakeAPI{
		streamFn: func(_ int, _ api.TurnRequest, cb api.StreamCallbacks) error {
			close(started)
			<-release
			cb.OnDone(api.Frame{
				Done:        true,
				FullText:    "too late",
				UpdatedData: json.RawMessage(`{"company_name": "Ghost Corp"}`),
			})
			return nil
		},
	}
	ctrl, st := newTestController(t, fake)
	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))

	turnDone := make(chan error, 1)
	go func() { turnDone <- ctrl.SendTurn(context.Background(), "hello") }()

	<-started
	require.NoError(t, ctrl.Reset())
	close(release)
	<-turnDone

	snap := ctrl.Snapshot()
	require.Empty(t, snap.SessionID)
	require.Empty(t, snap.Messages)
	require.Empty(t, snap.Profile.CompanyName, "stale terminal frame must not mutate the profile")

	_, ok := st.LoadConversationRef()
	require.False(t, ok)
	_, ok = st.LoadProfile()
	require.False(t, ok)
}

func TestScrollSignalConsumedOnce(t *testing.T) {
	fake := &fakeAPI{
		streamFn: func(_ int, _ api.TurnRequest, cb api.StreamCallbacks) error {
			cb.OnText("hi")
			cb.OnDone(api.Frame{Done: true, FullText: "hi there"})
			return nil
		},
	}
	ctrl, _ := newTestController(t, fake)
	require.NoError(t, ctrl.Initialize(context.Background(), "u1"))
	require.NoError(t, ctrl.SendTurn(context.Background(), "hello"))

	require.True(t, ctrl.ConsumeScroll())
	require.False(t, ctrl.ConsumeScroll())
}

func TestEditableFieldsStableOrder(t *testing.T) {
	fields := EditableFields()
	require.True(t, sort.StringsAreSorted(fields), "field list must render in a stable order")
	require.Equal(t, fields, EditableFields())
	require.Contains(t, fields, "company_name")
}
