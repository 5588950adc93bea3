// Package conversation owns the guided-conversation session: its
// lifecycle, the accumulated business profile, the ordered message log
// and the current state. All mutation flows through the Controller.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sumit-dhanorkar/sitewizard/internal/api"
	"github.com/sumit-dhanorkar/sitewizard/internal/config"
	"github.com/sumit-dhanorkar/sitewizard/internal/profile"
	"github.com/sumit-dhanorkar/sitewizard/internal/store"
)

var (
	// ErrTurnInFlight is returned when a turn is requested while the
	// previous one is still streaming. Interleaving two turns would let
	// their terminal frames race to mutate the profile.
	ErrTurnInFlight = errors.New("a conversation turn is already in flight")

	// ErrFieldNotEditable is returned by JumpToField for fields with no
	// mapped conversation state.
	ErrFieldNotEditable = errors.New("field is not editable")
)

// transientErrorText is what the assistant says once transport retries
// are exhausted. Validation failures surface the server's text instead.
const transientErrorText = "Sorry, I couldn't reach the server just now. Your answer wasn't lost - please try again."

// API is the slice of the transport client the controller needs.
type API interface {
	CreateSession(ctx context.Context, userID string) (*api.SessionSnapshot, error)
	ResumeSession(ctx context.Context, sessionID string) (*api.SessionSnapshot, error)
	StreamTurn(ctx context.Context, req api.TurnRequest, cb api.StreamCallbacks) error
}

// Session is the client's view of the server-side conversation session.
type Session struct {
	ID        string
	CreatedAt time.Time
}

// Snapshot is an immutable view of the controller's observable state.
// Subscribers receive a fresh one after every mutation.
type Snapshot struct {
	SessionID string
	State     State
	Profile   *profile.BusinessProfile
	Messages  []Message
	Streaming bool
}

// Controller is the single authority over the conversation. It is safe
// for concurrent use, though only one turn may stream at a time.
type Controller struct {
	client API
	store  *store.Store
	log    *zap.Logger

	retryMax   int
	retryBase  time.Duration
	sessionTTL time.Duration
	sleep      func(time.Duration)
	now        func() time.Time

	mu           sync.Mutex
	userID       string
	session      *Session
	state        State
	profile      *profile.BusinessProfile
	messages     []*Message
	streaming    bool
	generation   uint64
	shouldScroll bool
	onChange     func(Snapshot)
}

func NewController(client API, st *store.Store, cfg *config.Config, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		client:     client,
		store:      st,
		log:        log,
		retryMax:   cfg.RetryMax,
		retryBase:  cfg.RetryBaseDelay(),
		sessionTTL: cfg.SessionTTL(),
		sleep:      time.Sleep,
		now:        time.Now,
		profile:    profile.New(),
	}
}

// SetOnChange registers the snapshot subscriber. The callback runs
// outside the controller's lock.
func (c *Controller) SetOnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Initialize decides fresh-vs-resume and establishes a session. A
// resume is attempted only when the stored profile already carries
// meaningful data and a non-expired conversation ref exists; a resume
// rejected as unknown falls through to fresh creation exactly once.
func (c *Controller) Initialize(ctx context.Context, userID string) error {
	c.mu.Lock()
	c.userID = userID
	if p, ok := c.store.LoadProfile(); ok {
		c.profile = p
	} else {
		c.profile = profile.New()
	}
	meaningful := c.profile.HasMeaningfulData()
	c.mu.Unlock()

	if meaningful {
		if ref, ok := c.store.LoadConversationRef(); ok && !ref.Expired(c.now(), c.sessionTTL) {
			snap, err := c.client.ResumeSession(ctx, ref.SessionID)
			switch {
			case err == nil:
				c.applySnapshot(snap, ref.CreatedAt, true)
				c.log.Info("resumed conversation session",
					zap.String("session_id", snap.SessionID))
				return nil
			case api.IsKind(err, api.KindNotFound):
				if cerr := c.store.ClearConversationRef(); cerr != nil {
					c.log.Warn("failed to clear stale session ref", zap.Error(cerr))
				}
				c.log.Info("server no longer knows the session, starting fresh",
					zap.String("session_id", ref.SessionID))
			default:
				return fmt.Errorf("resume session: %w", err)
			}
		}
	}

	snap, err := c.client.CreateSession(ctx, userID)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	createdAt := c.now()
	if err := c.store.SaveConversationRef(store.ConversationRef{
		SessionID: snap.SessionID,
		CreatedAt: createdAt,
	}); err != nil {
		c.log.Warn("failed to persist session ref", zap.Error(err))
	}
	c.applySnapshot(snap, createdAt, false)
	return nil
}

func (c *Controller) applySnapshot(snap *api.SessionSnapshot, createdAt time.Time, resumed bool) {
	c.mu.Lock()
	c.session = &Session{ID: snap.SessionID, CreatedAt: createdAt}
	if snap.CurrentState != "" {
		c.state = State(snap.CurrentState)
	} else {
		c.state = StateWelcome
	}
	if len(snap.CollectedData) > 0 {
		if err := c.profile.Merge(snap.CollectedData); err != nil {
			c.log.Warn("discarding unreadable collected_data", zap.Error(err))
		}
	}
	c.messages = nil
	if resumed {
		for _, m := range snap.Messages {
			c.messages = append(c.messages, newMessage(Role(m.Role), m.Content, StatusSent, c.now()))
		}
	} else {
		// A fresh session greets locally, not from the server.
		c.messages = append(c.messages, newMessage(RoleAssistant, welcomeText, StatusSent, c.now()))
	}
	c.mu.Unlock()
	c.notify()
}

// SendTurn runs one full conversation turn: appends the user message
// and an assistant placeholder, streams the response, and applies the
// terminal frame under the ordering rules. Empty input and missing
// sessions are no-ops. A turn already in flight rejects the call.
func (c *Controller) SendTurn(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	if text == "" || c.session == nil {
		c.mu.Unlock()
		return nil
	}
	if c.streaming {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	c.streaming = true
	gen := c.generation
	userMsg := c.appendLocked(RoleUser, text, StatusSending)
	placeholder := c.appendLocked(RoleAssistant, "", StatusSending)
	req := api.TurnRequest{
		SessionID:     c.session.ID,
		Message:       text,
		CurrentState:  string(c.state),
		CollectedData: c.profile.JSON(),
	}
	c.mu.Unlock()
	c.notify()

	err := c.runTurn(ctx, gen, req, userMsg, placeholder)

	c.mu.Lock()
	if gen == c.generation {
		c.streaming = false
	}
	c.mu.Unlock()
	return err
}

// runTurn drives the stream with the retry policy: validation failures
// surface immediately, transport failures retry up to the cap with
// linearly increasing delay.
func (c *Controller) runTurn(ctx context.Context, gen uint64, req api.TurnRequest, userMsg, placeholder *Message) error {
	var lastErr error
	for attempt := 1; attempt <= c.retryMax; attempt++ {
		if attempt > 1 {
			c.sleep(time.Duration(attempt-1) * c.retryBase)
			c.resetPlaceholder(gen, placeholder)
		}

		var done bool
		err := c.client.StreamTurn(ctx, req, api.StreamCallbacks{
			OnText: func(fragment string) {
				c.applyFragment(gen, placeholder, fragment)
			},
			OnDone: func(frame api.Frame) {
				done = true
				c.applyTerminal(gen, userMsg, placeholder, frame)
			},
		})
		if err == nil && done {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("stream finished without a terminal frame")
		}

		if api.IsKind(err, api.KindValidation) {
			// Surfaced verbatim, never retried.
			var apiErr *api.Error
			errors.As(err, &apiErr)
			c.failTurn(gen, userMsg, placeholder, apiErr.Message)
			return err
		}

		lastErr = err
		c.log.Warn("turn attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max", c.retryMax),
			zap.Error(err))
	}

	c.failTurn(gen, userMsg, placeholder, transientErrorText)
	return lastErr
}

func (c *Controller) applyFragment(gen uint64, placeholder *Message, fragment string) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	placeholder.Content += fragment
	c.shouldScroll = true
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) applyTerminal(gen uint64, userMsg, placeholder *Message, frame api.Frame) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}

	// Profile first: a widget may read profile values at mount time, so
	// the merged data must be visible before the widget is attached.
	if err := c.profile.Merge(frame.UpdatedData); err != nil {
		c.log.Warn("discarding unreadable updated_data", zap.Error(err))
	}
	placeholder.Widget = frame.Widget
	placeholder.Skippable = frame.SkipAvailable
	placeholder.Content = frame.FullText
	placeholder.Status = StatusSent
	userMsg.Status = StatusSent
	if frame.NextState != "" {
		c.state = State(frame.NextState)
	}
	c.shouldScroll = true
	saved := c.profile.Clone()
	c.mu.Unlock()

	if err := c.store.SaveProfile(saved); err != nil {
		c.log.Warn("failed to persist profile", zap.Error(err))
	}
	c.notify()
}

func (c *Controller) resetPlaceholder(gen uint64, placeholder *Message) {
	c.mu.Lock()
	if gen == c.generation {
		placeholder.Content = ""
	}
	c.mu.Unlock()
}

func (c *Controller) failTurn(gen uint64, userMsg, placeholder *Message, text string) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	placeholder.Content = text
	placeholder.Status = StatusError
	userMsg.Status = StatusError
	c.mu.Unlock()
	c.notify()
}

// JumpToField moves the conversation to the state that edits the given
// field, synthesizing a local prompt without a network call. Unknown
// fields report not-editable and mutate nothing.
func (c *Controller) JumpToField(field string) error {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	state, prompt, ok := jumpTarget(field)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFieldNotEditable, field)
	}
	c.appendLocked(RoleAssistant, prompt, StatusSent)
	c.state = state
	c.mu.Unlock()
	c.notify()
	return nil
}

// Reset clears the session, profile, message log and both cache scopes.
// Results of any in-flight turn are discarded, not applied.
func (c *Controller) Reset() error {
	c.mu.Lock()
	c.generation++
	c.session = nil
	c.state = ""
	c.profile = profile.New()
	c.messages = nil
	c.streaming = false
	c.shouldScroll = false
	c.mu.Unlock()
	c.notify()
	return c.store.Reset()
}

func (c *Controller) appendLocked(role Role, content string, status Status) *Message {
	msg := newMessage(role, content, status, c.now())
	c.messages = append(c.messages, msg)
	return msg
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     c.state,
		Profile:   c.profile.Clone(),
		Streaming: c.streaming,
	}
	if c.session != nil {
		snap.SessionID = c.session.ID
	}
	snap.Messages = make([]Message, len(c.messages))
	for i, m := range c.messages {
		snap.Messages[i] = *m
	}
	return snap
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	var snap Snapshot
	if fn != nil {
		snap = c.snapshotLocked()
	}
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// ConsumeScroll returns the pending scroll signal and clears it. The UI
// polls this after re-rendering.
func (c *Controller) ConsumeScroll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.shouldScroll
	c.shouldScroll = false
	return v
}

// CurrentState returns the conversation state.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Profile returns a copy of the accumulated business profile.
func (c *Controller) Profile() *profile.BusinessProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile.Clone()
}
