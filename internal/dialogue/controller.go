// Package dialogue drives the multi-turn booking conversation: it routes each
// user turn as a fresh query or a confirmation reply, applies the backend's
// answer and persists the resulting history.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/booking-assistant/internal/backend"
	"github.com/capitalize-ai/booking-assistant/internal/model"
	"github.com/capitalize-ai/booking-assistant/pkg/logger"
	"github.com/capitalize-ai/booking-assistant/pkg/metrics"
)

// DefaultWelcomeText opens every fresh conversation.
const DefaultWelcomeText = "Hi! I can help you book, modify or cancel a meeting room. What would you like to do?"

var (
	// ErrBusy is returned when input arrives while a request is outstanding.
	ErrBusy = errors.New("dialogue: a request is already in flight")

	// ErrInvalidSelection is returned when a candidate cannot be addressed.
	ErrInvalidSelection = errors.New("dialogue: invalid candidate selection")
)

// SessionStore is the persistence port for the message log.
type SessionStore interface {
	// Load returns the stored history; ok is false when there is none.
	Load(ctx context.Context) (msgs []model.Message, ok bool, err error)
	Save(ctx context.Context, msgs []model.Message) error
}

// EventPublisher receives turn events. Failures are logged and ignored.
type EventPublisher interface {
	PublishTurn(ctx context.Context, event model.TurnEvent) error
}

// Options configures a Controller.
type Options struct {
	Backend    backend.Client
	Store      SessionStore
	Events     EventPublisher
	Logger     *logger.Logger
	SessionKey string

	WelcomeText string
	Now         func() time.Time
	NewID       func() string
}

// Controller owns one ConversationState. All methods are safe for concurrent
// use; at most one turn is accepted at a time.
type Controller struct {
	backend    backend.Client
	store      SessionStore
	events     EventPublisher
	logger     *logger.Logger
	sessionKey string
	welcome    string
	now        func() time.Time
	newID      func() string

	mu    sync.Mutex
	state model.ConversationState
	// generation advances on reset; a response from an older generation is stale.
	generation uint64
	revision   uint64

	saveMu    sync.Mutex
	attempted uint64
}

// New creates a controller, resuming from the store when it holds a usable history.
func New(ctx context.Context, opts Options) (*Controller, error) {
	if opts.Backend == nil {
		return nil, errors.New("dialogue: backend client is required")
	}

	c := &Controller{
		backend:    opts.Backend,
		store:      opts.Store,
		events:     opts.Events,
		logger:     opts.Logger,
		sessionKey: opts.SessionKey,
		welcome:    opts.WelcomeText,
		now:        opts.Now,
		newID:      opts.NewID,
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	c.logger = c.logger.WithSession(c.sessionKey)
	if c.welcome == "" {
		c.welcome = DefaultWelcomeText
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}

	c.state = c.freshState()
	if c.store != nil {
		msgs, ok, err := c.store.Load(ctx)
		switch {
		case err != nil:
			c.logger.Warn("failed to load conversation, starting fresh", zap.Error(err))
		case ok:
			c.state = model.ConversationState{
				Messages:            msgs,
				PendingConfirmation: RestorePending(msgs),
			}
			c.logger.Debug("conversation resumed",
				zap.Int("messages", len(msgs)),
				zap.Bool("pending_confirmation", c.state.PendingConfirmation != nil),
			)
		}
	}

	return c, nil
}

// SessionKey returns the key this conversation is persisted under.
func (c *Controller) SessionKey() string {
	return c.sessionKey
}

// State returns a copy of the current conversation state.
func (c *Controller) State() model.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Mode reports how the next turn would be routed.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ModeFor(c.state.PendingConfirmation)
}

// Submit runs one user turn. Blank input is a no-op. The returned reply is
// nil when no reply was applied, either because the input was blank or
// because a reset superseded the turn while it was in flight.
func (c *Controller) Submit(ctx context.Context, rawText string) (*model.Message, error) {
	return c.turn(ctx, rawText, nil)
}

// SelectCandidate picks the candidate at the 0-based ordinal of the list
// carried by listMessageID, as if the user had typed its 1-based position.
func (c *Controller) SelectCandidate(ctx context.Context, listMessageID string, ordinal int) (*model.Message, error) {
	return c.turn(ctx, strconv.Itoa(ordinal+1), func(s *model.ConversationState) error {
		last := s.LastAssistant()
		if last == nil || last.ID != listMessageID {
			return fmt.Errorf("%w: message %q is not the latest assistant message", ErrInvalidSelection, listMessageID)
		}
		if !last.OffersSelection() {
			return fmt.Errorf("%w: message %q offers no selectable list", ErrInvalidSelection, listMessageID)
		}
		if ordinal < 0 || ordinal >= len(last.BookingList) {
			return fmt.Errorf("%w: ordinal %d out of range [0,%d)", ErrInvalidSelection, ordinal, len(last.BookingList))
		}
		return nil
	})
}

// Reset replaces the conversation with a single welcome message. A request
// still in flight is not cancelled; its response is discarded on arrival.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	c.generation++
	c.state = c.freshState()
	rev, snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("conversation reset")
	c.persist(ctx, rev, snap)
	c.publish(ctx, model.TurnEvent{Outcome: model.TurnOutcomeReset})
}

func (c *Controller) turn(ctx context.Context, rawText string, check func(*model.ConversationState) error) (*model.Message, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, nil
	}

	c.mu.Lock()
	if c.state.Busy {
		c.mu.Unlock()
		metrics.BusyRejectionsTotal.Inc()
		return nil, ErrBusy
	}
	if check != nil {
		if err := check(&c.state); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}

	mode := ModeFor(c.state.PendingConfirmation)
	c.state.Messages = append(c.state.Messages, model.Message{
		ID:        c.newID(),
		Text:      rawText,
		Sender:    model.SenderUser,
		Timestamp: c.now(),
	})
	c.state.Busy = true
	gen := c.generation
	rev, snap := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(ctx, rev, snap)

	resp, sendErr := c.backend.Send(ctx, BuildRequest(mode, rawText))

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Info("discarding response for a reset conversation", zap.String("mode", mode.String()))
		metrics.RecordTurn(mode.String(), string(model.TurnOutcomeDiscarded))
		c.publish(ctx, model.TurnEvent{
			Mode:     mode.String(),
			Outcome:  model.TurnOutcomeDiscarded,
			UserText: rawText,
		})
		return nil, nil
	}

	var (
		reply   model.Message
		outcome = model.TurnOutcomeReply
	)
	if sendErr != nil {
		// the confirmation slot survives so the user can retry it
		reply = ErrorReply(sendErr, c.newID(), c.now())
		outcome = model.TurnOutcomeError
	} else {
		t := Interpret(mode, c.state.PendingConfirmation, resp, c.newID(), c.now())
		reply = t.Reply
		c.state.PendingConfirmation = t.Pending
	}
	c.state.Messages = append(c.state.Messages, reply)
	c.state.Busy = false
	pending := c.state.PendingConfirmation != nil
	rev, snap = c.snapshotLocked()
	c.mu.Unlock()

	if sendErr != nil {
		c.logger.Warn("turn failed", zap.String("mode", mode.String()), zap.Error(sendErr))
	} else {
		c.logger.Debug("turn completed",
			zap.String("mode", mode.String()),
			zap.Bool("pending_confirmation", pending),
			zap.Int("candidates", len(reply.BookingList)),
		)
	}
	metrics.RecordTurn(mode.String(), string(outcome))

	c.persist(ctx, rev, snap)

	out := reply.Clone()
	c.publish(ctx, model.TurnEvent{
		Mode:     mode.String(),
		Outcome:  outcome,
		UserText: rawText,
		Reply:    &out,
		Pending:  pending,
	})
	return &out, nil
}

func (c *Controller) freshState() model.ConversationState {
	return model.ConversationState{
		Messages: []model.Message{{
			ID:        c.newID(),
			Text:      c.welcome,
			Sender:    model.SenderAssistant,
			Timestamp: c.now(),
		}},
	}
}

// snapshotLocked copies the log and tags it with a new revision. c.mu must be held.
func (c *Controller) snapshotLocked() (uint64, []model.Message) {
	c.revision++
	return c.revision, model.CloneMessages(c.state.Messages)
}

// persist saves snap unless a newer revision has already been written.
func (c *Controller) persist(ctx context.Context, rev uint64, snap []model.Message) {
	if c.store == nil {
		return
	}

	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if rev <= c.attempted {
		return
	}
	c.attempted = rev

	if err := c.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		c.logger.Warn("failed to persist conversation", zap.Uint64("revision", rev), zap.Error(err))
	}
}

func (c *Controller) publish(ctx context.Context, event model.TurnEvent) {
	if c.events == nil {
		return
	}
	event.ID = c.newID()
	event.SessionKey = c.sessionKey
	event.CreatedAt = c.now()
	if err := c.events.PublishTurn(context.WithoutCancel(ctx), event); err != nil {
		c.logger.Warn("failed to publish turn event", zap.String("outcome", string(event.Outcome)), zap.Error(err))
	}
}
