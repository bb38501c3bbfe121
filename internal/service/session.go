// Package service manages one dialogue controller per authenticated user.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/booking-assistant/internal/backend"
	"github.com/capitalize-ai/booking-assistant/internal/dialogue"
	"github.com/capitalize-ai/booking-assistant/internal/session"
	"github.com/capitalize-ai/booking-assistant/pkg/logger"
	"github.com/capitalize-ai/booking-assistant/pkg/metrics"
)

// SessionKeyPrefix namespaces stored conversations.
const SessionKeyPrefix = "booking-chat."

// SessionKey returns the durable key for a user's conversation.
func SessionKey(userID string) string {
	return SessionKeyPrefix + userID
}

// SessionService handles controller lookup and creation.
type SessionService struct {
	backend     backend.Client
	blobs       session.BlobStore
	events      dialogue.EventPublisher
	welcomeText string
	logger      *logger.Logger

	controllers map[string]*dialogue.Controller
	mu          sync.Mutex
}

// Option customises a SessionService.
type Option func(*SessionService)

// WithEvents publishes every turn through p.
func WithEvents(p dialogue.EventPublisher) Option {
	return func(s *SessionService) { s.events = p }
}

// WithWelcomeText overrides the greeting of fresh conversations.
func WithWelcomeText(text string) Option {
	return func(s *SessionService) { s.welcomeText = text }
}

// NewSessionService creates a new session service.
func NewSessionService(client backend.Client, blobs session.BlobStore, log *logger.Logger, opts ...Option) *SessionService {
	s := &SessionService{
		backend:     client,
		blobs:       blobs,
		logger:      log,
		controllers: make(map[string]*dialogue.Controller),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the user's controller, loading it from the store on first use.
func (s *SessionService) Get(ctx context.Context, userID string) (*dialogue.Controller, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.controllers[userID]; ok {
		return c, nil
	}

	key := SessionKey(userID)
	var store dialogue.SessionStore
	if s.blobs != nil {
		store = session.NewStore(s.blobs, key, s.logger)
	}

	c, err := dialogue.New(ctx, dialogue.Options{
		Backend:     s.backend,
		Store:       store,
		Events:      s.events,
		Logger:      s.logger.With(zap.String("user_id", userID)),
		SessionKey:  key,
		WelcomeText: s.welcomeText,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	s.controllers[userID] = c
	metrics.SessionsActive.Inc()
	s.logger.Debug("conversation controller created", zap.String("user_id", userID))

	return c, nil
}

// Evict drops a user's controller from memory. The stored history is kept.
func (s *SessionService) Evict(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.controllers[userID]; ok {
		delete(s.controllers, userID)
		metrics.SessionsActive.Dec()
	}
}

// Purge forgets a user's conversation: any in-flight turn is superseded, the
// controller is dropped and the stored history is deleted. The next Get
// starts a fresh conversation.
func (s *SessionService) Purge(ctx context.Context, userID string) error {
	s.mu.Lock()
	c, ok := s.controllers[userID]
	if ok {
		delete(s.controllers, userID)
		metrics.SessionsActive.Dec()
	}
	s.mu.Unlock()

	if ok {
		c.Reset(ctx)
	}
	if s.blobs == nil {
		return nil
	}
	if err := session.NewStore(s.blobs, SessionKey(userID), s.logger).Clear(ctx); err != nil {
		return fmt.Errorf("failed to purge conversation: %w", err)
	}
	s.logger.Info("conversation purged", zap.String("user_id", userID))
	return nil
}

// Len returns the number of live controllers.
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.controllers)
}
