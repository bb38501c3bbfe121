// Package session persists conversation history as a versioned JSON blob.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/booking-assistant/internal/model"
	"github.com/capitalize-ai/booking-assistant/pkg/logger"
	"github.com/capitalize-ai/booking-assistant/pkg/metrics"
)

// SchemaVersion is written into every persisted snapshot.
const SchemaVersion = 1

// ErrNotFound is returned by a BlobStore when the key holds nothing.
var ErrNotFound = errors.New("session: key not found")

// BlobStore is a durable key-value medium.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// PersistenceError wraps a failed read or write against the medium.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("session: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

type snapshot struct {
	Version  int             `json:"version"`
	Messages []model.Message `json:"messages"`
}

// Store binds a BlobStore to one conversation key.
type Store struct {
	blobs  BlobStore
	key    string
	logger *logger.Logger
}

// NewStore creates a store for key.
func NewStore(blobs BlobStore, key string, log *logger.Logger) *Store {
	return &Store{
		blobs:  blobs,
		key:    key,
		logger: log.WithSession(key),
	}
}

// Key returns the durable key this store writes to.
func (s *Store) Key() string {
	return s.key
}

// Load returns the persisted messages. ok is false when nothing usable is
// stored; corrupt content counts as nothing. err is a *PersistenceError.
func (s *Store) Load(ctx context.Context) (msgs []model.Message, ok bool, err error) {
	data, err := s.blobs.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		metrics.RecordPersistenceFailure("load")
		return nil, false, &PersistenceError{Op: "load", Key: s.key, Err: err}
	}

	msgs, err = Decode(data)
	if err != nil {
		s.logger.Warn("discarding corrupt session snapshot", zap.Error(err))
		return nil, false, nil
	}
	return msgs, true, nil
}

// Save persists the full ordered message sequence.
func (s *Store) Save(ctx context.Context, msgs []model.Message) error {
	data, err := Encode(msgs)
	if err != nil {
		metrics.RecordPersistenceFailure("save")
		return &PersistenceError{Op: "save", Key: s.key, Err: err}
	}
	if err := s.blobs.Put(ctx, s.key, data); err != nil {
		metrics.RecordPersistenceFailure("save")
		return &PersistenceError{Op: "save", Key: s.key, Err: err}
	}
	return nil
}

// Clear removes the persisted snapshot.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.blobs.Delete(ctx, s.key); err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordPersistenceFailure("clear")
		return &PersistenceError{Op: "clear", Key: s.key, Err: err}
	}
	return nil
}

// Encode serialises messages into a versioned snapshot.
func Encode(msgs []model.Message) ([]byte, error) {
	if msgs == nil {
		msgs = []model.Message{}
	}
	return json.Marshal(snapshot{Version: SchemaVersion, Messages: msgs})
}

// Decode parses a snapshot. A bare JSON array is accepted as the unversioned
// legacy layout.
func Decode(data []byte) ([]model.Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty snapshot")
	}

	var msgs []model.Message
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &msgs); err != nil {
			return nil, fmt.Errorf("decode legacy snapshot: %w", err)
		}
	} else {
		var snap snapshot
		if err := json.Unmarshal(trimmed, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		if snap.Version != SchemaVersion {
			return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
		}
		msgs = snap.Messages
	}

	if len(msgs) == 0 {
		return nil, errors.New("snapshot holds no messages")
	}
	for i, m := range msgs {
		if err := validate(m); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}
	return msgs, nil
}

func validate(m model.Message) error {
	if m.ID == "" {
		return errors.New("missing id")
	}
	if m.Sender != model.SenderUser && m.Sender != model.SenderAssistant {
		return fmt.Errorf("unknown sender %q", m.Sender)
	}
	return nil
}
