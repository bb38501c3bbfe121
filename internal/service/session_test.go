package service

import (
	"context"
	"errors"
	"testing"

	"github.com/capitalize-ai/booking-assistant/internal/backend"
	"github.com/capitalize-ai/booking-assistant/internal/session"
	"github.com/capitalize-ai/booking-assistant/pkg/logger"
)

type echoBackend struct{}

func (echoBackend) Send(_ context.Context, req backend.Request) (*backend.Response, error) {
	return &backend.Response{Message: "echo: " + req.Message}, nil
}

func TestSessionKey(t *testing.T) {
	if got := SessionKey("u1"); got != "booking-chat.u1" {
		t.Errorf("SessionKey = %q", got)
	}
}

func TestGet_ReusesController(t *testing.T) {
	svc := NewSessionService(echoBackend{}, session.NewMemoryBlobs(), logger.Nop())
	ctx := context.Background()

	a, err := svc.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := svc.Get(ctx, "u1")
	if a != b {
		t.Error("Get returned a different controller for the same user")
	}
	c, _ := svc.Get(ctx, "u2")
	if a == c {
		t.Error("users share a controller")
	}
	if svc.Len() != 2 {
		t.Errorf("Len = %d, want 2", svc.Len())
	}
	if a.SessionKey() != "booking-chat.u1" {
		t.Errorf("SessionKey = %q", a.SessionKey())
	}
}

func TestGet_RequiresUser(t *testing.T) {
	svc := NewSessionService(echoBackend{}, nil, logger.Nop())
	if _, err := svc.Get(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestEvict_ResumesFromStore(t *testing.T) {
	ctx := context.Background()
	svc := NewSessionService(echoBackend{}, session.NewMemoryBlobs(), logger.Nop(), WithWelcomeText("Welcome back"))

	c, _ := svc.Get(ctx, "u1")
	if got := c.State().Messages[0].Text; got != "Welcome back" {
		t.Errorf("welcome = %q", got)
	}
	if _, err := c.Submit(ctx, "book A512"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	svc.Evict("u1")
	if svc.Len() != 0 {
		t.Errorf("Len = %d after evict", svc.Len())
	}

	resumed, _ := svc.Get(ctx, "u1")
	if resumed == c {
		t.Fatal("evicted controller was reused")
	}
	msgs := resumed.State().Messages
	if len(msgs) != 3 || msgs[2].Text != "echo: book A512" {
		t.Errorf("resumed messages = %+v", msgs)
	}
}

func TestPurge_DeletesStoredHistory(t *testing.T) {
	ctx := context.Background()
	blobs := session.NewMemoryBlobs()
	svc := NewSessionService(echoBackend{}, blobs, logger.Nop())

	c, _ := svc.Get(ctx, "u1")
	if _, err := c.Submit(ctx, "book A512"); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := svc.Purge(ctx, "u1"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if svc.Len() != 0 {
		t.Errorf("Len = %d after purge", svc.Len())
	}
	if _, err := blobs.Get(ctx, SessionKey("u1")); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("stored history survived purge: %v", err)
	}

	fresh, _ := svc.Get(ctx, "u1")
	if n := len(fresh.State().Messages); n != 1 {
		t.Errorf("messages after purge = %d, want 1", n)
	}
}

func TestPurge_UnknownUser(t *testing.T) {
	svc := NewSessionService(echoBackend{}, session.NewMemoryBlobs(), logger.Nop())
	if err := svc.Purge(context.Background(), "nobody"); err != nil {
		t.Errorf("Purge: %v", err)
	}
}

type failingDeletes struct{ *session.MemoryBlobs }

func (failingDeletes) Delete(context.Context, string) error { return errors.New("connection refused") }

func TestPurge_StoreFailure(t *testing.T) {
	svc := NewSessionService(echoBackend{}, failingDeletes{session.NewMemoryBlobs()}, logger.Nop())
	var pe *session.PersistenceError
	if err := svc.Purge(context.Background(), "u1"); !errors.As(err, &pe) || pe.Op != "clear" {
		t.Errorf("Purge err = %v, want clear PersistenceError", err)
	}
}
