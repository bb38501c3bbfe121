package session

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/capitalize-ai/booking-assistant/pkg/logger"
)

func openTestBlobs(t *testing.T) *SQLBlobs {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	blobs, err := NewSQLBlobs(db)
	if err != nil {
		t.Fatalf("NewSQLBlobs: %v", err)
	}
	return blobs
}

func TestNewSQLBlobs_NilDB(t *testing.T) {
	if _, err := NewSQLBlobs(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestSQLBlobs_GetMissing(t *testing.T) {
	b := openTestBlobs(t)
	if _, err := b.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLBlobs_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	b := openTestBlobs(t)

	if err := b.Put(ctx, "k", []byte("one")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Put(ctx, "k", []byte("two")); err != nil {
		t.Fatalf("Put again: %v", err)
	}
	got, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("Get = %q, want two", got)
	}

	var count int64
	b.db.Model(&ChatSnapshot{}).Count(&count)
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}
}

func TestSQLBlobs_Delete(t *testing.T) {
	ctx := context.Background()
	b := openTestBlobs(t)
	b.Put(ctx, "k", []byte("x"))

	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := b.Delete(ctx, "k"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestSQLBlobs_StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(openTestBlobs(t), "booking-chat.u1", logger.Nop())

	msgs := sampleMessages()
	if err := s.Save(ctx, msgs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := s.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load = %v, %v", ok, err)
	}
	if !reflect.DeepEqual(got, msgs) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, msgs)
	}
}

func TestSQLBlobs_KeysAreIsolated(t *testing.T) {
	ctx := context.Background()
	b := openTestBlobs(t)
	b.Put(ctx, "a", []byte("alpha"))
	b.Put(ctx, "b", []byte("beta"))

	got, _ := b.Get(ctx, "a")
	if string(got) != "alpha" {
		t.Errorf("Get(a) = %q", got)
	}
}
