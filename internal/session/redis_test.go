package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/capitalize-ai/booking-assistant/pkg/logger"
)

// keyRecorder captures command arguments and stops them before the network.
type keyRecorder struct {
	args [][]interface{}
}

var errRecorded = errors.New("recorded")

func (h *keyRecorder) BeforeProcess(ctx context.Context, cmd redis.Cmder) (context.Context, error) {
	h.args = append(h.args, cmd.Args())
	return ctx, errRecorded
}

func (h *keyRecorder) AfterProcess(context.Context, redis.Cmder) error { return nil }

func (h *keyRecorder) BeforeProcessPipeline(ctx context.Context, _ []redis.Cmder) (context.Context, error) {
	return ctx, nil
}

func (h *keyRecorder) AfterProcessPipeline(context.Context, []redis.Cmder) error { return nil }

func TestRedisBlobs_UsesSessionKeyAsIs(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	rec := &keyRecorder{}
	client.AddHook(rec)

	b := NewRedisBlobs(client, time.Hour)
	ctx := context.Background()
	b.Put(ctx, "booking-chat.u1", []byte("x"))
	b.Get(ctx, "booking-chat.u1")
	b.Delete(ctx, "booking-chat.u1")

	if len(rec.args) != 3 {
		t.Fatalf("recorded %d commands, want 3", len(rec.args))
	}
	for _, args := range rec.args {
		if len(args) < 2 || args[1] != "booking-chat.u1" {
			t.Errorf("command %v, want key booking-chat.u1", args)
		}
	}
}

func TestConnectRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := ConnectRedis(ctx, "127.0.0.1:1", "", 0); err == nil {
		t.Fatal("expected error connecting to a closed port")
	}
}

func TestRedisBlobs_UnreachableIsPersistenceError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	s := NewStore(NewRedisBlobs(client, time.Hour), "k", logger.Nop())
	if _, ok, err := s.Load(context.Background()); err == nil || ok {
		t.Errorf("Load = %v, %v; want failure", ok, err)
	}
	if err := s.Save(context.Background(), sampleMessages()); err == nil {
		t.Error("Save succeeded against a closed port")
	}
}
