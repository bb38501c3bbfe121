package nats

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/booking-assistant/internal/session"
)

// DefaultBucket is the KV bucket holding conversation snapshots.
const DefaultBucket = "BOOKING_CHAT_SESSIONS"

// KVBlobs stores session snapshots in a JetStream key-value bucket.
type KVBlobs struct {
	kv jetstream.KeyValue
}

// NewKVBlobs binds to bucket, creating it with the given TTL when missing.
func NewKVBlobs(ctx context.Context, client *Client, bucket string, ttl time.Duration) (*KVBlobs, error) {
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Booking assistant conversation snapshots",
			History:     1,
			TTL:         ttl,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to bind KV bucket %s: %w", bucket, err)
	}

	return &KVBlobs{kv: kv}, nil
}

// kvKey maps a session key onto the KV key alphabet. The URL-safe base64
// alphabet is a subset of it and the encoding is reversible, so distinct
// session keys never share a KV key.
func kvKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (b *KVBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, kvKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

func (b *KVBlobs) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.kv.Put(ctx, kvKey(key), data)
	return err
}

func (b *KVBlobs) Delete(ctx context.Context, key string) error {
	err := b.kv.Delete(ctx, kvKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}
