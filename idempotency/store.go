package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "idem"
	pendingMarker = "pending"
	// pendingTTL bounds how long a crashed request can block retries of its key.
	pendingTTL = time.Minute
)

var (
	// ErrInProgress signals another request with the same key has not finished.
	ErrInProgress = errors.New("idempotency: request in progress")
)

// Response is a stored command response replayed for repeated keys.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store keeps command responses in Redis keyed by caller and Idempotency-Key.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Key composes the Redis key for a caller scoped idempotency key.
func Key(parts ...string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}

// Begin claims key. It returns the stored response when the key has already
// completed, or ErrInProgress when another request holds the claim.
func (s *Store) Begin(ctx context.Context, key string) (*Response, error) {
	claimed, err := s.client.SetNX(ctx, key, pendingMarker, pendingTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("idempotency: claim: %w", err)
	}
	if claimed {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		// Claim expired between SETNX and GET.
		return s.Begin(ctx, key)
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency: load: %w", err)
	}
	if string(raw) == pendingMarker {
		return nil, ErrInProgress
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("idempotency: decode: %w", err)
	}
	return &resp, nil
}

// Complete stores resp for replay until the configured TTL elapses.
func (s *Store) Complete(ctx context.Context, key string, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("idempotency: encode: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency: store: %w", err)
	}
	return nil
}

// Release drops the claim so the caller may retry, used when the command failed
// for a reason unrelated to its input.
func (s *Store) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}
