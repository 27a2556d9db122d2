package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	// ErrSessionNotFound is returned for unknown or expired sessions.
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrOrderNotFound is returned for orders this service did not place for the caller.
	ErrOrderNotFound = errors.New("order not found")
)

// Store persists checkout sessions and remembers who placed each order.
type Store interface {
	Get(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, s State) error
	Delete(ctx context.Context, id string) error
	RememberOrder(ctx context.Context, orderID, userID string) error
	OrderOwner(ctx context.Context, orderID string) (string, error)
}

// RedisStore keeps sessions as JSON documents that expire after TTL of inactivity.
type RedisStore struct {
	Client      *redis.Client
	Prefix      string
	OrderPrefix string
	TTL         time.Duration
}

// NewRedisStore builds a store with the default key prefixes.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: client, Prefix: "checkout:session:", OrderPrefix: "checkout:order:", TTL: ttl}
}

func (s *RedisStore) key(id string) string {
	return s.Prefix + id
}

func (s *RedisStore) orderKey(id string) string {
	prefix := s.OrderPrefix
	if prefix == "" {
		prefix = "checkout:order:"
	}
	return prefix + id
}

func (s *RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 30 * time.Minute
	}
	return s.TTL
}

// Get loads a session.
func (s *RedisStore) Get(ctx context.Context, id string) (State, error) {
	if s == nil || s.Client == nil {
		return State{}, errors.New("checkout: session store not configured")
	}
	raw, err := s.Client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrSessionNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("checkout: load session: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("checkout: decode session: %w", err)
	}
	return st, nil
}

// Save writes a session and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, st State) error {
	if s == nil || s.Client == nil {
		return errors.New("checkout: session store not configured")
	}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("checkout: encode session: %w", err)
	}
	if err := s.Client.Set(ctx, s.key(st.ID), payload, s.ttl()).Err(); err != nil {
		return fmt.Errorf("checkout: save session: %w", err)
	}
	return nil
}

// Delete removes a session.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.Client == nil {
		return nil
	}
	return s.Client.Del(ctx, s.key(id)).Err()
}

// RememberOrder records the user an order was placed for. The record lives
// as long as a session would, which covers the hosted payment window.
func (s *RedisStore) RememberOrder(ctx context.Context, orderID, userID string) error {
	if s == nil || s.Client == nil {
		return errors.New("checkout: session store not configured")
	}
	if err := s.Client.Set(ctx, s.orderKey(orderID), userID, s.ttl()).Err(); err != nil {
		return fmt.Errorf("checkout: remember order: %w", err)
	}
	return nil
}

// OrderOwner returns the user recorded for orderID.
func (s *RedisStore) OrderOwner(ctx context.Context, orderID string) (string, error) {
	if s == nil || s.Client == nil {
		return "", errors.New("checkout: session store not configured")
	}
	owner, err := s.Client.Get(ctx, s.orderKey(orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", fmt.Errorf("checkout: load order owner: %w", err)
	}
	return owner, nil
}
