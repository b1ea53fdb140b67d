// Package session keeps small per-caller state between requests: whether a
// lead was already forwarded this session and the last OTP issued.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "leadcapture:session:"
	DefaultTTL = 2 * time.Hour
)

// HeaderName carries the session id on HTTP requests.
const HeaderName = "X-Session-ID"

// State is the session payload.
type State struct {
	LeadSent bool   `json:"lead_sent"`
	OTP      string `json:"otp,omitempty"`
	OTPPhone string `json:"otp_phone,omitempty"`
}

// Store loads and saves session state. A missing session is the zero State.
type Store interface {
	Get(ctx context.Context, id string) (State, error)
	Save(ctx context.Context, id string, st State) error
}

// RedisStore keeps sessions in redis with a sliding TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, id string) (State, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("session: get %s: %w", id, err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("session: decode %s: %w", id, err)
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, id string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", id, err)
	}
	if err := s.client.Set(ctx, keyPrefix+id, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: save %s: %w", id, err)
	}
	return nil
}

// MemoryStore keeps sessions in process. Entries do not expire.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[id], nil
}

func (s *MemoryStore) Save(ctx context.Context, id string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = st
	return nil
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
