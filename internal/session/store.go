package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (s *redisStore) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	raw, err := s.client.Get(ctx, s.prefix+":"+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return &Session{ID: id}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode(id, raw)
}

func (s *redisStore) Save(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		return ErrInvalidID
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+":"+sess.ID, raw, s.ttl).Err()
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps encoded sessions in process memory. Entries expire after the TTL
// and are dropped by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	s.mu.Lock()
	entry, ok := s.entries[id]
	s.mu.Unlock()

	if !ok || entry.expires.Before(s.now()) {
		return &Session{ID: id}, nil
	}
	return decode(id, entry.data)
}

func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	if sess.ID == "" {
		return ErrInvalidID
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.ID] = memoryEntry{data: raw, expires: s.now().Add(s.ttl)}
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if entry.expires.Before(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// NewStore builds a Redis store and falls back to in-memory on failure.
// The returned error is non-nil only when Redis was configured but unreachable.
func NewStore(addr, pass string, db int, ttl time.Duration) (Store, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if addr == "" {
		return NewMemoryStore(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return NewMemoryStore(ttl), err
	}

	return &redisStore{
		client: client,
		prefix: "checkout:session",
		ttl:    ttl,
	}, nil
}

func decode(id string, raw []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	sess.ID = id
	return &sess, nil
}
