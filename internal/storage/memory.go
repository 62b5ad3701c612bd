package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and local development
// without a Redis instance. Expiry is honored lazily on access.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]memoryValue
	sets map[string]map[string]float64
}

type memoryValue struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]memoryValue),
		sets: make(map[string]map[string]float64),
	}
}

func (v memoryValue) expired() bool {
	return !v.expiresAt.IsZero() && time.Now().After(v.expiresAt)
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.keys[key]
	if !ok || v.expired() {
		delete(s.keys, key)
		return "", ErrKeyNotFound
	}
	return v.value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key] = memoryValue{value: value, expiresAt: expiry(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.keys[key]; ok && !v.expired() {
		return false, nil
	}
	s.keys[key] = memoryValue{value: value, expiresAt: expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.keys, key)
		delete(s.sets, key)
	}
	return nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.keys[key]; ok && !v.expired() {
		v.expiresAt = expiry(ttl)
		s.keys[key] = v
	}
	// ranked sets never expire in-process; the rollover test path
	// deletes them explicitly
	return nil
}

func (s *MemoryStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if v, ok := s.keys[key]; ok && !v.expired() {
		n, err := strconv.ParseInt(v.value, 10, 64)
		if err != nil {
			return 0, err
		}
		current = n
	}

	current += delta
	existing := s.keys[key]
	s.keys[key] = memoryValue{value: strconv.FormatInt(current, 10), expiresAt: existing.expiresAt}
	return current, nil
}

func (s *MemoryStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]float64)
		s.sets[key] = set
	}
	set[member] = score
	return nil
}

func (s *MemoryStore) ZRem(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(set, m)
	}
	return nil
}

func (s *MemoryStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ScoredMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.sets[key]
	members := make([]ScoredMember, 0, len(set))
	for m, score := range set {
		members = append(members, ScoredMember{Member: m, Score: score})
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member < members[j].Member
	})

	if start < 0 {
		start = 0
	}
	if stop < 0 || stop >= int64(len(members)) {
		stop = int64(len(members)) - 1
	}
	if start > stop {
		return nil, nil
	}
	return members[start : stop+1], nil
}

func (s *MemoryStore) ZCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.sets[key])), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
