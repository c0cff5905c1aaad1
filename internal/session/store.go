// In file: internal/session/store.go
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dileep-u-k/llm-interactive-proxy/internal/proxytypes"
)

const ClineAgent = "cline"

// Session is a mutable per-client context keyed by session-id, carrying
// configuration and a detected-agent fingerprint.
type Session struct {
	ID        string
	State     State
	Agent     string
	History   []proxytypes.SessionInteraction
	CreatedAt time.Time
}

func newSession(id string) *Session {
	return &Session{ID: id, State: NewDefaultState(), CreatedAt: time.Now()}
}

// AppendInteraction appends one observability entry. History is a trail,
// not a replay store (see spec Non-goals) — it is never fed back into a
// request's message list.
func (s *Session) AppendInteraction(in proxytypes.SessionInteraction) {
	in.Timestamp = time.Now()
	s.History = append(s.History, in)
}

// Store is the keyed session-id → Session mapping with read-modify-write
// semantics. get_or_create is atomic; writes to the same session id
// serialize so no interleaved writer loses state.
type Store interface {
	GetOrCreate(ctx context.Context, id string) (*Session, error)
	// Mutate performs an atomic read-modify-write: fn receives the current
	// session, mutates it in place (including swapping its State via a
	// With* call), and the result is persisted before Mutate returns.
	Mutate(ctx context.Context, id string, fn func(*Session) error) error
	Get(ctx context.Context, id string) (*Session, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// MemoryStore is the default in-memory Store: a per-session mutex
// guarantees serialized read-modify-write, and a package mutex guards the
// map itself.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	locks    map[string]*sync.Mutex
	ttl      time.Duration
}

// NewMemoryStore builds an in-memory session store. ttl of zero means
// sessions never expire (unbounded eviction policy, per spec §4.4).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
		ttl:      ttl,
	}
}

func (m *MemoryStore) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = newSession(id)
		m.sessions[id] = s
	}
	m.mu.Unlock()
	return s, nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok, nil
}

func (m *MemoryStore) Mutate(ctx context.Context, id string, fn func(*Session) error) error {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = newSession(id)
		m.sessions[id] = s
	}
	m.mu.Unlock()

	return fn(s)
}

func (m *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	delete(m.locks, id)
	return ok, nil
}

// RedisStore is a durable Store backed by Redis, grounded on the teacher's
// profiler.go use of redis.Tx/Watch for compare-and-set updates. Sessions
// are serialized as a single JSON blob per key so State's with-er
// invariants (a full new value each mutation) map directly onto a
// whole-value Redis write rather than partial hash-field updates.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore builds a Store backed by the given Redis client.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "proxysession:", ttl: ttl}
}

func (r *RedisStore) key(id string) string { return r.prefix + id }

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, bool, error) {
	raw, err := r.rdb.Get(ctx, r.key(id)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, false, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, true, nil
}

func (r *RedisStore) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	s, ok, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ok {
		return s, nil
	}
	s = newSession(id)
	if err := r.put(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *RedisStore) put(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(s.ID), raw, r.ttl).Err()
}

// Mutate performs the read-modify-write under a redis.Tx/Watch so a
// concurrent writer to the same session key cannot silently clobber this
// mutation (spec §4.4, §5's session-store ordering guarantee).
func (r *RedisStore) Mutate(ctx context.Context, id string, fn func(*Session) error) error {
	key := r.key(id)
	return r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		var s *Session
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			s = newSession(id)
		case err != nil:
			return err
		default:
			s = &Session{}
			if err := json.Unmarshal([]byte(raw), s); err != nil {
				return fmt.Errorf("decode session %s: %w", id, err)
			}
		}

		if err := fn(s); err != nil {
			return err
		}

		encoded, err := json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.ttl)
			return nil
		})
		return err
	}, key)
}

func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := r.rdb.Del(ctx, r.key(id)).Result()
	return n > 0, err
}
