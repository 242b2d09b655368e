// Package redis implements the state and memory stores on Redis, the shared
// network-addressable backend every worker process reads and writes. The
// compare-and-swap write runs as a single Lua script so two racing workers
// can never both succeed against the same version.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/atelierlabs/concierge/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces all keys written by the store.
const DefaultPrefix = "concierge:"

// casScript compares the stored version, then writes version and payload
// atomically. Returns -1 on a version mismatch.
const casScript = `
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if cur ~= tonumber(ARGV[1]) then
	return -1
end
redis.call("SET", KEYS[1], ARGV[2])
redis.call("SET", KEYS[2], ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[4])
	redis.call("PEXPIRE", KEYS[2], ARGV[4])
end
return tonumber(ARGV[2])
`

// Store implements ports.StateStore and ports.MemoryStore on Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures the store.
type Option func(*Store)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL sets an expiry on session keys (0 = no expiry). Retention is
// otherwise an external policy.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New connects to the given address and returns a store.
func New(addr string, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{Addr: addr})
	return NewFromClient(client, opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) verKey(id string) string   { return s.prefix + "ver:" + id }
func (s *Store) stateKey(id string) string { return s.prefix + "state:" + id }
func (s *Store) memKey(id string) string   { return s.prefix + "mem:" + id }
func (s *Store) indexKey() string          { return s.prefix + "index" }

// Load retrieves and structurally validates the state.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.WorkflowState, error) {
	raw, err := s.client.Get(ctx, s.stateKey(sessionID)).Result()
	if err == backend.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load: %w", err)
	}

	var state domain.WorkflowState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, domain.ErrStateCorrupt
	}
	return &state, nil
}

// Save performs the compare-and-swap write. expectedVersion 0 creates the
// session and conflicts if it already exists.
func (s *Store) Save(ctx context.Context, sessionID string, state *domain.WorkflowState, expectedVersion int64) error {
	next := state.Clone()
	next.Version = expectedVersion + 1
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	res, err := s.client.Eval(ctx, casScript,
		[]string{s.verKey(sessionID), s.stateKey(sessionID)},
		strconv.FormatInt(expectedVersion, 10),
		strconv.FormatInt(next.Version, 10),
		string(payload),
		strconv.FormatInt(s.ttl.Milliseconds(), 10),
	).Int64()
	if err != nil {
		return fmt.Errorf("redis cas: %w", err)
	}
	if res < 0 {
		return domain.ErrVersionConflict
	}

	// The CAS above already committed; a failed index write must not make
	// a persisted save look failed. List repairs stale entries lazily.
	if err := s.client.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: sessionID,
	}).Err(); err != nil {
		s.logger.Warn("session index update failed", "session", sessionID, "error", err)
	}

	state.Version = next.Version
	return nil
}

// Delete removes the session's keys and index entry.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx,
		s.stateKey(sessionID), s.verKey(sessionID), s.memKey(sessionID),
	).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return s.client.ZRem(ctx, s.indexKey(), sessionID).Err()
}

// List returns the known session IDs, pruning index entries whose keys have
// since expired.
func (s *Store) List(ctx context.Context) ([]string, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}

	ids := make([]string, 0, len(members))
	for _, id := range members {
		exists, err := s.client.Exists(ctx, s.stateKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis list: %w", err)
		}
		if exists == 0 {
			// Lazy cleanup after TTL expiry.
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LoadMemory returns the conversation memory record, empty for new sessions.
func (s *Store) LoadMemory(ctx context.Context, sessionID string) (*domain.MemoryRecord, error) {
	raw, err := s.client.Get(ctx, s.memKey(sessionID)).Result()
	if err == backend.Nil {
		return &domain.MemoryRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis load memory: %w", err)
	}

	var rec domain.MemoryRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal memory: %w", err)
	}
	return &rec, nil
}

// SaveMemory overwrites the conversation memory record.
func (s *Store) SaveMemory(ctx context.Context, sessionID string, rec *domain.MemoryRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal memory: %w", err)
	}
	set := s.client.Set(ctx, s.memKey(sessionID), payload, s.ttl)
	if err := set.Err(); err != nil {
		return fmt.Errorf("redis save memory: %w", err)
	}
	return nil
}

// DeleteMemory removes the conversation memory record.
func (s *Store) DeleteMemory(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.memKey(sessionID)).Err()
}
