package redis

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultTTL keeps sessions for a day, chosen for data-retention
// compliance: a session either reaches COMPLETION or expires.
const DefaultTTL = 24 * time.Hour

// Store implements ports.CacheStore using Redis.
type Store struct {
	client  *backend.Client
	prefix  string
	ttl     time.Duration
	hashKey []byte
}

type Option func(*Store)

// WithTTL sets the expiration for sessions. Zero disables expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithEnvironment namespaces keys by deployment environment so several
// deployments can share one backend.
func WithEnvironment(env string) Option {
	return func(s *Store) {
		s.prefix = "parley:" + env + ":session:"
	}
}

// WithHashedKeys derives cache keys from an HMAC-SHA256 of the session ID
// instead of the raw ID, so identifiers never leak into the backend's
// keyspace.
func WithHashedKeys(key []byte) Option {
	return func(s *Store) {
		s.hashKey = key
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "parley:default:session:",
		ttl:    DefaultTTL,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(sessionID string) string {
	if len(s.hashKey) > 0 {
		mac := hmac.New(sha256.New, s.hashKey)
		mac.Write([]byte(sessionID))
		return s.prefix + hex.EncodeToString(mac.Sum(nil))
	}
	return s.prefix + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Store persists the state. The write and the index update go through one
// pipeline so a session never exists without an index entry.
func (s *Store) Store(ctx context.Context, sessionID string, state *domain.WorkflowState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(sessionID), data, s.ttl)

	// Index score is the expiry instant; no-TTL sessions get a sentinel
	// far enough in the future that lazy cleanup never prunes them.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: sessionID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Retrieve loads the state for a session ID.
func (s *Store) Retrieve(ctx context.Context, sessionID string) (*domain.WorkflowState, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var state domain.WorkflowState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return &state, nil
}

// Delete removes the session and its index entry.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)

	_, err := pipe.Exec(ctx)
	return err
}

// HealthCheck pings the backend.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// List returns active sessions, lazily pruning expired index entries.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
