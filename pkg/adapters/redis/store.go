package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix is prepended to every history key.
const DefaultPrefix = "tapestry:history:"

// Store implements ports.HistoryStore on a Redis list, one list per session.
// Seq is the 1-based list position and is not serialized.
type Store struct {
	client    *backend.Client
	sessionID string
	prefix    string
	ttl       time.Duration

	encryption *Encryption
}

type Option func(*Store)

// WithTTL sets the expiration of the session's history, refreshed on each append.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewFromClient creates the history store of sessionID on an existing client.
func NewFromClient(client *backend.Client, sessionID string, opts ...Option) *Store {
	store := &Store{
		client:    client,
		sessionID: sessionID,
		prefix:    DefaultPrefix,
		ttl:       0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// NewFactory returns a constructor of per-session stores sharing client.
func NewFactory(client *backend.Client, opts ...Option) func(sessionID string) ports.HistoryStore {
	return func(sessionID string) ports.HistoryStore {
		return NewFromClient(client, sessionID, opts...)
	}
}

// NewClient creates a Redis client from connection settings.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}

func (s *Store) key() string {
	return s.prefix + s.sessionID
}

// Append pushes the snapshot to the tail of the session list.
func (s *Store) Append(ctx context.Context, snapshot domain.Snapshot) (domain.Snapshot, error) {
	snapshot.Seq = 0
	data, err := json.Marshal(snapshot)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if s.encryption != nil {
		if data, err = s.encryption.seal(data); err != nil {
			return domain.Snapshot{}, fmt.Errorf("failed to encrypt snapshot: %w", err)
		}
	}

	pipe := s.client.TxPipeline()
	push := pipe.RPush(ctx, s.key(), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to append to redis: %w", err)
	}

	stored := snapshot.Clone()
	stored.Seq = int(push.Val())
	return stored, nil
}

// Entries reads the whole list, oldest first.
func (s *Store) Entries(ctx context.Context) ([]domain.Snapshot, error) {
	vals, err := s.client.LRange(ctx, s.key(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history from redis: %w", err)
	}

	out := make([]domain.Snapshot, 0, len(vals))
	for i, val := range vals {
		data := []byte(val)
		if s.encryption != nil {
			if data, err = s.encryption.open(data); err != nil {
				return nil, fmt.Errorf("failed to decrypt entry %d: %w", i+1, err)
			}
		}
		var snap domain.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entry %d: %w", i+1, err)
		}
		snap.Seq = i + 1
		out = append(out, snap)
	}
	return out, nil
}

// Len returns the list length.
func (s *Store) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read history length: %w", err)
	}
	return int(n), nil
}

// Drop deletes the session's history.
func (s *Store) Drop(ctx context.Context) error {
	return s.client.Del(ctx, s.key()).Err()
}
