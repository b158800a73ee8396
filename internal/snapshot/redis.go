package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dappbridge/walletd/internal/common/config"
	"github.com/dappbridge/walletd/internal/wc"
)

// RedisStore implements Store using Redis. Each session is stored under
// its own key with the peer ids tracked in a set, so SaveAll can drop
// entries for sessions that disconnected since the last snapshot.
type RedisStore struct {
	logger *zap.Logger
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-based snapshot store
func NewRedisStore(logger *zap.Logger, cfg config.SnapshotRedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "walletd:session"
	}
	return &RedisStore{
		logger: logger.Named("snapshot.redis"),
		client: client,
		prefix: prefix + ":",
		ttl:    cfg.TTL,
	}, nil
}

func (s *RedisStore) idsKey() string { return s.prefix + "ids" }

// SaveAll implements Store.SaveAll
func (s *RedisStore) SaveAll(ctx context.Context, sessions []wc.Session) error {
	keep := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		keep[sess.PeerID] = struct{}{}

		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		if err := s.client.Set(ctx, s.prefix+sess.PeerID, data, s.ttl).Err(); err != nil {
			return fmt.Errorf("failed to store session in Redis: %w", err)
		}
		if err := s.client.SAdd(ctx, s.idsKey(), sess.PeerID).Err(); err != nil {
			return fmt.Errorf("failed to add session id to set: %w", err)
		}
	}

	// Drop entries for peers no longer connected
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list session ids: %w", err)
	}
	for _, id := range ids {
		if _, ok := keep[id]; ok {
			continue
		}
		if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
			return fmt.Errorf("failed to delete stale session: %w", err)
		}
		if err := s.client.SRem(ctx, s.idsKey(), id).Err(); err != nil {
			return fmt.Errorf("failed to remove stale session id: %w", err)
		}
	}
	return nil
}

// LoadAll implements Store.LoadAll
func (s *RedisStore) LoadAll(ctx context.Context) ([]wc.Session, error) {
	ids, err := s.client.SMembers(ctx, s.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list session ids: %w", err)
	}

	sessions := make([]wc.Session, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.prefix+id).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Expired entry still referenced by the set
				continue
			}
			return nil, fmt.Errorf("failed to get session from Redis: %w", err)
		}

		var sess wc.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			s.logger.Error("failed to unmarshal session snapshot",
				zap.String("peer_id", id),
				zap.Error(err))
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Close implements Store.Close
func (s *RedisStore) Close() error {
	return s.client.Close()
}
