package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "aicore:key:"

// KeyStore looks up API key metadata by hash. A nil result with a nil error
// means the key is unknown, revoked or expired.
type KeyStore interface {
	Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error)
}

// KeySource is the durable side of the key store.
type KeySource interface {
	LookupKey(ctx context.Context, keyHash string) (*KeyMetadata, error)
	TouchKey(ctx context.Context, id string) error
}

// CachedKeyStore implements KeyStore over a KeySource with a Redis cache in
// front. A nil Redis client disables caching.
type CachedKeyStore struct {
	source KeySource
	redis  *redis.Client
	logger *slog.Logger
}

func NewCachedKeyStore(source KeySource, rdb *redis.Client, logger *slog.Logger) *CachedKeyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedKeyStore{source: source, redis: rdb, logger: logger}
}

func (s *CachedKeyStore) Lookup(ctx context.Context, keyHash string) (*KeyMetadata, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+keyHash).Bytes()
		if err == nil {
			var meta KeyMetadata
			if err := json.Unmarshal(cached, &meta); err == nil && meta.ExpiresAt.After(time.Now()) {
				return &meta, nil
			}
		}
	}

	meta, err := s.source.LookupKey(ctx, keyHash)
	if err != nil {
		return nil, fmt.Errorf("lookup key: %w", err)
	}
	if meta == nil {
		return nil, nil
	}

	if s.redis != nil {
		// never cache a key past its expiry
		ttl := min(redisCacheTTL, time.Until(meta.ExpiresAt))
		if data, err := json.Marshal(meta); err == nil && ttl > 0 {
			s.redis.Set(ctx, redisKeyPrefix+keyHash, data, ttl)
		}
	}

	// last_used_at is best effort
	go func(id string) {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.source.TouchKey(bgCtx, id); err != nil {
			s.logger.Debug("touch key failed", "key_id", id, "error", err)
		}
	}(meta.ID)

	return meta, nil
}
