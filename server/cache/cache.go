package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Cache stores JSON-encoded values by key.
type Cache interface {
	Set(ctx context.Context, key string, value any) error

	// Get decodes the value stored at key into dest. It returns ErrCacheMiss when the
	// key is absent or expired.
	Get(ctx context.Context, key string, dest any) error

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error

	GetStats(ctx context.Context) (*CacheStats, error)

	Close() error
}

type CacheStats struct {
	Backend   string `json:"backend"`
	Connected bool   `json:"connected"`
	Items     int64  `json:"items"`
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Info      string `json:"info"`
}

var ErrCacheMiss = errors.New("cache miss")

// GenerateCacheKey hashes the components into a fixed-length key.
func GenerateCacheKey(components ...string) string {
	h := sha256.New()
	for _, component := range components {
		h.Write([]byte(component))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
