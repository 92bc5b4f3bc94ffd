// Package cache provides the TTL key/value store shared by all external-call
// sites. Two interchangeable backends exist: an in-process TTL map and a
// Redis client, selected by configuration.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Cache is the store contract. A miss must be treated identically to a fresh
// external call by the caller; Set is best-effort.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// MakeKey builds a cache key so that identical (operation, normalized
// parameters) pairs resolve to the same entry.
func MakeKey(op string, params ...string) string {
	h := md5.Sum([]byte(strings.Join(params, "|")))
	return op + ":" + hex.EncodeToString(h[:])
}
