// Package cache memoizes JSON-encodable values, either in process or in Redis.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON values under string keys with a per-entry TTL.
type Cache interface {
	// GetJSON decodes the value stored at key into dst. hit is false when
	// the key is missing, expired or holds undecodable data.
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
