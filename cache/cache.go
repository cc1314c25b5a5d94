// Package cache stores serialized report results for a limited time.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cache is a TTL key/value store.
type Cache interface {
	// Get returns the value and true on a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Key builds "<prefix>:<md5 of parts>". Parts are formatted with %v and
// joined with "_", so callers must pass them in a stable order.
func Key(prefix string, parts ...interface{}) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprintf("%v", p)
	}
	sum := md5.Sum([]byte(strings.Join(strs, "_")))
	return prefix + ":" + hex.EncodeToString(sum[:])
}

// GetJSON decodes a cached value into out. A value that fails to decode is
// reported as a miss together with the error.
func GetJSON(ctx context.Context, c Cache, key string, out interface{}) (bool, error) {
	raw, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decoding cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return c.Set(ctx, key, raw, ttl)
}

type noop struct{}

// Noop returns a cache that never stores anything.
func Noop() Cache {
	return noop{}
}

func (noop) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (noop) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (noop) Close() error {
	return nil
}
