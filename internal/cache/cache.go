// Package cache stores finished credibility reports and derived page text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is a byte store with per-entry expiry. Expired entries are never
// returned, whether or not they have been evicted yet.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

const keyPrefix = "credence:v1:"

// ReportKey is the cache key for a report fingerprint.
func ReportKey(fingerprint string) string {
	return keyPrefix + "report:" + fingerprint
}

// TextKey is the cache key for text derived from a URL or an image.
func TextKey(origin []byte) string {
	hash := sha256.Sum256(origin)
	return keyPrefix + "text:" + hex.EncodeToString(hash[:])
}
