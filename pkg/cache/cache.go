// Package cache stores build artifacts between rig rebuilds: skeleton
// documents keyed by the manifest and layout that produced them, and
// rendered hierarchy images keyed by the skeleton they draw. Artifacts
// are content-addressed, so a guide nudge invalidates exactly the
// builds it changes.
//
// Backends: [FileCache] for CLI rebuilds on one machine, [RedisCache]
// for a shared cache behind the server, [NullCache] to disable caching.
package cache

import (
	"context"
	"time"
)

// Artifact lifetimes. Keys are content hashes, so entries never go
// stale; the TTLs only bound how much disk an abandoned rig leaves
// behind.
const (
	TTLSkeleton = 7 * 24 * time.Hour
	TTLRender   = 7 * 24 * time.Hour
)

// Cache is a byte-blob cache with optional expiry. A miss is not an
// error; Get reports it through the hit flag.
type Cache interface {
	// Get retrieves the value stored under key.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes the value stored under key. Deleting an absent
	// key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
