// Package signedurl caches short-lived asset URLs so repeated views of the
// same media do not hammer the blob backend.
package signedurl

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mrchevyceleb/vibecanvas/internal/storage"
)

// ErrNoAsset is returned for an empty storage key. No backend call is made in
// that case; an asset that was never stored is not the same as one that went
// missing.
var ErrNoAsset = errors.New("signedurl: record has no stored asset")

// DefaultTTL bounds how long a resolved URL is reused.
const DefaultTTL = 5 * time.Minute

// expirySkew is shaved off entry lifetimes so a cache hit is never an
// already-expired URL.
const expirySkew = 10 * time.Second

type entry struct {
	url     string
	expires time.Time
}

// Cache resolves and memoizes signed URLs. Entries are scoped to both the
// storage key and the auth context, so a session change re-resolves instead
// of leaking another session's URL.
type Cache struct {
	store storage.Store
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

func NewCache(store storage.Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Resolve returns a usable URL for key. storage.ErrNotFound passes through
// untouched so callers can distinguish a missing blob from a transient
// resolution failure. Errors are never cached.
func (c *Cache) Resolve(ctx context.Context, key, authContext string) (string, error) {
	if key == "" {
		return "", ErrNoAsset
	}
	cacheKey := authContext + "\x00" + key

	c.mu.Lock()
	if e, ok := c.entries[cacheKey]; ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		return e.url, nil
	}
	c.mu.Unlock()

	url, err := c.store.SignedURL(ctx, key, c.ttl)
	if err != nil {
		return "", err
	}

	expires := c.now().Add(c.ttl)
	if c.ttl > 2*expirySkew {
		expires = expires.Add(-expirySkew)
	}
	c.mu.Lock()
	c.entries[cacheKey] = entry{url: url, expires: expires}
	c.mu.Unlock()
	return url, nil
}

// Invalidate drops every cached entry for the storage key, across all auth
// contexts. Used after a delete.
func (c *Cache) Invalidate(key string) {
	suffix := "\x00" + key
	c.mu.Lock()
	for k := range c.entries {
		if len(k) >= len(suffix) && k[len(k)-len(suffix):] == suffix {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}
