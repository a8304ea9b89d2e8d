// Package usercache is the shared read-through cache for author lookups. It
// exists so views batch-resolve user records instead of fetching one per
// message, and so the cache is an injected dependency with real eviction
// rather than an ambient unbounded map.
package usercache

import (
	"context"
	"sync"
	"time"

	"teamchat/api/internal/store"
)

type UserStore interface {
	GetUsersByID(ctx context.Context, userIDs []string) ([]store.User, error)
}

type entry struct {
	user      store.User
	expiresAt time.Time
}

type Cache struct {
	store UserStore
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]entry
}

func New(userStore UserStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		store:   userStore,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Get returns a cached user if present and unexpired.
func (c *Cache) Get(userID string) (store.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached, ok := c.entries[userID]
	if !ok || time.Now().After(cached.expiresAt) {
		return store.User{}, false
	}
	return cached.user, true
}

// ResolveMany returns users for the requested ids, fetching only the ones not
// already cached in a single batched store call. Unknown ids are simply
// absent from the result.
func (c *Cache) ResolveMany(ctx context.Context, userIDs []string) (map[string]store.User, error) {
	now := time.Now()
	result := make(map[string]store.User, len(userIDs))

	c.mu.Lock()
	c.pruneLocked(now)
	missing := make([]string, 0)
	requested := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := requested[id]; dup {
			continue
		}
		requested[id] = struct{}{}
		if cached, ok := c.entries[id]; ok && now.Before(cached.expiresAt) {
			result[id] = cached.user
		} else {
			missing = append(missing, id)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.store.GetUsersByID(ctx, missing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	expires := time.Now().Add(c.ttl)
	for _, user := range fetched {
		c.entries[user.ID] = entry{user: user, expiresAt: expires}
		result[user.ID] = user
	}
	c.mu.Unlock()

	return result, nil
}

// Invalidate drops one user, e.g. after a profile update event.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.entries, userID)
	c.mu.Unlock()
}

func (c *Cache) pruneLocked(now time.Time) {
	for id, cached := range c.entries {
		if now.After(cached.expiresAt) {
			delete(c.entries, id)
		}
	}
}
