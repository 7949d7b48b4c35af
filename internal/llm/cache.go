package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/Veraticus/parcel/internal/model"
)

// cacheEntry represents a cached inference reply.
type cacheEntry struct {
	expiry time.Time
	reply  string
}

// replyCache provides thread-safe caching for inference replies.
type replyCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
	once    sync.Once
}

// newReplyCache creates a new cache with the specified TTL.
func newReplyCache(ttl time.Duration) *replyCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &replyCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// cacheKey hashes the full prompt so identical requests share a reply.
func cacheKey(system string, messages []model.Exchange) string {
	h := sha256.New()
	h.Write([]byte(system))
	for _, m := range messages {
		h.Write([]byte{0})
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// get retrieves a reply from the cache if it exists and hasn't expired.
func (c *replyCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return "", false
	}

	return entry.reply, true
}

// set stores a reply in the cache.
func (c *replyCache) set(key, reply string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		reply:  reply,
		expiry: time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *replyCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// size returns the number of entries in the cache.
func (c *replyCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close stops the cleanup goroutine.
func (c *replyCache) Close() {
	c.once.Do(func() { close(c.stopCh) })
}
