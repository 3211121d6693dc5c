package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// KeyLoader resolves a key version to its metadata and plaintext.
type KeyLoader func() (*cryptoDomain.KmsKey, []byte, error)

type cacheEntry struct {
	key       *cryptoDomain.KmsKey
	plain     []byte
	expiresAt time.Time
}

// KeyCache keeps unwrapped scope keys in memory for a bounded time.
//
// Entries are keyed by key version id, which is immutable, so a rotation never
// makes an entry wrong; it only stops being used once the new version is active.
// Concurrent misses for the same id share one load. Callers always receive copies
// of the plaintext and own them. Evicted entries are zeroed.
//
// A zero TTL disables caching: every Get runs the loader.
type KeyCache struct {
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewKeyCache creates a cache and, for a positive ttl, starts its janitor
// goroutine. Call Close to stop it.
func NewKeyCache(ttl time.Duration) *KeyCache {
	c := &KeyCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[uuid.UUID]*cacheEntry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if ttl > 0 {
		go c.janitor(ttl)
	} else {
		close(c.done)
	}
	return c
}

// Get returns a copy of the cached key for id, loading it on a miss.
func (c *KeyCache) Get(id uuid.UUID, load KeyLoader) (*cryptoDomain.KmsKey, []byte, error) {
	if c.ttl <= 0 {
		return load()
	}

	if key, plain, ok := c.lookup(id); ok {
		return key, plain, nil
	}

	_, err, _ := c.group.Do(id.String(), func() (any, error) {
		if _, plain, ok := c.lookup(id); ok {
			cryptoDomain.Zero(plain)
			return nil, nil
		}
		key, plain, err := load()
		if err != nil {
			return nil, err
		}
		c.store(id, key, plain)
		return nil, nil
	})
	if err != nil {
		return nil, nil, err
	}

	if key, plain, ok := c.lookup(id); ok {
		return key, plain, nil
	}
	// Evicted between store and lookup; fall back to a direct load.
	return load()
}

// Len returns the number of live entries.
func (c *KeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge zeroes and removes every entry.
func (c *KeyCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		cryptoDomain.Zero(e.plain)
		delete(c.entries, id)
	}
}

// Close stops the janitor and purges the cache.
func (c *KeyCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.done
		c.Purge()
	})
}

func (c *KeyCache) lookup(id uuid.UUID) (*cryptoDomain.KmsKey, []byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, nil, false
	}
	if !c.now().Before(e.expiresAt) {
		cryptoDomain.Zero(e.plain)
		delete(c.entries, id)
		return nil, nil, false
	}
	key := *e.key
	return &key, append([]byte(nil), e.plain...), true
}

// store takes ownership of plain.
func (c *KeyCache) store(id uuid.UUID, key *cryptoDomain.KmsKey, plain []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[id]; ok {
		cryptoDomain.Zero(old.plain)
	}
	k := *key
	c.entries[id] = &cacheEntry{key: &k, plain: plain, expiresAt: c.now().Add(c.ttl)}
}

func (c *KeyCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			cryptoDomain.Zero(e.plain)
			delete(c.entries, id)
		}
	}
}

func (c *KeyCache) janitor(interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.evictExpired()
		case <-c.stop:
			return
		}
	}
}
