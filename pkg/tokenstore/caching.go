package tokenstore

import "sync"

// CachingStore fronts a backend Store with a process-local write-through
// cache. It is the authoritative source for ListTokens, since the
// OS-keyring backend can't enumerate its own entries and the file backend
// can only enumerate opaque digests — the cache is the only place real
// keys are known in cleartext during the process's lifetime.
type CachingStore struct {
	backend Store

	mu    sync.RWMutex
	cache map[string]TokenData
}

// NewCachingStore wraps backend with a write-through cache.
func NewCachingStore(backend Store) *CachingStore {
	return &CachingStore{backend: backend, cache: make(map[string]TokenData)}
}

func (c *CachingStore) StoreToken(key string, data TokenData) error {
	if err := c.backend.StoreToken(key, data); err != nil {
		return err
	}
	c.mu.Lock()
	c.cache[key] = data
	c.mu.Unlock()
	return nil
}

func (c *CachingStore) RetrieveToken(key string) (*TokenData, bool, error) {
	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return &cached, true, nil
	}

	data, ok, err := c.backend.RetrieveToken(key)
	if err != nil || !ok {
		return data, ok, err
	}
	c.mu.Lock()
	c.cache[key] = *data
	c.mu.Unlock()
	return data, true, nil
}

func (c *CachingStore) DeleteToken(key string) error {
	if err := c.backend.DeleteToken(key); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
	return nil
}

// ListTokens returns the keys seen by this process (via StoreToken or a
// cache-populating RetrieveToken). It does not merge in backend-only
// entries from a prior process — that loss is inherent to keyring-style
// backends that can't enumerate their own entries, and is documented in
// DESIGN.md.
func (c *CachingStore) ListTokens() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.cache))
	for k := range c.cache {
		keys = append(keys, k)
	}
	return keys, nil
}

func (c *CachingStore) IsAvailable() bool {
	return c.backend.IsAvailable()
}

// ClearCache drops and zeroizes every cached TokenData without touching
// the backend. Used when a session is torn down and its in-memory secret
// copies must not outlive it.
func (c *CachingStore) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.cache {
		v.Zero()
		delete(c.cache, k)
	}
}
