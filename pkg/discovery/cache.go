package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sync"
	"time"
)

// cacheTTL is the spec-mandated per-server discovery cache lifetime.
const cacheTTL = time.Hour

type cacheEntry struct {
	config     DiscoveredOAuthConfig
	configHash string
	expiresAt  time.Time
}

// Cache holds discovery results per remote server, keyed by a sanitized
// host+path. Entries expire after cacheTTL; a content hash over the
// critical fields lets callers detect when a re-discovery produced a
// materially different result even within the TTL window.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCache builds an empty discovery cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Key sanitizes a server base URL down to "host+path" for use as the
// cache key, dropping scheme, query, and fragment so equivalent URLs
// collide onto the same entry.
func Key(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return baseURL
	}
	return u.Host + u.Path
}

// Get returns the cached config for key if present and not expired.
func (c *Cache) Get(key string) (DiscoveredOAuthConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return DiscoveredOAuthConfig{}, false
	}
	return entry.config, true
}

// Put installs a fresh entry for key with a new TTL window.
func (c *Cache) Put(key string, config DiscoveredOAuthConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{
		config:     config,
		configHash: ConfigHash(config),
		expiresAt:  time.Now().Add(cacheTTL),
	}
}

// Clear invalidates the entry for key, forcing the next lookup to
// re-discover.
func (c *Cache) Clear(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// ConfigHash returns a short content hash over the fields that matter for
// change detection: authorize/token endpoints and resolved scopes.
func ConfigHash(config DiscoveredOAuthConfig) string {
	h := sha256.New()
	h.Write([]byte(config.AuthServer.AuthorizationEndpoint))
	h.Write([]byte(config.AuthServer.TokenEndpoint))
	for _, s := range config.ResolvedScopes {
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
