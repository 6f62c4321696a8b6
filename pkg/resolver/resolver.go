// Package resolver implements the tool -> capability -> server
// authentication-method lookup: given a tool name and a
// MultiLevelAuthConfig, it decides which AuthMethod (if any) governs
// that tool's invocation.
package resolver

import (
	"strings"
	"sync"
	"unicode"

	"github.com/MagicBeansAI/magictunnel-sub000/pkg/authconfig"
)

// Resolver caches tool-name -> AuthMethod lookups. Results are cached in
// a concurrent map keyed by tool name; the cache is dropped whole on any
// config replacement, never invalidated entry-by-entry.
type Resolver struct {
	mu     sync.RWMutex
	config *authconfig.MultiLevelAuthConfig
	cache  map[string]cacheEntry
}

type cacheEntry struct {
	method *authconfig.AuthMethod
}

// New builds a Resolver over the given config.
func New(config *authconfig.MultiLevelAuthConfig) *Resolver {
	return &Resolver{config: config, cache: make(map[string]cacheEntry)}
}

// SetConfig installs a new config and clears the cache, since resolution
// results are a pure function of (config, tool) and must not outlive the
// config they were computed against.
func (r *Resolver) SetConfig(config *authconfig.MultiLevelAuthConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = config
	r.cache = make(map[string]cacheEntry)
}

// ResolveAuthForTool returns the AuthMethod governing tool, or nil if the
// tool is unauthenticated (including when the resolver is globally
// disabled, in which case every tool resolves to nil regardless of any
// configured entries).
func (r *Resolver) ResolveAuthForTool(tool string) *authconfig.AuthMethod {
	r.mu.RLock()
	config := r.config
	if !config.Enabled {
		r.mu.RUnlock()
		return nil
	}
	if entry, ok := r.cache[tool]; ok {
		r.mu.RUnlock()
		return entry.method
	}
	r.mu.RUnlock()

	method := resolve(config, tool)

	r.mu.Lock()
	r.cache[tool] = cacheEntry{method: method}
	r.mu.Unlock()

	return method
}

func resolve(config *authconfig.MultiLevelAuthConfig, tool string) *authconfig.AuthMethod {
	if m, ok := config.Tools[tool]; ok {
		return &m
	}

	if capability := extractCapability(tool); capability != "" {
		if m, ok := config.Capabilities[capability]; ok {
			return &m
		}
	}

	if config.ServerLevel != nil {
		return config.ServerLevel
	}

	return nil
}

// extractCapability pulls the leading namespace out of a tool name: try
// "." first, then "_", then "-", then fall back to the prefix before the
// first CamelCase boundary (e.g. "createIssue" -> "create").
func extractCapability(tool string) string {
	for _, sep := range []string{".", "_", "-"} {
		if idx := strings.Index(tool, sep); idx > 0 {
			return tool[:idx]
		}
	}

	runes := []rune(tool)
	for i := 1; i < len(runes); i++ {
		if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
			return string(runes[:i])
		}
	}

	return ""
}
