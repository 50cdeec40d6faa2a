package imagex

import (
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// demangleCache memoizes demangled export names. Export tables of large
// modules repeat the same mangled prefixes across images loaded by one run.
type demangleCache struct {
	mu    sync.RWMutex
	names map[string]string
	hits  int
}

var cache = &demangleCache{names: make(map[string]string)}

// CachedDemangle returns the demangled form of a C++ symbol, or the name
// itself if it is not mangled.
func CachedDemangle(mangled string) string {
	if mangled == "" {
		return ""
	}
	cache.mu.RLock()
	if d, ok := cache.names[mangled]; ok {
		cache.mu.RUnlock()
		cache.mu.Lock()
		cache.hits++
		cache.mu.Unlock()
		return d
	}
	cache.mu.RUnlock()

	d := demangle.Filter(mangled, demangle.NoClones)

	cache.mu.Lock()
	cache.names[mangled] = d
	cache.mu.Unlock()
	return d
}

// DemangleCacheStats returns the number of cached names and cache hits.
func DemangleCacheStats() (size, hits int) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()
	return len(cache.names), cache.hits
}
