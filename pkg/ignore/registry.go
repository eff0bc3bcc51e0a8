// Package ignore tracks independent hashes the node has already seen, so
// gossip handlers can drop duplicate blocks before they ever reach
// blockcache.Cache. It implements blockcache.IgnoreRegistry and is kept
// bounded with an LRU eviction policy rather than growing without limit
// for the lifetime of the node.
package ignore

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/chronodrachma/chrd/pkg/blockcache"
)

// DefaultCapacity bounds how many independent hashes Registry remembers.
// Past this many distinct blocks, the oldest-seen hash is evicted first.
const DefaultCapacity = 100_000

// Registry is a bounded, concurrency-safe set of known block hashes.
type Registry struct {
	mu    sync.Mutex
	cache *lru.Cache[blockcache.IndepHash, struct{}]
}

// New returns a Registry that remembers up to capacity hashes. A
// non-positive capacity falls back to DefaultCapacity.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New[blockcache.IndepHash, struct{}](capacity)
	if err != nil {
		// Only returned for a non-positive size, already guarded above.
		panic(err)
	}
	return &Registry{cache: c}
}

// Add records h as seen. Satisfies blockcache.IgnoreRegistry.
func (r *Registry) Add(h blockcache.IndepHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Add(h, struct{}{})
}

// Remove forgets h. Satisfies blockcache.IgnoreRegistry.
func (r *Registry) Remove(h blockcache.IndepHash) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(h)
}

// Seen reports whether h has been recorded and not since evicted.
func (r *Registry) Seen(h blockcache.IndepHash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Contains(h)
}

// Len returns the number of hashes currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

var _ blockcache.IgnoreRegistry = (*Registry)(nil)
