package ui

import (
	"hash/fnv"
	"sync"
)

// RenderCache memoizes rendered markdown. Answers are immutable once in
// the transcript, so a key of (content, width, theme) never goes stale.
type RenderCache struct {
	mu      sync.Mutex
	entries map[uint64]string
	order   []uint64
	maxSize int
	hits    int
	misses  int
}

// NewRenderCache creates a cache holding at most maxSize entries.
// Oldest entries are evicted first.
func NewRenderCache(maxSize int) *RenderCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &RenderCache{
		entries: make(map[uint64]string, maxSize),
		maxSize: maxSize,
	}
}

// ComputeKey hashes the inputs that affect a render with FNV-1a.
func ComputeKey(content string, width int, dark bool) uint64 {
	h := fnv.New64a()
	h.Write([]byte(content))

	var b [9]byte
	u := uint64(width)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	if dark {
		b[8] = 1
	}
	h.Write(b[:])
	return h.Sum64()
}

// GetOrCompute returns the cached render for key, calling compute on a miss.
// compute runs without the lock held.
func (rc *RenderCache) GetOrCompute(key uint64, compute func() string) string {
	rc.mu.Lock()
	if s, ok := rc.entries[key]; ok {
		rc.hits++
		rc.mu.Unlock()
		return s
	}
	rc.misses++
	rc.mu.Unlock()

	s := compute()

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.entries[key]; !ok {
		rc.entries[key] = s
		rc.order = append(rc.order, key)
		for len(rc.order) > rc.maxSize {
			delete(rc.entries, rc.order[0])
			rc.order = rc.order[1:]
		}
	}
	return s
}

// Len returns the number of cached entries.
func (rc *RenderCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.entries)
}

// Stats returns hit and miss counts.
func (rc *RenderCache) Stats() (hits, misses int) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.hits, rc.misses
}

// Clear empties the cache.
func (rc *RenderCache) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries = make(map[uint64]string, rc.maxSize)
	rc.order = nil
}
