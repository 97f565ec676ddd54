// Package cache provides the bounded LRU cache used by gfx for compiled
// shaders and by rendergraph for compiled schedules.
//
//	c := cache.New[uint64, []uint32](64)
//	words, err := c.GetOrCreate(key, func() ([]uint32, error) {
//	    return compile(src)
//	})
//
// Failed creations are not cached. An optional eviction callback receives
// every value that leaves the cache, including on Clear, so owners can
// release backend objects.
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache
