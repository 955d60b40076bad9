package visualization

import (
	"encoding/binary"

	"github.com/coocood/freecache"
	"github.com/golang/snappy"
	"github.com/google/uuid"

	"volfusion/internal/models"
)

// minCacheBytes is the smallest size freecache accepts.
const minCacheBytes = 512 * 1024

// SliceCache keeps recently extracted slice planes, snappy-compressed, in a
// freecache instance. A plane is only cached if its compressed size fits a
// single freecache entry (1/1024 of the cache size).
type SliceCache struct {
	cache *freecache.Cache
}

// NewSliceCache returns a cache of roughly sizeMB megabytes, or nil if
// sizeMB is not positive. A nil *SliceCache is valid and caches nothing.
func NewSliceCache(sizeMB int) *SliceCache {
	if sizeMB <= 0 {
		return nil
	}
	numBytes := sizeMB << 20
	if numBytes < minCacheBytes {
		numBytes = minCacheBytes
	}
	return &SliceCache{cache: freecache.NewCache(numBytes)}
}

// sliceKey is (volume id, orientation, index)
func sliceKey(id uuid.UUID, o models.Orientation, index int) []byte {
	b := make([]byte, 16+1+4)
	copy(b[0:16], id[:])
	b[16] = byte(o)
	binary.LittleEndian.PutUint32(b[17:21], uint32(index))
	return b
}

// Get returns the uncompressed plane bytes, or nil on a miss.
func (c *SliceCache) Get(id uuid.UUID, o models.Orientation, index int) []byte {
	if c == nil {
		return nil
	}
	compressed, err := c.cache.Get(sliceKey(id, o, index))
	if err != nil {
		return nil
	}
	plane, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil
	}
	return plane
}

// Put stores a plane. It reports whether the plane was cached.
func (c *SliceCache) Put(id uuid.UUID, o models.Orientation, index int, plane []byte) bool {
	if c == nil {
		return false
	}
	return c.cache.Set(sliceKey(id, o, index), snappy.Encode(nil, plane), 0) == nil
}

// Stats returns entry, hit and miss counts.
func (c *SliceCache) Stats() (entries, hits, misses int64) {
	if c == nil {
		return 0, 0, 0
	}
	return c.cache.EntryCount(), c.cache.HitCount(), c.cache.MissCount()
}

// Clear drops every cached plane.
func (c *SliceCache) Clear() {
	if c != nil {
		c.cache.Clear()
	}
}
