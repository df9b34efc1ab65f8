package engine

import (
	"fmt"
	"sync"

	"github.com/viterin/vek/vek32"

	"github.com/hvirtane/sfplay"
)

type (
	// Cache holds decoded float PCM buffers keyed by sample id. Entries are
	// materialized lazily on first use and evicted in strict LRU order when
	// the configured entry count would be exceeded; eviction happens before
	// insertion so the cache is never transiently over capacity.
	Cache struct {
		mu       sync.Mutex
		bank     *sfplay.Bank
		capacity int
		entries  map[int]*cacheEntry
		clock    int64 // monotonic access counter backing the LRU order
	}

	cacheEntry struct {
		sampleID   int
		data       []float32
		lastAccess int64
		byteSize   int
	}

	// CacheStats reports the resident entry count, the configured capacity
	// and the approximate memory held by the decoded buffers.
	CacheStats struct {
		ResidentCount    int
		Capacity         int
		ApproximateBytes int
	}
)

// NewCache creates a cache over the samples of bank with room for capacity
// decoded buffers; a non-positive capacity falls back to the default 150.
func NewCache(bank *sfplay.Bank, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		bank:     bank,
		capacity: capacity,
		entries:  make(map[int]*cacheEntry, capacity),
	}
}

// Get returns the decoded buffer for the sample id, materializing it on
// first use by normalizing the stored 16-bit PCM to [-1, 1). The returned
// slice is owned by the cache and must not be mutated.
func (c *Cache) Get(sampleID int) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(sampleID)
}

func (c *Cache) get(sampleID int) ([]float32, error) {
	if sampleID < 0 || sampleID >= len(c.bank.Samples) {
		return nil, fmt.Errorf("sample id %d out of range (bank has %d samples)", sampleID, len(c.bank.Samples))
	}
	if entry, ok := c.entries[sampleID]; ok {
		c.clock++
		entry.lastAccess = c.clock
		return entry.data, nil
	}
	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	data := decodePCM(c.bank.Samples[sampleID].Data)
	c.clock++
	c.entries[sampleID] = &cacheEntry{
		sampleID:   sampleID,
		data:       data,
		lastAccess: c.clock,
		byteSize:   len(data) * 4,
	}
	return data, nil
}

func (c *Cache) evictOldest() {
	oldestID := -1
	var oldestAccess int64
	for id, entry := range c.entries {
		if oldestID < 0 || entry.lastAccess < oldestAccess {
			oldestID = id
			oldestAccess = entry.lastAccess
		}
	}
	if oldestID >= 0 {
		delete(c.entries, oldestID)
	}
}

// Preload eagerly materializes a batch of samples. Unknown ids are skipped;
// preloading more ids than the capacity simply churns the LRU order.
func (c *Cache) Preload(sampleIDs []int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range sampleIDs {
		if id < 0 || id >= len(c.bank.Samples) {
			continue
		}
		c.get(id)
	}
}

// Clear drops every resident entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int]*cacheEntry, c.capacity)
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := CacheStats{
		ResidentCount: len(c.entries),
		Capacity:      c.capacity,
	}
	for _, entry := range c.entries {
		stats.ApproximateBytes += entry.byteSize
	}
	return stats
}

// decodePCM converts 16-bit PCM to normalized float32, sample/32768.
func decodePCM(pcm []int16) []float32 {
	data := make([]float32, len(pcm))
	for i, v := range pcm {
		data[i] = float32(v)
	}
	if len(data) > 0 {
		vek32.MulNumber_Inplace(data, 1.0/32768.0)
	}
	return data
}
