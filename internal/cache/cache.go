// Package cache stores address balance lookups for display. Entries are
// never consulted by scans or sends, which always query the chain.
package cache

import (
	"sync"
	"time"
)

// DefaultStaleness is the default duration after which cache entries are considered stale.
const DefaultStaleness = 5 * time.Minute

// Cache defines the interface for balance caching operations.
type Cache interface {
	Get(network, address string) (*BalanceCacheEntry, bool, time.Duration)
	Set(entry BalanceCacheEntry)
	IsStale(network, address string, staleness time.Duration) bool
	Delete(network, address string)
	Clear()
	Size() int
	Prune(maxAge time.Duration) int
}

// Compile-time interface check
var _ Cache = (*BalanceCache)(nil)

// BalanceCache stores cached balance information.
type BalanceCache struct {
	mu      sync.RWMutex                 `json:"-"`
	Entries map[string]BalanceCacheEntry `json:"entries"`
}

// BalanceCacheEntry is the last observed state of one address, in satoshis.
type BalanceCacheEntry struct {
	Network     string    `json:"network"`
	Address     string    `json:"address"`
	Confirmed   uint64    `json:"confirmed"`
	Unconfirmed int64     `json:"unconfirmed"`
	TxCount     uint64    `json:"tx_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewBalanceCache creates a new empty balance cache.
func NewBalanceCache() *BalanceCache {
	return &BalanceCache{
		Entries: make(map[string]BalanceCacheEntry),
	}
}

// Key generates the cache key for an address on a network.
func Key(network, address string) string {
	return network + ":" + address
}

// Get retrieves a cached balance entry.
// Returns the entry, whether it exists, and its age.
func (c *BalanceCache) Get(network, address string) (*BalanceCacheEntry, bool, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.Entries[Key(network, address)]
	if !exists {
		return nil, false, 0
	}
	return &entry, true, time.Since(entry.UpdatedAt)
}

// Set stores a balance entry, stamping UpdatedAt when it is zero.
func (c *BalanceCache) Set(entry BalanceCacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	c.Entries[Key(entry.Network, entry.Address)] = entry
}

// IsStale reports whether the entry is missing or older than staleness.
func (c *BalanceCache) IsStale(network, address string, staleness time.Duration) bool {
	_, exists, age := c.Get(network, address)
	if !exists {
		return true
	}
	return age > staleness
}

// Delete removes a cache entry.
func (c *BalanceCache) Delete(network, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.Entries, Key(network, address))
}

// Clear removes all cache entries.
func (c *BalanceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Entries = make(map[string]BalanceCacheEntry)
}

// Size returns the number of cache entries.
func (c *BalanceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.Entries)
}

// Prune removes entries older than the specified duration.
func (c *BalanceCache) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for key, entry := range c.Entries {
		if entry.UpdatedAt.Before(cutoff) {
			delete(c.Entries, key)
			removed++
		}
	}
	return removed
}
