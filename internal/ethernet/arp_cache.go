package ethernet

import (
	"sync"

	"github.com/dantte-lp/netstackd/internal/netutil"
)

// ARPCacheCapacity is the fixed number of entries the cache holds
// (spec.md §4.C, capacity 64 per SPEC_FULL.md §1).
const ARPCacheCapacity = 64

// arpEntry tracks one resolved IP→MAC mapping plus the monotonic counter
// used for LRU eviction (REDESIGN FLAG 1, resolved in DESIGN.md: the
// original's "slot 0" replacement policy is replaced with true LRU;
// original_source/QNetwork's valid/stale distinction is modeled by the
// zero value of lastUsed meaning "never used", always evicted first).
type arpEntry struct {
	ip       netutil.IPv4
	mac      netutil.MAC
	lastUsed uint64
	valid    bool
}

// ARPCache is a fixed-capacity, LRU-replacement IP→MAC table
// (internal/bfd/discriminator.go's fixed-capacity-allocator pattern,
// generalized here from "reject when full" to "evict oldest").
type ARPCache struct {
	mu      sync.Mutex
	entries [ARPCacheCapacity]arpEntry
	clock   uint64
}

// NewARPCache returns an empty cache.
func NewARPCache() *ARPCache {
	return &ARPCache{}
}

// Update records (ip, mac) in the cache, evicting the least-recently-used
// entry if ip is not already present and the cache is full.
func (c *ARPCache) Update(ip netutil.IPv4, mac netutil.MAC) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++

	for i := range c.entries {
		if c.entries[i].valid && c.entries[i].ip == ip {
			c.entries[i].mac = mac
			c.entries[i].lastUsed = c.clock
			return
		}
	}

	victim := 0
	for i := range c.entries {
		if !c.entries[i].valid {
			victim = i
			break
		}
		if c.entries[i].lastUsed < c.entries[victim].lastUsed {
			victim = i
		}
	}
	c.entries[victim] = arpEntry{ip: ip, mac: mac, lastUsed: c.clock, valid: true}
}

// Lookup returns the cached MAC for ip, if present, bumping its recency.
func (c *ARPCache) Lookup(ip netutil.IPv4) (netutil.MAC, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++

	for i := range c.entries {
		if c.entries[i].valid && c.entries[i].ip == ip {
			c.entries[i].lastUsed = c.clock
			return c.entries[i].mac, true
		}
	}
	return netutil.MAC{}, false
}

// Len reports the number of valid entries, for metrics (ARP cache
// occupancy, SPEC_FULL.md §3).
func (c *ARPCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.entries {
		if c.entries[i].valid {
			n++
		}
	}
	return n
}
