package reconcile

import (
	"sync"
	"time"

	"verdant-vault/vault-portal-backend/internal/campaign"
)

// Snapshot is everything the portal currently believes is true about one
// campaign, read at a single observation point. Snapshots are immutable:
// a refresh builds a new one and swaps it in whole.
type Snapshot struct {
	Campaign    campaign.Campaign
	Milestones  []campaign.Milestone
	Investments []campaign.Investment
	ObservedAt  time.Time
}

// SnapshotCache holds the latest known snapshot per campaign id plus the
// campaign counter. It is shared process-wide; all mutation goes through
// whole-value replacement under the lock, so readers never observe a
// snapshot mixing fields from two reads.
type SnapshotCache struct {
	mu         sync.RWMutex
	snapshots  map[uint64]*Snapshot
	stale      map[uint64]bool
	count      uint64
	hasCount   bool
	countStale bool
}

// NewSnapshotCache creates an empty cache
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		snapshots: make(map[uint64]*Snapshot),
		stale:     make(map[uint64]bool),
	}
}

// Get returns the cached snapshot for a campaign. It never triggers a read.
func (c *SnapshotCache) Get(id uint64) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.snapshots[id]
	return snap, ok
}

// Replace swaps in a fresh snapshot and clears the staleness mark
func (c *SnapshotCache) Replace(id uint64, snap *Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshots[id] = snap
	delete(c.stale, id)
}

// MarkStale flags a campaign for refresh without blocking. Marking twice
// collapses into one pending refresh.
func (c *SnapshotCache) MarkStale(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale[id] = true
}

// TakeStale drains and returns the set of campaign ids flagged for refresh
func (c *SnapshotCache) TakeStale() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]uint64, 0, len(c.stale))
	for id := range c.stale {
		ids = append(ids, id)
	}
	c.stale = make(map[uint64]bool)
	return ids
}

// Keys returns every cached campaign id
func (c *SnapshotCache) Keys() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]uint64, 0, len(c.snapshots))
	for id := range c.snapshots {
		keys = append(keys, id)
	}
	return keys
}

// Size returns the number of cached snapshots
func (c *SnapshotCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}

// Count returns the cached campaign counter
func (c *SnapshotCache) Count() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count, c.hasCount
}

// ReplaceCount stores a freshly read campaign counter
func (c *SnapshotCache) ReplaceCount(count uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.count = count
	c.hasCount = true
	c.countStale = false
}

// MarkCountStale flags the campaign counter for refresh
func (c *SnapshotCache) MarkCountStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countStale = true
}

// TakeCountStale reads and clears the counter staleness flag
func (c *SnapshotCache) TakeCountStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	stale := c.countStale
	c.countStale = false
	return stale
}
