package auction

import "sync"

// lockEntry is one auction's serialization point. The refcount lets the table
// drop entries for idle auctions so it doesn't grow with history.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// LockTable serializes writers per auction id. PlaceBid, BuyNow and the
// lifecycle scheduler's per-auction transition all go through the same table,
// so at most one of them mutates a given auction at a time while different
// auctions proceed in parallel.
type LockTable struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[int64]*lockEntry)}
}

// Acquire blocks until the caller holds the auction's lock. The returned
// function releases it and must be called exactly once, after all storage
// work is done and before any network dispatch.
func (t *LockTable) Acquire(auctionID int64) func() {
	t.mu.Lock()
	entry, ok := t.locks[auctionID]
	if !ok {
		entry = &lockEntry{}
		t.locks[auctionID] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.locks, auctionID)
		}
		t.mu.Unlock()
	}
}
