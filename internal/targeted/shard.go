package targeted

import "sync/atomic"

const cacheLineSize = 64

// shard is one worker's slice of a store: two parallel append-only
// sequences plus the identity of the worker goroutine that pinned it.
//
// INVARIANTS:
//   - len(targets) == len(events) at all times
//   - owner is 0 (unpinned) or the goroutine id of the pinning worker
//   - owner returns to 0 after every drain of the shard
type shard[E, K any] struct {
	owner atomic.Int64

	targets []K
	events  []E

	// Backing arrays of the previous drain, reused by the next one.
	spareTargets []K
	spareEvents  []E

	// Keeps neighbouring shards' hot fields off this cache line.
	_ [cacheLineSize]byte
}

func (s *shard[E, K]) push(target K, event E) {
	s.targets = append(s.targets, target)
	s.events = append(s.events, event)
}

func (s *shard[E, K]) len() int {
	return len(s.targets)
}

// pin makes gid the owner if the shard is unpinned.
// Returns the current owner and whether it is gid.
func (s *shard[E, K]) pin(gid int64) (int64, bool) {
	if s.owner.CompareAndSwap(0, gid) {
		return gid, true
	}
	cur := s.owner.Load()
	return cur, cur == gid
}

func (s *shard[E, K]) unpin() {
	s.owner.Store(0)
}

// take hands the buffered pairs to the caller and leaves the shard empty,
// writing into the spare buffers from now on.
func (s *shard[E, K]) take() ([]K, []E) {
	targets, events := s.targets, s.events
	s.targets, s.events = s.spareTargets[:0], s.spareEvents[:0]
	s.spareTargets, s.spareEvents = nil, nil
	return targets, events
}

// recycle keeps the drained buffers for the next drain.
// Slots are zeroed so the backing arrays do not pin delivered events.
func (s *shard[E, K]) recycle(targets []K, events []E) {
	clear(targets)
	clear(events)
	s.spareTargets, s.spareEvents = targets[:0], events[:0]
}
