package targeted

import (
	"fmt"

	"github.com/roach88/targeted/internal/pool"
)

// cursor is the per-worker state of one drain. Handles minted by the drain
// point at it; it is only ever written by the worker that owns it.
type cursor struct {
	worker pool.Worker // the draining worker
	visit  uint64      // index of the callback invocation in progress
	spent  bool        // a handle of this visit was consumed
}

// Handle proves that the shard of its target, in the store being drained,
// is owned by the calling worker right now.
//
// Handles are minted only by DrainParallel, one per callback invocation.
// A handle must not be kept after its callback returns, passed to another
// goroutine, or pushed twice; each of those is a fatal violation detected
// at PushShared.
type Handle[K any] struct {
	key   K
	cur   *cursor
	visit uint64
}

// Key returns the target the handle was minted for.
func (h Handle[K]) Key() K {
	return h.key
}

func (h Handle[K]) String() string {
	return fmt.Sprintf("Handle(%v)", h.key)
}

// consume validates the handle for a shared push by the worker goroutine
// gid and marks it spent. The goroutine identity check is skipped when
// checkIdentity is false.
func (h Handle[K]) consume(gid int64, checkIdentity bool, store string, shard int) {
	if h.cur == nil {
		violate(ErrCodeForeignHandle, store, shard, "handle for %v was not minted by a drain", h.key)
	}
	if checkIdentity && h.cur.worker.GID != gid {
		violate(ErrCodeForeignHandle, store, shard,
			"handle for %v was minted on goroutine %d, used on goroutine %d", h.key, h.cur.worker.GID, gid)
	}
	if h.visit != h.cur.visit {
		violate(ErrCodeStaleHandle, store, shard, "handle for %v used after its drain callback returned", h.key)
	}
	if h.cur.spent {
		violate(ErrCodeHandleConsumed, store, shard, "handle for %v already consumed", h.key)
	}
	h.cur.spent = true
}

// advance retires every handle of the current visit.
func (c *cursor) advance() {
	c.visit++
	c.spent = false
}
