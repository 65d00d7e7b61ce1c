package targeted

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/targeted/internal/pool"
)

// Pool is the worker pool a Store is bound to. *pool.Pool implements it.
type Pool interface {
	// Size returns the number of workers. It must not change.
	Size() int

	// Current reports which worker the calling goroutine is.
	Current() (pool.Worker, bool)

	// Broadcast runs fn once on every worker and waits for all of them.
	Broadcast(fn func(pool.Worker))
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	name           string
	affinityChecks bool
	logger         *slog.Logger
}

// WithName labels the store in logs and violation errors.
func WithName(name string) Option {
	return func(c *storeConfig) {
		c.name = name
	}
}

// WithAffinityChecks toggles the goroutine identity check performed on
// every handle at PushShared. Disabled, PushShared takes the calling worker
// from the handle instead of looking it up. Owner pins, visit and
// consumption checks always run.
//
// Default: true
func WithAffinityChecks(enabled bool) Option {
	return func(c *storeConfig) {
		c.affinityChecks = enabled
	}
}

// WithLogger sets the logger for drain diagnostics.
//
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(c *storeConfig) {
		c.logger = logger
	}
}

// Store is a worker-sharded buffer of targeted events.
//
// A Store owns exactly one shard per worker of its pool. Producers fill it
// with PushExclusive (any goroutine, shard chosen by KeyToShard) or, from
// inside a drain callback, PushShared (the calling worker's own shard).
// DrainParallel empties it, each worker delivering its own shard.
//
// Thread-safety model:
//   - PushExclusive(): any goroutine, with exclusive access to the target's shard
//   - PushShared(): worker goroutines only, owner-checked
//   - DrainParallel(): from outside the pool; must not overlap other calls
//     touching the same shards except PushShared from the drain itself
//   - Len(), IsEmpty(), ShardLen(): exclusive access to the whole store
//
// The shard array itself is never resized, so the Store may be shared by
// pointer across goroutines. Shard contents are partitioned by worker
// index, not locked.
type Store[E, K any] struct {
	pool    Pool
	shardOf KeyToShard[K]
	shards  []shard[E, K]
	cfg     storeConfig
}

// New creates a store with one empty shard per worker of p.
func New[E, K any](p Pool, shardOf KeyToShard[K], opts ...Option) *Store[E, K] {
	cfg := storeConfig{
		name:           "targeted",
		affinityChecks: true,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	n := p.Size()
	if n <= 0 {
		violate(ErrCodeShardCount, cfg.name, -1, "pool has %d workers", n)
	}

	return &Store[E, K]{
		pool:    p,
		shardOf: shardOf,
		shards:  make([]shard[E, K], n),
		cfg:     cfg,
	}
}

// Name returns the store's label.
func (s *Store[E, K]) Name() string {
	return s.cfg.name
}

// Shards returns N, the number of shards fixed at construction.
func (s *Store[E, K]) Shards() int {
	return len(s.shards)
}

// PushExclusive appends (target, event) to the shard KeyToShard selects.
//
// Callable from any goroutine, including outside the pool. The caller
// guarantees that nothing else touches that shard concurrently; in practice
// exclusive pushes happen in a fill phase, never interleaved with a drain.
//
// Panics with ErrCodeShardCount if the pool size no longer matches the
// store or the key maps outside [0, N).
func (s *Store[E, K]) PushExclusive(target K, event E) {
	n := s.checkShardCount()
	idx := s.shardOf(target, n)
	if idx < 0 || idx >= len(s.shards) {
		violate(ErrCodeShardCount, s.cfg.name, idx,
			"shard index %d out of range [0, %d); did the pool size change?", idx, len(s.shards))
	}
	s.shards[idx].push(target, event)
}

// PushShared appends (h.Key(), event) to the calling worker's shard
// without recomputing KeyToShard.
//
// Callable only on a worker, with a handle minted by the drain callback
// currently running on that same worker. The handle is consumed. The
// target shard is pinned to the caller on first use; a later shared push
// from any other worker goroutine panics until the shard is drained.
//
// Identifying the caller costs one goroutine stack capture (see
// pool.Current), taken once per push. With affinity checks disabled the
// worker recorded in the handle is trusted instead and no capture happens;
// the caller must then guarantee it is the minting worker.
func (s *Store[E, K]) PushShared(h Handle[K], event E) {
	w := s.sharedPusher(h)
	s.checkShardCount()
	if w.Index >= len(s.shards) {
		violate(ErrCodeShardCount, s.cfg.name, w.Index,
			"worker index %d out of range [0, %d); did you create multiple pools?", w.Index, len(s.shards))
	}

	h.consume(w.GID, s.cfg.affinityChecks, s.cfg.name, w.Index)

	sh := &s.shards[w.Index]
	if owner, ok := sh.pin(w.GID); !ok {
		violate(ErrCodeWrongOwner, s.cfg.name, w.Index,
			"shard pinned by goroutine %d, shared push from goroutine %d", owner, w.GID)
	}
	sh.push(h.key, event)
}

// sharedPusher returns the worker a shared push runs on.
func (s *Store[E, K]) sharedPusher(h Handle[K]) pool.Worker {
	if !s.cfg.affinityChecks && h.cur != nil {
		return h.cur.worker
	}
	w, ok := s.pool.Current()
	if !ok {
		violate(ErrCodeNotOnWorker, s.cfg.name, -1, "shared push for %v outside the worker pool", h.key)
	}
	return w
}

// DrainParallel delivers every buffered event exactly once and leaves the
// store empty.
//
// One closure is broadcast to every worker. Each worker pins its own shard,
// takes the shard's content, and calls fn for every pair in push order with
// a freshly minted handle. DrainParallel returns when all workers are done.
//
// Events pushed into this store while it drains are kept for the next
// drain. A panic in fn aborts the batch: the panic is re-raised here after
// every worker finished and the failing worker's undelivered events are
// discarded.
//
// A Store always has its pool, so draining "on the pool" means DrainParallel
// dispatching through Broadcast; starting it from a worker goroutine panics
// with ErrCodeDrainOnWorker.
func (s *Store[E, K]) DrainParallel(fn func(Handle[K], E)) {
	if _, ok := s.pool.Current(); ok {
		violate(ErrCodeDrainOnWorker, s.cfg.name, -1, "drain started from inside the worker pool")
	}
	s.checkShardCount()

	start := time.Now()
	var delivered atomic.Int64

	s.pool.Broadcast(func(w pool.Worker) {
		if w.Index >= len(s.shards) {
			violate(ErrCodeShardCount, s.cfg.name, w.Index,
				"worker index %d out of range [0, %d)", w.Index, len(s.shards))
		}
		n := s.drainShard(w, fn)
		delivered.Add(int64(n))
	})

	s.cfg.logger.Debug("store drained",
		"store", s.cfg.name,
		"events", delivered.Load(),
		"shards", len(s.shards),
		"duration", time.Since(start),
	)
}

func (s *Store[E, K]) drainShard(w pool.Worker, fn func(Handle[K], E)) int {
	sh := &s.shards[w.Index]
	if owner, ok := sh.pin(w.GID); !ok {
		violate(ErrCodeWrongOwner, s.cfg.name, w.Index,
			"shard pinned by goroutine %d, drained by goroutine %d", owner, w.GID)
	}

	targets, events := sh.take()
	defer func() {
		sh.recycle(targets, events)
		sh.unpin()
	}()

	cur := &cursor{worker: w}
	for i := range targets {
		fn(Handle[K]{key: targets[i], cur: cur, visit: cur.visit}, events[i])
		cur.advance()
	}
	return len(targets)
}

// Len returns the number of buffered events across all shards.
// Requires exclusive access to the store.
func (s *Store[E, K]) Len() int {
	total := 0
	for i := range s.shards {
		total += s.shards[i].len()
	}
	return total
}

// IsEmpty reports whether every shard is empty.
// Requires exclusive access to the store.
func (s *Store[E, K]) IsEmpty() bool {
	for i := range s.shards {
		if s.shards[i].len() != 0 {
			return false
		}
	}
	return true
}

// ShardLen returns the number of events buffered in shard i.
// Requires exclusive access to the store.
func (s *Store[E, K]) ShardLen(i int) int {
	return s.shards[i].len()
}

// checkShardCount returns N after verifying that the pool still has N
// workers.
func (s *Store[E, K]) checkShardCount() int {
	n := s.pool.Size()
	if n != len(s.shards) {
		violate(ErrCodeShardCount, s.cfg.name, -1,
			"pool has %d workers, store was created with %d shards; did you create multiple pools?", n, len(s.shards))
	}
	return n
}
