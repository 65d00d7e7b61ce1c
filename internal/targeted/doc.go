// Package targeted implements a worker-sharded relay for targeted events.
//
// A targeted event is an event plus the identity of the entity it concerns.
// Producers buffer targeted events in a Store; a later drain delivers every
// event exactly once to a per-entity callback running on a fixed worker
// pool.
//
// ARCHITECTURE:
//
// Sharding:
// A Store holds one shard per pool worker. KeyToShard maps a target to a
// shard; the same key always selects the same shard, so every event for a
// target is delivered by the same worker.
//
// Event flow:
//  1. PushExclusive buffers (target, event) in shard KeyToShard(target, N)
//  2. DrainParallel broadcasts one closure per worker
//  3. Each worker drains its own shard in push order, minting a Handle per event
//  4. Callbacks may forward derived events with PushShared(handle, event),
//     which lands in the calling worker's shard of the destination store
//
// Reader and Writer adapt a Store for handlers: a Reader joins every event
// with per-target data from a Lookup, skipping targets with none; a Writer
// forwards pushes.
//
// CRITICAL PATTERNS:
//
// Index partitioning, not locks:
// Shard i is only touched by worker i during drains and shared pushes.
// The owner pin (atomic compare-and-swap of the worker's goroutine id)
// catches violations of that discipline; it does not enforce it.
//
// Fail fast:
// Every invariant violation panics with a *ViolationError. Violations are
// programmer errors; nothing here retries or recovers. The only expected,
// non-fatal condition is a Reader lookup miss.
//
// Fixed shard count:
// N is the pool size at construction. Any later observation of a different
// pool size panics with ErrCodeShardCount.
package targeted
