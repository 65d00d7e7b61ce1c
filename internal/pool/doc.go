// Package pool implements the fixed-size worker pool that shard-affine
// operations run on.
//
// A Pool starts N long-lived worker goroutines. Each worker has a stable
// index in [0, N) and records its goroutine identity when it starts, so
// code running on a worker can ask the pool which worker it is (Current).
//
// ARCHITECTURE:
//
// Broadcast (fork-join):
// Broadcast hands the same closure to every worker and blocks until all of
// them have returned. Each worker runs the closure exactly once, with its
// own Worker value. This is the only blocking primitive in the pool.
//
// Panics:
// A panic inside a worker is recovered, the worker keeps serving, and the
// first panic of the batch is re-raised on the goroutine that called
// Broadcast as a *PanicError once every worker has finished. A failure on
// one worker therefore fails the whole batch instead of being lost.
//
// CRITICAL PATTERNS:
//
//   - Size never changes after New returns.
//   - Broadcast from inside a worker panics with ErrNestedBroadcast (the
//     calling worker would wait on itself).
//   - The goroutine-to-worker table is written once, before New returns,
//     and only read afterwards. Current needs no locking.
package pool
