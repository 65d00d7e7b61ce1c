package testutil

import (
	"testing"

	"github.com/roach88/targeted/internal/pool"
)

// NewPool starts a worker pool of the given size and closes it when the
// test finishes.
func NewPool(t testing.TB, size int) *pool.Pool {
	t.Helper()
	p := pool.New(size)
	t.Cleanup(p.Close)
	return p
}

// OnWorker runs fn once on worker index of p and waits for it.
// Store calls that must happen inside the pool use it from test code.
func OnWorker(p *pool.Pool, index int, fn func(pool.Worker)) {
	p.Broadcast(func(w pool.Worker) {
		if w.Index == index {
			fn(w)
		}
	})
}
