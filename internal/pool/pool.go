package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	// ErrClosed is the panic value of Broadcast on a closed pool.
	ErrClosed = errors.New("pool: broadcast on closed pool")

	// ErrNestedBroadcast is the panic value of Broadcast called from one of
	// the pool's own workers.
	ErrNestedBroadcast = errors.New("pool: broadcast called from inside a worker")
)

// Worker identifies one member of a Pool.
type Worker struct {
	// Index is the worker's position in [0, Size).
	Index int

	// GID is the runtime id of the worker's goroutine. It is never zero.
	GID int64
}

// PanicError carries a panic recovered on a worker back to the Broadcast
// caller.
type PanicError struct {
	Worker int
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("pool: worker %d panicked: %v", e.Worker, e.Value)
}

// Unwrap exposes the panic value when it is an error, so errors.As can see
// typed errors raised on a worker.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

type job struct {
	fn     func(Worker)
	wg     *sync.WaitGroup
	failed *firstPanic
}

type firstPanic struct {
	once sync.Once
	err  *PanicError
}

func (f *firstPanic) record(worker int, value any) {
	f.once.Do(func() {
		f.err = &PanicError{Worker: worker, Value: value, Stack: debug.Stack()}
	})
}

type worker struct {
	Worker
	jobs chan job
}

// Pool is a fixed-size set of worker goroutines.
//
// Thread-safety model:
//   - Size(), Current(): safe from any goroutine
//   - Broadcast(): safe from any goroutine that is not one of the workers
//   - Close(): safe from any goroutine, idempotent
type Pool struct {
	workers []*worker
	byGID   map[int64]int // written in New only

	mu     sync.RWMutex // guards closed against in-flight broadcasts
	closed bool
}

// New starts a pool of size workers. A size <= 0 means
// runtime.GOMAXPROCS(0).
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		workers: make([]*worker, size),
		byGID:   make(map[int64]int, size),
	}

	started := make(chan Worker)
	for i := range p.workers {
		w := &worker{
			Worker: Worker{Index: i},
			jobs:   make(chan job),
		}
		p.workers[i] = w
		go w.run(started)
	}

	for range p.workers {
		w := <-started
		p.workers[w.Index].GID = w.GID
		p.byGID[w.GID] = w.Index
	}

	slog.Debug("worker pool started", "workers", size)
	return p
}

func (w *worker) run(started chan<- Worker) {
	started <- Worker{Index: w.Index, GID: goroutineID()}
	for j := range w.jobs {
		w.do(j)
	}
}

func (w *worker) do(j job) {
	defer j.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			j.failed.record(w.Index, r)
		}
	}()
	j.fn(w.Worker)
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Current reports which worker the calling goroutine is.
// Returns false when called from a goroutine outside the pool. Each call
// captures the caller's stack header to read its goroutine id.
func (p *Pool) Current() (Worker, bool) {
	idx, ok := p.byGID[goroutineID()]
	if !ok {
		return Worker{}, false
	}
	return p.workers[idx].Worker, true
}

// Broadcast runs fn once on every worker and blocks until all of them
// return. If any invocation panicked, Broadcast panics with a *PanicError
// describing the first one after the whole batch has finished.
func (p *Pool) Broadcast(fn func(Worker)) {
	if _, ok := p.Current(); ok {
		panic(ErrNestedBroadcast)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		panic(ErrClosed)
	}

	var wg sync.WaitGroup
	failed := &firstPanic{}
	wg.Add(len(p.workers))
	for _, w := range p.workers {
		w.jobs <- job{fn: fn, wg: &wg, failed: failed}
	}
	wg.Wait()

	if failed.err != nil {
		panic(failed.err)
	}
}

// Close stops all workers. Broadcasts in flight finish first.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for _, w := range p.workers {
		close(w.jobs)
	}
	slog.Debug("worker pool stopped", "workers", len(p.workers))
}
