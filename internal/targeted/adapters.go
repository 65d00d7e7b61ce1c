package targeted

import "sync/atomic"

// Lookup yields zero or one item per key. It is read concurrently by every
// worker during a Reader drain and must not be mutated meanwhile.
type Lookup[K, T any] interface {
	Get(key K) (T, bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc[K, T any] func(key K) (T, bool)

// Get calls f(key).
func (f LookupFunc[K, T]) Get(key K) (T, bool) {
	return f(key)
}

// Reader drains a store and joins every event with the item its target
// has in a data source.
type Reader[E, K, T any] struct {
	store   *Store[E, K]
	source  Lookup[K, T]
	skipped atomic.Int64
}

// NewReader binds store to source.
func NewReader[E, K, T any](store *Store[E, K], source Lookup[K, T]) *Reader[E, K, T] {
	return &Reader[E, K, T]{store: store, source: source}
}

// DrainParallel drains the store and calls fn with each event and the
// item looked up for its target. Events whose target has no item (for
// example an entity removed between production and consumption) are
// skipped; that is expected and not an error.
func (r *Reader[E, K, T]) DrainParallel(fn func(Handle[K], E, T)) {
	r.skipped.Store(0)

	r.store.DrainParallel(func(h Handle[K], event E) {
		item, ok := r.source.Get(h.key)
		if !ok {
			r.skipped.Add(1)
			return
		}
		fn(h, event, item)
	})

	if n := r.skipped.Load(); n > 0 {
		r.store.cfg.logger.Debug("reader skipped events without data",
			"store", r.store.cfg.name,
			"skipped", n,
		)
	}
}

// Skipped returns how many events the last DrainParallel skipped.
func (r *Reader[E, K, T]) Skipped() int64 {
	return r.skipped.Load()
}

// Store returns the underlying store.
func (r *Reader[E, K, T]) Store() *Store[E, K] {
	return r.store
}

// Writer pushes events into a store on behalf of a handler.
type Writer[E, K any] struct {
	store *Store[E, K]
}

// NewWriter wraps store.
func NewWriter[E, K any](store *Store[E, K]) Writer[E, K] {
	return Writer[E, K]{store: store}
}

// PushExclusive forwards to Store.PushExclusive.
func (w Writer[E, K]) PushExclusive(target K, event E) {
	w.store.PushExclusive(target, event)
}

// PushShared forwards to Store.PushShared.
func (w Writer[E, K]) PushShared(h Handle[K], event E) {
	w.store.PushShared(h, event)
}

// Store returns the underlying store.
func (w Writer[E, K]) Store() *Store[E, K] {
	return w.store
}
