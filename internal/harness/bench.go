package harness

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/roach88/targeted/internal/pool"
	"github.com/roach88/targeted/internal/targeted"
)

// BenchResult reports one relay benchmark run.
type BenchResult struct {
	Workers int   `json:"workers"`
	Events  int   `json:"events"`
	Keys    int   `json:"keys"`
	Relayed int64 `json:"relayed"`

	Push    time.Duration `json:"push_ns"`
	Relay   time.Duration `json:"relay_ns"`
	Collect time.Duration `json:"collect_ns"`
}

// Elapsed returns the time spent in all three phases.
func (r BenchResult) Elapsed() time.Duration {
	return r.Push + r.Relay + r.Collect
}

// EventsPerSecond returns relayed events per second over Elapsed.
func (r BenchResult) EventsPerSecond() float64 {
	secs := r.Elapsed().Seconds()
	if secs == 0 {
		return 0
	}
	return float64(r.Relayed) / secs
}

// Relay measures an A to B relay on p: events are pushed exclusively into
// store A at key i%keys, A is drained forwarding every event into store B
// with a shared push, then B is drained and checked. Every event must
// arrive exactly once at the key it was pushed at.
func Relay(p *pool.Pool, events, keys int, opts ...targeted.Option) (BenchResult, error) {
	if events < 0 {
		return BenchResult{}, fmt.Errorf("events must be >= 0, got %d", events)
	}
	if keys <= 0 {
		return BenchResult{}, fmt.Errorf("keys must be > 0, got %d", keys)
	}

	res := BenchResult{Workers: p.Size(), Events: events, Keys: keys}

	a := targeted.New[uint64](p, targeted.Modulo[uint64](), append([]targeted.Option{targeted.WithName("relay_a")}, opts...)...)
	b := targeted.New[uint64](p, targeted.Modulo[uint64](), append([]targeted.Option{targeted.WithName("relay_b")}, opts...)...)

	start := time.Now()
	for i := range events {
		a.PushExclusive(uint64(i%keys), uint64(i))
	}
	res.Push = time.Since(start)

	start = time.Now()
	a.DrainParallel(func(h targeted.Handle[uint64], ev uint64) {
		b.PushShared(h, ev)
	})
	res.Relay = time.Since(start)

	var relayed, misrouted atomic.Int64
	start = time.Now()
	b.DrainParallel(func(h targeted.Handle[uint64], ev uint64) {
		relayed.Add(1)
		if h.Key() != ev%uint64(keys) {
			misrouted.Add(1)
		}
	})
	res.Collect = time.Since(start)
	res.Relayed = relayed.Load()

	if n := misrouted.Load(); n > 0 {
		return res, fmt.Errorf("%d events arrived at the wrong key", n)
	}
	if res.Relayed != int64(events) {
		return res, fmt.Errorf("relayed %d of %d events", res.Relayed, events)
	}
	return res, nil
}
