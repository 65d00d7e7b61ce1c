package targeted

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/targeted/internal/pool"
)

type pair struct {
	key   int
	event int
}

func newPool(t *testing.T, size int) *pool.Pool {
	t.Helper()
	p := pool.New(size)
	t.Cleanup(p.Close)
	return p
}

// resizablePool reports a size that tests can change under a live store.
type resizablePool struct {
	*pool.Pool
	size atomic.Int64
}

func newResizablePool(t *testing.T, size int) *resizablePool {
	rp := &resizablePool{Pool: newPool(t, size)}
	rp.size.Store(int64(size))
	return rp
}

func (p *resizablePool) Size() int {
	return int(p.size.Load())
}

// countingPool counts worker lookups.
type countingPool struct {
	*pool.Pool
	lookups atomic.Int64
}

func (p *countingPool) Current() (pool.Worker, bool) {
	p.lookups.Add(1)
	return p.Pool.Current()
}

// catchViolation runs fn and returns the error it panicked with.
func catchViolation(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		e, ok := r.(error)
		require.True(t, ok, "panic value %T is not an error", r)
		err = e
	}()
	fn()
	return nil
}

// collector gathers drained pairs from every worker.
type collector struct {
	mu      sync.Mutex
	pairs   []pair
	workers map[int]int // key -> worker index that delivered it
}

func newCollector() *collector {
	return &collector{workers: make(map[int]int)}
}

func (c *collector) add(p pair, worker int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs = append(c.pairs, p)
	c.workers[p.key] = worker
}

func TestNew_OneShardPerWorker(t *testing.T) {
	p := newPool(t, 4)
	s := New[int](p, Modulo[int]())

	assert.Equal(t, 4, s.Shards())
	assert.True(t, s.IsEmpty())
	assert.Zero(t, s.Len())
	assert.Equal(t, "targeted", s.Name())
}

func TestNew_WithName(t *testing.T) {
	p := newPool(t, 2)
	s := New[int](p, Modulo[int](), WithName("print"))
	assert.Equal(t, "print", s.Name())
}

func TestPushExclusive_SelectsShardByKey(t *testing.T) {
	p := newPool(t, 4)
	s := New[int](p, Modulo[int]())

	s.PushExclusive(5, 10)

	assert.Equal(t, 1, s.ShardLen(1))
	assert.Equal(t, 1, s.Len())
	assert.False(t, s.IsEmpty())
}

func TestPushExclusive_SameKeySameShard(t *testing.T) {
	p := newPool(t, 4)
	s := New[int](p, Modulo[int]())
	shardOf := Modulo[int]()

	for i := 0; i < 40; i++ {
		s.PushExclusive(i%10, i)
	}

	for idx := 0; idx < 4; idx++ {
		for j, key := range s.shards[idx].targets {
			assert.Equal(t, idx, shardOf(key, 4), "key %d at position %d of shard %d", key, j, idx)
		}
	}
}

func TestPushExclusive_FromManyGoroutinesOnDisjointShards(t *testing.T) {
	p := newPool(t, 4)
	s := New[int](p, Modulo[int]())

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				key := i*4 + g // always shard g
				s.PushExclusive(key, key)
			}
		}(g)
	}
	wg.Wait()

	for idx := 0; idx < 4; idx++ {
		assert.Equal(t, 250, s.ShardLen(idx))
	}
}

func TestDrainParallel_DeliversFromOwningWorker(t *testing.T) {
	p := newPool(t, 4)
	s := New[int](p, Modulo[int]())
	s.PushExclusive(5, 10)

	c := newCollector()
	s.DrainParallel(func(h Handle[int], event int) {
		w, ok := p.Current()
		assert.True(t, ok)
		c.add(pair{key: h.Key(), event: event}, w.Index)
	})

	require.Len(t, c.pairs, 1)
	assert.Equal(t, pair{key: 5, event: 10}, c.pairs[0])
	assert.Equal(t, 1, c.workers[5])
}

func TestDrainParallel_HundredPairs(t *testing.T) {
	p := newPool(t, 4)
	s := New[int](p, Modulo[int]())

	want := make([]pair, 0, 100)
	for i := 0; i < 100; i++ {
		s.PushExclusive(i, i*2)
		want = append(want, pair{key: i, event: i * 2})
	}

	c := newCollector()
	s.DrainParallel(func(h Handle[int], event int) {
		w, _ := p.Current()
		c.add(pair{key: h.Key(), event: event}, w.Index)
	})

	assert.ElementsMatch(t, want, c.pairs)
	for key, worker := range c.workers {
		assert.Equal(t, key%4, worker, "key %d delivered by wrong worker", key)
	}
}

func TestDrainParallel_ExactlyOnceWithDuplicates(t *testing.T) {
	p := newPool(t, 3)
	s := New[string](p, Modulo[int]())

	pushed := make(map[string]int)
	for i := 0; i < 60; i++ {
		key := i % 7
		event := fmt.Sprintf("%d:%d", key, i%3)
		s.PushExclusive(key, event)
		pushed[event]++
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	s.DrainParallel(func(_ Handle[int], event string) {
		mu.Lock()
		defer mu.Unlock()
		seen[event]++
	})

	assert.Equal(t, pushed, seen)
}

func TestDrainParallel_EmptiesStore(t *testing.T) {
	p := newPool(t, 4)
	s := New[int](p, Modulo[int]())
	for i := 0; i < 10; i++ {
		s.PushExclusive(i, i)
	}

	s.DrainParallel(func(Handle[int], int) {})

	assert.True(t, s.IsEmpty())
	assert.Zero(t, s.Len())
}

func TestDrainParallel_EmptyStoreInvokesNothing(t *testing.T) {
	p := newPool(t, 4)
	s := New[int](p, Modulo[int]())

	var calls atomic.Int64
	s.DrainParallel(func(Handle[int], int) { calls.Add(1) })
	s.DrainParallel(func(Handle[int], int) { calls.Add(1) })

	assert.Zero(t, calls.Load())
}

func TestDrainParallel_ReusableAcrossCycles(t *testing.T) {
	p := newPool(t, 2)
	s := New[int](p, Modulo[int]())

	for cycle := 0; cycle < 5; cycle++ {
		for i := 0; i < 20; i++ {
			s.PushExclusive(i, cycle)
		}

		var calls atomic.Int64
		s.DrainParallel(func(_ Handle[int], event int) {
			assert.Equal(t, cycle, event)
			calls.Add(1)
		})
		assert.Equal(t, int64(20), calls.Load(), "cycle %d", cycle)
		assert.True(t, s.IsEmpty())
	}
}

func TestDrainParallel_PreservesPushOrderPerKey(t *testing.T) {
	p := newPool(t, 4)
	s := New[int](p, Modulo[int]())

	for i := 0; i < 50; i++ {
		for key := 0; key < 8; key++ {
			s.PushExclusive(key, i)
		}
	}

	var mu sync.Mutex
	order := make(map[int][]int)
	s.DrainParallel(func(h Handle[int], event int) {
		mu.Lock()
		defer mu.Unlock()
		order[h.Key()] = append(order[h.Key()], event)
	})

	require.Len(t, order, 8)
	for key, events := range order {
		require.Len(t, events, 50)
		for i, e := range events {
			assert.Equal(t, i, e, "key %d out of order at %d", key, i)
		}
	}
}

func TestDrainParallel_SharedPushRelaysKeySet(t *testing.T) {
	p := newPool(t, 4)
	a := New[int](p, Modulo[int](), WithName("a"))
	b := New[string](p, Modulo[int](), WithName("b"))

	keys := make([]int, 0, 32)
	for i := 0; i < 32; i++ {
		a.PushExclusive(i, i*2)
		keys = append(keys, i)
	}

	a.DrainParallel(func(h Handle[int], data int) {
		b.PushShared(h, fmt.Sprintf("I love %d", data))
	})
	assert.True(t, a.IsEmpty())
	assert.Equal(t, 32, b.Len())

	var mu sync.Mutex
	var got []int
	b.DrainParallel(func(h Handle[int], msg string) {
		assert.Equal(t, fmt.Sprintf("I love %d", h.Key()*2), msg)
		mu.Lock()
		defer mu.Unlock()
		got = append(got, h.Key())
	})

	assert.ElementsMatch(t, keys, got)
}

func TestDrainParallel_SharedPushLandsInSameShardIndex(t *testing.T) {
	p := newPool(t, 4)
	a := New[int](p, Modulo[int]())
	b := New[int](p, Modulo[int]())

	for i := 0; i < 16; i++ {
		a.PushExclusive(i, i)
	}
	a.DrainParallel(func(h Handle[int], e int) {
		b.PushShared(h, e)
	})

	for idx := 0; idx < 4; idx++ {
		assert.Equal(t, 4, b.ShardLen(idx))
		for _, key := range b.shards[idx].targets {
			assert.Equal(t, idx, key%4)
		}
	}
}

func TestDrainParallel_SharedPushIntoDrainingStoreWaitsForNextDrain(t *testing.T) {
	p := newPool(t, 2)
	s := New[int](p, Modulo[int]())
	for i := 0; i < 10; i++ {
		s.PushExclusive(i, 0)
	}

	var first atomic.Int64
	s.DrainParallel(func(h Handle[int], gen int) {
		first.Add(1)
		if gen == 0 {
			s.PushShared(h, 1)
		}
	})
	assert.Equal(t, int64(10), first.Load())
	assert.Equal(t, 10, s.Len())

	var second atomic.Int64
	s.DrainParallel(func(_ Handle[int], gen int) {
		assert.Equal(t, 1, gen)
		second.Add(1)
	})
	assert.Equal(t, int64(10), second.Load())
	assert.True(t, s.IsEmpty())
}

func TestDrainParallel_UnpinsAfterDrain(t *testing.T) {
	p := newPool(t, 2)
	a := New[int](p, Modulo[int]())
	b := New[int](p, Modulo[int]())

	a.PushExclusive(0, 0)
	a.DrainParallel(func(h Handle[int], e int) { b.PushShared(h, e) })
	assert.NotZero(t, b.shards[0].owner.Load(), "shared push pins the shard")

	b.DrainParallel(func(Handle[int], int) {})
	for idx := range b.shards {
		assert.Zero(t, b.shards[idx].owner.Load(), "shard %d still pinned", idx)
	}
}

func TestDrainParallel_CallbackPanicAbortsBatch(t *testing.T) {
	p := newPool(t, 2)
	s := New[int](p, Modulo[int]())
	for i := 0; i < 10; i++ {
		s.PushExclusive(i, i)
	}

	assert.Panics(t, func() {
		s.DrainParallel(func(_ Handle[int], e int) {
			if e == 3 {
				panic("handler failed")
			}
		})
	})

	assert.True(t, s.IsEmpty())
	for idx := range s.shards {
		assert.Zero(t, s.shards[idx].owner.Load())
	}

	s.PushExclusive(1, 1)
	var calls atomic.Int64
	s.DrainParallel(func(Handle[int], int) { calls.Add(1) })
	assert.Equal(t, int64(1), calls.Load())
}

func TestPushShared_OutsidePool(t *testing.T) {
	p := newPool(t, 2)
	s := New[int](p, Modulo[int]())

	err := catchViolation(t, func() {
		s.PushShared(Handle[int]{key: 1}, 1)
	})

	assert.Equal(t, ErrCodeNotOnWorker, CodeOf(err))
	assert.True(t, IsAffinityError(err))
}

func TestPushShared_UnmintedHandle(t *testing.T) {
	p := newPool(t, 2)
	a := New[int](p, Modulo[int]())
	b := New[int](p, Modulo[int]())
	a.PushExclusive(0, 0)

	err := catchViolation(t, func() {
		a.DrainParallel(func(Handle[int], int) {
			b.PushShared(Handle[int]{key: 0}, 0)
		})
	})

	assert.Equal(t, ErrCodeForeignHandle, CodeOf(err))
}

func TestPushShared_HandleFromAnotherWorker(t *testing.T) {
	p := newPool(t, 2)
	a := New[int](p, Modulo[int]())
	b := New[int](p, Modulo[int]())
	a.PushExclusive(0, 0) // worker 0
	a.PushExclusive(1, 1) // worker 1

	handoff := make(chan Handle[int], 1)
	err := catchViolation(t, func() {
		a.DrainParallel(func(h Handle[int], e int) {
			if e == 0 {
				handoff <- h
				return
			}
			b.PushShared(<-handoff, e)
		})
	})

	assert.Equal(t, ErrCodeForeignHandle, CodeOf(err))
	assert.True(t, IsAffinityError(err))
}

func TestPushShared_StaleHandle(t *testing.T) {
	p := newPool(t, 1)
	a := New[int](p, Modulo[int]())
	b := New[int](p, Modulo[int]())
	c := New[int](p, Modulo[int]())

	a.PushExclusive(0, 0)
	var kept Handle[int]
	a.DrainParallel(func(h Handle[int], _ int) { kept = h })

	c.PushExclusive(0, 0)
	err := catchViolation(t, func() {
		c.DrainParallel(func(Handle[int], int) {
			b.PushShared(kept, 0)
		})
	})

	assert.Equal(t, ErrCodeStaleHandle, CodeOf(err))
}

func TestPushShared_HandleConsumedOnce(t *testing.T) {
	for _, checks := range []bool{true, false} {
		t.Run(fmt.Sprintf("affinity_checks_%v", checks), func(t *testing.T) {
			p := newPool(t, 2)
			a := New[int](p, Modulo[int]())
			b := New[int](p, Modulo[int](), WithAffinityChecks(checks))
			a.PushExclusive(0, 0)

			err := catchViolation(t, func() {
				a.DrainParallel(func(h Handle[int], e int) {
					b.PushShared(h, e)
					b.PushShared(h, e)
				})
			})

			assert.Equal(t, ErrCodeHandleConsumed, CodeOf(err))
		})
	}
}

func TestPushShared_WrongOwner(t *testing.T) {
	p := newPool(t, 2)
	a := New[int](p, Modulo[int]())
	b := New[int](p, Modulo[int]())
	a.PushExclusive(0, 0)

	// shard 0 of b pinned by some goroutine that is not worker 0
	b.shards[0].owner.Store(-1)

	err := catchViolation(t, func() {
		a.DrainParallel(func(h Handle[int], e int) { b.PushShared(h, e) })
	})

	assert.Equal(t, ErrCodeWrongOwner, CodeOf(err))
	assert.True(t, IsAffinityError(err))
	assert.Zero(t, b.Len(), "rejected push must not be buffered")
}

func TestPushShared_OwningWorkerSucceedsRepeatedly(t *testing.T) {
	p := newPool(t, 2)
	a := New[int](p, Modulo[int]())
	b := New[int](p, Modulo[int]())
	for i := 0; i < 10; i++ {
		a.PushExclusive(i, i)
	}

	assert.NotPanics(t, func() {
		a.DrainParallel(func(h Handle[int], e int) { b.PushShared(h, e) })
	})
	assert.Equal(t, 10, b.Len())
}

func TestPushShared_WorkerLookupsPerPush(t *testing.T) {
	for _, tc := range []struct {
		checks  bool
		lookups int64
	}{
		{checks: true, lookups: 10},
		{checks: false, lookups: 0},
	} {
		t.Run(fmt.Sprintf("affinity_checks_%v", tc.checks), func(t *testing.T) {
			p := newPool(t, 2)
			a := New[int](p, Modulo[int]())
			cp := &countingPool{Pool: p}
			b := New[int](cp, Modulo[int](), WithAffinityChecks(tc.checks))
			for i := 0; i < 10; i++ {
				a.PushExclusive(i, i)
			}

			a.DrainParallel(func(h Handle[int], e int) { b.PushShared(h, e) })

			assert.Equal(t, tc.lookups, cp.lookups.Load())
			// shared pushes land in the minting worker's shard
			assert.Equal(t, a.Shards(), b.Shards())
			assert.Equal(t, 5, b.ShardLen(0))
			assert.Equal(t, 5, b.ShardLen(1))

			got := newCollector()
			b.DrainParallel(func(h Handle[int], e int) {
				w, ok := p.Current()
				assert.True(t, ok)
				assert.Equal(t, h.Key()%2, w.Index)
				got.add(pair{key: h.Key(), event: e}, w.Index)
			})
			assert.Len(t, got.pairs, 10)
		})
	}
}

func TestPushShared_ChecksDisabledUnmintedHandleOutsidePool(t *testing.T) {
	p := newPool(t, 2)
	s := New[int](p, Modulo[int](), WithAffinityChecks(false))

	err := catchViolation(t, func() {
		s.PushShared(Handle[int]{key: 1}, 1)
	})

	assert.Equal(t, ErrCodeNotOnWorker, CodeOf(err))
}

func TestDrainParallel_FromInsideWorker(t *testing.T) {
	p := newPool(t, 2)
	a := New[int](p, Modulo[int]())
	b := New[int](p, Modulo[int]())
	a.PushExclusive(0, 0)

	err := catchViolation(t, func() {
		a.DrainParallel(func(Handle[int], int) {
			b.DrainParallel(func(Handle[int], int) {})
		})
	})

	assert.Equal(t, ErrCodeDrainOnWorker, CodeOf(err))
}

func TestPushExclusive_PoolResized(t *testing.T) {
	p := newResizablePool(t, 4)
	s := New[int](p, Modulo[int](), WithName("events"))
	s.PushExclusive(1, 1)

	p.size.Store(8)
	err := catchViolation(t, func() { s.PushExclusive(7, 7) })

	assert.True(t, IsConfigError(err))
	assert.False(t, IsAffinityError(err))
	assert.Contains(t, err.Error(), "store=events")
}

func TestDrainParallel_PoolResized(t *testing.T) {
	p := newResizablePool(t, 2)
	s := New[int](p, Modulo[int]())

	p.size.Store(3)
	err := catchViolation(t, func() { s.DrainParallel(func(Handle[int], int) {}) })

	assert.Equal(t, ErrCodeShardCount, CodeOf(err))
}

func TestPushExclusive_KeyMappedOutOfRange(t *testing.T) {
	p := newPool(t, 2)
	broken := func(_ int, shards int) int { return shards }
	s := New[int](p, broken)

	err := catchViolation(t, func() { s.PushExclusive(0, 0) })

	assert.True(t, IsConfigError(err))
}

func TestNew_EmptyPool(t *testing.T) {
	p := newResizablePool(t, 1)
	p.size.Store(0)

	err := catchViolation(t, func() { New[int](p, Modulo[int]()) })

	assert.True(t, IsConfigError(err))
}

func TestViolationError_Format(t *testing.T) {
	withShard := &ViolationError{Code: ErrCodeWrongOwner, Message: "m", Store: "s", Shard: 2}
	assert.Equal(t, "WRONG_OWNER: m (store=s, shard=2)", withShard.Error())

	noShard := &ViolationError{Code: ErrCodeNotOnWorker, Message: "m", Store: "s", Shard: -1}
	assert.Equal(t, "NOT_ON_WORKER: m (store=s)", noShard.Error())

	assert.True(t, IsViolation(withShard))
	assert.False(t, IsViolation(fmt.Errorf("plain")))
	assert.Equal(t, ViolationCode(""), CodeOf(fmt.Errorf("plain")))
}

func TestViolationError_ThroughPoolPanic(t *testing.T) {
	ve := &ViolationError{Code: ErrCodeStaleHandle, Shard: -1}
	wrapped := &pool.PanicError{Worker: 0, Value: ve}

	assert.True(t, IsViolation(wrapped))
	assert.True(t, IsAffinityError(wrapped))
	assert.Equal(t, ErrCodeStaleHandle, CodeOf(wrapped))
}
