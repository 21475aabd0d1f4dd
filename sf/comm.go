// Package sf moves data between ranks along star forests.
//
// Ranks are goroutines sharing a World. A Comm is one rank's handle onto the world;
// every collective (Barrier, Allreduce, SF.SetUp, Bcast, Reduce, Compose) must be
// entered by all ranks of the world in the same order.
package sf

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/florianwechsung/ssc/utils"
)

var (
	ErrAborted = errors.New("world aborted by a failing rank")
	ErrGraph   = errors.New("invalid star forest graph")
	ErrSize    = errors.New("buffer too small for star forest")
)

type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

type Op uint8

const (
	OpReplace Op = iota
	OpSum
	OpMax
	OpMin
)

func (op Op) String() string {
	return [...]string{"replace", "sum", "max", "min"}[op]
}

func combine[T Number](op Op, dst *T, v T) {
	switch op {
	case OpReplace:
		*dst = v
	case OpSum:
		*dst += v
	case OpMax:
		if v > *dst {
			*dst = v
		}
	case OpMin:
		if v < *dst {
			*dst = v
		}
	}
}

type envelope struct {
	from    int
	payload any
}

type World struct {
	size    int
	mail    *utils.MailBox[envelope]
	barrier *barrier
}

func NewWorld(size int) *World {
	if size < 1 {
		panic(fmt.Errorf("world needs at least one rank, have %d", size))
	}
	return &World{
		size:    size,
		mail:    utils.NewMailBox[envelope](size),
		barrier: newBarrier(size),
	}
}

func (w *World) Size() int { return w.size }

func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= w.size {
		panic(fmt.Errorf("rank %d outside world of size %d", rank, w.size))
	}
	return &Comm{world: w, rank: rank}
}

// Abort releases every rank blocked in a collective with ErrAborted.
func (w *World) Abort() { w.barrier.abort() }

// Run executes fn on np ranks and returns the first error. A failing rank aborts the
// world so the others leave their collectives instead of waiting forever.
func Run(np int, fn func(c *Comm) error) error {
	var (
		w      = NewWorld(np)
		g, ctx = errgroup.WithContext(context.Background())
	)
	go func() {
		<-ctx.Done()
		w.Abort()
	}()
	for r := 0; r < np; r++ {
		c := w.Comm(r)
		g.Go(func() error { return fn(c) })
	}
	return g.Wait()
}

// Self returns the only rank of a fresh single rank world.
func Self() *Comm { return NewWorld(1).Comm(0) }

type Comm struct {
	world *World
	rank  int
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.world.size }

func (c *Comm) Barrier() error { return c.world.barrier.wait() }

// exchange is one communication round: the payload for each target rank in out is
// delivered, and everything sent to this rank comes back keyed by source rank.
// Payloads are shared, not copied, so senders must not reuse them.
func (c *Comm) exchange(out map[int]any) (in map[int]any, err error) {
	var (
		mb = c.world.mail
	)
	in = make(map[int]any)
	for to, payload := range out {
		if to == c.rank {
			in[to] = payload
			continue
		}
		mb.Post(c.rank, to, envelope{from: c.rank, payload: payload})
	}
	mb.Deliver(c.rank)
	if err = c.Barrier(); err != nil {
		return nil, err
	}
	for _, e := range mb.Collect(c.rank) {
		in[e.from] = e.payload
	}
	if err = c.Barrier(); err != nil {
		return nil, err
	}
	return
}

// Allreduce combines vals elementwise over all ranks. Contributions are combined in
// rank order so every rank computes the identical result.
func Allreduce[T Number](c *Comm, vals []T, op Op) (res []T, err error) {
	var (
		out = make(map[int]any, c.Size())
		in  map[int]any
	)
	for r := 0; r < c.Size(); r++ {
		out[r] = append([]T(nil), vals...)
	}
	if in, err = c.exchange(out); err != nil {
		return
	}
	res = make([]T, len(vals))
	for r := 0; r < c.Size(); r++ {
		theirs := in[r].([]T)
		if len(theirs) != len(vals) {
			return nil, fmt.Errorf("%w: rank %d contributed %d values, expected %d",
				ErrSize, r, len(theirs), len(vals))
		}
		for i, v := range theirs {
			if r == 0 {
				res[i] = v
				continue
			}
			combine(op, &res[i], v)
		}
	}
	return
}

func (c *Comm) AllreduceSum(vals []float64) ([]float64, error) {
	return Allreduce(c, vals, OpSum)
}

type barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	count   int
	gen     int
	aborted bool
}

func newBarrier(n int) (b *barrier) {
	b = &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return
}

func (b *barrier) wait() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aborted {
		return ErrAborted
	}
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return nil
	}
	for gen == b.gen && !b.aborted {
		b.cond.Wait()
	}
	if gen == b.gen {
		return ErrAborted
	}
	return nil
}

func (b *barrier) abort() {
	b.mu.Lock()
	b.aborted = true
	b.mu.Unlock()
	b.cond.Broadcast()
}
