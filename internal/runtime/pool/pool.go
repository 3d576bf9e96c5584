// Package pool runs blocking work on a fixed set of goroutines so message
// delivery never waits on more in-flight work than the pool allows.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Do once Close has been called. Work that was
// running at that point sees it as its context cause.
var ErrClosed = errors.New("quoteflow: worker pool closed")

// Observer receives pool occupancy changes. Implementations must be cheap
// and safe for concurrent use.
type Observer interface {
	WorkStarted()
	WorkFinished()
}

type job struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Pool is a fixed-size set of workers fed through an unbuffered channel.
// Do blocks the caller until a worker picks the job up, which is how
// saturation turns into backpressure on the subscriber.
type Pool struct {
	size     int
	jobs     chan job
	ctx      context.Context
	cancel   context.CancelCauseFunc
	wg       sync.WaitGroup
	inFlight atomic.Int64
	observer Observer
	once     sync.Once
}

// New starts size workers. size <= 0 selects runtime.NumCPU().
func New(size int, observer Observer) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	p := &Pool{
		size:     size,
		jobs:     make(chan job),
		ctx:      ctx,
		cancel:   cancel,
		observer: observer,
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

// Size reports the number of workers.
func (p *Pool) Size() int { return p.size }

// InFlight reports how many jobs are currently executing.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Do hands fn to a free worker and waits for it to return. The context passed
// to fn is cancelled when ctx ends or the pool closes. If no worker becomes
// free before that happens, fn never runs and the context error (or ErrClosed)
// is returned.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := context.Cause(p.ctx); err != nil {
		return err
	}

	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return context.Cause(p.ctx)
	}

	return <-j.done
}

// Close cancels running work, stops accepting new work and waits for every
// worker to exit.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.cancel(ErrClosed)
	})
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.jobs:
			j.done <- p.run(j)
		}
	}
}

func (p *Pool) run(j job) (err error) {
	ctx, cancel := context.WithCancelCause(j.ctx)
	stop := context.AfterFunc(p.ctx, func() { cancel(ErrClosed) })
	defer func() {
		stop()
		cancel(nil)
	}()

	p.inFlight.Add(1)
	if p.observer != nil {
		p.observer.WorkStarted()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("quoteflow: worker panic: %v", r)
		}
		p.inFlight.Add(-1)
		if p.observer != nil {
			p.observer.WorkFinished()
		}
	}()

	return j.fn(ctx)
}
