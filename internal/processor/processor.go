// Package processor prices quote requests. A Processor simulates a slow unit
// of work per request and is safe for concurrent use by any number of workers.
package processor

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/quoteflow/internal/quote"
)

const (
	DefaultDelay      = 200 * time.Millisecond
	DefaultPriceBound = 100
)

// ErrCancelledWork reports that a request was abandoned because its context
// ended before the simulated work finished. The returned error also matches
// the context error so callers can tell shutdown from deadline.
var ErrCancelledWork = errors.New("quoteflow: work cancelled")

// Options tunes a Processor. Zero values fall back to the defaults.
type Options struct {
	// Delay is how long each request occupies its worker.
	Delay time.Duration
	// PriceBound is the exclusive upper bound of generated prices.
	PriceBound int
	// Seed fixes the generator for reproducible runs. Zero seeds from crypto/rand.
	Seed uint64
}

func (o Options) withDefaults() Options {
	if o.Delay <= 0 {
		o.Delay = DefaultDelay
	}
	if o.PriceBound <= 0 {
		o.PriceBound = DefaultPriceBound
	}
	if o.Seed == 0 {
		o.Seed = randomSeed()
	}
	return o
}

// Processor turns a raw request payload into a priced Quote.
type Processor struct {
	delay time.Duration
	bound int

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Processor configured with opts.
func New(opts Options) *Processor {
	opts = opts.withDefaults()
	return &Processor{
		delay: opts.Delay,
		bound: opts.PriceBound,
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
}

// Delay reports the simulated work duration.
func (p *Processor) Delay() time.Duration { return p.delay }

// PriceBound reports the exclusive upper bound of generated prices.
func (p *Processor) PriceBound() int { return p.bound }

// Process blocks for the configured delay and returns a Quote whose ID is
// request and whose price is uniform in [0, PriceBound). If ctx ends first no
// quote is produced and the error wraps both ErrCancelledWork and ctx.Err().
func (p *Processor) Process(ctx context.Context, request string) (quote.Quote, error) {
	if ctx.Err() != nil {
		return quote.Quote{}, cancelled(ctx)
	}

	timer := time.NewTimer(p.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return quote.Quote{}, cancelled(ctx)
	case <-timer.C:
	}

	q := quote.New(request, p.nextPrice())

	trace.SpanFromContext(ctx).AddEvent("quote.priced", trace.WithAttributes(
		attribute.String("quote.id", q.ID),
		attribute.Int("quote.price", q.Price),
	))

	return q, nil
}

func (p *Processor) nextPrice() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.IntN(p.bound)
}

func cancelled(ctx context.Context) error {
	err, cause := ctx.Err(), context.Cause(ctx)
	if cause != nil && !errors.Is(cause, err) {
		return fmt.Errorf("%w: %w: %w", ErrCancelledWork, err, cause)
	}
	return fmt.Errorf("%w: %w", ErrCancelledWork, err)
}

func randomSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	seed := binary.LittleEndian.Uint64(b[:])
	if seed == 0 {
		seed = 1
	}
	return seed
}
