package runtime

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/drblury/quoteflow/internal/processor"
	"github.com/drblury/quoteflow/internal/quote"
	jsoncodec "github.com/drblury/quoteflow/internal/runtime/jsoncodec"
	"github.com/drblury/quoteflow/internal/runtime/pool"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// UnprocessableEventError wraps a payload that can never be handled, no
// matter how often it is redelivered.
type UnprocessableEventError struct {
	Payload string
	Err     error
}

func (e *UnprocessableEventError) Error() string {
	return fmt.Sprintf("unprocessable event %q: %v", e.Payload, e.Err)
}

func (e *UnprocessableEventError) Unwrap() error { return e.Err }

func newUnprocessable(payload []byte, err error) error {
	return &UnprocessableEventError{Payload: string(payload), Err: err}
}

// IsUnprocessable reports whether err marks a message that should not be
// retried and belongs on the poison queue.
func IsUnprocessable(err error) bool {
	var unprocessable *UnprocessableEventError
	return errors.As(err, &unprocessable) || errors.Is(err, quote.ErrMalformedPayload)
}

// IsCancelled reports whether err means the work was abandoned before it
// finished. Cancelled messages are nacked and redelivered, never retried in
// place.
func IsCancelled(err error) bool {
	return errors.Is(err, processor.ErrCancelledWork) ||
		errors.Is(err, pool.ErrClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

type ErrorCategory string

const (
	ErrorCategoryNone      ErrorCategory = "none"
	ErrorCategoryCancelled ErrorCategory = "cancelled"
	ErrorCategoryMalformed ErrorCategory = "malformed"
	ErrorCategoryOther     ErrorCategory = "other"
)

// ErrorClassifier buckets handler errors for the stats breakdown.
type ErrorClassifier func(error) ErrorCategory

func defaultErrorClassifier(err error) ErrorCategory {
	switch {
	case err == nil:
		return ErrorCategoryNone
	case IsUnprocessable(err):
		return ErrorCategoryMalformed
	case IsCancelled(err):
		return ErrorCategoryCancelled
	default:
		return ErrorCategoryOther
	}
}

type HandlerInfo struct {
	Name         string        `json:"name"`
	ConsumeQueue string        `json:"consume_queue"`
	PublishQueue string        `json:"publish_queue,omitempty"`
	Stats        *HandlerStats `json:"stats"`
}

// HandlerStats accumulates per-handler counters served by the admin API.
type HandlerStats struct {
	mu   sync.Mutex
	data StatsSnapshot

	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
	resourceSampler  *resourceTracker
}

// StatsSnapshot is a point-in-time copy of a handler's stats.
type StatsSnapshot struct {
	MessagesProcessed   uint64    `json:"messages_processed"`
	MessagesFailed      uint64    `json:"messages_failed"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastProcessedAt     time.Time `json:"last_processed_at"`

	Latency     LatencyMetrics    `json:"latency"`
	Throughput  ThroughputMetrics `json:"throughput"`
	Errors      ErrorBreakdown    `json:"errors"`
	Resource    ResourceUsage     `json:"resource"`
	InFlight    uint64            `json:"in_flight"`
	MaxInFlight uint64            `json:"max_in_flight"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	MessagesInWindow uint64  `json:"messages_in_window"`
}

type ErrorBreakdown struct {
	Cancelled uint64 `json:"cancelled"`
	Malformed uint64 `json:"malformed"`
	Other     uint64 `json:"other"`
	LastError string `json:"last_error,omitempty"`
}

func newHandlerStats(sampler *resourceTracker) *HandlerStats {
	return &HandlerStats{
		resourceSampler:  sampler,
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
	}
}

func (h *HandlerStats) onMessageStart() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.data.InFlight++
	if h.data.InFlight > h.data.MaxInFlight {
		h.data.MaxInFlight = h.data.InFlight
	}
}

func (h *HandlerStats) onMessageFinish(duration time.Duration, err error, classifier ErrorClassifier) {
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	d := &h.data
	if d.InFlight > 0 {
		d.InFlight--
	}
	d.MessagesProcessed++
	if err != nil {
		d.MessagesFailed++
	}
	d.TotalProcessingTime += int64(duration)
	d.LastProcessedAt = now.UTC()

	h.latencyWindow.Add(duration)
	d.Latency = h.latencyWindow.Snapshot()

	tp := h.throughputWindow.AddAndSnapshot(now)
	d.Throughput = ThroughputMetrics{
		CurrentRPS:       tp.CurrentRPS,
		WindowSeconds:    tp.WindowSeconds,
		MessagesInWindow: uint64(tp.Count),
	}

	if classifier == nil {
		classifier = defaultErrorClassifier
	}
	d.Errors.Record(classifier(err), err)

	if h.resourceSampler != nil {
		d.Resource = h.resourceSampler.Snapshot()
	}
}

// Snapshot returns a copy of the current counters.
func (h *HandlerStats) Snapshot() StatsSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.data
}

func (h *HandlerStats) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(h.Snapshot())
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	if err == nil {
		return
	}
	switch category {
	case ErrorCategoryCancelled:
		e.Cancelled++
	case ErrorCategoryMalformed:
		e.Malformed++
	default:
		e.Other++
	}
	e.LastError = err.Error()
}

// latencyWindow is a ring buffer of the most recent handler durations.
type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	metrics := LatencyMetrics{LastNs: lw.last}
	if lw.filled == 0 {
		return metrics
	}

	sorted := make([]int64, lw.filled)
	copy(sorted, lw.samples[:lw.filled])
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	metrics.SampleSize = lw.filled
	metrics.AverageNs = sum / int64(lw.filled)
	metrics.P50Ns = percentile(sorted, 0.50)
	metrics.P95Ns = percentile(sorted, 0.95)
	metrics.P99Ns = percentile(sorted, 0.99)
	return metrics
}

// percentile interpolates linearly between the two nearest ranks of sorted.
func percentile(sorted []int64, quantile float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if quantile <= 0 {
		return sorted[0]
	}
	if quantile >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := quantile * float64(len(sorted)-1)
	lower, upper := int(math.Floor(pos)), int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(math.Round(float64(sorted[upper]-sorted[lower])*frac))
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon, samples: make([]time.Time, 0, 64)}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	tw.samples = append(tw.samples, now)

	cutoff := now.Add(-tw.horizon)
	drop := sort.Search(len(tw.samples), func(i int) bool { return !tw.samples[i].Before(cutoff) })
	tw.samples = append(tw.samples[:0], tw.samples[drop:]...)

	span := now.Sub(tw.samples[0])
	if span < time.Second {
		span = time.Second
	}
	return throughputSnapshot{
		Count:         len(tw.samples),
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(len(tw.samples)) / span.Seconds(),
	}
}
