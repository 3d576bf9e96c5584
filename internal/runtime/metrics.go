package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "quoteflow"

// StageMetrics exports worker pool occupancy and per-stage work timings. It
// implements pool.Observer.
type StageMetrics struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	poolInFlight   prometheus.Gauge
	poolCapacity   prometheus.Gauge
	workSeconds    *prometheus.HistogramVec
	cancelledTotal *prometheus.CounterVec
}

// NewStageMetrics creates the collectors. Nothing is exported until Register
// is called.
func NewStageMetrics(registerer prometheus.Registerer) *StageMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StageMetrics{
		registerer: registerer,
		poolInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "in_flight",
			Help:      "Number of requests currently occupying a worker",
		}),
		poolCapacity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "capacity",
			Help:      "Number of workers in the pool",
		}),
		workSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "work_seconds",
			Help:      "Time from dispatch to the worker pool until the quote was priced or the work abandoned",
			Buckets:   []float64{.05, .1, .2, .3, .5, 1, 2, 5, 10},
		}, []string{"handler", "outcome"}),
		cancelledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "stage",
			Name:      "cancelled_total",
			Help:      "Requests abandoned because their context ended before pricing finished",
		}, []string{"handler"}),
	}
}

// Register adds the collectors to the registerer. Calling it again is a no-op
// and collectors registered by an earlier instance are tolerated.
func (m *StageMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	for _, c := range []prometheus.Collector{m.poolInFlight, m.poolCapacity, m.workSeconds, m.cancelledTotal} {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

func (m *StageMetrics) WorkStarted()  { m.poolInFlight.Inc() }
func (m *StageMetrics) WorkFinished() { m.poolInFlight.Dec() }

func (m *StageMetrics) SetPoolCapacity(workers int) {
	m.poolCapacity.Set(float64(workers))
}

// ObserveWork records one dispatch of handler's work.
func (m *StageMetrics) ObserveWork(handler string, d time.Duration, err error) {
	outcome := "priced"
	switch {
	case err == nil:
	case IsCancelled(err):
		outcome = "cancelled"
		m.cancelledTotal.WithLabelValues(handler).Inc()
	default:
		outcome = "failed"
	}
	m.workSeconds.WithLabelValues(handler, outcome).Observe(d.Seconds())
}
