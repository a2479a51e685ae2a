// Package metrics tracks delivery outcomes and discarded errors and exports
// them to Prometheus.
package metrics

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Reason explains why an error never reached the ingestion endpoint.
type Reason string

const (
	ReasonSampleRate       Reason = "sample_rate"
	ReasonBeforeSend       Reason = "before_send"
	ReasonRateLimit        Reason = "ratelimit_backoff"
	ReasonQueueOverflow    Reason = "queue_overflow"
	ReasonRetriesExhausted Reason = "retries_exhausted"
	ReasonSendError        Reason = "send_error"
)

// Outcome of a single delivery attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeRetryable Outcome = "retryable"
	OutcomeRejected  Outcome = "rejected"
)

const namespace = "bugshot"

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Deliveries map[Outcome]int64
	Discarded  map[Reason]int64
	Retries    int64
	Beacons    int64
	QueueLen   int
}

type Metrics struct {
	mu    sync.RWMutex
	stats Stats

	deliveries *prometheus.CounterVec
	discarded  *prometheus.CounterVec
	retries    prometheus.Counter
	beacons    prometheus.Counter
	queueLen   prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered. Collectors already registered by another client are
// shared.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stats: Stats{
			Deliveries: map[Outcome]int64{},
			Discarded:  map[Reason]int64{},
		},
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts to the ingestion endpoint by outcome",
		}, []string{"outcome"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discarded_events_total",
			Help:      "Captured errors that were not delivered, by reason",
		}, []string{"reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Scheduled delivery retries",
		}),
		beacons: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "beacons_total",
			Help:      "Beacon deliveries issued",
		}),
		queueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_queue_length",
			Help:      "Payloads waiting for a retry",
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	m.deliveries = register(reg, m.deliveries, &err)
	m.discarded = register(reg, m.discarded, &err)
	m.retries = register(reg, m.retries, &err)
	m.beacons = register(reg, m.beacons, &err)
	m.queueLen = register(reg, m.queueLen, &err)
	return m, err
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		if *errp == nil {
			*errp = err
		}
	}
	return c
}

func (m *Metrics) RecordDelivery(o Outcome) {
	m.mu.Lock()
	m.stats.Deliveries[o]++
	m.mu.Unlock()
	m.deliveries.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) RecordDiscard(r Reason) {
	m.mu.Lock()
	m.stats.Discarded[r]++
	m.mu.Unlock()
	m.discarded.WithLabelValues(string(r)).Inc()
}

func (m *Metrics) RecordRetry() {
	m.mu.Lock()
	m.stats.Retries++
	m.mu.Unlock()
	m.retries.Inc()
}

func (m *Metrics) RecordBeacon() {
	m.mu.Lock()
	m.stats.Beacons++
	m.mu.Unlock()
	m.beacons.Inc()
}

func (m *Metrics) SetQueueLen(n int) {
	m.mu.Lock()
	m.stats.QueueLen = n
	m.mu.Unlock()
	m.queueLen.Set(float64(n))
}

// Stats returns a copy of the counters recorded by this instance.
func (m *Metrics) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{
		Deliveries: make(map[Outcome]int64, len(m.stats.Deliveries)),
		Discarded:  make(map[Reason]int64, len(m.stats.Discarded)),
		Retries:    m.stats.Retries,
		Beacons:    m.stats.Beacons,
		QueueLen:   m.stats.QueueLen,
	}
	for k, v := range m.stats.Deliveries {
		s.Deliveries[k] = v
	}
	for k, v := range m.stats.Discarded {
		s.Discarded[k] = v
	}
	return s
}
