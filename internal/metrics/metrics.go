// Package metrics exposes the broker's Prometheus collectors: job counts by
// queue and state, and JSON-RPC request counters, scraped by
// internal/adminhttp's /metrics endpoint. Grounded on the one pack repo
// that actually wires prometheus/client_golang end to end
// (mattcburns-shoal-provision/internal/provisioner/metrics), adapted from
// that package's global-registry shape to an instance per Metrics value to
// match this codebase's no-singleton convention (internal/jobs.Manager,
// internal/queue.Manager, internal/logging.Logger are all injected, never
// package-global).
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// Metrics owns one private Prometheus registry and the broker's
// collectors. A nil *Metrics is not usable; always construct with New.
type Metrics struct {
	registry *prometheus.Registry

	jobsByState *prometheus.GaugeVec
	rpcRequests *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
}

// New builds and registers every collector on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	jobsByState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "molequeue",
		Subsystem: "jobs",
		Name:      "by_state",
		Help:      "Number of jobs currently in each (queue, state) pair.",
	}, []string{"queue", "state"})

	rpcRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "molequeue",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Total JSON-RPC requests handled, by method and outcome.",
	}, []string{"method", "outcome"})

	rpcDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "molequeue",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Duration of JSON-RPC request handling, by method.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method"})

	registry.MustRegister(jobsByState, rpcRequests, rpcDuration)

	return &Metrics{
		registry:    registry,
		jobsByState: jobsByState,
		rpcRequests: rpcRequests,
		rpcDuration: rpcDuration,
	}
}

// Handler returns an http.Handler serving the registry in the Prometheus
// text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRPC records one handled JSON-RPC request. server.Server calls this
// from dispatchOne around every method handler, with outcome "handled" or
// "not_found" (unknown method).
func (m *Metrics) RecordRPC(method, outcome string, duration time.Duration) {
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// ObserverAdapter implements jobs.Observer, keeping the jobsByState gauge
// in sync with the JobManager's live job set. It tracks each job's last
// known (queue, state) pair itself rather than resolving through the
// manager, since JobRemoved fires after the manager has already dropped
// the job. Subscribe it alongside server.Server, store.ObserverAdapter,
// and logging.ObserverAdapter.
type ObserverAdapter struct {
	jobs.NopObserver
	metrics *Metrics

	mu      sync.Mutex
	tracked map[jobs.ID]jobLabels
}

type jobLabels struct {
	queue string
	state string
}

// NewObserverAdapter returns an adapter that records into m.
func NewObserverAdapter(m *Metrics) *ObserverAdapter {
	return &ObserverAdapter{metrics: m, tracked: make(map[jobs.ID]jobLabels)}
}

func (a *ObserverAdapter) JobAdded(id jobs.ID, data jobs.Data) {
	labels := jobLabels{queue: data.Queue, state: data.State.String()}

	a.mu.Lock()
	a.tracked[id] = labels
	a.mu.Unlock()

	a.metrics.jobsByState.WithLabelValues(labels.queue, labels.state).Inc()
}

func (a *ObserverAdapter) JobStateChanged(id jobs.ID, old, new jobs.State) {
	a.mu.Lock()
	labels, ok := a.tracked[id]
	if ok {
		labels.state = new.String()
		a.tracked[id] = labels
	}
	a.mu.Unlock()

	queue := ""
	if ok {
		queue = labels.queue
	}
	a.metrics.jobsByState.WithLabelValues(queue, old.String()).Dec()
	a.metrics.jobsByState.WithLabelValues(queue, new.String()).Inc()
}

// JobUpdated moves a job's gauge entry to its new queue label when the
// job's queue is set or changed after JobAdded.
func (a *ObserverAdapter) JobUpdated(id jobs.ID, data jobs.Data) {
	a.mu.Lock()
	labels, ok := a.tracked[id]
	oldQueue := labels.queue
	moved := ok && oldQueue != data.Queue
	if moved {
		labels.queue = data.Queue
		a.tracked[id] = labels
	}
	a.mu.Unlock()

	if moved {
		a.metrics.jobsByState.WithLabelValues(oldQueue, labels.state).Dec()
		a.metrics.jobsByState.WithLabelValues(labels.queue, labels.state).Inc()
	}
}

func (a *ObserverAdapter) JobRemoved(id jobs.ID) {
	a.mu.Lock()
	labels, ok := a.tracked[id]
	delete(a.tracked, id)
	a.mu.Unlock()

	if !ok {
		return
	}
	a.metrics.jobsByState.WithLabelValues(labels.queue, labels.state).Dec()
}
