// Package metrics exposes Prometheus collectors for the scheduling loop.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hivemind"

// Metrics reports scheduler activity. A nil *Metrics is a valid no-op.
type Metrics struct {
	tickDuration   prometheus.Histogram
	tasks          *prometheus.GaugeVec
	assignments    *prometheus.CounterVec
	unassignments  *prometheus.CounterVec
	removals       *prometheus.CounterVec
	unmetDemand    prometheus.Gauge
	workerRequests prometheus.Counter
	escalations    prometheus.Counter
	idleWorkers    prometheus.Gauge
	circuitsOpen   prometheus.Gauge
	faults         *prometheus.CounterVec
	persistSeconds *prometheus.HistogramVec
	lastTick       prometheus.Gauge
	spawns         *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns collectors registered with the global registry, created once.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers collectors with reg. Collectors that are already
// registered are reused; any other registration error panics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		tickDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one scheduling pass.",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		})),
		tasks: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "tasks",
			Help:      "Live task instances by lifecycle state.",
		}, []string{"state"})),
		assignments: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "assignments_total",
			Help:      "Workers bound to tasks, by template.",
		}, []string{"template"})),
		unassignments: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "unassignments_total",
			Help:      "Workers released from tasks that stay live, by reason.",
		}, []string{"reason"})),
		removals: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "removals_total",
			Help:      "Task instances removed from the live set, by reason.",
		}, []string{"reason"})),
		unmetDemand: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "unmet_demand_tasks",
			Help:      "Tasks that found no capability-eligible idle worker in the last pass.",
		})),
		workerRequests: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "worker_requests_total",
			Help:      "Demand signals sent to the provisioner.",
		})),
		escalations: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "escalations_total",
			Help:      "Starvation priority bumps applied to queued tasks.",
		})),
		idleWorkers: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "idle_workers",
			Help:      "Workers left without work after the last pass.",
		})),
		circuitsOpen: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "circuits_open",
			Help:      "Task keys currently held out of matching after repeated failures.",
		})),
		faults: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "behavior_faults_total",
			Help:      "Panics recovered from task behaviors and collaborators, by site.",
		}, []string{"site"})),
		persistSeconds: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "op_duration_seconds",
			Help:      "Task-set persistence latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op", "status"})),
		lastTick: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "last_tick",
			Help:      "Most recent tick processed.",
		})),
		spawns: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provision",
			Name:      "spawn_attempts_total",
			Help:      "Worker spawn attempts by outcome.",
		}, []string{"outcome"})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) ObserveTick(tick uint64, d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
	m.lastTick.Set(float64(tick))
}

// SetTaskStates replaces the per-state gauge. States missing from counts are zeroed.
func (m *Metrics) SetTaskStates(states []string, counts map[string]int) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.tasks.WithLabelValues(s).Set(float64(counts[s]))
	}
}

func (m *Metrics) IncAssigned(template string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(template).Inc()
}

func (m *Metrics) IncUnassigned(reason string) {
	if m == nil {
		return
	}
	m.unassignments.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncRemoved(reason string) {
	if m == nil {
		return
	}
	m.removals.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetUnmet(n int) {
	if m == nil {
		return
	}
	m.unmetDemand.Set(float64(n))
}

func (m *Metrics) IncWorkerRequests() {
	if m == nil {
		return
	}
	m.workerRequests.Inc()
}

func (m *Metrics) IncEscalations() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

func (m *Metrics) SetIdle(n int) {
	if m == nil {
		return
	}
	m.idleWorkers.Set(float64(n))
}

func (m *Metrics) SetCircuitsOpen(n int) {
	if m == nil {
		return
	}
	m.circuitsOpen.Set(float64(n))
}

func (m *Metrics) IncFault(site string) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(site).Inc()
}

// ObservePersist records one storage operation ("save" / "load").
func (m *Metrics) ObservePersist(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.persistSeconds.WithLabelValues(op, status).Observe(d.Seconds())
}

// IncSpawn counts one spawn attempt ("spawned", "busy", "no_energy", "too_large", "error").
func (m *Metrics) IncSpawn(outcome string) {
	if m == nil {
		return
	}
	m.spawns.WithLabelValues(outcome).Inc()
}
