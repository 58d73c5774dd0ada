package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devsup"

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	childStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "starts_total",
			Help:      "Number of successful child spawns.",
		},
	)
	childSpawnFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "spawn_failures_total",
			Help:      "Number of child spawns that failed before the process existed.",
		},
	)
	childRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "restarts_total",
			Help:      "Number of scheduled restarts by reason (startup, crash).",
		}, []string{"reason"},
	)
	childExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "exits_total",
			Help:      "Number of child exits by outcome (clean, failure).",
		}, []string{"outcome"},
	)
	childReady = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "ready_total",
			Help:      "Number of runs that reached the ready state.",
		},
	)
	childRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "running",
			Help:      "1 while a child process is live.",
		},
	)
	timeToReady = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "time_to_ready_seconds",
			Help:      "Time from spawn to the first readiness marker.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)
	restartCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "restart_count",
			Help:      "Current startup-phase restart counter.",
		},
	)
	childCPUPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "cpu_percent",
			Help:      "CPU usage of the child process tree.",
		},
	)
	childMemoryMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "child",
			Name:      "memory_mb",
			Help:      "Resident memory of the child process tree in MB.",
		},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		childStarts, childSpawnFailures, childRestarts, childExits, childReady,
		childRunning, timeToReady, restartCount, childCPUPercent, childMemoryMB,
	}
}

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	for _, c := range collectors() {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by the supervisor to record metrics.
// They no-op if Register hasn't been called.

func IncStart() {
	if regOK.Load() {
		childStarts.Inc()
	}
}

func IncSpawnFailure() {
	if regOK.Load() {
		childSpawnFailures.Inc()
	}
}

func IncRestart(reason string) {
	if regOK.Load() {
		childRestarts.WithLabelValues(reason).Inc()
	}
}

func IncExit(code int) {
	if !regOK.Load() {
		return
	}
	outcome := "failure"
	if code == 0 {
		outcome = "clean"
	}
	childExits.WithLabelValues(outcome).Inc()
}

func ObserveReady(sinceStart time.Duration) {
	if regOK.Load() {
		childReady.Inc()
		timeToReady.Observe(sinceStart.Seconds())
	}
}

func SetRunning(running bool) {
	if !regOK.Load() {
		return
	}
	if running {
		childRunning.Set(1)
		return
	}
	childRunning.Set(0)
	childCPUPercent.Set(0)
	childMemoryMB.Set(0)
}

func SetRestartCount(n int) {
	if regOK.Load() {
		restartCount.Set(float64(n))
	}
}

func setUsage(u Usage) {
	if regOK.Load() {
		childCPUPercent.Set(u.CPUPercent)
		childMemoryMB.Set(u.MemoryMB)
	}
}
