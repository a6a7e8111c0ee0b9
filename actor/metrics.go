package actor

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the actor's Prometheus instrumentation — a direct teacher
// dependency (go.mod) that no retrieved teacher file previously registered;
// this is its first wired use in the module. Scope mirrors what a worker
// pool's operator actually watches: throughput, failures, and current
// occupancy, the same three shapes prover.go's eventLoop would have exposed
// had its metrics survived retrieval.
//
// Each Actor owns its own prometheus.Registry rather than registering into
// the global DefaultRegisterer: a process running more than one Actor (as
// the test suite does, one per test) would otherwise panic on the second
// registration of the same metric name.
type metrics struct {
	registry       *prometheus.Registry
	tasksSubmitted prometheus.Counter
	tasksSucceeded prometheus.Counter
	tasksFailed    *prometheus.CounterVec
	workersBusy    prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		tasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raiko",
			Subsystem: "actor",
			Name:      "tasks_submitted_total",
			Help:      "Total number of proof tasks submitted to the actor.",
		}),
		tasksSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "raiko",
			Subsystem: "actor",
			Name:      "tasks_succeeded_total",
			Help:      "Total number of proof tasks that reached StatusSuccess.",
		}),
		tasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raiko",
			Subsystem: "actor",
			Name:      "tasks_failed_total",
			Help:      "Total number of proof tasks that did not succeed, labeled by terminal status.",
		}, []string{"status"}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "raiko",
			Subsystem: "actor",
			Name:      "workers_busy",
			Help:      "Number of worker goroutines currently running a proof task.",
		}),
	}

	m.registry.MustRegister(m.tasksSubmitted, m.tasksSucceeded, m.tasksFailed, m.workersBusy)
	return m
}
