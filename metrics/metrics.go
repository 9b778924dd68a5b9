package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"keepersecurity.com/iam-sync/reconcile"
)

const namespace = "iam_sync"

// Collector records reconciliation runs into its own registry.
type Collector struct {
	registry *prometheus.Registry

	actions       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	duration      prometheus.Gauge
	lastSuccess   prometheus.Gauge
	flushFailures prometheus.Gauge
}

func NewCollector() *Collector {
	var c = &Collector{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Recorded reconciliation events by type and status.",
			},
			[]string{"type", "status", "dry_run"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Reconciliation runs by result.",
			},
			[]string{"result"},
		),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Duration of the last reconciliation run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed without a fetch failure.",
		}),
		flushFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_audit_failures",
			Help:      "Audit events of the last run the sinks did not accept.",
		}),
	}
	c.registry.MustRegister(c.actions, c.runs, c.duration, c.lastSuccess, c.flushFailures)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveEvent(event *reconcile.AuditEvent) {
	var dryRun = "false"
	if event.DryRun {
		dryRun = "true"
	}
	c.actions.WithLabelValues(event.Type, event.Status, dryRun).Inc()
}

func (c *Collector) ObserveRun(stat *reconcile.SyncStat, err error, elapsed time.Duration) {
	c.duration.Set(elapsed.Seconds())
	if err != nil {
		c.runs.WithLabelValues("error").Inc()
		return
	}
	if stat != nil && len(stat.Failed) > 0 {
		c.runs.WithLabelValues("partial").Inc()
	} else {
		c.runs.WithLabelValues("success").Inc()
	}
	if stat != nil {
		c.flushFailures.Set(float64(stat.FlushFailures))
	}
	c.lastSuccess.SetToCurrentTime()
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

var _ reconcile.IRunObserver = (*Collector)(nil)
