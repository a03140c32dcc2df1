package metrics

import (
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	childUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cycler",
		Name:      "child_up",
		Help:      "Whether a supervised child is currently running (1=running, 0=not running).",
	})

	spawns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cycler",
		Name:      "spawns_total",
		Help:      "Total number of child processes started.",
	})

	spawnFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cycler",
		Name:      "spawn_failures_total",
		Help:      "Total number of failed attempts to start the child.",
	})

	kills = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cycler",
		Name:      "kills_total",
		Help:      "Total number of children killed because the interval elapsed.",
	})

	earlyExits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cycler",
		Name:      "early_exits_total",
		Help:      "Total number of children that exited before the interval elapsed.",
	}, []string{"success"})

	restarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cycler",
		Name:      "restarts_total",
		Help:      "Total number of restarts, by reason.",
	}, []string{"reason"})

	childRuntime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cycler",
		Name:      "child_runtime_seconds",
		Help:      "Wall-clock lifetime of each supervised child in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
	})

	buildInfo = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cycler",
		Name:      "build_info",
		Help:      "Build metadata for the running cycler binary.",
	}, []string{"go_version", "vcs", "vcs_revision", "vcs_time", "vcs_modified"})

	buildInfoOnce sync.Once
)

func init() {
	registry.MustRegister(childUp, spawns, spawnFailures, kills, earlyExits, restarts, childRuntime, buildInfo)
}

// Registry returns the Prometheus registry containing all cycler metrics.
func Registry() *prometheus.Registry {
	return registry
}

// ChildStarted records a successful spawn.
func ChildStarted() {
	spawns.Inc()
	childUp.Set(1)
}

// ChildStopped records that the live child is gone after running for d.
func ChildStopped(d time.Duration) {
	childUp.Set(0)
	if d > 0 {
		childRuntime.Observe(d.Seconds())
	}
}

// IncrementSpawnFailure counts a failed spawn.
func IncrementSpawnFailure() {
	spawnFailures.Inc()
}

// IncrementKill counts a kill caused by the interval elapsing.
func IncrementKill() {
	kills.Inc()
}

// IncrementEarlyExit counts a child that exited on its own.
func IncrementEarlyExit(success bool) {
	label := "false"
	if success {
		label = "true"
	}
	earlyExits.WithLabelValues(label).Inc()
}

// IncrementRestart counts a respawn decision.
func IncrementRestart(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	restarts.WithLabelValues(reason).Inc()
}

// EmitBuildInfo publishes build metadata about the running binary.
func EmitBuildInfo() {
	buildInfoOnce.Do(func() {
		labels := prometheus.Labels{
			"go_version":   runtime.Version(),
			"vcs":          "",
			"vcs_revision": "",
			"vcs_time":     "",
			"vcs_modified": "",
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			if info.GoVersion != "" {
				labels["go_version"] = info.GoVersion
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs":
					labels["vcs"] = setting.Value
				case "vcs.revision":
					labels["vcs_revision"] = setting.Value
				case "vcs.time":
					labels["vcs_time"] = setting.Value
				case "vcs.modified":
					labels["vcs_modified"] = setting.Value
				}
			}
		}
		buildInfo.With(labels).Set(1)
	})
}
