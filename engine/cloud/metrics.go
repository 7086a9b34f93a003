package cloud

import (
	"github.com/Carmen-Shannon/oxy-sky/engine/octree"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "oxy"
	metricsSubsystem = "cloud"
)

// metrics holds the collectors of one cloud. With a nil registerer the collectors work but are not exported.
// Clouds sharing a registerer share its collectors, so a cloud created after another one was released keeps
// counting where the first stopped.
type metrics struct {
	lodChanged       prometheus.Counter
	activeNodes      prometheus.Gauge
	treeNodes        prometheus.Gauge
	gpuSyncs         prometheus.Counter
	gpuCapacity      prometheus.Gauge
	gpuCapacityError prometheus.Counter
	nonFinite        prometheus.Counter
	builds           prometheus.Counter
	buildDuration    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	// Built unregistered; promauto would panic on the second cloud.
	f := promauto.With(nil)
	m := &metrics{
		lodChanged: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "lod_changed_nodes_total",
			Help:      "The number of node active flags flipped by LOD updates.",
		}),
		activeNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_nodes",
			Help:      "The number of nodes in the current active set.",
		}),
		treeNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "tree_nodes",
			Help:      "The number of nodes in the installed tree.",
		}),
		gpuSyncs: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "gpu_syncs_total",
			Help:      "The number of node buffer uploads.",
		}),
		gpuCapacity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "gpu_capacity_records",
			Help:      "The capacity of the node buffer in records.",
		}),
		gpuCapacityError: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "gpu_capacity_errors_total",
			Help:      "The number of failed node buffer growths.",
		}),
		nonFinite: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "non_finite_samples_total",
			Help:      "The number of density samples replaced because they were not finite.",
		}),
		builds: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "builds_total",
			Help:      "The number of trees built.",
		}),
		buildDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "build_duration_seconds",
			Help:      "The time to build a tree.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	if reg == nil {
		return m
	}
	m.lodChanged = register(reg, m.lodChanged)
	m.activeNodes = register(reg, m.activeNodes)
	m.treeNodes = register(reg, m.treeNodes)
	m.gpuSyncs = register(reg, m.gpuSyncs)
	m.gpuCapacity = register(reg, m.gpuCapacity)
	m.gpuCapacityError = register(reg, m.gpuCapacityError)
	m.nonFinite = register(reg, m.nonFinite)
	m.builds = register(reg, m.builds)
	m.buildDuration = register(reg, m.buildDuration)
	return m
}

// register adds c to reg and returns the collector to use: c itself, or the identical collector already
// registered. Any other registration failure leaves c working but unexported.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	return c
}

func (m *metrics) instrumentBuild(stats octree.BuildStats) {
	m.builds.Inc()
	m.buildDuration.Observe(stats.Elapsed.Seconds())
	m.nonFinite.Add(float64(stats.NonFiniteSamples))
}

func (m *metrics) instrumentTree(nodes int) {
	m.treeNodes.Set(float64(nodes))
}

func (m *metrics) instrumentFrame(changed, active int) {
	m.lodChanged.Add(float64(changed))
	m.activeNodes.Set(float64(active))
}

func (m *metrics) instrumentSync(res SyncResult) {
	if res.Synced {
		m.gpuSyncs.Inc()
	}
	m.gpuCapacity.Set(float64(res.Capacity))
}

func (m *metrics) instrumentCapacityError() {
	m.gpuCapacityError.Inc()
}
