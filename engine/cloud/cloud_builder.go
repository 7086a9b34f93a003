package cloud

import (
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// buildQueueSize bounds the number of rebuilds waiting for a worker.
const buildQueueSize = 4

// options collects the collaborators passed to New.
type options struct {
	logger     *zap.SugaredLogger
	device     renderer.Device
	registerer prometheus.Registerer
}

// CloudBuilderOption is a functional option applied during New.
type CloudBuilderOption func(*options)

// WithLogger sets the logger of the cloud and its GPU synchronizer.
//
// Parameters:
//   - logger: the logger; nil keeps the no-op default
//
// Returns:
//   - CloudBuilderOption: a function that applies the logger option
func WithLogger(logger *zap.SugaredLogger) CloudBuilderOption {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDevice sets the device that owns the node buffer. The caller keeps ownership.
// Without it the cloud creates and owns a host-memory device.
//
// Parameters:
//   - device: the GPU device
//
// Returns:
//   - CloudBuilderOption: a function that applies the device option
func WithDevice(device renderer.Device) CloudBuilderOption {
	return func(o *options) {
		o.device = device
	}
}

// WithRegisterer registers the cloud metrics with reg. Without it the metrics are kept but not exported.
//
// Parameters:
//   - reg: the Prometheus registerer
//
// Returns:
//   - CloudBuilderOption: a function that applies the registerer option
func WithRegisterer(reg prometheus.Registerer) CloudBuilderOption {
	return func(o *options) {
		o.registerer = reg
	}
}

// New builds the tree described by cfg synchronously, then allocates the node buffer.
// Construction errors are reported before any GPU resource is created.
//
// Parameters:
//   - cfg: the cloud configuration; zero fields whose zero value is meaningless take their defaults
//   - opts: variadic list of CloudBuilderOption functions
//
// Returns:
//   - Cloud: the cloud, with every node inactive until the first Tick
//   - error: a validation error, an error wrapping octree.ErrConstruction, or one wrapping ErrCapacity
func New(cfg Config, opts ...CloudBuilderOption) (Cloud, error) {
	o := options{logger: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	info, err := cfg.OctreeInfo()
	if err != nil {
		return nil, err
	}

	c := &cloudImpl{
		mu:      &sync.RWMutex{},
		logger:  o.logger,
		metrics: newMetrics(o.registerer),
		cfg:     cfg,
	}

	tree, err := info.Build()
	if err != nil {
		return nil, err
	}
	c.tree = tree
	c.observeBuild(tree.Stats())
	c.metrics.instrumentTree(tree.Len())

	c.device = o.device
	if c.device == nil {
		c.device = renderer.NewMemoryDevice(renderer.WithLogger(o.logger))
		c.ownsDevice = true
	}
	c.gpu, err = NewGpuSync(c.device, cfg.InitialBufferCapacity, o.logger)
	if err != nil {
		if c.ownsDevice {
			c.device.Release()
		}
		return nil, err
	}
	c.metrics.gpuCapacity.Set(float64(c.gpu.Capacity()))

	c.pool = worker.NewDynamicWorkerPool(cfg.BuildWorkers, buildQueueSize, 1*time.Second)
	return c, nil
}
