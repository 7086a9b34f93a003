package main

import (
	"context"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/engine/camera"
	"github.com/Carmen-Shannon/oxy-sky/engine/cloud"
	"github.com/Carmen-Shannon/oxy-sky/engine/gizmo"
	"github.com/Carmen-Shannon/oxy-sky/engine/profiler"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// simOptions configures one simulation run.
type simOptions struct {
	Config       cloud.Config
	Device       renderer.Device
	Registerer   prometheus.Registerer
	Frames       int
	OrbitRadius  float32
	OrbitStep    float32 // azimuth change per frame, radians
	Fov          float32
	RebuildEvery int // frames between reseeded rebuilds, 0 to disable
	PickEvery    int // frames between debug picks, 0 to disable
	ReportEvery  time.Duration
}

// simSummary is what a run did.
type simSummary struct {
	Frames      int
	Changed     int
	Syncs       int
	Swaps       int
	Picks       int
	Hits        int
	MaxActive   int
	Capacity    uint32
	CapacityErr int
}

// simulate orbits a camera around the cloud and ticks it once per frame until Frames is reached or ctx is done.
// Capacity errors are counted and the run continues on the stale LOD.
func simulate(ctx context.Context, opts simOptions, logger *zap.SugaredLogger) (simSummary, error) {
	c, err := cloud.New(opts.Config,
		cloud.WithLogger(logger),
		cloud.WithDevice(opts.Device),
		cloud.WithRegisterer(opts.Registerer),
	)
	if err != nil {
		return simSummary{}, errors.Wrap(err, "create cloud")
	}
	defer c.Release()

	viewer := camera.NewOrbitViewer(
		camera.WithRadius(opts.OrbitRadius),
		camera.WithRadiusLimits(0, opts.OrbitRadius),
		camera.WithFov(opts.Fov),
	)
	prof := profiler.New(profiler.WithLogger(logger), profiler.WithInterval(opts.ReportEvery))
	var rec gizmo.Recorder

	var sum simSummary
	for frame := 1; frame <= opts.Frames; frame++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		if opts.RebuildEvery > 0 && frame%opts.RebuildEvery == 0 {
			next := c.Config()
			next.Seed++
			if err := c.Rebuild(next); err != nil {
				return sum, errors.Wrap(err, "schedule rebuild")
			}
		}

		stats, err := c.Tick(viewer)
		if err != nil {
			if !errors.Is(err, cloud.ErrCapacity) {
				return sum, errors.Wrapf(err, "frame %d", frame)
			}
			sum.CapacityErr++
			logger.Warnw("frame kept stale LOD", "frame", frame, "error", err)
		}

		sum.Frames++
		sum.Changed += stats.Changed
		if stats.Synced {
			sum.Syncs++
		}
		if stats.Swapped {
			sum.Swaps++
		}
		sum.MaxActive = max(sum.MaxActive, stats.Active)
		sum.Capacity = stats.Capacity

		if opts.PickEvery > 0 && frame%opts.PickEvery == 0 {
			rec.Reset()
			hit, ok := c.DebugGizmos(viewer.PickRay(), &rec)
			sum.Picks++
			if ok {
				sum.Hits++
				logger.Debugw("pick hit", "frame", frame, "distance", hit.Distance, "node", hit.Node, "gizmos", len(rec.Boxes))
			}
		}

		prof.Tick(profiler.Frame{Changed: stats.Changed, Active: stats.Active, Synced: stats.Synced})
		viewer.Advance(opts.OrbitStep)
		viewer.Zoom(opts.OrbitRadius / float32(max(opts.Frames, 1)))
	}

	c.Wait()
	return sum, nil
}
