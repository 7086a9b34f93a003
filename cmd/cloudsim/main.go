// Command cloudsim runs the procedural cloud headless: it orbits a camera through the cloud, drives the LOD and
// GPU synchronization every frame and reports frame statistics.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/Carmen-Shannon/oxy-sky/engine/cloud"
	"github.com/Carmen-Shannon/oxy-sky/engine/renderer"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagConfig       = "config"
	flagFrames       = "frames"
	flagBackend      = "backend"
	flagSoftware     = "software"
	flagMemoryLimit  = "memory-limit"
	flagOrbitRadius  = "orbit-radius"
	flagOrbitStep    = "orbit-step"
	flagFov          = "fov"
	flagRebuildEvery = "rebuild-every"
	flagPickEvery    = "pick-every"
	flagMetricsAddr  = "metrics-addr"
	flagVerbose      = "verbose"
)

func main() {
	app := &cli.App{
		Name:  "cloudsim",
		Usage: "fly a camera through a procedural cloud and report LOD and GPU sync statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load cloud configuration from TOML `FILE`",
			},
			&cli.IntFlag{
				Name:  flagFrames,
				Value: 600,
				Usage: "number of frames to simulate",
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Value: renderer.BackendTypeMemory.String(),
				Usage: "GPU backend, wgpu or memory",
			},
			&cli.BoolFlag{
				Name:  flagSoftware,
				Usage: "force the software adapter on the wgpu backend",
			},
			&cli.Uint64Flag{
				Name:  flagMemoryLimit,
				Usage: "byte budget of the memory backend, 0 for unlimited",
			},
			&cli.Float64Flag{
				Name:  flagOrbitRadius,
				Value: 250,
				Usage: "starting camera distance from the cloud center",
			},
			&cli.Float64Flag{
				Name:  flagOrbitStep,
				Value: 0.01,
				Usage: "camera azimuth change per frame in radians",
			},
			&cli.Float64Flag{
				Name:  flagFov,
				Value: 0.785398,
				Usage: "vertical field of view in radians",
			},
			&cli.IntFlag{
				Name:  flagRebuildEvery,
				Usage: "rebuild the cloud with the next seed every N frames, 0 to disable",
			},
			&cli.IntFlag{
				Name:  flagPickEvery,
				Value: 60,
				Usage: "raycast through the view center every N frames, 0 to disable",
			},
			&cli.StringFlag{
				Name:  flagMetricsAddr,
				Usage: "serve Prometheus metrics on `ADDR` (e.g. :9090)",
			},
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	logger, err := newLogger(c.Bool(flagVerbose))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg := cloud.DefaultConfig()
	if path := c.String(flagConfig); path != "" {
		if cfg, err = cloud.LoadConfig(path); err != nil {
			return err
		}
	}

	backend, err := renderer.ParseBackendType(c.String(flagBackend))
	if err != nil {
		return err
	}
	device, err := renderer.NewDevice(backend,
		renderer.WithLogger(logger),
		renderer.WithLabel("cloudsim"),
		renderer.WithForceSoftwareRenderer(c.Bool(flagSoftware)),
		renderer.WithMemoryLimit(c.Uint64(flagMemoryLimit)),
	)
	if err != nil {
		return errors.Wrapf(err, "create %s device", backend)
	}
	defer device.Release()

	reg := prometheus.NewRegistry()
	if addr := c.String(flagMetricsAddr); addr != "" {
		srv := serveMetrics(addr, reg, logger)
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	start := time.Now()
	sum, err := simulate(ctx, simOptions{
		Config:       cfg,
		Device:       device,
		Registerer:   reg,
		Frames:       c.Int(flagFrames),
		OrbitRadius:  float32(c.Float64(flagOrbitRadius)),
		OrbitStep:    float32(c.Float64(flagOrbitStep)),
		Fov:          float32(c.Float64(flagFov)),
		RebuildEvery: c.Int(flagRebuildEvery),
		PickEvery:    c.Int(flagPickEvery),
		ReportEvery:  time.Second,
	}, logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Infow("simulation finished",
		"frames", sum.Frames,
		"elapsed", time.Since(start).Round(time.Millisecond),
		"changed", sum.Changed,
		"syncs", sum.Syncs,
		"swaps", sum.Swaps,
		"maxActive", sum.MaxActive,
		"capacity", sum.Capacity,
		"capacityErrors", sum.CapacityErr,
		"picks", sum.Picks,
		"hits", sum.Hits,
	)
	return nil
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return nil, errors.Wrap(err, "create logger")
	}
	return l.Sugar(), nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Infow("serving metrics", "addr", addr)
	return srv
}
