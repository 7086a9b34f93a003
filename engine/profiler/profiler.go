// Package profiler reports frame rate, LOD churn and memory statistics at a fixed interval.
package profiler

import (
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Frame is what one cloud frame did, as seen by the profiler.
type Frame struct {
	Changed int  // LOD flags flipped
	Active  int  // active set size
	Synced  bool // node buffer uploaded
}

// Report is the summary logged at the end of an interval.
type Report struct {
	FPS         float64
	AvgChanged  float64
	Active      int
	Syncs       int
	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
}

// Profiler accumulates frames and logs a Report every interval. It is not safe for concurrent use.
type Profiler struct {
	logger   *zap.SugaredLogger
	now      func() time.Time
	interval time.Duration
	memStats runtime.MemStats

	frames         int
	changed        int
	syncs          int
	lastTime       time.Time
	lastTotalAlloc uint64
}

// New creates a profiler. The interval defaults to 1 second.
//
// Parameters:
//   - options: functional options to configure the profiler
//
// Returns:
//   - *Profiler: the new profiler
func New(options ...ProfilerOption) *Profiler {
	p := &Profiler{
		logger:   zap.NewNop().Sugar(),
		now:      time.Now,
		interval: time.Second,
	}
	for _, option := range options {
		option(p)
	}
	p.lastTime = p.now()
	return p
}

// Tick records one frame and logs a report once the interval has elapsed.
//
// Parameters:
//   - frame: the frame just completed
//
// Returns:
//   - Report: the report, valid when the bool is true
//   - bool: true if a report was produced this tick
func (p *Profiler) Tick(frame Frame) (Report, bool) {
	p.frames++
	p.changed += frame.Changed
	if frame.Synced {
		p.syncs++
	}

	current := p.now()
	elapsed := current.Sub(p.lastTime)
	if elapsed < p.interval {
		return Report{}, false
	}

	runtime.ReadMemStats(&p.memStats)
	r := Report{
		FPS:         float64(p.frames) / elapsed.Seconds(),
		AvgChanged:  float64(p.changed) / float64(p.frames),
		Active:      frame.Active,
		Syncs:       p.syncs,
		HeapMB:      float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRateMB: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:     p.memStats.NumGC,
	}
	p.logger.Infow("profiler",
		"fps", r.FPS,
		"avgChanged", r.AvgChanged,
		"active", r.Active,
		"syncs", r.Syncs,
		"heapMB", r.HeapMB,
		"allocRateMB", r.AllocRateMB,
		"gc", r.GCCount,
	)

	p.frames = 0
	p.changed = 0
	p.syncs = 0
	p.lastTime = current
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return r, true
}
