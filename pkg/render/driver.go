package render

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/portfolio-globe/backend/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultFPS           = 30
	DefaultDecayInterval = 50 * time.Millisecond
)

// DriverParams configures a Driver.
type DriverParams struct {
	FPS           int
	DecayInterval time.Duration
	Clock         Clock

	// OnFrame is called on every frame tick that is not paused. It must not
	// block on I/O.
	OnFrame func(now time.Time)
	// OnDecay is called on every decay tick.
	OnDecay func()
}

// Driver runs the frame task and the particle decay task. The two run on
// separate tickers and stop together.
type Driver struct {
	params DriverParams
	paused atomic.Bool
	frames atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	stopped bool
}

// NewDriver returns a driver that has not been started.
func NewDriver(params DriverParams) *Driver {
	if params.FPS <= 0 {
		params.FPS = DefaultFPS
	}
	if params.DecayInterval <= 0 {
		params.DecayInterval = DefaultDecayInterval
	}
	if params.Clock == nil {
		params.Clock = SystemClock
	}
	return &Driver{params: params}
}

// Start launches both tasks. They end when ctx is done or Stop is called.
// Starting twice, or after Stop, is a no-op.
func (d *Driver) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.group != nil || d.stopped {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	d.cancel, d.group = cancel, g

	frameEvery := time.Second / time.Duration(d.params.FPS)
	g.Go(func() error {
		return loop(ctx, frameEvery, func() {
			if d.paused.Load() || d.params.OnFrame == nil {
				return
			}
			d.params.OnFrame(d.params.Clock.Now())
			d.frames.Add(1)
		})
	})
	g.Go(func() error {
		return loop(ctx, d.params.DecayInterval, func() {
			if d.params.OnDecay != nil {
				d.params.OnDecay()
			}
		})
	})
	logger.Debug("[Render] driver started", "fps", d.params.FPS, "decay", d.params.DecayInterval)
}

func loop(ctx context.Context, every time.Duration, tick func()) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			tick()
		}
	}
}

// Pause stops frame callbacks. Particles keep decaying.
func (d *Driver) Pause() { d.paused.Store(true) }

// Resume restarts frame callbacks.
func (d *Driver) Resume() { d.paused.Store(false) }

// Paused reports whether frames are paused.
func (d *Driver) Paused() bool { return d.paused.Load() }

// Frames returns how many frames were produced.
func (d *Driver) Frames() uint64 { return d.frames.Load() }

// Stop cancels both tasks and waits until they have returned. After Stop
// no callback runs.
func (d *Driver) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	cancel, g := d.cancel, d.group
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	_ = g.Wait()
	logger.Debug("[Render] driver stopped", "frames", d.frames.Load())
}
