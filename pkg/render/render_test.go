package render

import (
	"context"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/portfolio-globe/backend/pkg/geo"
	"github.com/portfolio-globe/backend/pkg/scene"
	"github.com/portfolio-globe/backend/pkg/style"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestOpacitiesArePureInTime(t *testing.T) {
	for _, ms := range []int64{0, 1, 299, 1_700_000_000_123} {
		if PulseOpacity(ms) != PulseOpacity(ms) {
			t.Fatalf("PulseOpacity(%d) not deterministic", ms)
		}
		if BreathingOpacity(ms) != BreathingOpacity(ms) {
			t.Fatalf("BreathingOpacity(%d) not deterministic", ms)
		}
	}
	if got := PulseOpacity(0); !almostEqual(got, 0.6) {
		t.Fatalf("PulseOpacity(0) got = %v, want 0.6", got)
	}
	if got := BreathingOpacity(0); !almostEqual(got, 0.5) {
		t.Fatalf("BreathingOpacity(0) got = %v, want 0.5", got)
	}
}

func TestOpacityBounds(t *testing.T) {
	for ms := int64(0); ms < 20_000; ms += 7 {
		p := PulseOpacity(ms)
		if p < 0.2-1e-9 || p > 1+1e-9 {
			t.Fatalf("PulseOpacity(%d) got = %v, out of [0.2, 1]", ms, p)
		}
		b := BreathingOpacity(ms)
		if b < 0.2-1e-9 || b > 0.8+1e-9 {
			t.Fatalf("BreathingOpacity(%d) got = %v, out of [0.2, 0.8]", ms, b)
		}
	}
}

func TestRingPhasePeriodic(t *testing.T) {
	tests := []struct {
		now, start, period int64
		want               float64
	}{
		{0, 0, 1500, 0},
		{750, 0, 1500, 0.5},
		{1500, 0, 1500, 0},
		{1600, 100, 1500, 0},
		{50, 100, 1500, 1450.0 / 1500},
		{10, 0, 0, 0},
	}
	for _, tt := range tests {
		if got := RingPhase(tt.now, tt.start, tt.period); !almostEqual(got, tt.want) {
			t.Fatalf("RingPhase(%d, %d, %d) got = %v, want %v", tt.now, tt.start, tt.period, got, tt.want)
		}
	}

	for ms := int64(1_700_000_000_000); ms < 1_700_000_003_000; ms += 37 {
		a := RingPhase(ms, 5, RingRepeatMs)
		b := RingPhase(ms+RingRepeatMs, 5, RingRepeatMs)
		if a != b {
			t.Fatalf("RingPhase(%d) = %v but RingPhase(+period) = %v", ms, a, b)
		}
		if a < 0 || a >= 1 {
			t.Fatalf("RingPhase(%d) got = %v, out of [0, 1)", ms, a)
		}
	}
}

func TestRingRadiusAndOpacity(t *testing.T) {
	if got := RingRadius(0.5, 4); got != 2 {
		t.Fatalf("RingRadius() got = %v, want 2", got)
	}
	if got := RingOpacity(0.25); got != 0.75 {
		t.Fatalf("RingOpacity() got = %v, want 0.75", got)
	}
}

func TestParticlesDecay(t *testing.T) {
	p := NewParticles(0.25)
	p.Spawn(geo.Vec3{X: 1}, 3, "#fff", rand.New(rand.NewPCG(1, 2)))
	p.Spawn(geo.Vec3{}, 0, "#fff", nil)
	if p.Len() != 3 {
		t.Fatalf("Len() got = %d, want 3", p.Len())
	}

	before := p.Snapshot()
	if n := p.Decay(); n != 3 {
		t.Fatalf("Decay() got = %d, want 3", n)
	}
	after := p.Snapshot()
	if !almostEqual(after[0].Life, 0.75) {
		t.Fatalf("life got = %v, want 0.75", after[0].Life)
	}
	if after[0].Position == before[0].Position {
		t.Fatalf("particle did not move")
	}

	for i := 0; i < 3; i++ {
		p.Decay()
	}
	if p.Len() != 0 {
		t.Fatalf("Len() got = %d after life reached 0, want 0", p.Len())
	}
}

func TestParticlesSnapshotIsCopy(t *testing.T) {
	p := NewParticles(0)
	p.Spawn(geo.Vec3{}, 1, "#fff", rand.New(rand.NewPCG(1, 1)))
	snap := p.Snapshot()
	snap[0].Life = -1
	if p.Snapshot()[0].Life != 1 {
		t.Fatalf("mutating Snapshot() changed the system")
	}
}

func TestDriverRunsAndStops(t *testing.T) {
	var frames, decays atomic.Int32
	fixed := time.UnixMilli(42)
	var seen atomic.Int64
	d := NewDriver(DriverParams{
		FPS:           200,
		DecayInterval: 5 * time.Millisecond,
		Clock:         FixedClock(fixed),
		OnFrame: func(now time.Time) {
			seen.Store(Millis(now))
			frames.Add(1)
		},
		OnDecay: func() { decays.Add(1) },
	})
	d.Start(context.Background())
	d.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for (frames.Load() < 3 || decays.Load() < 3) && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if frames.Load() < 3 || decays.Load() < 3 {
		t.Fatalf("driver produced frames=%d decays=%d", frames.Load(), decays.Load())
	}
	if seen.Load() != 42 {
		t.Fatalf("frame time got = %d, want 42", seen.Load())
	}

	d.Stop()
	f, dc := frames.Load(), decays.Load()
	time.Sleep(30 * time.Millisecond)
	if frames.Load() != f || decays.Load() != dc {
		t.Fatalf("callbacks ran after Stop")
	}
	d.Stop()
}

func TestDriverPause(t *testing.T) {
	var frames, decays atomic.Int32
	d := NewDriver(DriverParams{
		FPS:           200,
		DecayInterval: 5 * time.Millisecond,
		OnFrame:       func(time.Time) { frames.Add(1) },
		OnDecay:       func() { decays.Add(1) },
	})
	d.Pause()
	d.Start(context.Background())
	defer d.Stop()

	time.Sleep(40 * time.Millisecond)
	if frames.Load() != 0 {
		t.Fatalf("frames got = %d while paused, want 0", frames.Load())
	}
	if decays.Load() == 0 {
		t.Fatalf("decay did not run while paused")
	}

	d.Resume()
	deadline := time.Now().Add(2 * time.Second)
	for frames.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if frames.Load() == 0 {
		t.Fatalf("no frames after Resume")
	}
}

func TestDriverStopBeforeStart(t *testing.T) {
	var frames atomic.Int32
	d := NewDriver(DriverParams{FPS: 200, OnFrame: func(time.Time) { frames.Add(1) }})
	d.Stop()
	d.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	if frames.Load() != 0 {
		t.Fatalf("driver started after Stop")
	}
}

type claimSet map[string]bool

func (c claimSet) IsClaimed(name string) bool { return c[name] }

type stubProjector struct{}

func (stubProjector) ScreenProjection(lat, lng float64) (geo.Point2, bool) {
	if lat < 0 {
		return geo.Point2{}, false
	}
	return geo.Point2{X: lng, Y: lat}, true
}

func TestFrameBuilder(t *testing.T) {
	store := scene.NewStore()
	if _, _, err := store.AddNode("cat", ""); err != nil {
		t.Fatalf("AddNode() err = %v", err)
	}
	if _, err := store.AddRelation("cat", "dog", "bigger"); err != nil {
		t.Fatalf("AddRelation() err = %v", err)
	}
	store.AddPlace("Munich", "Germany", geo.LatLng{Lat: 48.1351, Lng: 11.582}, geo.GlobeRadius,
		map[string]float64{scene.MetaCount: 3, scene.MetaImportance: 24})
	store.AddPlace("Sydney", "Australia", geo.LatLng{Lat: -33.86, Lng: 151.2}, geo.GlobeRadius,
		map[string]float64{scene.MetaCount: 1, scene.MetaImportance: 2})

	particles := NewParticles(0)
	particles.Spawn(geo.Vec3{}, 2, "#fff", rand.New(rand.NewPCG(3, 4)))

	b := &FrameBuilder{
		Scene:     store,
		Claims:    claimSet{"dog": true},
		Particles: particles,
		Projector: stubProjector{},
		Theme:     style.ThemeDark,
		Highlights: func() Highlights {
			return Highlights{Selected: "cat", Hovered: "dog"}
		},
	}
	now := time.UnixMilli(750)
	f := b.Build(now)

	if f.Time != 750 || f.Version != store.Snapshot().Version() {
		t.Fatalf("frame header got = %d/%d", f.Time, f.Version)
	}
	if len(f.Nodes) != 4 || len(f.Edges) != 1 || len(f.Particles) != 2 {
		t.Fatalf("frame got %d nodes, %d edges, %d particles", len(f.Nodes), len(f.Edges), len(f.Particles))
	}

	cat, dog, munich, sydney := f.Nodes[0], f.Nodes[1], f.Nodes[2], f.Nodes[3]
	if !cat.Selected || !almostEqual(cat.Opacity, PulseOpacity(750)) {
		t.Fatalf("selected node got = %+v", cat)
	}
	if cat.Color != style.Hex(style.HueColor("cat", style.ThemeDark)) || cat.Size != ConceptNodeSize {
		t.Fatalf("concept node style got = %+v", cat)
	}
	if !dog.Claimed || dog.Color != style.Hex(style.ClaimedColor) || dog.Ring == nil {
		t.Fatalf("claimed node got = %+v", dog)
	}
	if !dog.Hovered || dog.Size != ConceptNodeSize+HoverGrowth {
		t.Fatalf("hovered node got = %+v", dog)
	}
	if !almostEqual(dog.Ring.Opacity, 0.5) || !almostEqual(dog.Ring.Radius, RingMaxRadius/2) {
		t.Fatalf("ring got = %+v", dog.Ring)
	}

	if munich.Color != style.Hex(style.ImportanceColor(8)) || munich.Size != 50 || munich.Animation != "pulsate" {
		t.Fatalf("major place got = %+v", munich)
	}
	if sydney.Color != style.Hex(style.ImportanceColor(2)) || sydney.Size != 30 || sydney.Ring != nil {
		t.Fatalf("minor place got = %+v", sydney)
	}

	if len(f.Overlays) != 1 || f.Overlays[0].ID != munich.ID {
		t.Fatalf("overlays got = %+v, want only the visible place", f.Overlays)
	}

	e := f.Edges[0]
	if e.Color != style.Hex(style.PaletteColor("bigger")) || !almostEqual(e.Opacity, BreathingOpacity(750)) {
		t.Fatalf("edge got = %+v", e)
	}
	if !almostEqual(e.DashOffset, 0.5) {
		t.Fatalf("dash offset got = %v, want 0.5", e.DashOffset)
	}

	again := b.Build(now)
	if again.Nodes[0].Opacity != f.Nodes[0].Opacity || again.Edges[0].Opacity != f.Edges[0].Opacity {
		t.Fatalf("Build() not deterministic for a fixed time")
	}
}

func TestFrameBuilderMinimal(t *testing.T) {
	b := &FrameBuilder{Scene: scene.NewStore()}
	f := b.Build(time.UnixMilli(0))
	if f.Nodes == nil || f.Edges == nil || f.Particles == nil {
		t.Fatalf("empty frame should carry empty slices, got %+v", f)
	}
}
