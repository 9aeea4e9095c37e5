package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/portfolio-globe/backend/pkg/achievements"
	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/pubsub"
	"github.com/portfolio-globe/backend/pkg/relation"
	"github.com/portfolio-globe/backend/pkg/scene"
	"github.com/portfolio-globe/backend/pkg/style"
)

type echoResolver struct{}

func (echoResolver) Resolve(_ context.Context, source, rel string, _ relation.Kind, _ ...ai.GenerateOption) string {
	return rel + "-" + source
}

func newManager(t *testing.T, pub *pubsub.Publisher) *Manager {
	t.Helper()
	acts, err := achievements.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m := NewManager(Params{
		Resolver:    echoResolver{},
		Publisher:   pub,
		FPS:         100,
		Decay:       5 * time.Millisecond,
		Seeds:       []string{"ocean", "music"},
		Cities:      achievements.Cities(acts),
		MaxSessions: 2,
		Seed:        7,
	})
	t.Cleanup(m.CloseAll)
	return m
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(""); err != nil || k != KindWords {
		t.Fatalf("ParseKind(\"\") got = %v, %v", k, err)
	}
	if k, err := ParseKind("globe"); err != nil || k != KindGlobe {
		t.Fatalf("ParseKind(globe) got = %v, %v", k, err)
	}
	if k, err := ParseKind("demo"); err != nil || k != KindDemo {
		t.Fatalf("ParseKind(demo) got = %v, %v", k, err)
	}
	if _, err := ParseKind("maze"); err == nil {
		t.Fatalf("ParseKind(maze) error = nil")
	}
}

func TestCreateSeeds(t *testing.T) {
	m := newManager(t, nil)
	words, err := m.Create(KindWords, style.ThemeDark)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got := words.Store.Snapshot().Len(); got != 2 {
		t.Fatalf("words session got %d nodes, want 2", got)
	}

	globe, err := m.Create(KindGlobe, style.ThemeLight)
	if err != nil {
		t.Fatalf("Create(globe) error = %v", err)
	}
	snap := globe.Store.Snapshot()
	n, ok := snap.Node(scene.PlaceID("Munich", "Germany"))
	if !ok || n.Kind != scene.KindPlace || n.Meta[scene.MetaCount] != 7 {
		t.Fatalf("Munich got = %+v, %v", n, ok)
	}

	if _, err := m.Create(KindWords, style.ThemeDark); !errors.Is(err, ErrLimit) {
		t.Fatalf("third Create() error = %v, want ErrLimit", err)
	}
	if got, err := m.Get(words.ID); err != nil || got != words {
		t.Fatalf("Get() got = %v, %v", got, err)
	}
}

func TestCloseStopsDriver(t *testing.T) {
	pub := pubsub.NewPublisher()
	defer pub.Close()
	m := newManager(t, pub)
	s, err := m.Create(KindWords, style.ThemeDark)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	sub, err := pub.Subscribe(context.Background(), s.Topic())
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Type != FrameEvent {
			t.Fatalf("event type got = %q", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame published")
	}

	if err := m.Close(s.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	frames := s.Driver().Frames()
	time.Sleep(50 * time.Millisecond)
	if got := s.Driver().Frames(); got != frames {
		t.Fatalf("frames advanced after Close: %d -> %d", frames, got)
	}
	for range sub.Events() {
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Close error = %v", err)
	}
	if err := m.Close(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestSubmitRelationBursts(t *testing.T) {
	m := newManager(t, nil)
	s, _ := m.Create(KindWords, style.ThemeDark)
	s.Driver().Stop()

	if err := s.Controller.SelectNode("ocean"); err != nil {
		t.Fatalf("SelectNode() error = %v", err)
	}
	res, err := s.SubmitRelation(context.Background(), "deep", relation.KindLocal)
	if err != nil {
		t.Fatalf("SubmitRelation() error = %v", err)
	}
	if !res.Created || res.Node.ID != "deep-ocean" || res.Claim == nil {
		t.Fatalf("SubmitRelation() got = %+v", res)
	}
	if got := s.Particles.Len(); got != burstSize {
		t.Fatalf("particles got = %d, want %d", got, burstSize)
	}
	frame := s.Frame(time.Time{})
	if len(frame.Nodes) != 3 || len(frame.Edges) != 1 || len(frame.Particles) != burstSize {
		t.Fatalf("frame got %d nodes %d edges %d particles", len(frame.Nodes), len(frame.Edges), len(frame.Particles))
	}
}

func TestGenerateAndFlight(t *testing.T) {
	m := newManager(t, nil)
	words, _ := m.Create(KindWords, style.ThemeDark)
	if err := words.Generate(10, 2); !errors.Is(err, scene.ErrNotEmpty) {
		t.Fatalf("Generate() on seeded scene error = %v", err)
	}
	if got := words.Store.Snapshot().Len(); got != 2 {
		t.Fatalf("seeded nodes got = %d after refused Generate(), want 2", got)
	}

	s, _ := m.Create(KindDemo, style.ThemeDark)
	if got := s.Store.Snapshot().Len(); got != 0 {
		t.Fatalf("demo session got %d nodes, want 0", got)
	}
	if err := s.Generate(10, 2); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got := s.Store.Snapshot().Len(); got != 10 {
		t.Fatalf("generated %d nodes, want 10", got)
	}

	s.StartFlight()
	hl := s.highlights()
	if len(hl.Markers) != 21 || hl.Markers[0].ID != "plane" {
		t.Fatalf("flight markers got %d", len(hl.Markers))
	}
	if info := s.Info(); info.State.Flight == nil || info.Kind != KindDemo {
		t.Fatalf("Info() got = %+v", info)
	}
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestReapClosesIdleSessions(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	m := NewManager(Params{
		Resolver:     echoResolver{},
		Clock:        clock,
		FPS:          10,
		Decay:        time.Second,
		MaxSessions:  2,
		IdleTimeout:  5 * time.Minute,
		ReapInterval: time.Hour,
	})
	t.Cleanup(m.CloseAll)

	kept, _ := m.Create(KindDemo, style.ThemeDark)
	idle, _ := m.Create(KindDemo, style.ThemeDark)
	if _, err := m.Create(KindDemo, style.ThemeDark); !errors.Is(err, ErrLimit) {
		t.Fatalf("third Create() error = %v, want ErrLimit", err)
	}

	clock.Advance(3 * time.Minute)
	kept.Touch()
	clock.Advance(3 * time.Minute)
	if got := m.Reap(); got != 1 {
		t.Fatalf("Reap() got = %d, want 1", got)
	}
	if _, err := m.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(idle) error = %v, want ErrNotFound", err)
	}
	if _, err := m.Get(kept.ID); err != nil {
		t.Fatalf("Get(kept) error = %v", err)
	}
	frames := idle.Driver().Frames()
	time.Sleep(250 * time.Millisecond)
	if got := idle.Driver().Frames(); got != frames {
		t.Fatalf("expired session still rendering: %d -> %d", frames, got)
	}

	release := kept.Stream()
	clock.Advance(time.Hour)
	if got := m.Reap(); got != 0 {
		t.Fatalf("Reap() with an open stream got = %d, want 0", got)
	}
	release()
	clock.Advance(6 * time.Minute)
	if got := m.Reap(); got != 1 || m.Len() != 0 {
		t.Fatalf("Reap() after stream end got = %d, len %d", got, m.Len())
	}

	if _, err := m.Create(KindDemo, style.ThemeDark); err != nil {
		t.Fatalf("Create() after reaping error = %v", err)
	}
}

func TestReapDisabledWithoutTimeout(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	m := NewManager(Params{Clock: clock, FPS: 10, Decay: time.Second})
	t.Cleanup(m.CloseAll)
	m.Create(KindDemo, style.ThemeDark)
	clock.Advance(24 * time.Hour)
	if got := m.Reap(); got != 0 || m.Len() != 1 {
		t.Fatalf("Reap() got = %d, len %d", got, m.Len())
	}
}

func TestCreateRespectsLimitConcurrently(t *testing.T) {
	m := NewManager(Params{FPS: 10, Decay: time.Second, MaxSessions: 3})
	t.Cleanup(m.CloseAll)

	var wg sync.WaitGroup
	var created atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Create(KindDemo, style.ThemeDark); err == nil {
				created.Add(1)
			} else if !errors.Is(err, ErrLimit) {
				t.Errorf("Create() error = %v", err)
			}
		}()
	}
	wg.Wait()
	if got := created.Load(); got != 3 || m.Len() != 3 {
		t.Fatalf("created %d sessions, len %d, want 3", got, m.Len())
	}
}
