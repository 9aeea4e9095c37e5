package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/portfolio-globe/backend/pkg/achievements"
	"github.com/portfolio-globe/backend/pkg/ai"
	"github.com/portfolio-globe/backend/pkg/geo"
	"github.com/portfolio-globe/backend/pkg/interaction"
	"github.com/portfolio-globe/backend/pkg/logger"
	"github.com/portfolio-globe/backend/pkg/pubsub"
	"github.com/portfolio-globe/backend/pkg/relation"
	"github.com/portfolio-globe/backend/pkg/render"
	"github.com/portfolio-globe/backend/pkg/scene"
	"github.com/portfolio-globe/backend/pkg/style"
)

// Kind selects what a session shows.
type Kind string

const (
	KindWords Kind = "words"
	KindGlobe Kind = "globe"
	// KindDemo starts empty so the demo graph can be generated into it.
	KindDemo Kind = "demo"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindWords, "":
		return KindWords, nil
	case KindGlobe, KindDemo:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown session kind %q", s)
}

const (
	FrameEvent = "frame"
	burstSize  = 24
	planeSize  = 1.2
	coinSize   = 0.6
)

var (
	planeColor = "#ffffff"
	coinColor  = style.Hex(style.MajorCityColor)
)

// Session is one mounted visualization: its scene, controller, particle
// system and render driver.
type Session struct {
	ID      string
	Kind    Kind
	Theme   style.Theme
	Created time.Time

	Store      *scene.Store
	Controller *interaction.Controller
	Particles  *render.Particles
	Builder    *render.FrameBuilder

	driver    *render.Driver
	publisher *pubsub.Publisher
	clock     render.Clock

	rngMu sync.Mutex
	rng   *rand.Rand

	lastSeen atomic.Int64
	streams  atomic.Int32
}

// Info is the public description of a session.
type Info struct {
	ID      string            `json:"id"`
	Kind    Kind              `json:"kind"`
	Theme   style.Theme       `json:"theme"`
	Created time.Time         `json:"created"`
	State   interaction.State `json:"state"`
}

func (s *Session) Info() Info {
	return Info{ID: s.ID, Kind: s.Kind, Theme: s.Theme, Created: s.Created, State: s.Controller.State()}
}

// Topic is the pubsub topic frames are published on.
func (s *Session) Topic() string { return "session/" + s.ID }

func (s *Session) onFrame(now time.Time) {
	tick := s.Controller.Tick(now)
	if tick.Collected > 0 {
		if f := s.Controller.State().Flight; f != nil {
			s.burst(geo.ToCartesian(f.Plane.Lat, f.Plane.Lng, geo.GlobeRadius), coinColor)
		}
	}
	if s.publisher == nil || s.publisher.Subscribers(s.Topic()) == 0 {
		return
	}
	if err := s.publisher.Publish(s.Topic(), FrameEvent, s.Builder.Build(now)); err != nil {
		logger.Debug("[Session] frame not published", "session", s.ID, "err", err)
	}
}

func (s *Session) highlights() render.Highlights {
	st := s.Controller.State()
	hl := render.Highlights{
		Selected: st.Selected,
		Hovered:  s.Controller.HoveredAt(s.clock.Now()),
	}
	if f := st.Flight; f != nil {
		hl.Markers = append(hl.Markers, render.Marker{ID: "plane", At: f.Plane, Color: planeColor, Size: planeSize})
		for _, c := range f.Coins {
			hl.Markers = append(hl.Markers, render.Marker{ID: "coin-" + strconv.Itoa(c.ID), At: c.At, Color: coinColor, Size: coinSize})
		}
	}
	return hl
}

func (s *Session) burst(at geo.Vec3, color string) {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.Particles.Spawn(at, burstSize, color, s.rng)
}

// SubmitRelation forwards to the controller and emits particles around a
// newly created node.
func (s *Session) SubmitRelation(ctx context.Context, rel string, kind relation.Kind, opts ...ai.GenerateOption) (interaction.SubmitResult, error) {
	res, err := s.Controller.SubmitRelation(ctx, rel, kind, opts...)
	if err != nil {
		return res, err
	}
	if res.Created {
		s.burst(res.Node.Position, style.Hex(style.HueColor(res.Node.ID, s.Theme)))
	}
	return res, nil
}

// Generate fills an empty scene with a demo graph.
func (s *Session) Generate(n, clusters int) error {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.Store.BulkGenerate(n, clusters, s.rng)
}

// StartFlight begins the plane demo.
func (s *Session) StartFlight() {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	s.Controller.StartFlight(s.clock.Now(), s.rng)
}

// Frame builds a frame at t, or now when t is zero.
func (s *Session) Frame(t time.Time) render.Frame {
	if t.IsZero() {
		t = s.clock.Now()
	}
	return s.Builder.Build(t)
}

// Now reads the session clock.
func (s *Session) Now() time.Time { return s.clock.Now() }

// Touch marks the session as in use.
func (s *Session) Touch() { s.touch() }

func (s *Session) touch() { s.lastSeen.Store(s.clock.Now().UnixNano()) }

// LastSeen is the last time the session was touched.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Stream keeps the session alive while a frame stream is open. The returned
// func ends the stream.
func (s *Session) Stream() func() {
	s.streams.Add(1)
	s.touch()
	return func() {
		s.touch()
		s.streams.Add(-1)
	}
}

func (s *Session) idle(now time.Time, timeout time.Duration) bool {
	return s.streams.Load() == 0 && now.Sub(s.LastSeen()) > timeout
}

// Driver exposes pause state for the render loop.
func (s *Session) Driver() *render.Driver { return s.driver }

func (s *Session) seed(seeds []string, cities []achievements.City) error {
	switch s.Kind {
	case KindGlobe:
		return achievements.Seed(s.Store, cities, geo.GlobeRadius)
	case KindDemo:
		return nil
	default:
		for _, w := range seeds {
			if _, _, err := s.Store.AddNode(w, ""); err != nil {
				return fmt.Errorf("seed %q: %w", w, err)
			}
		}
	}
	return nil
}

// close stops the render tasks and ends every frame stream.
func (s *Session) close() {
	s.driver.Stop()
	if s.publisher != nil {
		s.publisher.CloseTopic(s.Topic())
	}
}
