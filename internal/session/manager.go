// Package session keeps the mounted visualizations of the service. Each
// session owns its scene and render tasks; closing it tears both down.
package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/portfolio-globe/backend/pkg/achievements"
	"github.com/portfolio-globe/backend/pkg/geo"
	"github.com/portfolio-globe/backend/pkg/interaction"
	"github.com/portfolio-globe/backend/pkg/logger"
	"github.com/portfolio-globe/backend/pkg/pubsub"
	"github.com/portfolio-globe/backend/pkg/render"
	"github.com/portfolio-globe/backend/pkg/scene"
	"github.com/portfolio-globe/backend/pkg/style"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrLimit    = errors.New("too many sessions")
)

// Params configures a Manager.
type Params struct {
	Resolver     interaction.RelationResolver
	Claims       interaction.ClaimIndex
	Publisher    *pubsub.Publisher
	FPS          int
	Decay        time.Duration
	Clock        render.Clock
	Seeds        []string
	Cities       []achievements.City
	DefaultImage string
	// MaxSessions bounds concurrent sessions. Zero means unbounded.
	MaxSessions int
	// IdleTimeout closes sessions nobody has touched for that long. Zero
	// keeps sessions until they are closed explicitly.
	IdleTimeout time.Duration
	// ReapInterval is how often idle sessions are looked for. It defaults
	// to half the idle timeout.
	ReapInterval time.Duration
	// Seed makes session randomness reproducible when non-zero.
	Seed uint64
}

// Manager owns every live session.
type Manager struct {
	params Params

	mu       sync.RWMutex
	sessions map[string]*Session
	// slots reserved by Create calls that have not inserted yet
	pending int
	count   uint64

	stop     chan struct{}
	stopOnce sync.Once
	reaper   sync.WaitGroup
}

func NewManager(params Params) *Manager {
	if params.Clock == nil {
		params.Clock = render.SystemClock
	}
	m := &Manager{params: params, sessions: map[string]*Session{}, stop: make(chan struct{})}
	if params.IdleTimeout > 0 {
		interval := params.ReapInterval
		if interval <= 0 {
			interval = params.IdleTimeout / 2
		}
		m.reaper.Add(1)
		go m.reapLoop(interval)
	}
	return m
}

// Create mounts a session and starts its render tasks.
func (m *Manager) Create(kind Kind, theme style.Theme) (*Session, error) {
	m.mu.Lock()
	if m.params.MaxSessions > 0 && len(m.sessions)+m.pending >= m.params.MaxSessions {
		m.mu.Unlock()
		return nil, ErrLimit
	}
	m.pending++
	m.count++
	seq := m.count
	m.mu.Unlock()

	s, err := m.mount(kind, theme, seq)

	m.mu.Lock()
	m.pending--
	if err == nil {
		m.sessions[s.ID] = s
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	logger.Info("[Session] created", "session", s.ID, "kind", kind, "nodes", s.Store.Snapshot().Len())
	return s, nil
}

func (m *Manager) mount(kind Kind, theme style.Theme, seq uint64) (*Session, error) {
	seed := m.params.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	store := scene.NewStore()
	ctrl := interaction.New(interaction.Params{
		Store:        store,
		Resolver:     m.params.Resolver,
		Claims:       m.params.Claims,
		DefaultImage: m.params.DefaultImage,
		PointOfView:  geo.DefaultPointOfView,
	})
	s := &Session{
		ID:         uuid.NewString(),
		Kind:       kind,
		Theme:      theme,
		Created:    m.params.Clock.Now(),
		Store:      store,
		Controller: ctrl,
		Particles:  render.NewParticles(render.DefaultLifeStep),
		publisher:  m.params.Publisher,
		clock:      m.params.Clock,
		rng:        rand.New(rand.NewPCG(seed, seq)),
	}
	s.Builder = &render.FrameBuilder{
		Scene:      store,
		Particles:  s.Particles,
		Projector:  ctrl,
		Theme:      theme,
		Highlights: s.highlights,
	}
	if m.params.Claims != nil {
		s.Builder.Claims = m.params.Claims
	}
	if err := s.seed(m.params.Seeds, m.params.Cities); err != nil {
		return nil, err
	}
	if m.params.Publisher != nil {
		m.params.Publisher.ConfigureTopic(s.Topic(), pubsub.TopicConfig{BufferSize: 1, DropOldest: true})
	}
	s.driver = render.NewDriver(render.DriverParams{
		FPS:           m.params.FPS,
		DecayInterval: m.params.Decay,
		Clock:         m.params.Clock,
		OnFrame:       s.onFrame,
		OnDecay:       func() { s.Particles.Decay() },
	})
	s.touch()
	s.driver.Start(context.Background())
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Close stops a session's render tasks synchronously and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.close()
	logger.Info("[Session] closed", "session", id)
	return nil
}

// CloseAll stops the idle reaper and tears down every session.
func (m *Manager) CloseAll() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.reaper.Wait()

	m.mu.Lock()
	all := m.sessions
	m.sessions = map[string]*Session{}
	m.mu.Unlock()
	for _, s := range all {
		s.close()
	}
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Reap closes every session idle for longer than the idle timeout and
// returns how many were closed. Sessions with an open frame stream are
// never idle.
func (m *Manager) Reap() int {
	if m.params.IdleTimeout <= 0 {
		return 0
	}
	now := m.params.Clock.Now()

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idle(now, m.params.IdleTimeout) {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.close()
		logger.Info("[Session] expired", "session", s.ID, "idle", now.Sub(s.LastSeen()))
	}
	return len(expired)
}

func (m *Manager) reapLoop(interval time.Duration) {
	defer m.reaper.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}
