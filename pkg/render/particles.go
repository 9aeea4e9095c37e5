package render

import (
	"math/rand/v2"
	"sync"

	"github.com/portfolio-globe/backend/pkg/geo"
)

// DefaultLifeStep is what one decay tick removes from a particle's life.
const DefaultLifeStep = 0.02

// Particle is a short-lived point emitted around a node.
type Particle struct {
	Position geo.Vec3 `json:"position"`
	Velocity geo.Vec3 `json:"-"`
	Life     float64  `json:"life"`
	Color    string   `json:"color"`
}

// Particles is a particle system. Spawn and Snapshot are safe to call from
// the frame task while Decay runs on its own timer.
type Particles struct {
	mu    sync.Mutex
	items []Particle
	step  float64
}

// NewParticles returns an empty system. A non-positive step uses
// DefaultLifeStep.
func NewParticles(step float64) *Particles {
	if step <= 0 {
		step = DefaultLifeStep
	}
	return &Particles{step: step}
}

// Spawn emits count particles at at with life 1 and a small random velocity.
func (p *Particles) Spawn(at geo.Vec3, count int, color string, rng *rand.Rand) {
	if count <= 0 {
		return
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < count; i++ {
		p.items = append(p.items, Particle{
			Position: at,
			Velocity: geo.Vec3{
				X: rng.Float64() - 0.5,
				Y: rng.Float64() - 0.5,
				Z: rng.Float64() - 0.5,
			},
			Life:  1,
			Color: color,
		})
	}
}

// Decay advances every particle by one tick and drops the dead ones. It
// returns how many are still alive.
func (p *Particles) Decay() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	alive := p.items[:0]
	for _, it := range p.items {
		it.Life -= p.step
		if it.Life <= 0 {
			continue
		}
		it.Position = it.Position.Add(it.Velocity)
		alive = append(alive, it)
	}
	clear(p.items[len(alive):])
	p.items = alive
	return len(alive)
}

// Snapshot returns a copy of the live particles.
func (p *Particles) Snapshot() []Particle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Particle, len(p.items))
	copy(out, p.items)
	return out
}

// Len returns the number of live particles.
func (p *Particles) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
