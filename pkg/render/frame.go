package render

import (
	"time"

	"github.com/portfolio-globe/backend/pkg/geo"
	"github.com/portfolio-globe/backend/pkg/scene"
	"github.com/portfolio-globe/backend/pkg/style"
)

const (
	ConceptNodeSize = 6.0
	HoverGrowth     = 5.0
	// MajorPlaceCount is the activity count from which a place pulses.
	MajorPlaceCount = 3
)

// Ring is one expanding ring around a node.
type Ring struct {
	Radius  float64 `json:"radius"`
	Opacity float64 `json:"opacity"`
}

// NodeFrame is a node with its style for one frame.
type NodeFrame struct {
	ID        string      `json:"id"`
	Label     string      `json:"label"`
	Kind      scene.Kind  `json:"kind"`
	Position  geo.Vec3    `json:"position"`
	Geo       *geo.LatLng `json:"geo,omitempty"`
	Color     string      `json:"color"`
	Size      float64     `json:"size"`
	Opacity   float64     `json:"opacity"`
	Claimed   bool        `json:"claimed"`
	Selected  bool        `json:"selected,omitempty"`
	Hovered   bool        `json:"hovered,omitempty"`
	Animation string      `json:"animation,omitempty"`
	Ring      *Ring       `json:"ring,omitempty"`
}

// EdgeFrame is an edge with its style for one frame.
type EdgeFrame struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Label      string  `json:"label"`
	Color      string  `json:"color"`
	Opacity    float64 `json:"opacity"`
	DashOffset float64 `json:"dashOffset"`
}

// Overlay is the screen position of a node label.
type Overlay struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Marker is a non-graph marker such as the plane or a coin.
type Marker struct {
	ID    string     `json:"id"`
	At    geo.LatLng `json:"at"`
	Color string     `json:"color"`
	Size  float64    `json:"size"`
}

// Frame is everything a client needs to draw one frame.
type Frame struct {
	Time      int64       `json:"t"`
	Version   uint64      `json:"version"`
	Nodes     []NodeFrame `json:"nodes"`
	Edges     []EdgeFrame `json:"edges"`
	Particles []Particle  `json:"particles"`
	Markers   []Marker    `json:"markers,omitempty"`
	Overlays  []Overlay   `json:"overlays,omitempty"`
}

// Highlights is the interaction state a frame depends on.
type Highlights struct {
	Selected string
	Hovered  string
	Markers  []Marker
}

// ClaimChecker reports claimed names.
type ClaimChecker interface {
	IsClaimed(name string) bool
}

// SceneReader exposes the current scene snapshot.
type SceneReader interface {
	Snapshot() *scene.Snapshot
}

// FrameBuilder assembles frames. Every field except Scene may be nil.
type FrameBuilder struct {
	Scene      SceneReader
	Claims     ClaimChecker
	Particles  *Particles
	Projector  geo.Projector
	Theme      style.Theme
	Highlights func() Highlights
}

// Build renders the frame at now. It only reads state.
func (b *FrameBuilder) Build(now time.Time) Frame {
	ms := Millis(now)
	snap := b.Scene.Snapshot()

	var hl Highlights
	if b.Highlights != nil {
		hl = b.Highlights()
	}

	f := Frame{
		Time:      ms,
		Version:   snap.Version(),
		Nodes:     make([]NodeFrame, 0, snap.Len()),
		Edges:     make([]EdgeFrame, 0, snap.EdgeCount()),
		Particles: []Particle{},
		Markers:   hl.Markers,
	}

	for _, n := range snap.Nodes() {
		nf := b.node(n, ms)
		if n.ID == hl.Selected {
			nf.Selected = true
			nf.Opacity = PulseOpacity(ms)
		}
		if n.ID == hl.Hovered {
			nf.Hovered = true
			nf.Size += HoverGrowth
		}
		f.Nodes = append(f.Nodes, nf)

		if n.Geo != nil && b.Projector != nil {
			if p, ok := b.Projector.ScreenProjection(n.Geo.Lat, n.Geo.Lng); ok {
				f.Overlays = append(f.Overlays, Overlay{ID: n.ID, X: p.X, Y: p.Y})
			}
		}
	}

	opacity := BreathingOpacity(ms)
	dash := ArcDashOffset(ms)
	for _, e := range snap.Edges() {
		f.Edges = append(f.Edges, EdgeFrame{
			Source:     e.Source,
			Target:     e.Target,
			Label:      e.Label,
			Color:      style.Hex(style.PaletteColor(e.Label)),
			Opacity:    opacity,
			DashOffset: dash,
		})
	}

	if b.Particles != nil {
		f.Particles = b.Particles.Snapshot()
	}
	return f
}

func (b *FrameBuilder) node(n scene.Node, ms int64) NodeFrame {
	nf := NodeFrame{
		ID:       n.ID,
		Label:    n.Label,
		Kind:     n.Kind,
		Position: n.Position,
		Geo:      n.Geo,
		Opacity:  1,
	}

	switch n.Kind {
	case scene.KindPlace:
		count := n.Meta[scene.MetaCount]
		total := n.Meta[scene.MetaImportance]
		avg := 0.0
		if count > 0 {
			avg = total / count
		}
		nf.Color = style.Hex(style.ImportanceColor(avg))
		nf.Size = float64(style.MarkerSize(style.TierFor(total)))
		if count >= MajorPlaceCount {
			nf.Animation = "pulsate"
			nf.Ring = ringAt(ms)
		}
	default:
		nf.Color = style.Hex(style.HueColor(n.ID, b.Theme))
		nf.Size = ConceptNodeSize
	}

	if b.Claims != nil && b.Claims.IsClaimed(n.ID) {
		nf.Claimed = true
		nf.Color = style.Hex(style.ClaimedColor)
		nf.Ring = ringAt(ms)
	}
	return nf
}

func ringAt(ms int64) *Ring {
	phase := RingPhase(ms, 0, RingRepeatMs)
	return &Ring{Radius: RingRadius(phase, RingMaxRadius), Opacity: RingOpacity(phase)}
}
