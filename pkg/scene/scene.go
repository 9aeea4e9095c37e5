// Package scene holds the graph of concept and place nodes that the globe and
// word graph views draw. Every mutation produces a new immutable Snapshot.
package scene

import (
	"errors"

	"github.com/portfolio-globe/backend/pkg/geo"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrEmptyID     = errors.New("empty node id")
	ErrNotEmpty    = errors.New("scene is not empty")
)

// Kind separates free-floating concepts from geographically anchored places.
type Kind string

const (
	KindConcept Kind = "concept"
	KindPlace   Kind = "place"
)

// Meta keys understood by the frame builder. Place meta is summed when the
// same place is added again.
const (
	MetaCount      = "count"
	MetaImportance = "importance"
	MetaCluster    = "cluster"
)

// Node is a vertex of the scene graph. Style is derived when a frame is
// built and is never stored here.
type Node struct {
	ID       string             `json:"id"`
	Label    string             `json:"label"`
	Kind     Kind               `json:"kind"`
	Position geo.Vec3           `json:"position"`
	Geo      *geo.LatLng        `json:"geo,omitempty"`
	Pinned   bool               `json:"pinned"`
	Parent   string             `json:"parent,omitempty"`
	Meta     map[string]float64 `json:"meta,omitempty"`
}

// Edge is a directed, labeled link between two existing nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Snapshot is an immutable view of the graph. Methods never mutate it and
// returned slices are copies.
type Snapshot struct {
	nodes   []Node
	edges   []Edge
	index   map[string]int
	outDeg  map[string]int
	version uint64
}

// Empty is the snapshot every store starts from.
var Empty = &Snapshot{index: map[string]int{}, outDeg: map[string]int{}}

// Version increases by one with every committed mutation.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of nodes.
func (s *Snapshot) Len() int { return len(s.nodes) }

// EdgeCount returns the number of edges.
func (s *Snapshot) EdgeCount() int { return len(s.edges) }

// Nodes returns the nodes in insertion order.
func (s *Snapshot) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Edges returns the edges in insertion order.
func (s *Snapshot) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Node looks up a node by its normalized id.
func (s *Snapshot) Node(id string) (Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return Node{}, false
	}
	return s.nodes[i], true
}

// Has reports whether id exists.
func (s *Snapshot) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

// OutDegree counts edges leaving id.
func (s *Snapshot) OutDegree(id string) int {
	return s.outDeg[id]
}

func (s *Snapshot) roots() int {
	n := 0
	for _, node := range s.nodes {
		if node.Parent == "" {
			n++
		}
	}
	return n
}

// withNode returns a copy of s with n appended.
func (s *Snapshot) withNode(n Node) *Snapshot {
	next := s.copy()
	next.index[n.ID] = len(next.nodes)
	next.nodes = append(next.nodes, n)
	return next
}

// withEdge returns a copy of s with e appended. Both endpoints must exist.
func (s *Snapshot) withEdge(e Edge) (*Snapshot, error) {
	if !s.Has(e.Source) || !s.Has(e.Target) {
		return nil, ErrUnknownNode
	}
	next := s.copy()
	next.edges = append(next.edges, e)
	next.outDeg[e.Source]++
	return next, nil
}

func (s *Snapshot) copy() *Snapshot {
	next := &Snapshot{
		nodes:   make([]Node, len(s.nodes), len(s.nodes)+1),
		edges:   make([]Edge, len(s.edges), len(s.edges)+1),
		index:   make(map[string]int, len(s.index)+1),
		outDeg:  make(map[string]int, len(s.outDeg)+1),
		version: s.version,
	}
	copy(next.nodes, s.nodes)
	copy(next.edges, s.edges)
	for k, v := range s.index {
		next.index[k] = v
	}
	for k, v := range s.outDeg {
		next.outDeg[k] = v
	}
	return next
}
