package scene

import (
	"fmt"
	"strings"
	"sync"

	"github.com/portfolio-globe/backend/pkg/geo"
	"github.com/portfolio-globe/backend/pkg/logger"
)

// Store owns the current snapshot. Update is the only way to change it.
type Store struct {
	mu      sync.Mutex
	current *Snapshot
}

// NewStore returns a store holding the empty snapshot.
func NewStore() *Store {
	return &Store{current: Empty}
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update computes the next snapshot from the current one and swaps it in.
// Returning an error or the same snapshot leaves the store untouched.
func (s *Store) Update(fn func(prev *Snapshot) (*Snapshot, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.current)
	if err != nil {
		return err
	}
	if next == nil || next == s.current {
		return nil
	}
	next.version = s.current.version + 1
	s.current = next
	return nil
}

// AddNode adds a concept node placed around parent, or around the origin
// when parent is empty. An existing id is returned unchanged with
// created set to false.
func (s *Store) AddNode(id, parent string) (Node, bool, error) {
	id = NormalizeID(id)
	parent = NormalizeID(parent)
	if id == "" {
		return Node{}, false, ErrEmptyID
	}
	var (
		node    Node
		created bool
	)
	err := s.Update(func(prev *Snapshot) (*Snapshot, error) {
		if existing, ok := prev.Node(id); ok {
			node = existing
			return prev, nil
		}
		n, err := newConcept(prev, id, parent)
		if err != nil {
			return nil, err
		}
		node, created = n, true
		return prev.withNode(n), nil
	})
	return node, created, err
}

func newConcept(prev *Snapshot, id, parent string) (Node, error) {
	n := Node{
		ID:     id,
		Label:  id,
		Kind:   KindConcept,
		Pinned: true,
		Parent: parent,
	}
	if parent == "" {
		n.Position = placeRoot(prev.roots())
		return n, nil
	}
	p, ok := prev.Node(parent)
	if !ok {
		return Node{}, fmt.Errorf("parent %q: %w", parent, ErrUnknownNode)
	}
	n.Position = placeChild(p.Position, prev.OutDegree(parent))
	return n, nil
}

// AddPlace adds a city node at its geographic position on a globe of the
// given radius. Meta values are merged into an existing node.
func (s *Store) AddPlace(city, country string, at geo.LatLng, radius float64, meta map[string]float64) (Node, error) {
	id := PlaceID(city, country)
	if strings.Trim(id, "|") == "" {
		return Node{}, ErrEmptyID
	}
	var node Node
	err := s.Update(func(prev *Snapshot) (*Snapshot, error) {
		if existing, ok := prev.Node(id); ok {
			if len(meta) == 0 {
				node = existing
				return prev, nil
			}
			next := prev.copy()
			merged := make(map[string]float64, len(existing.Meta)+len(meta))
			for k, v := range existing.Meta {
				merged[k] = v
			}
			for k, v := range meta {
				merged[k] += v
			}
			existing.Meta = merged
			next.nodes[next.index[id]] = existing
			node = existing
			return next, nil
		}
		loc := at.Normalize()
		node = Node{
			ID:       id,
			Label:    Transliterate(strings.TrimSpace(city)),
			Kind:     KindPlace,
			Position: geo.ToCartesian(loc.Lat, loc.Lng, radius),
			Geo:      &loc,
			Pinned:   true,
			Meta:     meta,
		}
		return prev.withNode(node), nil
	})
	return node, err
}

// AddEdge appends a directed edge. Both endpoints must already exist.
// Parallel edges with different labels are kept.
func (s *Store) AddEdge(source, target, label string) (Edge, error) {
	e := Edge{Source: NormalizeID(source), Target: NormalizeID(target), Label: strings.TrimSpace(label)}
	err := s.Update(func(prev *Snapshot) (*Snapshot, error) {
		next, err := prev.withEdge(e)
		if err != nil {
			return nil, fmt.Errorf("edge %s -> %s: %w", e.Source, e.Target, err)
		}
		return next, nil
	})
	return e, err
}

// AddPlaceEdge links two place nodes by their composite ids.
func (s *Store) AddPlaceEdge(source, target, label string) (Edge, error) {
	e := Edge{Source: source, Target: target, Label: label}
	err := s.Update(func(prev *Snapshot) (*Snapshot, error) {
		return prev.withEdge(e)
	})
	return e, err
}

// RelationResult is what AddRelation committed.
type RelationResult struct {
	Node    Node `json:"node"`
	Edge    Edge `json:"edge"`
	Created bool `json:"created"`
}

// AddRelation adds target around source if it is missing and then links
// source to target, all in one transition. The target is placed using the
// out-degree of source before the new edge is counted.
func (s *Store) AddRelation(source, target, label string) (RelationResult, error) {
	source, target = NormalizeID(source), NormalizeID(target)
	label = strings.TrimSpace(label)
	if source == "" || target == "" {
		return RelationResult{}, ErrEmptyID
	}

	var res RelationResult
	err := s.Update(func(prev *Snapshot) (*Snapshot, error) {
		if !prev.Has(source) {
			return nil, fmt.Errorf("source %q: %w", source, ErrUnknownNode)
		}
		next := prev
		node, ok := prev.Node(target)
		if !ok {
			n, err := newConcept(prev, target, source)
			if err != nil {
				return nil, err
			}
			node = n
			next = prev.withNode(n)
			res.Created = true
		}
		e := Edge{Source: source, Target: target, Label: label}
		next, err := next.withEdge(e)
		if err != nil {
			return nil, err
		}
		res.Node, res.Edge = node, e
		return next, nil
	})
	if err != nil {
		return RelationResult{}, err
	}
	logger.Debug("[Graph] relation added", "source", source, "target", target, "label", label, "created", res.Created)
	return res, nil
}
