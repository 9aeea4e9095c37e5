package scene

import (
	"sort"

	"gonum.org/v1/gonum/graph/multi"
	"gonum.org/v1/gonum/graph/topo"
)

// Clusters returns the weakly connected components of the snapshot. Members
// and components are ordered by insertion.
func (s *Snapshot) Clusters() [][]string {
	g := multi.NewUndirectedGraph()
	for i := range s.nodes {
		g.AddNode(multi.Node(i))
	}
	for _, e := range s.edges {
		from, to := s.index[e.Source], s.index[e.Target]
		if from == to {
			continue
		}
		g.SetLine(g.NewLine(multi.Node(from), multi.Node(to)))
	}

	components := topo.ConnectedComponents(g)
	out := make([][]int, 0, len(components))
	for _, c := range components {
		ids := make([]int, 0, len(c))
		for _, n := range c {
			ids = append(ids, int(n.ID()))
		}
		sort.Ints(ids)
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })

	clusters := make([][]string, len(out))
	for i, c := range out {
		clusters[i] = make([]string, len(c))
		for j, idx := range c {
			clusters[i][j] = s.nodes[idx].ID
		}
	}
	return clusters
}
