package scene

import (
	"fmt"
	"math/rand/v2"

	"github.com/portfolio-globe/backend/pkg/geo"
)

const clusterSpread = 300.0

var demoRelations = []string{"related", "similar", "part-of", "leads-to"}

// BulkGenerate fills an empty store with n nodes split round-robin into
// clusterCount clusters. Each node links to one to three other members of
// its own cluster. It refuses to run on a non-empty store.
func (s *Store) BulkGenerate(n, clusterCount int, rng *rand.Rand) error {
	if n <= 0 {
		return nil
	}
	if clusterCount <= 0 {
		clusterCount = 1
	}
	if clusterCount > n {
		clusterCount = n
	}

	return s.Update(func(prev *Snapshot) (*Snapshot, error) {
		if prev.Len() != 0 {
			return nil, ErrNotEmpty
		}

		next := Empty.copy()
		members := make([][]string, clusterCount)
		for i := 0; i < n; i++ {
			c := i % clusterCount
			center := SpiralOffset(c, clusterSpread)
			if clusterCount == 1 {
				center = geo.Vec3{}
			}
			id := fmt.Sprintf("node-%d", i)
			node := Node{
				ID:       id,
				Label:    id,
				Kind:     KindConcept,
				Position: center.Add(SpiralOffset(len(members[c]), childRadius)),
				Meta:     map[string]float64{MetaCluster: float64(c)},
			}
			next.index[id] = len(next.nodes)
			next.nodes = append(next.nodes, node)
			members[c] = append(members[c], id)
		}

		for _, group := range members {
			if len(group) < 2 {
				continue
			}
			for i, source := range group {
				links := 1 + rng.IntN(3)
				if links > len(group)-1 {
					links = len(group) - 1
				}
				// offsets in [1, len-1] are distinct and never point back at i
				start := rng.IntN(len(group) - 1)
				for k := 0; k < links; k++ {
					off := 1 + (start+k)%(len(group)-1)
					j := (i + off) % len(group)
					next.edges = append(next.edges, Edge{
						Source: source,
						Target: group[j],
						Label:  demoRelations[rng.IntN(len(demoRelations))],
					})
					next.outDeg[source]++
				}
			}
		}
		return next, nil
	})
}
