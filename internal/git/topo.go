package git

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// topoOrder sorts commits so that every parent precedes its children.
// Unrelated commits are ordered deterministically by committer time, then
// hash. Parents outside the set are ignored.
func topoOrder(commits []Commit) ([]Commit, error) {
	g := simple.NewDirectedGraph()
	index := make(map[string]int64, len(commits))
	for i, c := range commits {
		if _, dup := index[c.Hash]; dup {
			return nil, fmt.Errorf("duplicate commit %s", c.Hash)
		}
		index[c.Hash] = int64(i)
		g.AddNode(simple.Node(i))
	}
	for i, c := range commits {
		for _, p := range c.Parents {
			pid, ok := index[p]
			if !ok || pid == int64(i) {
				continue
			}
			if g.HasEdgeFromTo(pid, int64(i)) {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(pid), simple.Node(i)))
		}
	}

	less := func(a, b Commit) bool {
		ta, tb := a.Committer.When, b.Committer.When
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a.Hash < b.Hash
	}
	sorted, err := topo.SortStabilized(g, func(nodes []graph.Node) {
		sort.SliceStable(nodes, func(i, j int) bool {
			return less(commits[nodes[i].ID()], commits[nodes[j].ID()])
		})
	})
	if err != nil {
		return nil, fmt.Errorf("order commits: %w", err)
	}

	ordered := make([]Commit, 0, len(sorted))
	for _, n := range sorted {
		ordered = append(ordered, commits[n.ID()])
	}
	return ordered, nil
}
