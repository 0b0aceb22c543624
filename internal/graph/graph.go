// Package graph builds the undirected similarity graph over one
// entity-type partition and partitions it into clusters of mutually
// similar entities.
package graph

import (
	"sort"

	"osint-resolver/internal/similarity"
	"osint-resolver/pkg/types"
)

// Edge is one qualifying similarity relationship between two entities.
type Edge struct {
	Entity1ID string  `json:"entity_1_id"`
	Entity2ID string  `json:"entity_2_id"`
	Weight    float64 `json:"weight"`
}

// Graph is the threshold similarity graph for one entity-type partition.
// Nodes are kept in sorted id order so traversal is deterministic.
type Graph struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Builder constructs threshold graphs from entity partitions.
type Builder struct {
	scorer    *similarity.Scorer
	threshold float64
}

// NewBuilder creates a graph builder. An edge is added only when the
// pairwise similarity reaches the strategy's threshold.
func NewBuilder(scorer *similarity.Scorer, threshold float64) *Builder {
	return &Builder{scorer: scorer, threshold: threshold}
}

// Build evaluates every unordered pair in the partition and returns the
// threshold graph. All entities must share one entity type; graph
// construction does not depend on input order.
func (b *Builder) Build(entities []*types.Entity) *Graph {
	byID := make(map[string]*types.Entity, len(entities))
	nodes := make([]string, 0, len(entities))
	for _, e := range entities {
		if _, seen := byID[e.ID]; seen {
			continue
		}
		byID[e.ID] = e
		nodes = append(nodes, e.ID)
	}
	sort.Strings(nodes)

	g := &Graph{Nodes: nodes, Edges: []Edge{}}
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			weight := b.scorer.Score(byID[nodes[i]], byID[nodes[j]])
			if weight >= b.threshold {
				g.Edges = append(g.Edges, Edge{
					Entity1ID: nodes[i],
					Entity2ID: nodes[j],
					Weight:    weight,
				})
			}
		}
	}
	return g
}

// Clusters partitions the graph into connected components using
// union-find. Every node lands in exactly one cluster; nodes with no
// qualifying edge form singleton clusters. Clusters and their members are
// returned in sorted id order.
func (g *Graph) Clusters() [][]string {
	uf := newUnionFind(g.Nodes)
	for _, edge := range g.Edges {
		uf.union(edge.Entity1ID, edge.Entity2ID)
	}

	groups := make(map[string][]string)
	for _, node := range g.Nodes {
		root := uf.find(node)
		groups[root] = append(groups[root], node)
	}

	clusters := make([][]string, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		clusters = append(clusters, members)
	}
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i][0] < clusters[j][0]
	})
	return clusters
}

// EdgesWithin returns the edges connecting members of the given cluster.
func (g *Graph) EdgesWithin(members []string) []Edge {
	inCluster := make(map[string]bool, len(members))
	for _, id := range members {
		inCluster[id] = true
	}
	edges := make([]Edge, 0)
	for _, edge := range g.Edges {
		if inCluster[edge.Entity1ID] && inCluster[edge.Entity2ID] {
			edges = append(edges, edge)
		}
	}
	return edges
}

// unionFind is a path-compressing disjoint-set over entity ids.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind(nodes []string) *unionFind {
	uf := &unionFind{
		parent: make(map[string]string, len(nodes)),
		rank:   make(map[string]int, len(nodes)),
	}
	for _, node := range nodes {
		uf.parent[node] = node
	}
	return uf
}

func (uf *unionFind) find(node string) string {
	root := node
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for uf.parent[node] != root {
		uf.parent[node], node = root, uf.parent[node]
	}
	return root
}

func (uf *unionFind) union(node1, node2 string) {
	root1 := uf.find(node1)
	root2 := uf.find(node2)
	if root1 == root2 {
		return
	}
	if uf.rank[root1] < uf.rank[root2] {
		root1, root2 = root2, root1
	}
	uf.parent[root2] = root1
	if uf.rank[root1] == uf.rank[root2] {
		uf.rank[root1]++
	}
}
