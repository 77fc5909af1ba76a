package validate

import (
	"sort"

	"github.com/jingkaihe/skilldoctor/pkg/record"
)

// Edge is one depends_on edge between two slugs.
type Edge struct {
	From string
	To   string
}

// node colors for the cycle walk.
const (
	colorWhite = iota // unvisited
	colorGrey         // on the current walk
	colorBlack        // fully explored
)

// dependencyGraph builds the adjacency map over the given records: nodes
// are parsed slugs, edges are depends_on entries pointing at other nodes.
// Dangling dependencies are someone else's finding and carry no edge.
func dependencyGraph(records []*record.Record) map[string][]string {
	nodes := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Header != nil && rec.Header.Slug != "" {
			nodes[rec.Header.Slug] = true
		}
	}

	adj := make(map[string][]string, len(nodes))
	for slug := range nodes {
		adj[slug] = nil
	}
	for _, rec := range records {
		if rec.Header == nil || rec.Header.Slug == "" || rec.Config == nil {
			continue
		}
		slug := rec.Header.Slug
		for _, dep := range rec.Config.DependsOn {
			if nodes[dep] {
				adj[slug] = append(adj[slug], dep)
			}
		}
	}
	for slug := range adj {
		sort.Strings(adj[slug])
	}
	return adj
}

// detectCycles three-colors the graph. An edge into a grey node is the
// closing edge of a cycle; it is recorded without descending further, and
// the walk resumes from the remaining white roots, so every independent
// cycle surfaces in a single pass.
func detectCycles(adj map[string][]string) []Edge {
	color := make(map[string]int, len(adj))
	var closing []Edge

	var visit func(node string)
	visit = func(node string) {
		color[node] = colorGrey
		for _, dep := range adj[node] {
			switch color[dep] {
			case colorGrey:
				closing = append(closing, Edge{From: node, To: dep})
			case colorWhite:
				visit(dep)
			}
		}
		color[node] = colorBlack
	}

	roots := make([]string, 0, len(adj))
	for node := range adj {
		roots = append(roots, node)
	}
	sort.Strings(roots)

	for _, node := range roots {
		if color[node] == colorWhite {
			visit(node)
		}
	}
	return closing
}
