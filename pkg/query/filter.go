// Package query derives read-only views of the article graph.
package query

import (
	"slices"
	"strings"

	"github.com/kittclouds/wikigraph/pkg/graph"
)

// View is a filtered subgraph. Every edge has both endpoints in Nodes.
type View struct {
	Nodes []graph.Node `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

// Clone returns a deep copy of the view.
func (v View) Clone() View {
	out := View{
		Nodes: make([]graph.Node, len(v.Nodes)),
		Edges: slices.Clone(v.Edges),
	}
	for i, n := range v.Nodes {
		out.Nodes[i] = n.Clone()
	}
	if out.Edges == nil {
		out.Edges = []graph.Edge{}
	}
	return out
}

// Filter keeps the nodes whose title contains term (case-insensitive) and the
// edges whose endpoints were both kept. The term is matched as is, spaces
// included. An empty term keeps every node, but
// edges to unknown ids are still dropped. The inputs are not modified.
func Filter(nodes []graph.Node, edges []graph.Edge, term string) View {
	needle := strings.ToLower(term)

	kept := make(map[string]bool, len(nodes))
	view := View{
		Nodes: make([]graph.Node, 0, len(nodes)),
		Edges: make([]graph.Edge, 0, len(edges)),
	}
	for _, n := range nodes {
		if kept[n.ID] {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(n.Title), needle) {
			continue
		}
		kept[n.ID] = true
		view.Nodes = append(view.Nodes, n)
	}
	for _, e := range edges {
		if kept[e.Source] && kept[e.Target] {
			view.Edges = append(view.Edges, e)
		}
	}
	return view
}

// Matches reports whether a single title passes the filter.
func Matches(title, term string) bool {
	needle := strings.ToLower(term)
	return needle == "" || strings.Contains(strings.ToLower(title), needle)
}
