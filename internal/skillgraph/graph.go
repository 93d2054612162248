// Package skillgraph builds the skills co-occurrence graph shown on an
// organization's skills page: one node per skill, one edge per pair of
// skills listed together on a profile.
package skillgraph

import (
	"sort"
	"strings"

	"github.com/aboutme/cards/internal/profile"
)

type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Build counts skills across items. Node ids are lower-cased skills and
// labels keep the first casing seen. A profile listing a skill twice counts
// once.
func Build(items []profile.ListItem) Graph {
	nodes := map[string]*Node{}
	edges := map[[2]string]int{}

	for _, it := range items {
		var ids []string
		seen := map[string]struct{}{}
		for _, s := range it.Profile.Skills() {
			label := strings.TrimSpace(s)
			if label == "" {
				continue
			}
			id := strings.ToLower(label)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)

			n, ok := nodes[id]
			if !ok {
				n = &Node{ID: id, Label: label}
				nodes[id] = n
			}
			n.Count++
		}

		sort.Strings(ids)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				edges[[2]string{ids[i], ids[j]}]++
			}
		}
	}

	g := Graph{Nodes: make([]Node, 0, len(nodes)), Edges: make([]Edge, 0, len(edges))}
	for _, n := range nodes {
		g.Nodes = append(g.Nodes, *n)
	}
	for k, w := range edges {
		g.Edges = append(g.Edges, Edge{Source: k[0], Target: k[1], Weight: w})
	}
	g.sort()
	return g
}

// Top returns the subgraph of the n most frequent skills. n <= 0 returns g.
func (g Graph) Top(n int) Graph {
	if n <= 0 || n >= len(g.Nodes) {
		return g
	}
	keep := make(map[string]struct{}, n)
	out := Graph{Nodes: make([]Node, 0, n), Edges: []Edge{}}
	for _, node := range g.Nodes[:n] {
		keep[node.ID] = struct{}{}
		out.Nodes = append(out.Nodes, node)
	}
	for _, e := range g.Edges {
		_, src := keep[e.Source]
		_, dst := keep[e.Target]
		if src && dst {
			out.Edges = append(out.Edges, e)
		}
	}
	out.sort()
	return out
}

func (g Graph) sort() {
	sort.Slice(g.Nodes, func(i, j int) bool {
		if g.Nodes[i].Count != g.Nodes[j].Count {
			return g.Nodes[i].Count > g.Nodes[j].Count
		}
		return g.Nodes[i].ID < g.Nodes[j].ID
	})
	sort.Slice(g.Edges, func(i, j int) bool {
		a, b := g.Edges[i], g.Edges[j]
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Target < b.Target
	})
}
