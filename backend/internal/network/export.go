package network

import (
	"strconv"
	"strings"
	"time"
)

// Graph is the node/link projection of a network consumed by visualizers.
type Graph struct {
	Nodes    []Node        `json:"nodes"`
	Links    []Link        `json:"links"`
	Metadata GraphMetadata `json:"metadata"`
}

// Node is an exported entity. Importance is rescaled to [0,1].
type Node struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Importance float64 `json:"importance"`
}

// Link is an exported relationship. Date and Value are omitted when empty.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Date   string `json:"date,omitempty"`
	Value  string `json:"value,omitempty"`
}

// GraphMetadata describes an exported network.
type GraphMetadata struct {
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NodeID returns the export id of the entity at position i.
func NodeID(i int) string {
	return "node_" + strconv.Itoa(i)
}

// Export converts a network into its graph form. Node ids follow entity
// order and are recomputed on every call; the network is not modified.
// Relationships whose endpoints do not resolve are dropped.
func Export(n *Network) *Graph {
	g := &Graph{
		Nodes: make([]Node, 0, len(n.Entities)),
		Links: make([]Link, 0, len(n.Relationships)),
		Metadata: GraphMetadata{
			Title:     "Network " + n.ID,
			CreatedAt: n.CreatedAt,
			UpdatedAt: n.UpdatedAt,
		},
	}

	lookup := make(map[string]string, len(n.Entities))
	for i, e := range n.Entities {
		id := NodeID(i)
		g.Nodes = append(g.Nodes, Node{
			ID:         id,
			Name:       e.Name,
			Type:       e.Type,
			Importance: float64(e.Importance) / float64(MaxImportance),
		})
		lookup[strings.ToLower(e.Name)] = id
	}

	for _, rel := range n.Relationships {
		source, ok := lookup[strings.ToLower(rel.Source)]
		if !ok {
			continue
		}
		target, ok := lookup[strings.ToLower(rel.Target)]
		if !ok {
			continue
		}
		g.Links = append(g.Links, Link{
			Source: source,
			Target: target,
			Type:   rel.Type,
			Status: rel.Status,
			Date:   rel.Date,
			Value:  rel.Value,
		})
	}

	return g
}
