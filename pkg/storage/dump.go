package storage

import (
	"encoding/json"
	"fmt"
	"io"
)

// GraphDump is the JSON export shape: all nodes followed by all
// relationships.
type GraphDump struct {
	Nodes         []*Node `json:"nodes"`
	Relationships []*Edge `json:"relationships"`
}

// Dump writes the engine's full contents as JSON.
func Dump(engine Engine, w io.Writer) error {
	nodes, err := engine.GetAllNodes()
	if err != nil {
		return fmt.Errorf("dump nodes: %w", err)
	}
	edges, err := engine.GetAllEdges()
	if err != nil {
		return fmt.Errorf("dump edges: %w", err)
	}
	sortNodes(nodes)
	sortEdges(edges)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&GraphDump{Nodes: nodes, Relationships: edges})
}

// Load reads a JSON dump into the engine. Nodes are created before
// relationships so endpoint checks pass.
func Load(engine Engine, r io.Reader) error {
	var dump GraphDump
	if err := json.NewDecoder(r).Decode(&dump); err != nil {
		return fmt.Errorf("decode dump: %w", err)
	}
	for _, n := range dump.Nodes {
		if n.Properties == nil {
			n.Properties = make(map[string]any)
		}
		normalizeProperties(n.Properties)
		if err := engine.CreateNode(n); err != nil {
			return fmt.Errorf("load node %s: %w", n.ID, err)
		}
	}
	for _, e := range dump.Relationships {
		if e.Properties == nil {
			e.Properties = make(map[string]any)
		}
		normalizeProperties(e.Properties)
		if err := engine.CreateEdge(e); err != nil {
			return fmt.Errorf("load relationship %s: %w", e.ID, err)
		}
	}
	return nil
}

// normalizeProperties rewrites JSON numbers: whole-valued float64 become
// int64 so reloaded properties compare equal to created ones.
func normalizeProperties(props map[string]any) {
	for k, v := range props {
		if f, ok := v.(float64); ok && f == float64(int64(f)) {
			props[k] = int64(f)
		}
	}
}
