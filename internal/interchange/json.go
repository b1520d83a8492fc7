package interchange

import (
	"encoding/json"
	"errors"
	"fmt"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/graph"
)

const DefaultName = "Untitled Workflow"

var ErrMalformedDocument = errors.New("malformed workflow file")

// Report lists the repairs made while importing a document.
type Report struct {
	Repairs []string
}

func (r *Report) add(format string, args ...any) {
	r.Repairs = append(r.Repairs, fmt.Sprintf(format, args...))
}

func (r Report) Empty() bool {
	return len(r.Repairs) == 0
}

// Export renders doc as indented JSON. Nil slices are written as empty arrays.
func Export(doc domain.Document) ([]byte, error) {
	if doc.Nodes == nil {
		doc.Nodes = []domain.Node{}
	}
	if doc.Connections == nil {
		doc.Connections = []domain.Connection{}
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	return append(out, '\n'), nil
}

// FileName is the export file name for a workflow name.
func FileName(name string) string {
	slug := domain.Slug(name)
	if slug == "" {
		slug = "workflow"
	}
	return slug + ".json"
}

type documentWire struct {
	Name        *string           `json:"name"`
	Nodes       []json.RawMessage `json:"nodes"`
	Connections []json.RawMessage `json:"connections"`
}

// Import decodes a workflow file. Only data that is not a JSON object at all is an error; missing
// or broken parts are repaired and listed in the report.
func Import(data []byte) (domain.Document, Report, error) {
	var w documentWire
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Document{}, Report{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	var report Report
	doc := domain.Document{
		Name:        DefaultName,
		Nodes:       make([]domain.Node, 0, len(w.Nodes)),
		Connections: make([]domain.Connection, 0, len(w.Connections)),
	}
	if w.Name != nil {
		doc.Name = *w.Name
	} else {
		report.add("missing name, using %q", DefaultName)
	}

	nodeIDs := map[string]bool{}
	for i, raw := range w.Nodes {
		n, defaulted, err := domain.DecodeNode(raw)
		if err != nil {
			report.add("dropped node #%d: %v", i, err)
			continue
		}
		switch {
		case n.ID == "":
			n.ID = freshID(string(n.Type()), nodeIDs)
			report.add("node #%d had no id, assigned %s", i, n.ID)
		case nodeIDs[n.ID]:
			old := n.ID
			n.ID = freshID(string(n.Type()), nodeIDs)
			report.add("node #%d reused id %s, assigned %s", i, old, n.ID)
		}
		nodeIDs[n.ID] = true
		for _, d := range defaulted {
			report.add("node %s: %s", n.ID, d)
		}
		doc.Nodes = append(doc.Nodes, n)
	}

	connIDs := map[string]bool{}
	for i, raw := range w.Connections {
		var c domain.Connection
		if err := json.Unmarshal(raw, &c); err != nil {
			report.add("dropped connection #%d: %v", i, err)
			continue
		}
		switch {
		case c.ID == "":
			c.ID = freshID("conn", connIDs)
			report.add("connection #%d had no id, assigned %s", i, c.ID)
		case connIDs[c.ID]:
			old := c.ID
			c.ID = freshID("conn", connIDs)
			report.add("connection #%d reused id %s, assigned %s", i, old, c.ID)
		}
		connIDs[c.ID] = true
		doc.Connections = append(doc.Connections, c)
	}
	return doc, report, nil
}

func freshID(prefix string, taken map[string]bool) string {
	for {
		id := graph.NewID(prefix)
		if !taken[id] {
			return id
		}
	}
}
