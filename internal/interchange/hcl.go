package interchange

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/graph"
)

// hclDocument is the authoring form of a graph:
//
//	name = "Morning"
//	node "S" { type = "start" }
//	node "A" {
//	  type    = "agent"
//	  agent   = agents.home
//	  request = "turn on lights"
//	  x       = 300
//	}
//	connection {
//	  from = "S"
//	  to   = "A"
//	}
type hclDocument struct {
	Name        string          `hcl:"name,optional"`
	Nodes       []hclNode       `hcl:"node,block"`
	Connections []hclConnection `hcl:"connection,block"`
}

type hclNode struct {
	ID       string  `hcl:"id,label"`
	Type     string  `hcl:"type"`
	X        float64 `hcl:"x,optional"`
	Y        float64 `hcl:"y,optional"`
	Label    string  `hcl:"label,optional"`
	Agent    string  `hcl:"agent,optional"`
	Request  string  `hcl:"request,optional"`
	Field    string  `hcl:"field,optional"`
	Operator string  `hcl:"operator,optional"`
	Value    string  `hcl:"value,optional"`
}

type hclConnection struct {
	From  string `hcl:"from"`
	To    string `hcl:"to"`
	Label string `hcl:"label,optional"`
}

// evalContext exposes the agent catalog and the operators as agents.<id> and operators.<name>.
func evalContext(agents []domain.Agent) *hcl.EvalContext {
	agentVals := map[string]cty.Value{}
	for _, a := range agents {
		agentVals[a.ID] = cty.StringVal(a.ID)
	}
	opVals := map[string]cty.Value{}
	for _, op := range domain.ConditionOperators() {
		opVals[string(op)] = cty.StringVal(string(op))
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"agents":    cty.ObjectVal(agentVals),
			"operators": cty.ObjectVal(opVals),
		},
	}
}

// DecodeHCL parses an HCL graph. Unlike JSON import it is strict: unknown node types, unknown
// operators and duplicate node ids are errors.
func DecodeHCL(src []byte, filename string) (domain.Document, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return domain.Document{}, fmt.Errorf("parse hcl: %w", diags)
	}
	var root hclDocument
	if diags := gohcl.DecodeBody(file.Body, evalContext(domain.DefaultAgents()), &root); diags.HasErrors() {
		return domain.Document{}, fmt.Errorf("decode hcl: %w", diags)
	}

	doc := domain.Document{
		Name:        strings.TrimSpace(root.Name),
		Nodes:       make([]domain.Node, 0, len(root.Nodes)),
		Connections: make([]domain.Connection, 0, len(root.Connections)),
	}
	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}

	seen := map[string]bool{}
	for _, n := range root.Nodes {
		if seen[n.ID] {
			return domain.Document{}, fmt.Errorf("decode hcl: duplicate node %q", n.ID)
		}
		seen[n.ID] = true
		node, err := n.toNode()
		if err != nil {
			return domain.Document{}, fmt.Errorf("decode hcl node %q: %w", n.ID, err)
		}
		doc.Nodes = append(doc.Nodes, node)
	}

	taken := map[string]bool{}
	for _, c := range root.Connections {
		id := freshID("conn", taken)
		taken[id] = true
		doc.Connections = append(doc.Connections, domain.Connection{ID: id, From: c.From, To: c.To, Label: c.Label})
	}
	return doc, nil
}

func (n hclNode) toNode() (domain.Node, error) {
	t, err := domain.ParseNodeType(n.Type)
	if err != nil {
		return domain.Node{}, err
	}
	data, err := domain.DefaultData(t)
	if err != nil {
		return domain.Node{}, err
	}
	patch := graph.Patch{}
	if n.Label != "" {
		patch.Label = &n.Label
	}
	if n.Agent != "" {
		patch.Agent = &n.Agent
	}
	if n.Request != "" {
		patch.Request = &n.Request
	}
	if n.Field != "" {
		patch.Field = &n.Field
	}
	if n.Operator != "" {
		op, err := domain.ParseConditionOperator(n.Operator)
		if err != nil {
			return domain.Node{}, err
		}
		patch.Operator = &op
	}
	if n.Value != "" {
		patch.Value = &n.Value
	}
	return domain.Node{
		ID:       n.ID,
		Position: domain.Point{X: n.X, Y: n.Y},
		Data:     graph.ApplyPatch(data, patch),
	}, nil
}
