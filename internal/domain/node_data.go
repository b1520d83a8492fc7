package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrUnknownOperator = errors.New("unknown condition operator")
)

// NodeData is the payload of a node. Each node type has exactly one variant and the variant
// determines the node type.
type NodeData interface {
	nodeType() NodeType
}

type StartData struct {
	Label string `json:"label"`
}

type EndData struct {
	Label string `json:"label"`
}

type BranchData struct {
	Label string `json:"label"`
}

type AgentData struct {
	Agent   string `json:"agent"`
	Request string `json:"request"`
}

type Condition struct {
	Field    string            `json:"field"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
}

type ConditionData struct {
	Condition Condition `json:"condition"`
}

func (StartData) nodeType() NodeType     { return NodeTypeStart }
func (EndData) nodeType() NodeType       { return NodeTypeEnd }
func (BranchData) nodeType() NodeType    { return NodeTypeBranch }
func (AgentData) nodeType() NodeType     { return NodeTypeAgent }
func (ConditionData) nodeType() NodeType { return NodeTypeCondition }

func ParseNodeType(v string) (NodeType, error) {
	t := NodeType(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range NodeTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownNodeType, v)
}

func ParseConditionOperator(v string) (ConditionOperator, error) {
	op := ConditionOperator(strings.ToLower(strings.TrimSpace(v)))
	for _, known := range ConditionOperators() {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperator, v)
}

// DefaultData returns the payload a freshly added node of type t starts with.
func DefaultData(t NodeType) (NodeData, error) {
	switch t {
	case NodeTypeStart:
		return StartData{Label: "Start"}, nil
	case NodeTypeEnd:
		return EndData{Label: "End"}, nil
	case NodeTypeBranch:
		return BranchData{Label: "Branch"}, nil
	case NodeTypeAgent:
		return AgentData{Agent: "home"}, nil
	case NodeTypeCondition:
		return ConditionData{Condition: Condition{Field: "result", Operator: OperatorContains}}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
}

// DisplayLabel is the text a node is drawn with.
func DisplayLabel(n Node) string {
	switch d := n.Data.(type) {
	case StartData:
		return d.Label
	case EndData:
		return d.Label
	case BranchData:
		return d.Label
	case AgentData:
		if d.Request == "" {
			return d.Agent
		}
		return d.Agent + ": " + d.Request
	case ConditionData:
		c := d.Condition
		return strings.TrimSpace(fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value))
	default:
		return string(n.Type())
	}
}

type nodeWire struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Position *Point          `json:"position,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.Data == nil {
		return nil, fmt.Errorf("marshal node %s: missing data", n.ID)
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal node %s data: %w", n.ID, err)
	}
	pos := n.Position
	return json.Marshal(nodeWire{ID: n.ID, Type: n.Type(), Position: &pos, Data: data})
}

// UnmarshalJSON fails only on an unknown type. Missing position decodes to the origin and missing
// data fields keep the type defaults.
func (n *Node) UnmarshalJSON(raw []byte) error {
	decoded, _, err := DecodeNode(raw)
	if err != nil {
		return err
	}
	*n = decoded
	return nil
}

// DecodeNode decodes a node the way UnmarshalJSON does and also lists every default it filled in.
func DecodeNode(raw []byte) (Node, []string, error) {
	var w nodeWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return Node{}, nil, err
	}
	t, err := ParseNodeType(string(w.Type))
	if err != nil {
		return Node{}, nil, err
	}
	data, defaulted, err := DecodeNodeData(t, w.Data)
	if err != nil {
		return Node{}, nil, fmt.Errorf("decode node %s data: %w", w.ID, err)
	}
	n := Node{ID: w.ID, Data: data}
	if w.Position != nil {
		n.Position = *w.Position
	} else {
		defaulted = append([]string{"no position, placed at (0,0)"}, defaulted...)
	}
	return n, defaulted, nil
}

type dataWire struct {
	Label     *string        `json:"label"`
	Agent     *string        `json:"agent"`
	Request   *string        `json:"request"`
	Condition *conditionWire `json:"condition"`
}

type conditionWire struct {
	Field    *string `json:"field"`
	Operator *string `json:"operator"`
	Value    *string `json:"value"`
}

// DecodeNodeData overlays whatever fields raw carries onto the defaults for t and names each
// field that kept its default. An operator outside the known set falls back to the default
// operator.
func DecodeNodeData(t NodeType, raw json.RawMessage) (NodeData, []string, error) {
	data, err := DefaultData(t)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return data, []string{"no data, using defaults"}, nil
	}
	var w dataWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, nil, err
	}

	var defaulted []string
	str := func(dst *string, v *string, name string) {
		if v == nil {
			defaulted = append(defaulted, fmt.Sprintf("no %s, using %q", name, *dst))
			return
		}
		*dst = *v
	}
	switch d := data.(type) {
	case StartData:
		str(&d.Label, w.Label, "label")
		return d, defaulted, nil
	case EndData:
		str(&d.Label, w.Label, "label")
		return d, defaulted, nil
	case BranchData:
		str(&d.Label, w.Label, "label")
		return d, defaulted, nil
	case AgentData:
		str(&d.Agent, w.Agent, "agent")
		str(&d.Request, w.Request, "request")
		return d, defaulted, nil
	case ConditionData:
		c := w.Condition
		if c == nil {
			return d, append(defaulted, "no condition, using defaults"), nil
		}
		str(&d.Condition.Field, c.Field, "condition field")
		switch {
		case c.Operator == nil:
			defaulted = append(defaulted, fmt.Sprintf("no condition operator, using %q", d.Condition.Operator))
		default:
			op, err := ParseConditionOperator(*c.Operator)
			if err != nil {
				defaulted = append(defaulted, fmt.Sprintf("unknown condition operator %q, using %q", *c.Operator, d.Condition.Operator))
			} else {
				d.Condition.Operator = op
			}
		}
		str(&d.Condition.Value, c.Value, "condition value")
		return d, defaulted, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
}
