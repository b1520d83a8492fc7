package graph

import (
	"strings"

	"github.com/google/uuid"

	"sphere_canvas/internal/domain"
)

type ChangeKind string

const (
	ChangeNodeAdded         ChangeKind = "node_added"
	ChangeNodeUpdated       ChangeKind = "node_updated"
	ChangeNodeMoved         ChangeKind = "node_moved"
	ChangeNodeDeleted       ChangeKind = "node_deleted"
	ChangeNodeRaised        ChangeKind = "node_raised"
	ChangeConnectionAdded   ChangeKind = "connection_added"
	ChangeConnectionDeleted ChangeKind = "connection_deleted"
	ChangeRenamed           ChangeKind = "renamed"
	ChangeReplaced          ChangeKind = "replaced"
)

type Change struct {
	Kind         ChangeKind
	NodeID       string
	ConnectionID string
}

// Patch carries the node data fields to merge. Nil fields are left alone and fields that do not
// apply to the node's type are ignored.
type Patch struct {
	Label    *string
	Agent    *string
	Request  *string
	Field    *string
	Operator *domain.ConditionOperator
	Value    *string
}

type Option func(*Graph)

// WithIDGenerator replaces the uuid based id source. gen receives the id prefix.
func WithIDGenerator(gen func(prefix string) string) Option {
	return func(g *Graph) {
		g.newID = gen
	}
}

// Graph is the editable workflow graph. It is owned by one editor session and is not safe for
// concurrent use. Every mutation is reported to the subscribers after it has been applied.
type Graph struct {
	name        string
	nodes       []domain.Node
	connections []domain.Connection
	newID       func(prefix string) string
	listeners   []func(Change)
}

func New(name string, opts ...Option) *Graph {
	g := &Graph{
		name:  name,
		newID: NewID,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewID returns prefix followed by eight hex characters of a random uuid.
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Subscribe registers fn to be called after every mutation.
func (g *Graph) Subscribe(fn func(Change)) {
	g.listeners = append(g.listeners, fn)
}

func (g *Graph) emit(c Change) {
	for _, fn := range g.listeners {
		fn(c)
	}
}

func (g *Graph) Name() string {
	return g.name
}

func (g *Graph) Rename(name string) {
	if g.name == name {
		return
	}
	g.name = name
	g.emit(Change{Kind: ChangeRenamed})
}

// Nodes returns the nodes in render order. The slice must not be modified.
func (g *Graph) Nodes() []domain.Node {
	return g.nodes
}

// Connections returns the connections. The slice must not be modified.
func (g *Graph) Connections() []domain.Connection {
	return g.connections
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Node(id string) (domain.Node, bool) {
	i := g.nodeIndex(id)
	if i < 0 {
		return domain.Node{}, false
	}
	return g.nodes[i], true
}

func (g *Graph) Connection(id string) (domain.Connection, bool) {
	for _, c := range g.connections {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Connection{}, false
}

// Outgoing lists the connections leaving id in insertion order, including dangling ones.
func (g *Graph) Outgoing(id string) []domain.Connection {
	var out []domain.Connection
	for _, c := range g.connections {
		if c.From == id {
			out = append(out, c)
		}
	}
	return out
}

func (g *Graph) nodeIndex(id string) int {
	for i := range g.nodes {
		if g.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (g *Graph) uniqueID(prefix string, taken func(string) bool) string {
	for {
		id := g.newID(prefix)
		if !taken(id) {
			return id
		}
	}
}

// AddNode appends a node of type t with its default data. It fails only for an unknown type.
func (g *Graph) AddNode(t domain.NodeType, pos domain.Point) (domain.Node, error) {
	data, err := domain.DefaultData(t)
	if err != nil {
		return domain.Node{}, err
	}
	id := g.uniqueID(string(t), func(id string) bool { return g.nodeIndex(id) >= 0 })
	n := domain.Node{ID: id, Position: pos, Data: data}
	g.nodes = append(g.nodes, n)
	g.emit(Change{Kind: ChangeNodeAdded, NodeID: id})
	return n, nil
}

// UpdateNode merges patch into the node's data. It reports false when id is absent.
func (g *Graph) UpdateNode(id string, patch Patch) bool {
	i := g.nodeIndex(id)
	if i < 0 {
		return false
	}
	g.nodes[i].Data = ApplyPatch(g.nodes[i].Data, patch)
	g.emit(Change{Kind: ChangeNodeUpdated, NodeID: id})
	return true
}

// ApplyPatch returns data with the fields of p that apply to its variant merged in.
func ApplyPatch(data domain.NodeData, p Patch) domain.NodeData {
	switch d := data.(type) {
	case domain.StartData:
		if p.Label != nil {
			d.Label = *p.Label
		}
		return d
	case domain.EndData:
		if p.Label != nil {
			d.Label = *p.Label
		}
		return d
	case domain.BranchData:
		if p.Label != nil {
			d.Label = *p.Label
		}
		return d
	case domain.AgentData:
		if p.Agent != nil {
			d.Agent = *p.Agent
		}
		if p.Request != nil {
			d.Request = *p.Request
		}
		return d
	case domain.ConditionData:
		if p.Field != nil {
			d.Condition.Field = *p.Field
		}
		if p.Operator != nil {
			d.Condition.Operator = *p.Operator
		}
		if p.Value != nil {
			d.Condition.Value = *p.Value
		}
		return d
	default:
		return data
	}
}

func (g *Graph) MoveNode(id string, pos domain.Point) bool {
	i := g.nodeIndex(id)
	if i < 0 {
		return false
	}
	if g.nodes[i].Position == pos {
		return true
	}
	g.nodes[i].Position = pos
	g.emit(Change{Kind: ChangeNodeMoved, NodeID: id})
	return true
}

// BringToFront moves the node to the end of the render order.
func (g *Graph) BringToFront(id string) bool {
	i := g.nodeIndex(id)
	if i < 0 {
		return false
	}
	if i == len(g.nodes)-1 {
		return true
	}
	n := g.nodes[i]
	g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
	g.nodes = append(g.nodes, n)
	g.emit(Change{Kind: ChangeNodeRaised, NodeID: id})
	return true
}

// DeleteNode removes the node and every connection that starts or ends at it. It returns the
// removed connections.
func (g *Graph) DeleteNode(id string) ([]domain.Connection, bool) {
	i := g.nodeIndex(id)
	if i < 0 {
		return nil, false
	}
	g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)

	var removed []domain.Connection
	kept := g.connections[:0]
	for _, c := range g.connections {
		if c.From == id || c.To == id {
			removed = append(removed, c)
			continue
		}
		kept = append(kept, c)
	}
	g.connections = kept
	for _, c := range removed {
		g.emit(Change{Kind: ChangeConnectionDeleted, ConnectionID: c.ID})
	}
	g.emit(Change{Kind: ChangeNodeDeleted, NodeID: id})
	return removed, true
}

// AddConnection always succeeds. Self loops and duplicates are allowed.
func (g *Graph) AddConnection(from, to, label string) domain.Connection {
	id := g.uniqueID("conn", func(id string) bool {
		_, ok := g.Connection(id)
		return ok
	})
	c := domain.Connection{ID: id, From: from, To: to, Label: label}
	g.connections = append(g.connections, c)
	g.emit(Change{Kind: ChangeConnectionAdded, ConnectionID: id})
	return c
}

func (g *Graph) DeleteConnection(id string) bool {
	for i, c := range g.connections {
		if c.ID == id {
			g.connections = append(g.connections[:i], g.connections[i+1:]...)
			g.emit(Change{Kind: ChangeConnectionDeleted, ConnectionID: id})
			return true
		}
	}
	return false
}

// Replace swaps in doc wholesale.
func (g *Graph) Replace(doc domain.Document) {
	g.name = doc.Name
	g.nodes = append([]domain.Node(nil), doc.Nodes...)
	g.connections = append([]domain.Connection(nil), doc.Connections...)
	g.emit(Change{Kind: ChangeReplaced})
}

// Clear empties the graph and keeps its name.
func (g *Graph) Clear() {
	g.Replace(domain.Document{Name: g.name})
}

// Document returns a copy of the graph in interchange form. Slices are never nil.
func (g *Graph) Document() domain.Document {
	doc := domain.Document{
		Name:        g.name,
		Nodes:       make([]domain.Node, len(g.nodes)),
		Connections: make([]domain.Connection, len(g.connections)),
	}
	copy(doc.Nodes, g.nodes)
	copy(doc.Connections, g.connections)
	return doc
}
