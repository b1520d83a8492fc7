package compiler

import (
	"errors"
	"fmt"

	"sphere_canvas/internal/domain"
)

var (
	ErrEmptyGraph         = errors.New("workflow is empty: add a start node and at least one agent task")
	ErrNoStartNode        = errors.New("workflow needs a start node")
	ErrMultipleStartNodes = errors.New("workflow must have exactly one start node")
	ErrNoAgentTask        = errors.New("workflow needs at least one agent task")
	ErrStartNotConnected  = errors.New("start node is not connected to anything")
	ErrNoReachableTask    = errors.New("no agent task is reachable from the start node")
)

// Source is the read side of a graph.
type Source interface {
	Name() string
	Nodes() []domain.Node
	Connections() []domain.Connection
}

type NoteKind string

const (
	// NoteBranchNotEvaluated marks a condition or branch node whose condition was not evaluated;
	// only its first outgoing connection was followed.
	NoteBranchNotEvaluated NoteKind = "branch_not_evaluated"
	// NoteCycle marks the node at which the walk stopped because it had been visited before.
	NoteCycle NoteKind = "cycle"
)

type Note struct {
	Kind     NoteKind
	NodeID   string
	Followed string
	Ignored  []string
}

func (n Note) String() string {
	switch n.Kind {
	case NoteBranchNotEvaluated:
		return fmt.Sprintf("%s: condition not evaluated, followed %s and ignored %d other connection(s)", n.NodeID, n.Followed, len(n.Ignored))
	case NoteCycle:
		return fmt.Sprintf("%s: cycle detected, walk stopped", n.NodeID)
	default:
		return n.NodeID
	}
}

type Compilation struct {
	Workflow domain.Workflow
	// Walk is every node visited in order, starting with the start node.
	Walk  []string
	Notes []Note
}

type index struct {
	nodes    map[string]domain.Node
	outgoing map[string][]domain.Connection
}

// newIndex keeps connections whose endpoints both exist. Dangling connections are dropped.
func newIndex(src Source) index {
	idx := index{
		nodes:    make(map[string]domain.Node, len(src.Nodes())),
		outgoing: map[string][]domain.Connection{},
	}
	for _, n := range src.Nodes() {
		idx.nodes[n.ID] = n
	}
	for _, c := range src.Connections() {
		if _, ok := idx.nodes[c.From]; !ok {
			continue
		}
		if _, ok := idx.nodes[c.To]; !ok {
			continue
		}
		idx.outgoing[c.From] = append(idx.outgoing[c.From], c)
	}
	return idx
}

// Validate checks the structural preconditions in order and returns the first that fails.
func Validate(src Source) error {
	_, err := validate(src, newIndex(src))
	return err
}

func validate(src Source, idx index) (domain.Node, error) {
	nodes := src.Nodes()
	if len(nodes) == 0 {
		return domain.Node{}, ErrEmptyGraph
	}
	var start domain.Node
	starts, agents := 0, 0
	for _, n := range nodes {
		switch n.Type() {
		case domain.NodeTypeStart:
			starts++
			start = n
		case domain.NodeTypeAgent:
			agents++
		}
	}
	switch {
	case starts == 0:
		return domain.Node{}, ErrNoStartNode
	case starts > 1:
		return domain.Node{}, ErrMultipleStartNodes
	}
	if agents == 0 {
		return domain.Node{}, ErrNoAgentTask
	}
	if len(idx.outgoing[start.ID]) == 0 {
		return domain.Node{}, ErrStartNotConnected
	}
	return start, nil
}

// Compile validates src and linearises it into a task chain. From the target of the start node's
// first outgoing connection it follows the first outgoing connection of every node, recording
// agent nodes as tasks, until a node has no outgoing connection, an end node is reached, or a node
// repeats.
func Compile(src Source) (Compilation, error) {
	idx := newIndex(src)
	start, err := validate(src, idx)
	if err != nil {
		return Compilation{}, err
	}

	out := Compilation{Walk: []string{start.ID}}
	visited := map[string]bool{start.ID: true}
	var tasks []domain.CompiledTask

	current := idx.outgoing[start.ID][0].To
	for current != "" {
		if visited[current] {
			out.Notes = append(out.Notes, Note{Kind: NoteCycle, NodeID: current})
			break
		}
		visited[current] = true
		out.Walk = append(out.Walk, current)

		node := idx.nodes[current]
		next := idx.outgoing[current]

		switch d := node.Data.(type) {
		case domain.EndData:
			next = nil
		case domain.AgentData:
			task := domain.CompiledTask{
				TaskID:     node.ID,
				AgentName:  d.Agent,
				Request:    d.Request,
				RetryCount: domain.DefaultRetryCount,
				OnFailure:  domain.OnFailureStop,
			}
			if len(tasks) > 0 {
				id := task.TaskID
				tasks[len(tasks)-1].NextTaskID = &id
			}
			tasks = append(tasks, task)
		case domain.ConditionData, domain.BranchData:
			if len(next) > 1 {
				note := Note{Kind: NoteBranchNotEvaluated, NodeID: node.ID, Followed: next[0].ID}
				for _, c := range next[1:] {
					note.Ignored = append(note.Ignored, c.ID)
				}
				out.Notes = append(out.Notes, note)
			}
		case domain.StartData:
		}

		if len(next) == 0 {
			break
		}
		current = next[0].To
	}

	if len(tasks) == 0 {
		return Compilation{}, ErrNoReachableTask
	}

	out.Workflow = domain.Workflow{
		WorkflowID:  domain.Slug(src.Name()),
		Name:        src.Name(),
		Description: fmt.Sprintf("Visual workflow with %d task(s)", len(tasks)),
		Tasks:       tasks,
		StartTaskID: tasks[0].TaskID,
	}
	return out, nil
}

// IsValidation reports whether err is one of the structural validation errors.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrEmptyGraph, ErrNoStartNode, ErrMultipleStartNodes, ErrNoAgentTask, ErrStartNotConnected, ErrNoReachableTask,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type documentSource struct {
	doc domain.Document
}

func (s documentSource) Name() string                     { return s.doc.Name }
func (s documentSource) Nodes() []domain.Node             { return s.doc.Nodes }
func (s documentSource) Connections() []domain.Connection { return s.doc.Connections }

// FromDocument adapts an interchange document for Validate and Compile.
func FromDocument(doc domain.Document) Source {
	return documentSource{doc: doc}
}
