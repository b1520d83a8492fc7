package policy

import (
	"fmt"

	"sphere_canvas/internal/domain"
)

type WarningKind string

const (
	WarningSelfLoop WarningKind = "self_loop"
	WarningCycle    WarningKind = "cycle"
)

type Warning struct {
	Kind WarningKind
	From string
	To   string
}

func (w Warning) Message() string {
	switch w.Kind {
	case WarningSelfLoop:
		return fmt.Sprintf("Connection loops %s back to itself; execution will stop there", w.From)
	default:
		return fmt.Sprintf("Connection %s -> %s closes a cycle; execution stops at the first repeated node", w.From, w.To)
	}
}

type Config struct {
	WarnSelfLoops bool
	WarnCycles    bool
}

// Source is the read side of a graph.
type Source interface {
	Connections() []domain.Connection
}

// Engine reviews connections as they are drawn. It never rejects one; it only reports what the
// compiler will later stop at.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// CheckConnection reviews a connection from -> to that has just been added to g (or is about to be;
// the connection itself is ignored when walking g).
func (e *Engine) CheckConnection(g Source, from, to string) []Warning {
	if from == to {
		if e.cfg.WarnSelfLoops {
			return []Warning{{Kind: WarningSelfLoop, From: from, To: to}}
		}
		return nil
	}
	if e.cfg.WarnCycles && reaches(g.Connections(), to, from) {
		return []Warning{{Kind: WarningCycle, From: from, To: to}}
	}
	return nil
}

// reaches reports whether target is reachable from start.
func reaches(conns []domain.Connection, start, target string) bool {
	adj := make(map[string][]string, len(conns))
	for _, c := range conns {
		adj[c.From] = append(adj[c.From], c.To)
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true
		}
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
