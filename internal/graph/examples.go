package graph

import (
	"sort"
	"strings"

	"sphere_canvas/internal/domain"
)

type exampleBuilder struct {
	doc domain.Document
	x   float64
}

func newExample(name string) *exampleBuilder {
	return &exampleBuilder{doc: domain.Document{Name: name}, x: 80}
}

func (b *exampleBuilder) node(id string, y float64, data domain.NodeData) *exampleBuilder {
	b.doc.Nodes = append(b.doc.Nodes, domain.Node{ID: id, Position: domain.Point{X: b.x, Y: y}, Data: data})
	b.x += 240
	return b
}

func (b *exampleBuilder) at(x float64) *exampleBuilder {
	b.x = x
	return b
}

func (b *exampleBuilder) agent(id, agent, request string) *exampleBuilder {
	return b.node(id, 160, domain.AgentData{Agent: agent, Request: request})
}

func (b *exampleBuilder) connect(from, to, label string) *exampleBuilder {
	b.doc.Connections = append(b.doc.Connections, domain.Connection{
		ID:    "conn_" + from + "_" + to,
		From:  from,
		To:    to,
		Label: label,
	})
	return b
}

func (b *exampleBuilder) chain(ids ...string) *exampleBuilder {
	for i := 0; i+1 < len(ids); i++ {
		b.connect(ids[i], ids[i+1], "")
	}
	return b
}

var examples = map[string]func() domain.Document{
	"morning_routine": func() domain.Document {
		return newExample("Morning Routine").
			node("start", 160, domain.StartData{Label: "Start"}).
			agent("wake_home", "home", "Good morning! Turn on all the lights and set temperature to 72 degrees").
			agent("coffee", "home", "Start the coffee maker").
			agent("check_calendar", "calendar", "What are my important meetings today?").
			agent("financial_check", "finance", "What's my financial summary for today?").
			node("end", 160, domain.EndData{Label: "End"}).
			chain("start", "wake_home", "coffee", "check_calendar", "financial_check", "end").
			doc
	},
	"evening_winddown": func() domain.Document {
		return newExample("Evening Winddown").
			node("start", 160, domain.StartData{Label: "Start"}).
			agent("lock_secure", "home", "Lock all doors and close the garage for the night").
			agent("adjust_lighting", "home", "Dim all lights to 40% brightness for a relaxing evening").
			agent("day_review", "calendar", "Show me what I accomplished today from my calendar").
			agent("financial_review", "finance", "How much did I spend today? Am I on budget?").
			node("end", 160, domain.EndData{Label: "End"}).
			chain("start", "lock_secure", "adjust_lighting", "day_review", "financial_review", "end").
			doc
	},
	"budget_check": func() domain.Document {
		return newExample("Budget Check").
			node("start", 200, domain.StartData{Label: "Start"}).
			node("spending", 200, domain.AgentData{Agent: "finance", Request: "How much did I spend this week?"}).
			node("over_budget", 200, domain.ConditionData{Condition: domain.Condition{
				Field:    "result",
				Operator: domain.OperatorContains,
				Value:    "over budget",
			}}).
			node("alert", 80, domain.AgentData{Agent: "calendar", Request: "Schedule a 15 minute budget review for tomorrow morning"}).
			at(800).
			node("summary", 320, domain.AgentData{Agent: "finance", Request: "Show my financial goals progress"}).
			at(1040).
			node("end", 200, domain.EndData{Label: "End"}).
			chain("start", "spending", "over_budget").
			connect("over_budget", "alert", "Yes").
			connect("over_budget", "summary", "No").
			chain("alert", "end").
			chain("summary", "end").
			doc
	},
}

// ExampleNames lists the built-in examples by key.
func ExampleNames() []string {
	names := make([]string, 0, len(examples))
	for name := range examples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Example returns a fresh copy of the named built-in graph. The key may be given as the display
// name or its slug.
func Example(name string) (domain.Document, bool) {
	build, ok := examples[domain.Slug(strings.TrimSpace(name))]
	if !ok {
		return domain.Document{}, false
	}
	return build(), true
}
