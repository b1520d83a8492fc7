package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNodeUnmarshalFillsDefaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Node
	}{
		{
			name: "agent without data",
			raw:  `{"id":"a1","type":"agent"}`,
			want: Node{ID: "a1", Data: AgentData{Agent: "home"}},
		},
		{
			name: "agent keeps explicit empty request",
			raw:  `{"id":"a2","type":"agent","position":{"x":4,"y":5},"data":{"agent":"finance","request":""}}`,
			want: Node{ID: "a2", Position: Point{X: 4, Y: 5}, Data: AgentData{Agent: "finance"}},
		},
		{
			name: "condition with partial triple",
			raw:  `{"id":"c1","type":"condition","data":{"condition":{"value":"ok"}}}`,
			want: Node{ID: "c1", Data: ConditionData{Condition: Condition{Field: "result", Operator: OperatorContains, Value: "ok"}}},
		},
		{
			name: "condition with unknown operator",
			raw:  `{"id":"c2","type":"condition","data":{"condition":{"operator":"regex_match"}}}`,
			want: Node{ID: "c2", Data: ConditionData{Condition: Condition{Field: "result", Operator: OperatorContains}}},
		},
		{
			name: "end label",
			raw:  `{"id":"e","type":"END","data":{"label":"Done"}}`,
			want: Node{ID: "e", Data: EndData{Label: "Done"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got Node
			if err := json.Unmarshal([]byte(tc.raw), &got); err != nil {
				t.Fatalf("unmarshal node: %v", err)
			}
			if got != tc.want {
				t.Fatalf("node=%+v want=%+v", got, tc.want)
			}
		})
	}
}

func TestNodeUnmarshalRejectsUnknownType(t *testing.T) {
	var n Node
	err := json.Unmarshal([]byte(`{"id":"x","type":"loop"}`), &n)
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Fatalf("expected ErrUnknownNodeType, got %v", err)
	}
}

func TestNodeMarshalCarriesTypeFromData(t *testing.T) {
	raw, err := json.Marshal(Node{ID: "s", Position: Point{X: 1, Y: 2}, Data: StartData{Label: "Go"}})
	if err != nil {
		t.Fatalf("marshal node: %v", err)
	}
	want := `{"id":"s","type":"start","position":{"x":1,"y":2},"data":{"label":"Go"}}`
	if string(raw) != want {
		t.Fatalf("marshal node=%s want=%s", raw, want)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Morning":           "morning",
		"Morning Routine":   "morning_routine",
		"Budget \t  Check":  "budget_check",
		"":                  "",
		"Already_Slugged 2": "already_slugged_2",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q)=%q want=%q", in, got, want)
		}
	}
}

func TestTaskResultText(t *testing.T) {
	if got := (TaskResult{Result: json.RawMessage(`"lights on"`)}).ResultText(); got != "lights on" {
		t.Fatalf("string result=%q", got)
	}
	if got := (TaskResult{Result: json.RawMessage(`{"ok":true}`)}).ResultText(); got != `{"ok":true}` {
		t.Fatalf("object result=%q", got)
	}
	if got := (TaskResult{}).ResultText(); got != "" {
		t.Fatalf("empty result=%q", got)
	}
}
