package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/store"
)

func sampleDocument(name string) domain.Document {
	return domain.Document{
		Name: name,
		Nodes: []domain.Node{
			{ID: "start_1", Position: domain.Point{X: 10, Y: 20}, Data: domain.StartData{Label: "Start"}},
			{ID: "agent_1", Position: domain.Point{X: 250, Y: 20}, Data: domain.AgentData{Agent: "home", Request: "lights on"}},
		},
		Connections: []domain.Connection{{ID: "conn_1", From: "start_1", To: "agent_1"}},
	}
}

func TestSaveGetAndUpdateGraph(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	saved, err := s.SaveGraph(ctx, domain.SavedGraph{Document: sampleDocument("Morning Routine")})
	if err != nil {
		t.Fatalf("save graph: %v", err)
	}
	if saved.ID == "" || saved.Slug != "morning_routine" {
		t.Fatalf("saved=%+v", saved)
	}

	got, err := s.GetGraph(ctx, saved.ID)
	if err != nil {
		t.Fatalf("get graph: %v", err)
	}
	if len(got.Document.Nodes) != 2 || got.Document.Nodes[1].Type() != domain.NodeTypeAgent {
		t.Fatalf("document=%+v", got.Document)
	}
	agent, ok := got.Document.Nodes[1].Data.(domain.AgentData)
	if !ok || agent.Request != "lights on" {
		t.Fatalf("agent data=%#v", got.Document.Nodes[1].Data)
	}

	got.Document.Name = "Morning v2"
	got.Document.Nodes = got.Document.Nodes[:1]
	updated, err := s.SaveGraph(ctx, got)
	if err != nil {
		t.Fatalf("update graph: %v", err)
	}
	if updated.ID != saved.ID || updated.Slug != "morning_v2" {
		t.Fatalf("updated=%+v", updated)
	}
	if !updated.CreatedAt.Equal(saved.CreatedAt) {
		t.Fatalf("created_at changed %s -> %s", saved.CreatedAt, updated.CreatedAt)
	}

	list, err := s.ListGraphs(ctx)
	if err != nil {
		t.Fatalf("list graphs: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Morning v2" || list[0].NodeCount != 1 {
		t.Fatalf("list=%+v", list)
	}
}

func TestGraphNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.GetGraph(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("get err=%v want=%v", err, store.ErrNotFound)
	}
	if err := s.DeleteGraph(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("delete err=%v want=%v", err, store.ErrNotFound)
	}
}

func TestRunsNewestFirstAndDetachedOnDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	g, err := s.SaveGraph(ctx, domain.SavedGraph{Document: sampleDocument("Budget")})
	if err != nil {
		t.Fatalf("save graph: %v", err)
	}
	base := time.Now().UTC().Add(-time.Minute)
	for i, wf := range []string{"wf_1", "wf_2"} {
		_, err := s.RecordRun(ctx, domain.RunRecord{
			GraphID:       g.ID,
			WorkflowID:    wf,
			Success:       i == 1,
			Status:        "completed",
			ExecutionPath: []string{"agent_1"},
			Results:       []domain.TaskResult{{TaskID: "agent_1", Status: "completed", Result: []byte(`"ok"`)}},
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("record run %s: %v", wf, err)
		}
	}
	if _, err := s.RecordRun(ctx, domain.RunRecord{WorkflowID: "wf_loose"}); err != nil {
		t.Fatalf("record loose run: %v", err)
	}

	runs, err := s.ListRuns(ctx, g.ID, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].WorkflowID != "wf_2" || !runs[0].Success {
		t.Fatalf("runs=%+v", runs)
	}
	if runs[0].Results[0].ResultText() != "ok" {
		t.Fatalf("results=%+v", runs[0].Results)
	}

	all, err := s.ListRuns(ctx, "", 1)
	if err != nil {
		t.Fatalf("list all runs: %v", err)
	}
	if len(all) != 1 || all[0].WorkflowID != "wf_loose" {
		t.Fatalf("all=%+v", all)
	}

	if err := s.DeleteGraph(ctx, g.ID); err != nil {
		t.Fatalf("delete graph: %v", err)
	}
	all, err = s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("list after delete: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("runs after delete=%d want=3", len(all))
	}
	for _, r := range all {
		if r.GraphID != "" {
			t.Fatalf("run %s still attached to %s", r.ID, r.GraphID)
		}
	}
}

func TestRecordRunForDeletedGraphIsDetached(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	defer s.Close()

	g, err := s.SaveGraph(ctx, domain.SavedGraph{Document: sampleDocument("Gone")})
	if err != nil {
		t.Fatalf("save graph: %v", err)
	}
	if err := s.DeleteGraph(ctx, g.ID); err != nil {
		t.Fatalf("delete graph: %v", err)
	}

	run, err := s.RecordRun(ctx, domain.RunRecord{GraphID: g.ID, WorkflowID: "gone", Success: true})
	if err != nil {
		t.Fatalf("record run: %v", err)
	}
	if run.GraphID != "" {
		t.Fatalf("recorded graph id=%q want detached", run.GraphID)
	}
	runs, err := s.ListRuns(ctx, "", 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].WorkflowID != "gone" || runs[0].GraphID != "" {
		t.Fatalf("runs=%+v", runs)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		s.Close()
		t.Fatalf("migrate store: %v", err)
	}
	return s
}
