package library

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/interchange"
	"sphere_canvas/internal/store/sqlite"
)

const morningJSON = `{
  "name": "Morning",
  "nodes": [
    {"id": "S", "type": "start", "position": {"x": 0, "y": 0}, "data": {"label": "Start"}},
    {"id": "A", "type": "agent", "position": {"x": 200, "y": 0}, "data": {"agent": "home", "request": "turn on lights"}},
    {"id": "E", "type": "end", "position": {"x": 400, "y": 0}, "data": {"label": "End"}}
  ],
  "connections": [
    {"id": "c1", "from": "S", "to": "A"},
    {"id": "c2", "from": "A", "to": "E"}
  ]
}`

func newTestServer(t *testing.T) (*Server, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "library.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewServer(s, log.New(io.Discard, "", 0)), s
}

func do(t *testing.T, srv *Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	_ = resp.Body.Close()
	return resp, raw
}

func createGraph(t *testing.T, srv *Server, body string) domain.SavedGraph {
	t.Helper()
	resp, raw := do(t, srv, http.MethodPost, "/graphs", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", resp.StatusCode, raw)
	}
	var out struct {
		Graph domain.SavedGraph `json:"graph"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	return out.Graph
}

func TestGraphCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	g := createGraph(t, srv, morningJSON)
	if g.ID == "" || g.Slug != "morning" || len(g.Document.Nodes) != 3 {
		t.Fatalf("created=%+v", g)
	}

	resp, raw := do(t, srv, http.MethodGet, "/graphs", "")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"node_count":3`) {
		t.Fatalf("list status=%d body=%s", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, http.MethodPut, "/graphs/"+g.ID, `{"name":"Morning Two","nodes":[],"connections":[]}`)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), `"slug":"morning_two"`) {
		t.Fatalf("update status=%d body=%s", resp.StatusCode, raw)
	}

	resp, _ = do(t, srv, http.MethodDelete, "/graphs/"+g.ID, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status=%d", resp.StatusCode)
	}
	resp, raw = do(t, srv, http.MethodGet, "/graphs/"+g.ID, "")
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(raw), `"error"`) {
		t.Fatalf("get deleted status=%d body=%s", resp.StatusCode, raw)
	}
}

func TestCreateReportsRepairsAndRejectsGarbage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, raw := do(t, srv, http.MethodPost, "/graphs", `{"nodes":[{"type":"start"}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
	var out struct {
		Graph   domain.SavedGraph `json:"graph"`
		Repairs []string          `json:"repairs"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Graph.Document.Name != interchange.DefaultName || len(out.Repairs) != 4 {
		t.Fatalf("graph=%+v repairs=%v", out.Graph, out.Repairs)
	}

	resp, _ = do(t, srv, http.MethodPost, "/graphs", `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("garbage status=%d", resp.StatusCode)
	}
}

func TestExportAndCompile(t *testing.T) {
	srv, _ := newTestServer(t)
	g := createGraph(t, srv, morningJSON)

	resp, raw := do(t, srv, http.MethodGet, "/graphs/"+g.ID+"/export", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status=%d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "morning.json") {
		t.Fatalf("content-disposition=%q", cd)
	}
	doc, report, err := interchange.Import(raw)
	if err != nil || !report.Empty() || len(doc.Connections) != 2 {
		t.Fatalf("export round trip doc=%+v report=%v err=%v", doc, report, err)
	}

	resp, raw = do(t, srv, http.MethodPost, "/graphs/"+g.ID+"/compile", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("compile status=%d body=%s", resp.StatusCode, raw)
	}
	var comp struct {
		Workflow domain.Workflow `json:"workflow"`
		Walk     []string        `json:"walk"`
	}
	if err := json.Unmarshal(raw, &comp); err != nil {
		t.Fatalf("decode compile: %v", err)
	}
	if comp.Workflow.WorkflowID != "morning" || comp.Workflow.StartTaskID != "A" || len(comp.Walk) != 3 {
		t.Fatalf("compilation=%+v", comp)
	}
}

func TestCompileValidationFailureIs422(t *testing.T) {
	srv, _ := newTestServer(t)
	g := createGraph(t, srv, `{"name":"Empty","nodes":[],"connections":[]}`)

	resp, raw := do(t, srv, http.MethodPost, "/graphs/"+g.ID+"/compile", "")
	if resp.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(string(raw), "workflow is empty") {
		t.Fatalf("status=%d body=%s", resp.StatusCode, raw)
	}
}

func TestListRunsFiltersByGraph(t *testing.T) {
	srv, s := newTestServer(t)
	g := createGraph(t, srv, morningJSON)
	ctx := context.Background()
	if _, err := s.RecordRun(ctx, domain.RunRecord{GraphID: g.ID, WorkflowID: "morning", Success: true}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if _, err := s.RecordRun(ctx, domain.RunRecord{WorkflowID: "other"}); err != nil {
		t.Fatalf("record run: %v", err)
	}

	resp, raw := do(t, srv, http.MethodGet, "/runs?graph_id="+g.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	var runs []domain.RunRecord
	if err := json.Unmarshal(raw, &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].WorkflowID != "morning" {
		t.Fatalf("runs=%+v", runs)
	}

	resp, _ = do(t, srv, http.MethodGet, "/runs?limit=x", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d", resp.StatusCode)
	}
}
