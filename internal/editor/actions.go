package editor

import (
	"context"
	"fmt"
	"path/filepath"

	"sphere_canvas/internal/canvas"
	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/graph"
	"sphere_canvas/internal/interchange"
	"sphere_canvas/internal/notify"
)

// AddNode adds a node of type t at the toolbar position.
func (s *Session) AddNode(t domain.NodeType) (domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.canvas.AddNode(t)
	if err != nil {
		return domain.Node{}, fmt.Errorf("add node: %w", err)
	}
	s.canvas.Select(n.ID)
	return n, nil
}

// AddNodeFromMenu adds a node where the context menu was opened.
func (s *Session) AddNodeFromMenu(t domain.NodeType) (domain.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.canvas.AddNodeFromMenu(t)
	if err != nil {
		return domain.Node{}, fmt.Errorf("add node: %w", err)
	}
	s.canvas.Select(n.ID)
	return n, nil
}

func (s *Session) OpenContextMenu(screen domain.Point) canvas.ContextMenu {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas.OpenContextMenu(screen)
}

func (s *Session) UpdateNode(id string, patch graph.Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.UpdateNode(id, patch)
}

func (s *Session) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas.Select(id)
}

func (s *Session) DeleteNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.graph.DeleteNode(id)
	return ok
}

func (s *Session) DeleteConnection(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.DeleteConnection(id)
}

// DeleteSelected deletes the selected node and its connections.
func (s *Session) DeleteSelected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.canvas.Selected()
	if id == "" {
		return false
	}
	_, ok := s.graph.DeleteNode(id)
	return ok
}

// BeginConnect starts a connection from id, or from the selected node when id is empty.
func (s *Session) BeginConnect(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = s.canvas.Selected()
	}
	return s.canvas.BeginConnect(id)
}

// ConnectTo completes the pending connection at id.
func (s *Session) ConnectTo(id string) (domain.Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.canvas.CompleteConnect(id)
	if ok {
		s.reviewConnection(conn)
	}
	return conn, ok
}

// PointerDown forwards a primary press to the canvas and reviews any connection it created.
func (s *Session) PointerDown(screen domain.Point) canvas.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.canvas.PointerDown(screen)
	if out.Connection != nil {
		s.reviewConnection(*out.Connection)
	}
	return out
}

func (s *Session) PointerMove(screen domain.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas.PointerMove(screen)
}

func (s *Session) PointerUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canvas.PointerUp()
}

// reviewConnection runs the connection policy. Caller holds s.mu.
func (s *Session) reviewConnection(conn domain.Connection) {
	for _, w := range s.policy.CheckConnection(s.graph, conn.From, conn.To) {
		s.notify(notify.LevelWarning, "%s", w.Message())
	}
}

// Escape cancels the active gesture or menu; with none active it cancels a running replay.
func (s *Session) Escape() bool {
	s.mu.Lock()
	_, menu := s.canvas.ContextMenu()
	if s.canvas.Pending() != "" || s.canvas.Dragging() != "" || s.canvas.Panning() || menu {
		s.canvas.CancelGesture()
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()
	return s.CancelReplay()
}

func (s *Session) Rename(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Rename(name)
}

// Clear empties the canvas. The graph is detached from any library record.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Clear()
	s.libraryID = ""
}

func (s *Session) LoadExample(name string) error {
	doc, ok := graph.Example(name)
	if !ok {
		return fmt.Errorf("unknown example %q", name)
	}
	s.replace(doc, "")
	s.notify(notify.LevelInfo, "Loaded example %q", doc.Name)
	return nil
}

func (s *Session) replace(doc domain.Document, libraryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Replace(doc)
	s.libraryID = libraryID
	s.canvas.FitToView()
}

// Import replaces the graph with a JSON or HCL workflow. Repairs made to a lenient JSON import are
// reported as one informational notification.
func (s *Session) Import(data []byte, filename string) (interchange.Report, error) {
	doc, report, err := interchange.Decode(data, filename)
	if err != nil {
		s.notify(notify.LevelError, "Import failed: %v", err)
		return interchange.Report{}, fmt.Errorf("import %s: %w", filename, err)
	}
	s.replace(doc, "")
	s.logger.Printf("workflow imported file=%s nodes=%d connections=%d repairs=%d", filename, len(doc.Nodes), len(doc.Connections), len(report.Repairs))
	if report.Empty() {
		s.notify(notify.LevelSuccess, "Imported %q", doc.Name)
	} else {
		s.notify(notify.LevelInfo, "Imported %q with %d repair(s)", doc.Name, len(report.Repairs))
	}
	return report, nil
}

// ImportFile imports relPath from the export directory.
func (s *Session) ImportFile(relPath string) (interchange.Report, error) {
	if s.exports == nil {
		return interchange.Report{}, ErrNoExports
	}
	data, err := s.exports.ReadFile(relPath)
	if err != nil {
		s.notify(notify.LevelError, "Import failed: %v", err)
		return interchange.Report{}, fmt.Errorf("import %s: %w", relPath, err)
	}
	return s.Import(data, filepath.Base(relPath))
}

// Export writes the graph to the export directory and returns the absolute path.
func (s *Session) Export() (string, error) {
	if s.exports == nil {
		return "", ErrNoExports
	}
	doc := s.Document()
	body, err := interchange.Export(doc)
	if err != nil {
		return "", err
	}
	path, op, err := s.exports.WriteFile(interchange.FileName(doc.Name), body)
	if err != nil {
		s.notify(notify.LevelError, "Export failed: %v", err)
		return "", fmt.Errorf("export workflow: %w", err)
	}
	s.logger.Printf("workflow exported path=%s op=%s", path, op)
	s.notify(notify.LevelSuccess, "Exported to %s", path)
	return path, nil
}

// SaveToLibrary stores the graph, updating the record it was opened from.
func (s *Session) SaveToLibrary(ctx context.Context) (domain.SavedGraph, error) {
	if s.library == nil {
		return domain.SavedGraph{}, ErrNoLibrary
	}
	s.mu.Lock()
	rec := domain.SavedGraph{ID: s.libraryID, Document: s.graph.Document()}
	s.mu.Unlock()

	saved, err := s.library.SaveGraph(ctx, rec)
	if err != nil {
		s.notify(notify.LevelError, "Save failed: %v", err)
		return domain.SavedGraph{}, fmt.Errorf("save to library: %w", err)
	}
	s.mu.Lock()
	s.libraryID = saved.ID
	s.mu.Unlock()
	s.logger.Printf("workflow saved library_id=%s name=%q", saved.ID, saved.Document.Name)
	s.notify(notify.LevelSuccess, "Saved %q", saved.Document.Name)
	return saved, nil
}

func (s *Session) OpenFromLibrary(ctx context.Context, id string) error {
	if s.library == nil {
		return ErrNoLibrary
	}
	g, err := s.library.GetGraph(ctx, id)
	if err != nil {
		s.notify(notify.LevelError, "Open failed: %v", err)
		return fmt.Errorf("open from library: %w", err)
	}
	s.replace(g.Document, g.ID)
	s.notify(notify.LevelInfo, "Opened %q", g.Document.Name)
	return nil
}

func (s *Session) ListLibrary(ctx context.Context) ([]domain.GraphSummary, error) {
	if s.library == nil {
		return nil, ErrNoLibrary
	}
	return s.library.ListGraphs(ctx)
}

// Runs lists the recorded runs of the current library graph, or every run when it is unsaved.
func (s *Session) Runs(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if s.library == nil {
		return nil, ErrNoLibrary
	}
	return s.library.ListRuns(ctx, s.LibraryID(), limit)
}
