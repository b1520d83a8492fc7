package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"sphere_canvas/internal/domain"
)

var ErrNotFound = errors.New("record not found")

// Store is the local graph library and run history.
type Store interface {
	Migrate(ctx context.Context) error
	// SaveGraph inserts g, or updates it when g.ID already exists. The stored record is returned.
	SaveGraph(ctx context.Context, g domain.SavedGraph) (domain.SavedGraph, error)
	GetGraph(ctx context.Context, id string) (domain.SavedGraph, error)
	ListGraphs(ctx context.Context) ([]domain.GraphSummary, error)
	DeleteGraph(ctx context.Context, id string) error
	RecordRun(ctx context.Context, run domain.RunRecord) (domain.RunRecord, error)
	// ListRuns returns runs newest first. An empty graphID lists every run; limit <= 0 means no limit.
	ListRuns(ctx context.Context, graphID string, limit int) ([]domain.RunRecord, error)
	Close() error
}

// IsPostgresDSN reports whether dsn selects the PostgreSQL backend.
func IsPostgresDSN(dsn string) bool {
	d := strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://")
}

// PrepareGraph fills the id, slug and timestamps a backend needs before writing g.
func PrepareGraph(g domain.SavedGraph, now time.Time) domain.SavedGraph {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if strings.TrimSpace(g.Document.Name) == "" {
		g.Document.Name = "Untitled Workflow"
	}
	if g.Document.Nodes == nil {
		g.Document.Nodes = []domain.Node{}
	}
	if g.Document.Connections == nil {
		g.Document.Connections = []domain.Connection{}
	}
	g.Slug = domain.Slug(g.Document.Name)
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	return g
}

func PrepareRun(run domain.RunRecord, now time.Time) domain.RunRecord {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.ExecutionPath == nil {
		run.ExecutionPath = []string{}
	}
	if run.Results == nil {
		run.Results = []domain.TaskResult{}
	}
	return run
}

// RunFromResult converts an execution result into a run record.
func RunFromResult(graphID string, res domain.ExecutionResult) domain.RunRecord {
	return domain.RunRecord{
		GraphID:         graphID,
		WorkflowID:      res.WorkflowID,
		Success:         res.Success,
		Status:          res.Status,
		DurationSeconds: res.DurationSeconds,
		ExecutionPath:   res.ExecutionPath,
		Results:         res.Results,
		Error:           res.Error,
	}
}
