package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS canvas_graphs (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    slug       TEXT NOT NULL,
    node_count INTEGER NOT NULL DEFAULT 0,
    document   JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS canvas_runs (
    seq              BIGSERIAL,
    id               TEXT PRIMARY KEY,
    graph_id         TEXT NULL REFERENCES canvas_graphs(id) ON DELETE SET NULL,
    workflow_id      TEXT NOT NULL,
    success          BOOLEAN NOT NULL,
    status           TEXT NOT NULL DEFAULT '',
    duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
    execution_path   JSONB NOT NULL DEFAULT '[]',
    results          JSONB NOT NULL DEFAULT '[]',
    error            TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_canvas_graphs_updated ON canvas_graphs(updated_at);
CREATE INDEX IF NOT EXISTS idx_canvas_runs_graph     ON canvas_runs(graph_id, created_at);
`

// PGStore keeps the graph library in PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

var _ store.Store = (*PGStore)(nil)

func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Open connects a pool for dsn and pings it.
func Open(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool), nil
}

func (s *PGStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PGStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// DropSchema removes both tables. Used by tests.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS canvas_runs, canvas_graphs CASCADE;`)
	return err
}

func (s *PGStore) SaveGraph(ctx context.Context, g domain.SavedGraph) (domain.SavedGraph, error) {
	g = store.PrepareGraph(g, time.Now().UTC())
	doc, err := json.Marshal(g.Document)
	if err != nil {
		return domain.SavedGraph{}, fmt.Errorf("encode graph document: %w", err)
	}

	if _, err := s.db.Exec(ctx,
		`INSERT INTO canvas_graphs (id, name, slug, node_count, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			node_count = EXCLUDED.node_count,
			document = EXCLUDED.document,
			updated_at = EXCLUDED.updated_at`,
		g.ID, g.Document.Name, g.Slug, len(g.Document.Nodes), doc, g.CreatedAt, g.UpdatedAt,
	); err != nil {
		return domain.SavedGraph{}, fmt.Errorf("save graph: %w", err)
	}
	return s.GetGraph(ctx, g.ID)
}

func (s *PGStore) GetGraph(ctx context.Context, id string) (domain.SavedGraph, error) {
	var g domain.SavedGraph
	var doc []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, slug, document, created_at, updated_at FROM canvas_graphs WHERE id = $1`, id,
	).Scan(&g.ID, &g.Slug, &doc, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SavedGraph{}, fmt.Errorf("get graph %s: %w", id, store.ErrNotFound)
		}
		return domain.SavedGraph{}, fmt.Errorf("get graph: %w", err)
	}
	if err := json.Unmarshal(doc, &g.Document); err != nil {
		return domain.SavedGraph{}, fmt.Errorf("decode graph document %s: %w", id, err)
	}
	g.CreatedAt = g.CreatedAt.UTC()
	g.UpdatedAt = g.UpdatedAt.UTC()
	return g, nil
}

func (s *PGStore) ListGraphs(ctx context.Context) ([]domain.GraphSummary, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, slug, node_count, updated_at FROM canvas_graphs ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.GraphSummary, 0)
	for rows.Next() {
		var g domain.GraphSummary
		if err := rows.Scan(&g.ID, &g.Name, &g.Slug, &g.NodeCount, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		g.UpdatedAt = g.UpdatedAt.UTC()
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graphs: %w", err)
	}
	return result, nil
}

func (s *PGStore) DeleteGraph(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM canvas_graphs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete graph %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *PGStore) RecordRun(ctx context.Context, run domain.RunRecord) (domain.RunRecord, error) {
	run = store.PrepareRun(run, time.Now().UTC())
	path, err := json.Marshal(run.ExecutionPath)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("encode execution path: %w", err)
	}
	results, err := json.Marshal(run.Results)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("encode run results: %w", err)
	}

	var graphID *string
	if run.GraphID != "" {
		graphID = &run.GraphID
	}
	// A graph deleted since the run started leaves the run detached.
	var stored *string
	if err := s.db.QueryRow(ctx,
		`INSERT INTO canvas_runs (
			id, graph_id, workflow_id, success, status, duration_seconds,
			execution_path, results, error, created_at
		) VALUES ($1, (SELECT id FROM canvas_graphs WHERE id = $2), $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING graph_id`,
		run.ID, graphID, run.WorkflowID, run.Success, run.Status, run.DurationSeconds,
		path, results, run.Error, run.CreatedAt,
	).Scan(&stored); err != nil {
		return domain.RunRecord{}, fmt.Errorf("record run: %w", err)
	}
	run.GraphID = ""
	if stored != nil {
		run.GraphID = *stored
	}
	return run, nil
}

func (s *PGStore) ListRuns(ctx context.Context, graphID string, limit int) ([]domain.RunRecord, error) {
	query := `SELECT id, graph_id, workflow_id, success, status, duration_seconds,
			execution_path, results, error, created_at
		FROM canvas_runs`
	args := []any{}
	if graphID != "" {
		args = append(args, graphID)
		query += fmt.Sprintf(` WHERE graph_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, seq DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RunRecord, 0)
	for rows.Next() {
		var r domain.RunRecord
		var graph *string
		var path, results []byte
		if err := rows.Scan(
			&r.ID, &graph, &r.WorkflowID, &r.Success, &r.Status, &r.DurationSeconds,
			&path, &results, &r.Error, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if graph != nil {
			r.GraphID = *graph
		}
		r.CreatedAt = r.CreatedAt.UTC()
		if err := json.Unmarshal(path, &r.ExecutionPath); err != nil {
			return nil, fmt.Errorf("decode execution path %s: %w", r.ID, err)
		}
		if err := json.Unmarshal(results, &r.Results); err != nil {
			return nil, fmt.Errorf("decode run results %s: %w", r.ID, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}
