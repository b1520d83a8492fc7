package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/store"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS graphs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL,
	node_count INTEGER NOT NULL DEFAULT 0,
	document TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_graphs_updated ON graphs(updated_at);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	graph_id TEXT NULL,
	workflow_id TEXT NOT NULL,
	success INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	duration_seconds REAL NOT NULL DEFAULT 0,
	execution_path TEXT NOT NULL,
	results TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	FOREIGN KEY(graph_id) REFERENCES graphs(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_graph ON runs(graph_id, created_at);
`

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set sqlite pragma %q: %w", stmt, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) SaveGraph(ctx context.Context, g domain.SavedGraph) (domain.SavedGraph, error) {
	g = store.PrepareGraph(g, time.Now().UTC())
	doc, err := json.Marshal(g.Document)
	if err != nil {
		return domain.SavedGraph{}, fmt.Errorf("encode graph document: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO graphs(id, name, slug, node_count, document, created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			slug = excluded.slug,
			node_count = excluded.node_count,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		g.ID, g.Document.Name, g.Slug, len(g.Document.Nodes), string(doc),
		g.CreatedAt.UnixMilli(), g.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return domain.SavedGraph{}, fmt.Errorf("save graph: %w", err)
	}
	return s.GetGraph(ctx, g.ID)
}

func (s *Store) GetGraph(ctx context.Context, id string) (domain.SavedGraph, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, slug, document, created_at, updated_at FROM graphs WHERE id = ?`,
		id,
	)
	var g domain.SavedGraph
	var doc string
	var created, updated int64
	if err := row.Scan(&g.ID, &g.Slug, &doc, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SavedGraph{}, fmt.Errorf("get graph %s: %w", id, store.ErrNotFound)
		}
		return domain.SavedGraph{}, fmt.Errorf("get graph: %w", err)
	}
	if err := json.Unmarshal([]byte(doc), &g.Document); err != nil {
		return domain.SavedGraph{}, fmt.Errorf("decode graph document %s: %w", id, err)
	}
	g.CreatedAt = millisToTime(created)
	g.UpdatedAt = millisToTime(updated)
	return g, nil
}

func (s *Store) ListGraphs(ctx context.Context) ([]domain.GraphSummary, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, name, slug, node_count, updated_at FROM graphs ORDER BY updated_at DESC, name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.GraphSummary, 0)
	for rows.Next() {
		var g domain.GraphSummary
		var updated int64
		if err := rows.Scan(&g.ID, &g.Name, &g.Slug, &g.NodeCount, &updated); err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		g.UpdatedAt = millisToTime(updated)
		result = append(result, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate graphs: %w", err)
	}
	return result, nil
}

func (s *Store) DeleteGraph(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM graphs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete graph rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete graph %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (s *Store) RecordRun(ctx context.Context, run domain.RunRecord) (domain.RunRecord, error) {
	run = store.PrepareRun(run, time.Now().UTC())
	path, err := json.Marshal(run.ExecutionPath)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("encode execution path: %w", err)
	}
	results, err := json.Marshal(run.Results)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("encode run results: %w", err)
	}

	// A graph deleted since the run started leaves the run detached.
	var graphID sql.NullString
	err = s.db.QueryRowContext(
		ctx,
		`INSERT INTO runs(
			id, graph_id, workflow_id, success, status, duration_seconds,
			execution_path, results, error, created_at
		) VALUES(?, (SELECT id FROM graphs WHERE id = ?), ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING graph_id`,
		run.ID, nullableString(run.GraphID), run.WorkflowID, boolToInt(run.Success), run.Status,
		run.DurationSeconds, string(path), string(results), run.Error, run.CreatedAt.UnixMilli(),
	).Scan(&graphID)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("record run: %w", err)
	}
	run.GraphID = graphID.String
	return run, nil
}

func (s *Store) ListRuns(ctx context.Context, graphID string, limit int) ([]domain.RunRecord, error) {
	query := `SELECT id, graph_id, workflow_id, success, status, duration_seconds,
			execution_path, results, error, created_at
		FROM runs`
	args := []any{}
	if graphID != "" {
		query += ` WHERE graph_id = ?`
		args = append(args, graphID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	result := make([]domain.RunRecord, 0)
	for rows.Next() {
		var r domain.RunRecord
		var graph sql.NullString
		var success int
		var path, results string
		var created int64
		if err := rows.Scan(
			&r.ID, &graph, &r.WorkflowID, &success, &r.Status, &r.DurationSeconds,
			&path, &results, &r.Error, &created,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.GraphID = graph.String
		r.Success = success != 0
		r.CreatedAt = millisToTime(created)
		if err := json.Unmarshal([]byte(path), &r.ExecutionPath); err != nil {
			return nil, fmt.Errorf("decode execution path %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(results), &r.Results); err != nil {
			return nil, fmt.Errorf("decode run results %s: %w", r.ID, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func millisToTime(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
