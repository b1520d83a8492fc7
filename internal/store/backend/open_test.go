package backend

import (
	"context"
	"path/filepath"
	"testing"

	"sphere_canvas/internal/domain"
	"sphere_canvas/internal/store"
	"sphere_canvas/internal/store/sqlite"
)

func TestOpenSelectsSqliteForPaths(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "nested", "library.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*sqlite.Store); !ok {
		t.Fatalf("store type=%T want *sqlite.Store", s)
	}
	if _, err := s.SaveGraph(ctx, domain.SavedGraph{}); err != nil {
		t.Fatalf("save after open: %v", err)
	}
}

func TestIsPostgresDSN(t *testing.T) {
	tests := map[string]bool{
		"postgres://u@localhost/db":   true,
		"POSTGRESQL://u@localhost/db": true,
		"data/sphere_canvas.db":       false,
		"":                            false,
	}
	for dsn, want := range tests {
		if got := store.IsPostgresDSN(dsn); got != want {
			t.Fatalf("IsPostgresDSN(%q)=%v want=%v", dsn, got, want)
		}
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatalf("expected error")
	}
}
