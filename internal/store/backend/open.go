package backend

import (
	"context"
	"fmt"
	"strings"

	"sphere_canvas/internal/store"
	"sphere_canvas/internal/store/postgres"
	"sphere_canvas/internal/store/sqlite"
)

// Open opens and migrates the store named by dsn: PostgreSQL for postgres:// URLs, otherwise a
// sqlite file path.
func Open(ctx context.Context, dsn string) (store.Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("empty library dsn")
	}

	var s store.Store
	if store.IsPostgresDSN(dsn) {
		pg, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		s = pg
	} else {
		lite, err := sqlite.Open(dsn)
		if err != nil {
			return nil, err
		}
		s = lite
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
