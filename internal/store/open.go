package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Open returns the user store for backend ("csv" or "sqlite"). SQLite
// databases are migrated before use.
func Open(ctx context.Context, backend, csvPath, sqlitePath string, logger *slog.Logger) (UserStore, error) {
	switch backend {
	case "", "csv":
		return NewCSVStore(csvPath, logger), nil
	case "sqlite":
		st, err := NewSQLiteStore(sqlitePath, logger)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown user backend %q", backend)
	}
}
