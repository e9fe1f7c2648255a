package store

import (
	"context"
	"strings"
)

// DBType guesses the dialect from a DSN: postgres:// and postgresql:// URLs
// are Postgres, anything else is a SQLite path.
func DBType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres") {
		return DBTypePostgres
	}
	return DBTypeSQLite
}

// Open connects to the database named by dsn and applies migrations.
func Open(ctx context.Context, dsn string) (RosterStore, error) {
	if DBType(dsn) == DBTypePostgres {
		s, err := NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	if err != nil {
		return nil, err
	}
	return s, nil
}
