// Package store persists course rosters per owner in Postgres or SQLite.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/gzhole/rostershield/internal/roster"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	DBTypePostgres = "postgres"
	DBTypeSQLite   = "sqlite"
)

var ErrEmptyOwner = errors.New("owner id is required")

// RosterStore is the persistent roster table. Rows are written only by
// UpsertRoster and removed only by ClearRoster.
type RosterStore interface {
	Close() error
	ApplyMigrations(ctx context.Context) error

	UpsertRoster(ctx context.Context, ownerID string, courseID int64, entries []roster.Entry) error
	ListRoster(ctx context.Context, ownerID string, courseID int64) ([]roster.Entry, error)
	ClearRoster(ctx context.Context, ownerID string, courseID int64) (int64, error)
	ListCourses(ctx context.Context, ownerID string) ([]CourseSummary, error)

	// FetchRoster makes every store usable as a rostercache.Fetcher.
	FetchRoster(ctx context.Context, ownerID string, courseID int64) ([]roster.Entry, error)
}

// CourseSummary describes one stored course roster.
type CourseSummary struct {
	CourseID int64 `db:"course_id" json:"course_id"`
	Entries  int   `db:"entries" json:"entries"`
	SyncedAt int64 `db:"synced_at" json:"synced_at"`
}

// BaseStore provides the queries shared by every dialect. Queries are written
// with ? placeholders and passed through Converter.
type BaseStore struct {
	DB           *sqlx.DB
	Converter    func(string) string
	TranslateDDL func(string) string
	Now          func() time.Time
}

func (s *BaseStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

func (s *BaseStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *BaseStore) convert(query string) string {
	if s.Converter != nil {
		return s.Converter(query)
	}
	return query
}

// ApplyMigrations runs the embedded migrations in name order, translating the
// DDL for the dialect if needed.
func (s *BaseStore) ApplyMigrations(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		ddl := string(content)
		if s.TranslateDDL != nil {
			ddl = s.TranslateDDL(ddl)
		}

		logger.Debug.Printf("Applying migration: %s", name)
		for _, stmt := range strings.Split(ddl, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", name, err)
			}
		}
	}
	return nil
}

type rosterRow struct {
	roster.Entry
	Position int64 `db:"position"`
	SyncedAt int64 `db:"synced_at"`
}

// UpsertRoster inserts or updates every entry of a course in one
// transaction. Entries missing from the batch are kept; the batch order
// becomes the roster order.
func (s *BaseStore) UpsertRoster(ctx context.Context, ownerID string, courseID int64, entries []roster.Entry) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin roster sync: %w", err)
	}
	defer tx.Rollback()

	syncedAt := s.now().UTC().Unix()
	for i, e := range entries {
		e.OwnerID = ownerID
		e.CourseID = courseID
		row := rosterRow{Entry: e, Position: int64(i), SyncedAt: syncedAt}

		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO roster_entries
				(owner_id, course_id, identity_id, display_name, student_id, email, role, position, synced_at)
			VALUES
				(:owner_id, :course_id, :identity_id, :display_name, :student_id, :email, :role, :position, :synced_at)
			ON CONFLICT (owner_id, course_id, identity_id) DO UPDATE SET
				display_name = excluded.display_name,
				student_id = excluded.student_id,
				email = excluded.email,
				role = excluded.role,
				position = excluded.position,
				synced_at = excluded.synced_at
		`, row)
		if err != nil {
			return fmt.Errorf("failed to upsert identity %d: %w", e.IdentityID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit roster sync: %w", err)
	}
	return nil
}

// ListRoster returns a course roster in roster order. An unknown course
// yields an empty slice.
func (s *BaseStore) ListRoster(ctx context.Context, ownerID string, courseID int64) ([]roster.Entry, error) {
	entries := []roster.Entry{}
	query := s.convert(`
		SELECT owner_id, course_id, identity_id, display_name, student_id, email, role
		FROM roster_entries
		WHERE owner_id = ? AND course_id = ?
		ORDER BY position, identity_id
	`)
	if err := s.DB.SelectContext(ctx, &entries, query, ownerID, courseID); err != nil {
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}
	return entries, nil
}

func (s *BaseStore) FetchRoster(ctx context.Context, ownerID string, courseID int64) ([]roster.Entry, error) {
	return s.ListRoster(ctx, ownerID, courseID)
}

// ClearRoster deletes a course roster and reports how many rows went away.
func (s *BaseStore) ClearRoster(ctx context.Context, ownerID string, courseID int64) (int64, error) {
	res, err := s.DB.ExecContext(ctx, s.convert(`
		DELETE FROM roster_entries WHERE owner_id = ? AND course_id = ?
	`), ownerID, courseID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear roster: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared rows: %w", err)
	}
	return n, nil
}

// ListCourses summarises the stored rosters of one owner.
func (s *BaseStore) ListCourses(ctx context.Context, ownerID string) ([]CourseSummary, error) {
	courses := []CourseSummary{}
	query := s.convert(`
		SELECT course_id, COUNT(*) AS entries, MAX(synced_at) AS synced_at
		FROM roster_entries
		WHERE owner_id = ?
		GROUP BY course_id
		ORDER BY course_id
	`)
	if err := s.DB.SelectContext(ctx, &courses, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return courses, nil
}
