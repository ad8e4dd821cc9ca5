package build

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/5l1v3r1/federalist/internal/errors"
)

// SQLiteStore implements Store on a shared sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore initializes the build schema on db and returns the store.
// The partial unique index is what enforces the one-queued-build-per-branch
// invariant under concurrent creation.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site INTEGER NOT NULL,
		branch TEXT NOT NULL,
		commit_sha TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		user INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_builds_one_queued
		ON builds(site, branch) WHERE state = 'queued';
	CREATE INDEX IF NOT EXISTS idx_builds_site ON builds(site);

	CREATE TABLE IF NOT EXISTS build_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build INTEGER NOT NULL REFERENCES builds(id),
		source TEXT NOT NULL,
		output TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_build_logs_build ON build_logs(build);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initialize build schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const buildColumns = `id, site, branch, commit_sha, state, token, user, error, created_at, completed_at`

func (s *SQLiteStore) CreateBuild(ctx context.Context, b *Build) error {
	if b.State == "" {
		b.State = StateCreated
	}
	if b.Token == "" {
		b.Token = NewToken()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (site, branch, commit_sha, state, token, user, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Site, b.Branch, b.CommitSha, b.State, b.Token, b.User, b.Error, b.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.Validation(
				fmt.Sprintf("a queued build already exists for site %d branch %q", b.Site, b.Branch))
		}
		return fmt.Errorf("insert build: %w", err)
	}
	b.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) GetBuild(ctx context.Context, id int64) (*Build, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	return scanBuild(row, fmt.Sprintf("build %d not found", id))
}

func (s *SQLiteStore) FindQueuedBuild(ctx context.Context, siteID int64, branch string) (*Build, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+buildColumns+` FROM builds WHERE site = ? AND branch = ? AND state = ?`,
		siteID, branch, StateQueued)
	return scanBuild(row, fmt.Sprintf("no queued build for site %d branch %q", siteID, branch))
}

func (s *SQLiteStore) ListBuilds(ctx context.Context, siteID int64, limit int) ([]*Build, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+buildColumns+` FROM builds WHERE site = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		b, err := scanBuildRows(rows)
		if err != nil {
			return nil, err
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// TransitionBuild performs the conditional update that serializes concurrent
// transitions: the UPDATE only matches while the build is non-terminal, so a
// late callback can never overwrite success or error.
func (s *SQLiteStore) TransitionBuild(ctx context.Context, id int64, state State, message string, completedAt *time.Time) (*Build, error) {
	var completed any
	if completedAt != nil {
		completed = completedAt.Unix()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE builds SET state = ?, error = ?, completed_at = ?
		 WHERE id = ? AND state NOT IN (?, ?)`,
		state, message, completed, id, StateSuccess, StateError)
	if err != nil {
		// The partial unique index also guards queued transitions: moving a
		// second build to queued for the same (site, branch) fails here.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, errors.Validation(
				fmt.Sprintf("a queued build already exists, build %d stays %s", id, StateCreated))
		}
		return nil, fmt.Errorf("update build state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		existing, err := s.GetBuild(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, errors.InvalidTransition(
			fmt.Sprintf("build %d is already %s", id, existing.State))
	}
	return s.GetBuild(ctx, id)
}

func (s *SQLiteStore) CreateLog(ctx context.Context, l *BuildLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO build_logs (build, source, output, created_at) VALUES (?, ?, ?, ?)`,
		l.Build, l.Source, l.Output, l.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert build log: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) ListLogs(ctx context.Context, buildID int64) ([]*BuildLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, build, source, output, created_at FROM build_logs
		 WHERE build = ? ORDER BY created_at ASC, id ASC`, buildID)
	if err != nil {
		return nil, fmt.Errorf("query build logs: %w", err)
	}
	defer rows.Close()

	var logs []*BuildLog
	for rows.Next() {
		var l BuildLog
		var createdAt int64
		if err := rows.Scan(&l.ID, &l.Build, &l.Source, &l.Output, &createdAt); err != nil {
			return nil, fmt.Errorf("scan build log: %w", err)
		}
		l.CreatedAt = time.Unix(createdAt, 0).UTC()
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBuild(row *sql.Row, notFoundMsg string) (*Build, error) {
	b, err := scanBuildFrom(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(notFoundMsg)
	}
	return b, err
}

func scanBuildRows(rows *sql.Rows) (*Build, error) {
	return scanBuildFrom(rows)
}

func scanBuildFrom(sc rowScanner) (*Build, error) {
	var b Build
	var createdAt int64
	var completedAt sql.NullInt64
	err := sc.Scan(&b.ID, &b.Site, &b.Branch, &b.CommitSha, &b.State, &b.Token,
		&b.User, &b.Error, &createdAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan build: %w", err)
	}
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		b.CompletedAt = &t
	}
	return &b, nil
}
