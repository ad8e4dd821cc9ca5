package site

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

// NewSQLiteStore initializes the site schema on db and returns the store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS sites (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		repository TEXT NOT NULL,
		default_branch TEXT NOT NULL DEFAULT 'main',
		created_at INTEGER NOT NULL,
		UNIQUE(owner, repository)
	);
	CREATE TABLE IF NOT EXISTS site_users (
		site_id INTEGER NOT NULL REFERENCES sites(id),
		user_id INTEGER NOT NULL,
		PRIMARY KEY (site_id, user_id)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initialize site schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetSite(ctx context.Context, id int64) (*Site, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, repository, default_branch, created_at FROM sites WHERE id = ?`, id)
	return scanSite(row, fmt.Sprintf("site %d not found", id))
}

func (s *SQLiteStore) FindByRepository(ctx context.Context, owner, repository string) (*Site, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, repository, default_branch, created_at FROM sites
		 WHERE lower(owner) = lower(?) AND lower(repository) = lower(?)`, owner, repository)
	return scanSite(row, fmt.Sprintf("site %s/%s not found", owner, repository))
}

func (s *SQLiteStore) IsMember(ctx context.Context, userID, siteID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM site_users WHERE site_id = ? AND user_id = ?`, siteID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query site membership: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateSite(ctx context.Context, site *Site) error {
	if site.DefaultBranch == "" {
		site.DefaultBranch = "main"
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (owner, repository, default_branch, created_at) VALUES (?, ?, ?, ?)`,
		site.Owner, site.Repository, site.DefaultBranch, site.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errors.Validation(fmt.Sprintf("site %s/%s already exists", site.Owner, site.Repository))
		}
		return fmt.Errorf("insert site: %w", err)
	}
	site.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) AddMember(ctx context.Context, userID, siteID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO site_users (site_id, user_id) VALUES (?, ?)`, siteID, userID)
	if err != nil {
		return fmt.Errorf("insert site membership: %w", err)
	}
	return nil
}

func scanSite(row *sql.Row, notFoundMsg string) (*Site, error) {
	var st Site
	var createdAt int64
	err := row.Scan(&st.ID, &st.Owner, &st.Repository, &st.DefaultBranch, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound(notFoundMsg)
	}
	if err != nil {
		return nil, fmt.Errorf("scan site: %w", err)
	}
	st.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &st, nil
}
