package migrations

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// ErrChecksumMismatch reports an applied migration whose SQL has since changed
var ErrChecksumMismatch = errors.New("applied migration was modified")

// Migration is one versioned schema change
type Migration struct {
	Version string // sortable, e.g. "001"
	Name    string
	SQL     string
}

// Status is the applied state of one migration
type Status struct {
	Version string `db:"version" json:"version"`
	Name    string `json:"name"`
	Applied bool   `json:"applied"`
}

// Migrator handles database schema migrations
type Migrator struct {
	db         *sqlx.DB
	migrations []Migration
}

// NewMigrator creates a migrator for the given migrations
func NewMigrator(db *sqlx.DB, migrations []Migration) *Migrator {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{db: db, migrations: sorted}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// Up executes all pending migrations. Already applied migrations are
// verified against their checksum.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, mig := range m.migrations {
		sum := checksum(mig.SQL)
		if prev, ok := applied[mig.Version]; ok {
			if prev != sum {
				return fmt.Errorf("%w: %s_%s", ErrChecksumMismatch, mig.Version, mig.Name)
			}
			continue
		}
		if err := m.apply(ctx, mig, sum); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", mig.Version, err)
		}
	}
	return nil
}

// Status lists every known migration and whether it is applied
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, len(m.migrations))
	for i, mig := range m.migrations {
		_, ok := applied[mig.Version]
		out[i] = Status{Version: mig.Version, Name: mig.Name, Applied: ok}
	}
	return out, nil
}

// applied returns the checksum of every applied version
func (m *Migrator) applied(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Version  string `db:"version"`
		Checksum string `db:"checksum"`
	}
	if err := m.db.SelectContext(ctx, &rows, "SELECT version, checksum FROM schema_migrations"); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Version] = r.Checksum
	}
	return out, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration, sum string) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)"), mig.Version, sum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit()
}

// checksum computes SHA256 checksum of migration content
func checksum(sqlText string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(sqlText)))
}
