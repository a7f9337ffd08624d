// Package db holds the sqlx record store shared by the sqlite and postgres
// provenance backends. Queries are written with ? placeholders and rebound
// per driver.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"statsuite/adapters/db/migrations"
	"statsuite/domain/core"
	"statsuite/domain/run"
	"statsuite/domain/structure"
	"statsuite/internal/errors"
)

// recordRow is the storage shape of a run.Record: params as JSON text and
// times as unix nanoseconds so both drivers agree
type recordRow struct {
	ID            string   `db:"id"`
	AttemptID     string   `db:"attempt_id"`
	Method        string   `db:"method"`
	StructureKind string   `db:"structure_kind"`
	Mode          string   `db:"mode"`
	Params        string   `db:"params"`
	Outcome       string   `db:"outcome"`
	Reason        string   `db:"reason"`
	StartedAt     int64    `db:"started_at"`
	DurationNS    int64    `db:"duration_ns"`
	AIC           *float64 `db:"aic"`
	BIC           *float64 `db:"bic"`
	LogLikelihood *float64 `db:"log_likelihood"`
	RSquared      *float64 `db:"r_squared"`
	DatasetHash   string   `db:"dataset_hash"`
	Fingerprint   string   `db:"fingerprint"`
}

func toRow(r run.Record) (recordRow, error) {
	params := "{}"
	if len(r.Params) > 0 {
		b, err := json.Marshal(r.Params)
		if err != nil {
			return recordRow{}, fmt.Errorf("encode params: %w", err)
		}
		params = string(b)
	}
	return recordRow{
		ID:            string(r.ID),
		AttemptID:     string(r.AttemptID),
		Method:        r.Method,
		StructureKind: string(r.StructureKind),
		Mode:          string(r.Mode),
		Params:        params,
		Outcome:       string(r.Outcome),
		Reason:        r.Reason,
		StartedAt:     r.StartedAt.UnixNano(),
		DurationNS:    int64(r.Duration),
		AIC:           r.AIC,
		BIC:           r.BIC,
		LogLikelihood: r.LogLikelihood,
		RSquared:      r.RSquared,
		DatasetHash:   string(r.Dataset),
		Fingerprint:   string(r.Fingerprint),
	}, nil
}

func (row recordRow) record() (run.Record, error) {
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(row.Params), &params); err != nil {
		return run.Record{}, fmt.Errorf("decode params of %s: %w", row.ID, err)
	}
	return run.Record{
		ID:            core.RecordID(core.ID(row.ID)),
		AttemptID:     core.AttemptID(core.ID(row.AttemptID)),
		Method:        row.Method,
		StructureKind: structure.Kind(row.StructureKind),
		Mode:          run.Mode(row.Mode),
		Params:        params,
		Outcome:       run.Outcome(row.Outcome),
		Reason:        row.Reason,
		StartedAt:     time.Unix(0, row.StartedAt).UTC(),
		Duration:      time.Duration(row.DurationNS),
		AIC:           row.AIC,
		BIC:           row.BIC,
		LogLikelihood: row.LogLikelihood,
		RSquared:      row.RSquared,
		Dataset:       core.Hash(row.DatasetHash),
		Fingerprint:   core.Hash(row.Fingerprint),
	}, nil
}

// Schema is the provenance schema, valid on both sqlite and postgres
var Schema = []migrations.Migration{
	{
		Version: "001",
		Name:    "create_provenance_records",
		SQL: `CREATE TABLE IF NOT EXISTS provenance_records (
	id TEXT PRIMARY KEY,
	attempt_id TEXT NOT NULL,
	method TEXT NOT NULL,
	structure_kind TEXT NOT NULL,
	mode TEXT NOT NULL,
	params TEXT NOT NULL DEFAULT '{}',
	outcome TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	started_at BIGINT NOT NULL,
	duration_ns BIGINT NOT NULL,
	aic DOUBLE PRECISION,
	bic DOUBLE PRECISION,
	log_likelihood DOUBLE PRECISION,
	r_squared DOUBLE PRECISION,
	dataset_hash TEXT NOT NULL,
	fingerprint TEXT NOT NULL
)`,
	},
	{
		Version: "002",
		Name:    "index_provenance_records",
		SQL: `CREATE INDEX IF NOT EXISTS idx_provenance_method ON provenance_records (method);
CREATE INDEX IF NOT EXISTS idx_provenance_started ON provenance_records (started_at, id);
CREATE INDEX IF NOT EXISTS idx_provenance_fingerprint ON provenance_records (fingerprint)`,
	},
}

// RecordStore persists provenance records through sqlx
type RecordStore struct {
	db       *sqlx.DB
	migrator *migrations.Migrator
}

// NewRecordStore wraps an open database
func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db, migrator: migrations.NewMigrator(db, Schema)}
}

// DB exposes the underlying handle
func (s *RecordStore) DB() *sqlx.DB { return s.db }

// Migrate applies pending schema migrations
func (s *RecordStore) Migrate(ctx context.Context) error {
	if err := s.migrator.Up(ctx); err != nil {
		return errors.StoreError("failed to migrate provenance schema", err)
	}
	return nil
}

// MigrationStatus reports which schema migrations are applied
func (s *RecordStore) MigrationStatus(ctx context.Context) ([]migrations.Status, error) {
	return s.migrator.Status(ctx)
}

// Append inserts one record
func (s *RecordStore) Append(ctx context.Context, record run.Record) error {
	row, err := toRow(record)
	if err != nil {
		return errors.StoreError("failed to encode provenance record", err)
	}
	query := `
		INSERT INTO provenance_records (
			id, attempt_id, method, structure_kind, mode, params, outcome, reason,
			started_at, duration_ns, aic, bic, log_likelihood, r_squared,
			dataset_hash, fingerprint
		) VALUES (
			:id, :attempt_id, :method, :structure_kind, :mode, :params, :outcome, :reason,
			:started_at, :duration_ns, :aic, :bic, :log_likelihood, :r_squared,
			:dataset_hash, :fingerprint
		)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.StoreError("failed to insert provenance record", err)
	}
	return nil
}

// List returns matching records oldest first
func (s *RecordStore) List(ctx context.Context, filter run.Filter) ([]run.Record, error) {
	var where []string
	var args []interface{}
	add := func(col, value string) {
		if value != "" {
			where = append(where, col+" = ?")
			args = append(args, value)
		}
	}
	add("method", filter.Method)
	add("structure_kind", string(filter.StructureKind))
	add("outcome", string(filter.Outcome))
	add("mode", string(filter.Mode))

	query := "SELECT * FROM provenance_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errors.StoreError("failed to list provenance records", err)
	}
	out := make([]run.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, errors.StoreError("failed to decode provenance record", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close releases the database
func (s *RecordStore) Close() error {
	return s.db.Close()
}
