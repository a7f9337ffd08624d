package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"statsuite/adapters/db"
	"statsuite/ports"
)

// ProvenanceRepository persists provenance records in PostgreSQL
type ProvenanceRepository struct {
	*db.RecordStore
}

var _ ports.ProvenanceStore = (*ProvenanceRepository)(nil)

// NewProvenanceRepository wraps an open connection pool
func NewProvenanceRepository(conn *sqlx.DB) *ProvenanceRepository {
	return &ProvenanceRepository{RecordStore: db.NewRecordStore(conn)}
}

// Connect opens and pings a PostgreSQL pool at dsn
func Connect(ctx context.Context, dsn string) (*ProvenanceRepository, error) {
	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewProvenanceRepository(conn), nil
}
