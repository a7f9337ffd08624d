package sqlite

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"statsuite/adapters/db"
	"statsuite/ports"
)

const driverName = "sqlite"

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// ProvenanceStore persists provenance records in a local SQLite file
type ProvenanceStore struct {
	*db.RecordStore
}

var _ ports.ProvenanceStore = (*ProvenanceStore)(nil)

// Open opens a SQLite database at dsn and configures WAL mode
func Open(dsn string) (*ProvenanceStore, error) {
	conn, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on a single connection
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}
	return &ProvenanceStore{RecordStore: db.NewRecordStore(conn)}, nil
}
