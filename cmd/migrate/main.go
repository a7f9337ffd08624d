package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"statsuite/adapters/db/migrations"
	"statsuite/adapters/postgres"
	"statsuite/adapters/sqlite"
	"statsuite/internal/config"
)

// migrationStore is the part of a provenance backend the tool needs
type migrationStore interface {
	Migrate(ctx context.Context) error
	MigrationStatus(ctx context.Context) ([]migrations.Status, error)
	Close() error
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 3 {
		log.Fatal("Usage: migrate <sqlite|postgres> <dsn> [status]")
	}
	driver, dsn := os.Args[1], os.Args[2]
	statusOnly := len(os.Args) > 3 && os.Args[3] == "status"
	ctx := context.Background()

	var store migrationStore
	var err error
	switch driver {
	case config.DriverSQLite:
		store, err = sqlite.Open(dsn)
	case config.DriverPostgres:
		store, err = postgres.Connect(ctx, dsn)
	default:
		log.Fatalf("Unknown driver %q, expected sqlite or postgres", driver)
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	if !statusOnly {
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	}

	status, err := store.MigrationStatus(ctx)
	if err != nil {
		log.Fatalf("Failed to read migration status: %v", err)
	}
	applied := 0
	for _, s := range status {
		state := "pending"
		if s.Applied {
			state = "applied"
			applied++
		}
		log.Printf("%s_%s: %s", s.Version, s.Name, state)
	}
	log.Printf("Migration complete: %d of %d applied", applied, len(status))
}
