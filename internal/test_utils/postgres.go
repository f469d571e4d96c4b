package test_utils

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/tutorhub/tutorhub/internal/config"
	"github.com/tutorhub/tutorhub/internal/database"
)

const snapshotName = "tutorhub-clean"

// testDatabase is completed with the container's host and port once it runs.
var testDatabase = config.Database{
	User:     "test_tutorhub",
	Pass:     "test_tutorhub",
	Name:     "tutorhub",
	Schema:   "tutorhub",
	MaxConns: 4,
	MinConns: 0,
}

// TestWithDB starts Postgres, applies all migrations and snapshots the clean schema.
// Every pool returned by the second value must be closed before container.Restore.
func TestWithDB() (*postgres.PostgresContainer, func() *pgxpool.Pool) {
	ctx := context.Background()

	root, err := projectRoot()
	if err != nil {
		log.Fatalf("failed to find project root: %v", err)
	}
	container, err := postgres.Run(ctx, "postgres:18.1-alpine",
		postgres.WithInitScripts(filepath.Join(root, "dev", "init.sql")),
		postgres.WithDatabase(testDatabase.Name),
		postgres.WithUsername(testDatabase.User),
		postgres.WithPassword(testDatabase.Pass),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("failed to read container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("failed to read container port: %v", err)
	}
	cfg := testDatabase
	cfg.Host = host
	cfg.Port = port.Int()
	log.Infof("Postgres container started at %s:%d", cfg.Host, cfg.Port)

	if err := database.Migrate(cfg); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}
	if err := container.Snapshot(ctx, postgres.WithSnapshotName(snapshotName)); err != nil {
		log.Fatalf("failed to snapshot postgres container: %v", err)
	}

	return container, func() *pgxpool.Pool {
		db, err := database.Open(cfg)
		if err != nil {
			log.Fatalf("failed to open database connection: %v", err)
		}
		return db
	}
}

// projectRoot is the nearest ancestor of the working directory holding go.mod.
func projectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found above the working directory")
		}
		dir = parent
	}
}
