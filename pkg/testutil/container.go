// Package testutil provides testing utilities for DRIMS backend services.
// It includes testcontainers for PostgreSQL, mock factories, and common
// test helpers.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "drims_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "drims_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreatePackagingSchema creates the packaging service tables.
// This mirrors the production migrations.
func (c *PostgresContainer) CreatePackagingSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS packages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			relief_request_id VARCHAR(100) NOT NULL,
			status VARCHAR(30) NOT NULL DEFAULT 'draft',
			created_by VARCHAR(100) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT packages_relief_request_unique UNIQUE (relief_request_id)
		);

		CREATE TABLE IF NOT EXISTS package_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			package_id UUID NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
			item_id VARCHAR(100) NOT NULL,
			requested_qty NUMERIC(18,3) NOT NULL,
			status CHAR(1) NOT NULL DEFAULT 'R',
			status_reason TEXT,
			CONSTRAINT package_items_status_valid CHECK (status IN ('R','P','F','D','U','W','L')),
			CONSTRAINT package_items_unique UNIQUE (package_id, item_id)
		);

		CREATE TABLE IF NOT EXISTS batch_allocations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			package_id UUID NOT NULL REFERENCES packages(id) ON DELETE CASCADE,
			item_id VARCHAR(100) NOT NULL,
			warehouse_id VARCHAR(100) NOT NULL,
			batch_id VARCHAR(100) NOT NULL,
			quantity NUMERIC(18,3) NOT NULL,
			CONSTRAINT batch_allocations_quantity_nonnegative CHECK (quantity >= 0),
			CONSTRAINT batch_allocations_unique UNIQUE (package_id, item_id, batch_id)
		);

		CREATE TABLE IF NOT EXISTS stock_reservations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			relief_request_id VARCHAR(100) NOT NULL,
			item_id VARCHAR(100) NOT NULL,
			warehouse_id VARCHAR(100) NOT NULL,
			quantity NUMERIC(18,3) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT stock_reservations_quantity_nonnegative CHECK (quantity >= 0),
			CONSTRAINT stock_reservations_unique UNIQUE (relief_request_id, item_id, warehouse_id)
		);

		CREATE TABLE IF NOT EXISTS fulfillment_locks (
			relief_request_id VARCHAR(100) PRIMARY KEY,
			locked_by VARCHAR(100) NOT NULL,
			locked_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL
		);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create packaging schema: %w", err)
	}

	return nil
}
