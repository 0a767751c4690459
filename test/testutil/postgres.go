//go:build integration

package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// PostgresContainer wraps a postgres test container
type PostgresContainer struct {
	*tcpostgres.PostgresContainer
	DSN string
}

// SetupPostgresContainer starts postgres and returns its DSN. The container
// is terminated when the test finishes.
func SetupPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tlcfetch"),
		tcpostgres.WithUsername("tlcfetch"),
		tcpostgres.WithPassword("tlcfetch"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	return &PostgresContainer{PostgresContainer: pgContainer, DSN: dsn}
}

// TruncateTables clears the given tables between tests
func TruncateTables(db *gorm.DB, tableNames ...string) error {
	for _, table := range tableNames {
		if err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			return err
		}
	}
	return nil
}
