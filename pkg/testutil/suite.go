package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/hospitaltm/citas-dashboard/pkg/database"
	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

var (
	// shared across all integration tests of a package
	globalContainer *PostgresContainer
	globalDB        *sqlx.DB
	containerOnce   sync.Once
	containerErr    error
)

// IntegrationSuite provides a migrated PostgreSQL database for repository tests.
//
// Usage:
//
//	func TestSnapshots(t *testing.T) {
//	    testutil.SkipIfShort(t)
//	    suite := testutil.NewIntegrationSuite(t)
//	    repo := snapshot.NewRepository(suite.DB)
//	    ...
//	}
type IntegrationSuite struct {
	Container *PostgresContainer
	RawDB     *sqlx.DB
	DB        *database.DB
	Logger    *logger.Logger
}

// NewIntegrationSuite starts (or reuses) the shared container, applies the
// schema and truncates the snapshot table when the test ends.
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	t.Helper()
	ctx := context.Background()

	container, raw, err := getOrCreateContainer(ctx)
	if err != nil {
		t.Fatalf("failed to start test database: %v", err)
	}

	log := logger.Nop()
	db := database.Wrap(raw, log)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if _, err := raw.ExecContext(ctx, "TRUNCATE dashboard_snapshots"); err != nil {
			t.Logf("warning: failed to truncate snapshots: %v", err)
		}
	})

	return &IntegrationSuite{
		Container: container,
		RawDB:     raw,
		DB:        db,
		Logger:    log,
	}
}

func getOrCreateContainer(ctx context.Context) (*PostgresContainer, *sqlx.DB, error) {
	containerOnce.Do(func() {
		globalContainer, containerErr = NewPostgresContainer(ctx, DefaultPostgresConfig())
		if containerErr != nil {
			return
		}
		globalDB, containerErr = globalContainer.Connect(ctx)
	})

	return globalContainer, globalDB, containerErr
}

// TerminateContainer terminates the shared container.
// Only call this in TestMain after all tests have completed.
func TerminateContainer(ctx context.Context) {
	if globalContainer != nil {
		_ = globalContainer.Terminate(ctx)
	}
}
