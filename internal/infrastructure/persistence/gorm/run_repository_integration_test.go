//go:build integration

package gorm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	"github.com/weathertaxi/tlcfetch/internal/infrastructure/persistence/gorm"
	"github.com/weathertaxi/tlcfetch/test/testutil"
)

func TestRunRepository_Postgres(t *testing.T) {
	pg := testutil.SetupPostgresContainer(t)

	cfg := config.Default()
	cfg.Database.Driver = "postgres"
	cfg.Database.DSN = pg.DSN

	db, cleanup, err := gorm.NewDB(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer cleanup()

	repo := gorm.NewRunRepository(db)
	ctx := context.Background()

	r := report(download.ModeDownload, time.Now().UTC(),
		download.TaskOutcome{Entry: entry(5), Status: download.StatusComplete, Transferred: true},
		download.TaskOutcome{Entry: entry(6), Status: download.StatusSkipped},
	)
	require.NoError(t, repo.Save(ctx, r))

	runs, err := repo.FindRecent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, r.RunID, runs[0].RunID)

	outcomes, err := repo.FindOutcomes(ctx, r.RunID)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.Equal(t, entry(5).RelPath, outcomes[0].Entry.RelPath)

	require.NoError(t, testutil.TruncateTables(db, "run_outcomes", "runs"))
}
