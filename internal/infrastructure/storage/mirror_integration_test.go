//go:build integration

package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	"github.com/weathertaxi/tlcfetch/internal/infrastructure/storage"
	"github.com/weathertaxi/tlcfetch/test/testutil"
)

func TestMirrors_Minio(t *testing.T) {
	ctx := context.Background()
	env := testutil.StartMinioContainer(t, ctx, "tlc-mirror")
	logger := zaptest.NewLogger(t)

	local := filepath.Join(t.TempDir(), "green_tripdata_2022-01.parquet")
	require.NoError(t, os.WriteFile(local, testutil.ParquetBytes(t, 4096), 0o644))
	key := "green/green_tripdata_2022-01.parquet"

	s3Mirror, err := storage.NewS3Mirror(ctx, config.MirrorConfig{
		Type:     "s3",
		Bucket:   env.Bucket,
		Prefix:   "s3",
		Region:   "us-east-1",
		Endpoint: env.Endpoint,
	}, logger)
	require.NoError(t, err)

	blobMirror, err := storage.NewBlobMirror(ctx, env.BucketURL, "blob", logger)
	require.NoError(t, err)

	mirrors := map[string]interface {
		download.Mirror
		Exists(ctx context.Context, key string) (bool, error)
	}{
		"s3":   s3Mirror,
		"blob": blobMirror,
	}

	for name, m := range mirrors {
		t.Run(name, func(t *testing.T) {
			defer m.Close()

			ok, err := m.Exists(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, m.Upload(ctx, key, local))

			ok, err = m.Exists(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}
