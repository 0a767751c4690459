package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/weathertaxi/tlcfetch/internal/config"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{prefix: "", key: "yellow/yellow_tripdata_2023-01.parquet", want: "yellow/yellow_tripdata_2023-01.parquet"},
		{prefix: "raw", key: "yellow/yellow_tripdata_2023-01.parquet", want: "raw/yellow/yellow_tripdata_2023-01.parquet"},
		{prefix: "/raw/", key: "/zones/taxi_zones.zip", want: "raw/zones/taxi_zones.zip"},
		{prefix: "raw", key: "../zones/taxi_zones.zip", want: "raw/zones/taxi_zones.zip"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, objectKey(tt.prefix, tt.key))
		})
	}
}

func TestNewMirror(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	t.Run("disabled", func(t *testing.T) {
		m, err := NewMirror(ctx, config.MirrorConfig{Type: "none"}, logger)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewMirror(ctx, config.MirrorConfig{Type: "ftp"}, logger)
		assert.Error(t, err)
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		_, err := NewMirror(ctx, config.MirrorConfig{Type: "s3"}, logger)
		assert.Error(t, err)
	})

	t.Run("file bucket", func(t *testing.T) {
		dir := t.TempDir()
		m, err := NewMirror(ctx, config.MirrorConfig{Type: "blob", BucketURL: "file://" + filepath.ToSlash(dir), Prefix: "raw"}, logger)
		require.NoError(t, err)
		defer m.Close()

		src := filepath.Join(t.TempDir(), "taxi_zone_lookup.csv")
		require.NoError(t, os.WriteFile(src, []byte("LocationID,Borough,Zone,service_zone\n1,EWR,Newark Airport,EWR\n"), 0o644))

		require.NoError(t, m.Upload(ctx, "misc/taxi_zone_lookup.csv", src))

		got, err := os.ReadFile(filepath.Join(dir, "raw", "misc", "taxi_zone_lookup.csv"))
		require.NoError(t, err)
		assert.Contains(t, string(got), "Newark Airport")
	})
}
