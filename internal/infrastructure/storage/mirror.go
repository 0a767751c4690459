// Package storage mirrors verified dataset files to object storage.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
)

// NewMirror builds the mirror selected by mirror.type. A nil mirror with a
// nil error means mirroring is disabled.
func NewMirror(ctx context.Context, cfg config.MirrorConfig, logger *zap.Logger) (download.Mirror, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "s3":
		return NewS3Mirror(ctx, cfg, logger)
	case "blob":
		return NewBlobMirror(ctx, cfg.BucketURL, cfg.Prefix, logger)
	default:
		return nil, fmt.Errorf("unknown mirror type %q", cfg.Type)
	}
}

// objectKey places a catalog-relative path under the configured prefix
func objectKey(prefix, key string) string {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".parquet":
		return "application/vnd.apache.parquet"
	case ".csv":
		return "text/csv"
	case ".zip":
		return "application/zip"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".prj", ".xml":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
