package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// BlobMirror uploads files to any gocloud bucket URL (s3://, gs://,
// file://, mem://).
type BlobMirror struct {
	bucket *blob.Bucket
	prefix string
	logger *zap.Logger
}

// NewBlobMirror opens the bucket at bucketURL
func NewBlobMirror(ctx context.Context, bucketURL, prefix string, logger *zap.Logger) (*BlobMirror, error) {
	if bucketURL == "" {
		return nil, errors.New("mirror.bucket_url is required for blob")
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket: %w", err)
	}

	return NewBlobMirrorWithBucket(bucket, prefix, logger), nil
}

// NewBlobMirrorWithBucket wraps an already open bucket. The mirror owns it.
func NewBlobMirrorWithBucket(bucket *blob.Bucket, prefix string, logger *zap.Logger) *BlobMirror {
	return &BlobMirror{
		bucket: bucket,
		prefix: prefix,
		logger: logger.Named("mirror"),
	}
}

// Upload streams one local file to <prefix>/<key>
func (m *BlobMirror) Upload(ctx context.Context, key string, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	fullKey := objectKey(m.prefix, key)
	if err := m.bucket.Upload(ctx, fullKey, f, &blob.WriterOptions{ContentType: contentType(key)}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", fullKey, err)
	}

	m.logger.Debug("mirrored", zap.String("key", fullKey))
	return nil
}

// Exists reports whether <prefix>/<key> is present in the bucket
func (m *BlobMirror) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := m.bucket.Exists(ctx, objectKey(m.prefix, key))
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return false, err
	}
	return ok, nil
}

// Close closes the bucket
func (m *BlobMirror) Close() error {
	return m.bucket.Close()
}
