package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/config"
)

// S3Mirror uploads files with the AWS SDK. Endpoint and path-style
// addressing are configurable for S3-compatible stores such as MinIO.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Mirror creates a new S3 mirror from the default credential chain
func NewS3Mirror(ctx context.Context, cfg config.MirrorConfig, logger *zap.Logger) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("mirror.bucket is required for s3")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.Named("mirror"),
	}, nil
}

// Upload puts one local file at <prefix>/<key>
func (m *S3Mirror) Upload(ctx context.Context, key string, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	fullKey := objectKey(m.prefix, key)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(fullKey),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	m.logger.Debug("mirrored",
		zap.String("bucket", m.bucket),
		zap.String("key", fullKey),
		zap.Int64("bytes", info.Size()),
	)
	return nil
}

// Exists reports whether <prefix>/<key> is present in the bucket
func (m *S3Mirror) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(objectKey(m.prefix, key)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check S3 object: %w", err)
}

// Close is a no-op; the SDK client holds no resources that need releasing
func (m *S3Mirror) Close() error {
	return nil
}
