package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"

	"github.com/weathertaxi/tlcfetch/internal/infrastructure/storage"
)

type BlobMirrorTestSuite struct {
	suite.Suite
	bucket *blob.Bucket
	mirror *storage.BlobMirror
	ctx    context.Context
}

func (suite *BlobMirrorTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.bucket = memblob.OpenBucket(nil)
	suite.mirror = storage.NewBlobMirrorWithBucket(suite.bucket, "raw", zaptest.NewLogger(suite.T()))
}

func (suite *BlobMirrorTestSuite) TearDownTest() {
	suite.mirror.Close()
}

func (suite *BlobMirrorTestSuite) writeLocal(name string, data []byte) string {
	path := filepath.Join(suite.T().TempDir(), name)
	suite.Require().NoError(os.WriteFile(path, data, 0o644))
	return path
}

func (suite *BlobMirrorTestSuite) TestUploadPlacesFileUnderPrefix() {
	// Arrange
	data := []byte("PAR1 not really a parquet body PAR1")
	local := suite.writeLocal("yellow_tripdata_2023-01.parquet", data)

	// Act
	err := suite.mirror.Upload(suite.ctx, "yellow/yellow_tripdata_2023-01.parquet", local)

	// Assert
	suite.Require().NoError(err)
	got, err := suite.bucket.ReadAll(suite.ctx, "raw/yellow/yellow_tripdata_2023-01.parquet")
	suite.Require().NoError(err)
	suite.Equal(data, got)

	attrs, err := suite.bucket.Attributes(suite.ctx, "raw/yellow/yellow_tripdata_2023-01.parquet")
	suite.Require().NoError(err)
	suite.Equal("application/vnd.apache.parquet", attrs.ContentType)
}

func (suite *BlobMirrorTestSuite) TestUploadOverwrites() {
	// Arrange
	first := suite.writeLocal("a.csv", []byte("old"))
	second := suite.writeLocal("b.csv", []byte("new"))

	// Act
	suite.Require().NoError(suite.mirror.Upload(suite.ctx, "misc/taxi_zone_lookup.csv", first))
	suite.Require().NoError(suite.mirror.Upload(suite.ctx, "misc/taxi_zone_lookup.csv", second))

	// Assert
	got, err := suite.bucket.ReadAll(suite.ctx, "raw/misc/taxi_zone_lookup.csv")
	suite.Require().NoError(err)
	suite.Equal("new", string(got))
}

func (suite *BlobMirrorTestSuite) TestUploadMissingLocalFile() {
	// Act
	err := suite.mirror.Upload(suite.ctx, "misc/gone.csv", filepath.Join(suite.T().TempDir(), "gone.csv"))

	// Assert
	suite.Error(err)
	ok, err := suite.mirror.Exists(suite.ctx, "misc/gone.csv")
	suite.Require().NoError(err)
	suite.False(ok)
}

func TestBlobMirrorSuite(t *testing.T) {
	suite.Run(t, new(BlobMirrorTestSuite))
}
