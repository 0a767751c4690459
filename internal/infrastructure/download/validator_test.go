package download_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	domain "github.com/weathertaxi/tlcfetch/internal/domain/download"
	"github.com/weathertaxi/tlcfetch/internal/infrastructure/download"
	"github.com/weathertaxi/tlcfetch/test/testutil"
)

type ValidatorTestSuite struct {
	suite.Suite

	ctx       context.Context
	validator *download.FileValidator
	tempDir   string
}

func (suite *ValidatorTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.validator = download.NewFileValidator(zaptest.NewLogger(suite.T()))
	suite.tempDir = suite.T().TempDir()
}

func (suite *ValidatorTestSuite) write(name string, data []byte) string {
	path := filepath.Join(suite.tempDir, name)
	suite.Require().NoError(os.WriteFile(path, data, 0o644))
	return path
}

func (suite *ValidatorTestSuite) verify(entry catalog.Entry, path string) domain.VerificationResult {
	return suite.validator.Verify(suite.ctx, uuid.New(), entry, path)
}

func parquetEntry() catalog.Entry {
	return catalog.Entry{Kind: catalog.KindYellow, RelPath: "yellow_trip/x.parquet", Format: catalog.FormatParquet}
}

func (suite *ValidatorTestSuite) TestParquet() {
	tests := []struct {
		name    string
		data    []byte
		size    int64
		outcome domain.Outcome
	}{
		{name: "valid", data: testutil.ParquetBytes(suite.T(), 1024), outcome: domain.OutcomeOK},
		{name: "empty", data: []byte{}, outcome: domain.OutcomeTruncated},
		{name: "cut footer", data: testutil.ParquetBytes(suite.T(), 1024)[:700], outcome: domain.OutcomeTruncated},
		{name: "wrong magic", data: append([]byte("PK\x03\x04"), testutil.ParquetBytes(suite.T(), 1024)[4:]...), outcome: domain.OutcomeCorrupt},
		{name: "short of expected size", data: testutil.ParquetBytes(suite.T(), 1024), size: 2048, outcome: domain.OutcomeTruncated},
		{name: "longer than expected size", data: testutil.ParquetBytes(suite.T(), 1024), size: 512, outcome: domain.OutcomeCorrupt},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			// Arrange
			path := suite.write("file.parquet", tt.data)
			entry := parquetEntry()
			entry.ExpectedSize = tt.size

			// Act
			result := suite.verify(entry, path)

			// Assert
			suite.Equal(tt.outcome, result.Outcome, result.Detail)
			if tt.outcome == domain.OutcomeOK {
				suite.FileExists(path)
				suite.False(result.Removed)
			} else {
				suite.NoFileExists(path)
				suite.True(result.Removed)
			}
		})
	}
}

func (suite *ValidatorTestSuite) TestMissing() {
	result := suite.verify(parquetEntry(), filepath.Join(suite.tempDir, "absent.parquet"))
	suite.Equal(domain.OutcomeMissing, result.Outcome)
	suite.False(result.Removed)
}

func (suite *ValidatorTestSuite) TestZoneLookup() {
	entry := catalog.Entry{Kind: catalog.KindZoneLookup, Format: catalog.FormatCSV}

	ok := suite.verify(entry, suite.write("lookup.csv", testutil.ZoneLookupCSV()))
	suite.True(ok.OK(), ok.Detail)

	bom := append([]byte("\xef\xbb\xbf"), testutil.ZoneLookupCSV()...)
	withBOM := suite.verify(entry, suite.write("bom.csv", bom))
	suite.True(withBOM.OK(), withBOM.Detail)

	wrong := suite.verify(entry, suite.write("wrong.csv", []byte("a,b,c,d\n1,2,3,4\n")))
	suite.Equal(domain.OutcomeCorrupt, wrong.Outcome)

	headerOnly := suite.verify(entry, suite.write("header.csv", []byte("LocationID,Borough,Zone,service_zone\n")))
	suite.Equal(domain.OutcomeTruncated, headerOnly.Outcome)

	ragged := suite.verify(entry, suite.write("ragged.csv", []byte("LocationID,Borough,Zone,service_zone\n1,EWR\n")))
	suite.Equal(domain.OutcomeCorrupt, ragged.Outcome)
}

func (suite *ValidatorTestSuite) TestZipAndJPEG() {
	zipEntry := catalog.Entry{Kind: catalog.KindZoneShapefile, Format: catalog.FormatZip}
	jpegEntry := catalog.Entry{Kind: catalog.KindZoneMap, Format: catalog.FormatJPEG}

	archive := testutil.ShapefileZip(suite.T(), "", testutil.ShapefileMembers...)
	suite.True(suite.verify(zipEntry, suite.write("ok.zip", archive)).OK())
	suite.Equal(domain.OutcomeCorrupt, suite.verify(zipEntry, suite.write("cut.zip", archive[:len(archive)/2])).Outcome)

	image := testutil.JPEGBytes(2048)
	suite.True(suite.verify(jpegEntry, suite.write("ok.jpg", image)).OK())
	suite.Equal(domain.OutcomeTruncated, suite.verify(jpegEntry, suite.write("cut.jpg", image[:1500])).Outcome)
	suite.Equal(domain.OutcomeCorrupt, suite.verify(jpegEntry, suite.write("png.jpg", []byte("\x89PNG\r\n\x1a\nxxxxxxxx"))).Outcome)
}

func (suite *ValidatorTestSuite) TestComplete() {
	entry := parquetEntry()
	path := filepath.Join(suite.tempDir, "file.parquet")

	done, err := suite.validator.Complete(entry, path)
	suite.Require().NoError(err)
	suite.False(done)

	suite.write("file.parquet", testutil.ParquetBytes(suite.T(), 64))
	done, err = suite.validator.Complete(entry, path)
	suite.Require().NoError(err)
	suite.True(done)

	entry.ExpectedSize = 65
	done, err = suite.validator.Complete(entry, path)
	suite.Require().NoError(err)
	suite.False(done)
	suite.FileExists(path)

	suite.write("file.parquet", testutil.ParquetBytes(suite.T(), 64)[:40])
	entry.ExpectedSize = 0
	done, err = suite.validator.Complete(entry, path)
	suite.Require().NoError(err)
	suite.False(done)
}

func TestValidatorTestSuite(t *testing.T) {
	suite.Run(t, new(ValidatorTestSuite))
}
