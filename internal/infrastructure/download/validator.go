package download

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

var (
	parquetMagic = []byte("PAR1")
	jpegSOI      = []byte{0xFF, 0xD8, 0xFF}
	jpegEOI      = []byte{0xFF, 0xD9}
	utf8BOM      = []byte{0xEF, 0xBB, 0xBF}
)

// jpegTrailerWindow bounds how far from the end the EOI marker may sit;
// some encoders pad after it.
const jpegTrailerWindow = 1024

// FileValidator checks the structure of completed files
type FileValidator struct {
	logger *zap.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *zap.Logger) *FileValidator {
	return &FileValidator{
		logger: logger.Named("file-validator"),
	}
}

// Verify checks path against entry: non-empty, exact expected size when
// known, then the format signature. A failing file is removed so the next
// run fetches it again.
func (v *FileValidator) Verify(ctx context.Context, taskID uuid.UUID, entry catalog.Entry, path string) download.VerificationResult {
	result := download.VerificationResult{
		TaskID:  taskID,
		Path:    path,
		Outcome: download.OutcomeOK,
	}

	err := v.check(entry, path)
	switch {
	case err == nil:
		v.logger.Debug("verification passed", zap.String("file", path))
		return result
	case errors.Is(err, fs.ErrNotExist):
		result.Outcome = download.OutcomeMissing
		result.Detail = "file does not exist"
		return result
	case apperrors.IsTruncated(err):
		result.Outcome = download.OutcomeTruncated
	default:
		result.Outcome = download.OutcomeCorrupt
	}
	result.Detail = err.Error()

	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		v.logger.Error("failed to remove invalid file",
			zap.String("file", path),
			zap.Error(rmErr),
		)
	} else {
		result.Removed = true
	}

	v.logger.Warn("verification failed",
		zap.String("file", path),
		zap.String("outcome", string(result.Outcome)),
		zap.String("detail", result.Detail),
		zap.Bool("removed", result.Removed),
	)
	return result
}

// Complete is the skip check. It never removes anything.
func (v *FileValidator) Complete(entry catalog.Entry, path string) (bool, error) {
	stat, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Filesystem("failed to stat "+path, err)
	}
	if stat.IsDir() || stat.Size() == 0 {
		return false, nil
	}
	if entry.HasExpectedSize() {
		return stat.Size() == entry.ExpectedSize, nil
	}
	return checkSignature(entry.Format, path, stat.Size()) == nil, nil
}

func (v *FileValidator) check(entry catalog.Entry, path string) error {
	stat, err := os.Stat(path)
	if err != nil {
		return err
	}
	if stat.IsDir() {
		return apperrors.Corrupt("path is a directory, not a file")
	}
	if stat.Size() == 0 {
		return apperrors.Truncated("file is empty")
	}
	if entry.HasExpectedSize() && stat.Size() != entry.ExpectedSize {
		msg := fmt.Sprintf("size %d does not match expected %d", stat.Size(), entry.ExpectedSize)
		if stat.Size() < entry.ExpectedSize {
			return apperrors.Truncated(msg)
		}
		return apperrors.Corrupt(msg)
	}
	return checkSignature(entry.Format, path, stat.Size())
}

// checkSignature runs the format-specific structural check
func checkSignature(format catalog.Format, path string, size int64) error {
	switch format {
	case catalog.FormatParquet:
		return checkParquet(path, size)
	case catalog.FormatCSV:
		return checkZoneLookup(path)
	case catalog.FormatZip:
		return checkZip(path, size)
	case catalog.FormatJPEG:
		return checkJPEG(path, size)
	default:
		return nil
	}
}

// checkParquet requires the magic at both ends; a cut file keeps the
// header but loses the footer.
func checkParquet(path string, size int64) error {
	minSize := int64(2*len(parquetMagic) + 4)
	if size < minSize {
		return apperrors.Truncated(fmt.Sprintf("parquet file too small: %d bytes", size))
	}

	f, err := os.Open(path)
	if err != nil {
		return apperrors.Corrupt(fmt.Sprintf("file is not readable: %v", err))
	}
	defer f.Close()

	head := make([]byte, len(parquetMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return apperrors.Corrupt(fmt.Sprintf("failed to read header: %v", err))
	}
	if !bytes.Equal(head, parquetMagic) {
		return apperrors.Corrupt("missing parquet header magic")
	}

	tail := make([]byte, len(parquetMagic))
	if _, err := f.ReadAt(tail, size-int64(len(parquetMagic))); err != nil {
		return apperrors.Corrupt(fmt.Sprintf("failed to read footer: %v", err))
	}
	if !bytes.Equal(tail, parquetMagic) {
		return apperrors.Truncated("missing parquet footer magic")
	}
	return nil
}

// checkZoneLookup requires the expected header row and at least one
// consistently shaped data row.
func checkZoneLookup(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Corrupt(fmt.Sprintf("file is not readable: %v", err))
	}
	defer f.Close()

	br := bufio.NewReader(f)
	if bom, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(bom, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	header, err := r.Read()
	if err != nil {
		return apperrors.Corrupt(fmt.Sprintf("failed to read header row: %v", err))
	}
	if len(header) != len(catalog.ZoneLookupHeader) {
		return apperrors.Corrupt(fmt.Sprintf("header has %d columns, expected %d", len(header), len(catalog.ZoneLookupHeader)))
	}
	for i, col := range catalog.ZoneLookupHeader {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return apperrors.Corrupt(fmt.Sprintf("unexpected header column %q, expected %q", header[i], col))
		}
	}

	rows := 0
	for {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return apperrors.Corrupt(fmt.Sprintf("malformed row %d: %v", rows+2, err))
		}
		rows++
	}
	if rows == 0 {
		return apperrors.Truncated("lookup table has no data rows")
	}
	return nil
}

func checkZip(path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.Corrupt(fmt.Sprintf("file is not readable: %v", err))
	}
	defer f.Close()

	zr, err := zip.NewReader(f, size)
	if err != nil {
		return apperrors.Corrupt(fmt.Sprintf("not a valid archive: %v", err))
	}
	if len(zr.File) == 0 {
		return apperrors.Corrupt("archive is empty")
	}
	return nil
}

func checkJPEG(path string, size int64) error {
	if size < int64(len(jpegSOI)+len(jpegEOI)) {
		return apperrors.Truncated(fmt.Sprintf("image too small: %d bytes", size))
	}

	f, err := os.Open(path)
	if err != nil {
		return apperrors.Corrupt(fmt.Sprintf("file is not readable: %v", err))
	}
	defer f.Close()

	head := make([]byte, len(jpegSOI))
	if _, err := io.ReadFull(f, head); err != nil || !bytes.Equal(head, jpegSOI) {
		return apperrors.Corrupt("missing JPEG start marker")
	}

	window := min(size, int64(jpegTrailerWindow))
	tail := make([]byte, window)
	if _, err := f.ReadAt(tail, size-window); err != nil {
		return apperrors.Corrupt(fmt.Sprintf("failed to read trailer: %v", err))
	}
	if !bytes.Contains(tail, jpegEOI) {
		return apperrors.Truncated("missing JPEG end marker")
	}
	return nil
}
