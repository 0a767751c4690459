package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

// PartialSuffix marks the in-progress file next to its canonical path
const PartialSuffix = ".part"

// PartialPath returns the in-progress name for a canonical path
func PartialPath(canonical string) string {
	return canonical + PartialSuffix
}

// TransferManager fetches one resource to its canonical path. The canonical
// name only ever appears through a rename of a fully written partial file.
type TransferManager struct {
	fetcher  download.Fetcher
	verifier download.Verifier
	progress download.ProgressSink
	dataDir  string
	logger   *zap.Logger
}

// NewTransferManager creates a new transfer manager
func NewTransferManager(
	fetcher download.Fetcher,
	verifier download.Verifier,
	progress download.ProgressSink,
	dataDir string,
	logger *zap.Logger,
) *TransferManager {
	if progress == nil {
		progress = nopSink{}
	}
	return &TransferManager{
		fetcher:  fetcher,
		verifier: verifier,
		progress: progress,
		dataDir:  dataDir,
		logger:   logger.Named("transfer"),
	}
}

// Transfer runs the skip check and, when needed, a resumable fetch. On
// success the task is either skipped or left for verification.
func (m *TransferManager) Transfer(ctx context.Context, task *download.Task) error {
	entry := task.Entry()
	canonical := entry.LocalPath(m.dataDir)
	partial := PartialPath(canonical)
	logger := m.logger.With(zap.String("path", entry.RelPath))

	done, err := m.verifier.Complete(entry, canonical)
	if err != nil {
		return err
	}
	if done {
		logger.Debug("already present, skipping")
		return task.Skip("already present")
	}

	if err := task.StartProbing(); err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeInternal, "invalid task state", err)
	}

	info, err := m.fetcher.Probe(ctx, entry.URL)
	if err != nil {
		return err
	}

	total := info.Size
	if total < 0 && entry.HasExpectedSize() {
		total = entry.ExpectedSize
	}

	if err := os.MkdirAll(filepath.Dir(canonical), 0o755); err != nil {
		return apperrors.Filesystem("failed to create directory", err)
	}

	offset, err := partialSize(partial)
	if err != nil {
		return err
	}
	if offset > 0 && (!info.AcceptsRanges || (total >= 0 && offset > total)) {
		logger.Info("discarding partial file",
			zap.Int64("offset", offset),
			zap.Int64("remote_size", total),
			zap.Bool("accepts_ranges", info.AcceptsRanges),
		)
		offset = 0
	}

	if total > 0 && offset == total {
		logger.Info("partial file already complete", zap.Int64("size", offset))
		if err := m.finalize(partial, canonical, total); err != nil {
			return err
		}
		task.Promote(offset)
		return nil
	}

	if err := task.StartTransfer(offset, total); err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeInternal, "invalid task state", err)
	}
	m.progress.Started(entry, offset, total)
	defer m.progress.Finished(entry)

	if offset > 0 {
		logger.Info("resuming transfer", zap.Int64("offset", offset), zap.Int64("total", total))
	}

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return apperrors.Filesystem("failed to open partial file", err)
	}
	written, copyErr := m.copyTo(ctx, task, f, offset, &total)
	syncErr := f.Sync()
	closeErr := f.Close()

	if copyErr != nil {
		return copyErr
	}
	if syncErr != nil {
		return apperrors.Filesystem("failed to sync partial file", syncErr)
	}
	if closeErr != nil {
		return apperrors.Filesystem("failed to close partial file", closeErr)
	}

	logger.Debug("body received", zap.Int64("bytes", written), zap.Int64("total", total))
	return m.finalize(partial, canonical, total)
}

// copyTo streams the body into f starting at offset. total is updated from
// the response when the probe could not tell.
func (m *TransferManager) copyTo(ctx context.Context, task *download.Task, f *os.File, offset int64, total *int64) (int64, error) {
	stream, err := m.fetcher.Open(ctx, task.Entry().URL, offset)
	if err != nil {
		return 0, err
	}

	if stream.Unsatisfiable {
		// The remote has nothing past offset: either the partial file is
		// complete or it is longer than the resource.
		if stream.Total >= 0 {
			*total = stream.Total
		}
		if *total < 0 || *total == offset {
			task.Promote(offset)
			return 0, nil
		}
		if err := f.Truncate(0); err != nil {
			return 0, apperrors.Filesystem("failed to truncate partial file", err)
		}
		return 0, apperrors.Transient(fmt.Sprintf("range %d- not satisfiable for %d byte resource", offset, *total), nil)
	}
	defer stream.Body.Close()

	if !stream.Ranged && offset > 0 {
		m.logger.Info("remote ignored range request, restarting",
			zap.String("path", task.Entry().RelPath),
			zap.Int64("offset", offset),
		)
		offset = 0
		task.RestartTransfer()
	}
	if offset == 0 {
		if err := f.Truncate(0); err != nil {
			return 0, apperrors.Filesystem("failed to truncate partial file", err)
		}
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return 0, apperrors.Filesystem(fmt.Sprintf("failed to seek to offset %d", offset), err)
	}
	if stream.Total >= 0 {
		*total = stream.Total
	}

	pw := &progressWriter{
		writer: f,
		task:   task,
		sink:   m.progress,
	}
	n, err := io.CopyBuffer(pw, stream.Body, make([]byte, 64*1024))
	if err != nil {
		if pw.writeErr != nil {
			return n, apperrors.Filesystem("failed to write partial file", pw.writeErr)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return n, ctx.Err()
		}
		return n, apperrors.Transient(fmt.Sprintf("transfer interrupted after %d bytes", offset+n), err)
	}
	if stream.Length >= 0 && n < stream.Length {
		return n, apperrors.Transient(fmt.Sprintf("short body: got %d of %d bytes", n, stream.Length), io.ErrUnexpectedEOF)
	}
	return n, nil
}

// finalize checks the partial size against the remote total and renames it
// into place.
func (m *TransferManager) finalize(partial, canonical string, total int64) error {
	stat, err := os.Stat(partial)
	if err != nil {
		return apperrors.Filesystem("failed to stat partial file", err)
	}
	if total >= 0 && stat.Size() != total {
		if stat.Size() > total {
			if err := os.Remove(partial); err != nil {
				return apperrors.Filesystem("failed to remove oversized partial file", err)
			}
			return apperrors.Corrupt(fmt.Sprintf("partial file has %d bytes, remote has %d", stat.Size(), total))
		}
		return apperrors.Transient(fmt.Sprintf("partial file has %d of %d bytes", stat.Size(), total), io.ErrUnexpectedEOF)
	}

	if err := os.Rename(partial, canonical); err != nil {
		return apperrors.Filesystem("failed to move file into place", err)
	}
	return nil
}

func partialSize(path string) (int64, error) {
	stat, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Filesystem("failed to stat partial file", err)
	}
	return stat.Size(), nil
}

// progressWriter counts bytes as they land and remembers write failures so
// they are not mistaken for network errors.
type progressWriter struct {
	writer   io.Writer
	task     *download.Task
	sink     download.ProgressSink
	writeErr error
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	if n > 0 {
		pw.task.AddBytes(int64(n))
		pw.sink.Add(int64(n))
	}
	if err != nil {
		pw.writeErr = err
	}
	return n, err
}

type nopSink struct{}

func (nopSink) Started(catalog.Entry, int64, int64) {}
func (nopSink) Add(int64)                           {}
func (nopSink) Finished(catalog.Entry)              {}
