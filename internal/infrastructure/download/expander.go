package download

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

// ArchiveExpander extracts the required members of a zip bundle into a
// staging directory and swaps it in for the target directory.
type ArchiveExpander struct {
	logger *zap.Logger
}

// NewArchiveExpander creates a new archive expander
func NewArchiveExpander(logger *zap.Logger) *ArchiveExpander {
	return &ArchiveExpander{
		logger: logger.Named("archive-expander"),
	}
}

// Complete reports whether the target directory already holds every
// required member with non-zero size.
func (e *ArchiveExpander) Complete(bundle download.ZoneBundle) bool {
	for _, name := range bundle.RequiredMembers {
		stat, err := os.Stat(filepath.Join(bundle.TargetDir, name))
		if err != nil || !stat.Mode().IsRegular() || stat.Size() == 0 {
			return false
		}
	}
	return len(bundle.RequiredMembers) > 0
}

// Expand extracts the required members and returns their final paths. The
// target directory is left untouched unless every member was extracted.
func (e *ArchiveExpander) Expand(ctx context.Context, bundle download.ZoneBundle) ([]string, error) {
	logger := e.logger.With(zap.String("archive", bundle.ArchivePath))

	zr, err := zip.OpenReader(bundle.ArchivePath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrorTypeCorrupt, "failed to open archive", err)
	}
	defer zr.Close()

	parent := filepath.Dir(bundle.TargetDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, apperrors.Filesystem("failed to create extraction parent", err)
	}
	staging := filepath.Join(parent, "."+filepath.Base(bundle.TargetDir)+"-"+uuid.NewString())
	if err := os.Mkdir(staging, 0o755); err != nil {
		return nil, apperrors.Filesystem("failed to create staging directory", err)
	}
	keep := false
	defer func() {
		if !keep {
			os.RemoveAll(staging)
		}
	}()

	required := make(map[string]string, len(bundle.RequiredMembers))
	for _, name := range bundle.RequiredMembers {
		required[strings.ToLower(name)] = name
	}

	found := make(map[string]bool, len(required))
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		// Members may sit under a directory inside the archive; only the
		// base name decides where they land.
		name, ok := required[strings.ToLower(path.Base(f.Name))]
		if !ok || found[name] {
			continue
		}
		if err := extractMember(f, filepath.Join(staging, name)); err != nil {
			return nil, err
		}
		found[name] = true
		logger.Debug("extracted member", zap.String("member", f.Name), zap.String("as", name))
	}

	var missing []string
	for _, name := range bundle.RequiredMembers {
		stat, err := os.Stat(filepath.Join(staging, name))
		if err != nil || stat.Size() == 0 {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, apperrors.ExtractionIncomplete(fmt.Sprintf("archive %s is missing required members: %s",
			filepath.Base(bundle.ArchivePath), strings.Join(missing, ", ")))
	}

	if err := swapDir(staging, bundle.TargetDir); err != nil {
		return nil, err
	}
	keep = true

	extracted := make([]string, 0, len(bundle.RequiredMembers))
	for _, name := range bundle.RequiredMembers {
		extracted = append(extracted, filepath.Join(bundle.TargetDir, name))
	}
	sort.Strings(extracted)

	logger.Info("archive expanded",
		zap.String("target", bundle.TargetDir),
		zap.Int("members", len(extracted)),
	)
	return extracted, nil
}

func extractMember(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrorTypeCorrupt, "failed to open member "+f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apperrors.Filesystem("failed to create "+dst, err)
	}

	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()

	if copyErr != nil {
		var pathErr *fs.PathError
		if errors.As(copyErr, &pathErr) {
			return apperrors.Filesystem("failed to write "+dst, copyErr)
		}
		// zip reports checksum and truncation problems on read
		return apperrors.Wrap(apperrors.ErrorTypeCorrupt, "failed to read member "+f.Name, copyErr)
	}
	if closeErr != nil {
		return apperrors.Filesystem("failed to close "+dst, closeErr)
	}
	return nil
}

// swapDir replaces target with staging. An existing target is moved aside
// first and restored if the second rename fails.
func swapDir(staging, target string) error {
	var backup string
	if _, err := os.Stat(target); err == nil {
		backup = filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+"-old-"+uuid.NewString())
		if err := os.Rename(target, backup); err != nil {
			return apperrors.Filesystem("failed to move existing directory aside", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Filesystem("failed to stat target directory", err)
	}

	if err := os.Rename(staging, target); err != nil {
		if backup != "" {
			_ = os.Rename(backup, target)
		}
		return apperrors.Filesystem("failed to move extracted files into place", err)
	}

	if backup != "" {
		_ = os.RemoveAll(backup)
	}
	return nil
}
