package catalog

import (
	"fmt"
	"path"
	"path/filepath"
)

// Entry is one resolved remote resource and its canonical local location.
// RelPath is a pure function of (Kind, Year, Month) or the zone file name.
type Entry struct {
	Kind         Kind   `json:"kind" yaml:"kind"`
	Name         string `json:"name" yaml:"name"`
	Year         int    `json:"year,omitempty" yaml:"year,omitempty"`
	Month        int    `json:"month,omitempty" yaml:"month,omitempty"`
	URL          string `json:"url" yaml:"url"`
	RelPath      string `json:"path" yaml:"path"`
	ExpectedSize int64  `json:"expected_size,omitempty" yaml:"expected_size,omitempty"`
	Format       Format `json:"format" yaml:"format"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`

	// Archive expansion, set only for the zone-geometry bundle.
	ExtractRelDir   string   `json:"extract_dir,omitempty" yaml:"extract_dir,omitempty"`
	RequiredMembers []string `json:"required_members,omitempty" yaml:"required_members,omitempty"`
}

// Monthly reports whether the entry covers a single month of trip data.
func (e Entry) Monthly() bool {
	return e.Month != 0
}

// HasExpectedSize reports whether the byte size is known ahead of transfer.
func (e Entry) HasExpectedSize() bool {
	return e.ExpectedSize > 0
}

// IsArchive reports whether the entry must be expanded after verification.
func (e Entry) IsArchive() bool {
	return e.ExtractRelDir != ""
}

// LocalPath returns the canonical absolute-or-relative path under dataDir.
func (e Entry) LocalPath(dataDir string) string {
	return filepath.Join(dataDir, filepath.FromSlash(e.RelPath))
}

// ExtractDir returns the canonical extraction directory under dataDir.
func (e Entry) ExtractDir(dataDir string) string {
	if e.ExtractRelDir == "" {
		return ""
	}
	return filepath.Join(dataDir, filepath.FromSlash(e.ExtractRelDir))
}

func (e Entry) String() string {
	if e.Monthly() {
		return fmt.Sprintf("%s %04d-%02d", e.Kind, e.Year, e.Month)
	}
	return e.Name
}

func newTripEntry(t TripArchive, baseURL string, year, month int) Entry {
	name := t.FileName(year, month)
	return Entry{
		Kind:        t.Kind,
		Name:        name,
		Year:        year,
		Month:       month,
		URL:         joinURL(baseURL, name),
		RelPath:     path.Join(t.Dir(), name),
		Format:      FormatParquet,
		Description: t.Description,
	}
}

func newZoneEntry(z ZoneResource, baseURL string) Entry {
	e := Entry{
		Kind:        z.Kind,
		Name:        z.Name,
		URL:         joinURL(baseURL, z.FileName),
		RelPath:     path.Join(ZoneDir, z.FileName),
		Description: z.Description,
	}

	switch z.Kind {
	case KindZoneLookup:
		e.Format = FormatCSV
	case KindZoneShapefile:
		e.Format = FormatZip
		e.ExtractRelDir = path.Join(ZoneDir, ShapefileDir)
		e.RequiredMembers = append([]string(nil), RequiredShapefileMembers...)
	case KindZoneMap:
		e.Format = FormatJPEG
	}
	return e
}

func joinURL(base, name string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/" + name
}
