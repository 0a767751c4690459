package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"testing"
)

// ParquetBytes returns a payload of size bytes that passes the parquet
// signature check. size must be at least 12.
func ParquetBytes(t *testing.T, size int) []byte {
	t.Helper()
	if size < 12 {
		t.Fatalf("parquet fixture needs at least 12 bytes, got %d", size)
	}

	data := make([]byte, size)
	copy(data, "PAR1")
	for i := 4; i < size-4; i++ {
		data[i] = byte(i % 251)
	}
	copy(data[size-4:], "PAR1")
	return data
}

// ZoneLookupCSV returns a small zone lookup table
func ZoneLookupCSV() []byte {
	var b bytes.Buffer
	b.WriteString("\"LocationID\",\"Borough\",\"Zone\",\"service_zone\"\n")
	b.WriteString("1,\"EWR\",\"Newark Airport\",\"EWR\"\n")
	b.WriteString("2,\"Queens\",\"Jamaica Bay\",\"Boro Zone\"\n")
	b.WriteString("4,\"Manhattan\",\"Alphabet City\",\"Yellow Zone\"\n")
	b.WriteString("264,\"Unknown\",\"N/A\",\"N/A\"\n")
	return b.Bytes()
}

// ShapefileMembers is the default member set of the zone bundle fixture
var ShapefileMembers = []string{
	"taxi_zones.shp",
	"taxi_zones.shx",
	"taxi_zones.dbf",
	"taxi_zones.sbn",
	"taxi_zones.sbx",
	"taxi_zones.prj",
	"taxi_zones.shp.xml",
}

// ShapefileZip builds a zip of the named members under dir (may be empty).
// Each member holds a few bytes derived from its name.
func ShapefileZip(t *testing.T, dir string, members ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range members {
		if dir != "" {
			name = dir + "/" + name
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip member %s: %v", name, err)
		}
		if _, err := fmt.Fprintf(w, "content of %s\n", name); err != nil {
			t.Fatalf("write zip member %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// JPEGBytes returns a minimal payload with JPEG start and end markers
func JPEGBytes(size int) []byte {
	if size < 6 {
		size = 6
	}
	data := make([]byte, size)
	copy(data, []byte{0xFF, 0xD8, 0xFF, 0xE0})
	for i := 4; i < size-2; i++ {
		data[i] = byte(i % 200)
	}
	copy(data[size-2:], []byte{0xFF, 0xD9})
	return data
}
