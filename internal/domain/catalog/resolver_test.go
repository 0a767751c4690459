package catalog_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

const (
	tripBase = "https://example.test/trip-data"
	miscBase = "https://example.test/misc/"
)

func newResolver(opts ...catalog.ResolverOption) *catalog.Resolver {
	return catalog.NewResolver(tripBase, miscBase, zap.NewNop(), opts...)
}

func TestResolve_SingleMonth(t *testing.T) {
	res, err := newResolver().Resolve(catalog.Selection{
		Kinds:  []catalog.Kind{catalog.KindYellow},
		Years:  []int{2023},
		Months: []int{1},
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Empty(t, res.NotApplicable)

	e := res.Entries[0]
	assert.Equal(t, catalog.KindYellow, e.Kind)
	assert.Equal(t, 2023, e.Year)
	assert.Equal(t, 1, e.Month)
	assert.Equal(t, "https://example.test/trip-data/yellow_tripdata_2023-01.parquet", e.URL)
	assert.Equal(t, "yellow_trip/yellow_tripdata_2023-01.parquet", e.RelPath)
	assert.Equal(t, catalog.FormatParquet, e.Format)
	assert.Equal(t, filepath.Join("data", "yellow_trip", "yellow_tripdata_2023-01.parquet"), e.LocalPath("data"))
	assert.False(t, e.HasExpectedSize())
}

func TestResolve_BeforeAvailabilityIsNotAnError(t *testing.T) {
	res, err := newResolver().Resolve(catalog.Selection{
		Kinds: []catalog.Kind{catalog.KindFHV},
		Years: []int{2010},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	require.Len(t, res.NotApplicable, 1)
	assert.Equal(t, catalog.NotApplicable{Kind: catalog.KindFHV, Year: 2010, EarliestYear: 2015}, res.NotApplicable[0])
}

func TestResolve_DefaultsToAllMonths(t *testing.T) {
	res, err := newResolver().Resolve(catalog.Selection{
		Kinds: []catalog.Kind{catalog.KindGreen},
		Years: []int{2020},
	})
	require.NoError(t, err)
	require.Len(t, res.Entries, 12)
	for i, e := range res.Entries {
		assert.Equal(t, i+1, e.Month)
	}
}

func TestResolve_DeterministicAndDeduplicated(t *testing.T) {
	sel := catalog.Selection{
		Kinds:  []catalog.Kind{catalog.KindFHVHV, catalog.KindYellow, catalog.KindYellow},
		Years:  []int{2024, 2018, 2024},
		Months: []int{3, 1, 3},
		Zones:  catalog.ZonesEssential,
	}

	first, err := newResolver().Resolve(sel)
	require.NoError(t, err)
	second, err := newResolver().Resolve(sel)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var paths []string
	seen := map[string]bool{}
	for _, e := range first.Entries {
		assert.False(t, seen[e.RelPath], "duplicate path %s", e.RelPath)
		seen[e.RelPath] = true
		paths = append(paths, e.RelPath)
	}

	assert.Equal(t, []string{
		"yellow_trip/yellow_tripdata_2018-01.parquet",
		"yellow_trip/yellow_tripdata_2018-03.parquet",
		"yellow_trip/yellow_tripdata_2024-01.parquet",
		"yellow_trip/yellow_tripdata_2024-03.parquet",
		"fhvhv_trip/fhvhv_tripdata_2024-01.parquet",
		"fhvhv_trip/fhvhv_tripdata_2024-03.parquet",
		"nyc_taxi_mapping/taxi_zone_lookup.csv",
		"nyc_taxi_mapping/taxi_zones.zip",
	}, paths)
	assert.Equal(t, []catalog.NotApplicable{{Kind: catalog.KindFHVHV, Year: 2018, EarliestYear: 2019}}, first.NotApplicable)
}

func TestResolve_ZoneLevels(t *testing.T) {
	essential, err := newResolver().Resolve(catalog.Selection{Zones: catalog.ZonesEssential})
	require.NoError(t, err)
	require.Len(t, essential.Entries, 2)

	shapefile := essential.Entries[1]
	assert.Equal(t, catalog.KindZoneShapefile, shapefile.Kind)
	assert.True(t, shapefile.IsArchive())
	assert.Equal(t, "https://example.test/misc/taxi_zones.zip", shapefile.URL)
	assert.Equal(t, "nyc_taxi_mapping/shapefiles", shapefile.ExtractRelDir)
	assert.ElementsMatch(t, catalog.RequiredShapefileMembers, shapefile.RequiredMembers)

	all, err := newResolver().Resolve(catalog.Selection{Zones: catalog.ZonesAll})
	require.NoError(t, err)
	assert.Len(t, all.Entries, 7)
	for _, e := range all.Entries[2:] {
		assert.Equal(t, catalog.FormatJPEG, e.Format)
	}
}

func TestResolve_KnownSizes(t *testing.T) {
	r := newResolver(catalog.WithKnownSizes(map[string]int64{
		"yellow_trip/yellow_tripdata_2023-02.parquet": 4096,
	}))
	res, err := r.Resolve(catalog.Selection{
		Kinds:  []catalog.Kind{catalog.KindYellow},
		Years:  []int{2023},
		Months: []int{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Entries[0].ExpectedSize)
	assert.Equal(t, int64(4096), res.Entries[1].ExpectedSize)
}

func TestResolve_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		sel  catalog.Selection
	}{
		{"unknown kind", catalog.Selection{Kinds: []catalog.Kind{"blue"}, Years: []int{2023}}},
		{"month out of range", catalog.Selection{Kinds: []catalog.Kind{catalog.KindYellow}, Years: []int{2023}, Months: []int{13}}},
		{"year out of range", catalog.Selection{Kinds: []catalog.Kind{catalog.KindYellow}, Years: []int{0}}},
		{"bad zone level", catalog.Selection{Zones: "some"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newResolver().Resolve(tt.sel)
			require.Error(t, err)
			assert.True(t, apperrors.IsBadRequest(err))
		})
	}
}

func TestParseKinds(t *testing.T) {
	kinds, err := catalog.ParseKinds([]string{"all"})
	require.NoError(t, err)
	assert.Equal(t, catalog.TripKinds(), kinds)

	kinds, err = catalog.ParseKinds([]string{" Yellow", "fhv", ""})
	require.NoError(t, err)
	assert.Equal(t, []catalog.Kind{catalog.KindYellow, catalog.KindFHV}, kinds)

	_, err = catalog.ParseKinds([]string{"taxi"})
	assert.True(t, apperrors.IsBadRequest(err))
}
