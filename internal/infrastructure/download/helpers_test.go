package download_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	"github.com/weathertaxi/tlcfetch/test/testutil"
)

const (
	yellowJan = "/trip-data/yellow_tripdata_2023-01.parquet"
	lookup    = "/misc/taxi_zone_lookup.csv"
	zonesZip  = "/misc/taxi_zones.zip"
)

// resolveOne resolves a selection against the fixture server and returns
// the single entry it must produce.
func resolveOne(t *testing.T, srv *testutil.Server, sel catalog.Selection) catalog.Entry {
	t.Helper()
	entries := resolveAll(t, srv, sel)
	require.Len(t, entries, 1)
	return entries[0]
}

func resolveAll(t *testing.T, srv *testutil.Server, sel catalog.Selection) []catalog.Entry {
	t.Helper()
	r := catalog.NewResolver(srv.URL+"/trip-data", srv.URL+"/misc", zap.NewNop())
	res, err := r.Resolve(sel)
	require.NoError(t, err)
	return res.Entries
}

func yellowSelection() catalog.Selection {
	return catalog.Selection{
		Kinds:  []catalog.Kind{catalog.KindYellow},
		Years:  []int{2023},
		Months: []int{1},
	}
}

func zoneEntry(t *testing.T, srv *testutil.Server, kind catalog.Kind) catalog.Entry {
	t.Helper()
	for _, e := range resolveAll(t, srv, catalog.Selection{Zones: catalog.ZonesAll}) {
		if e.Kind == kind {
			return e
		}
	}
	t.Fatalf("no zone entry of kind %s", kind)
	return catalog.Entry{}
}
