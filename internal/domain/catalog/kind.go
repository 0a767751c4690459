package catalog

import (
	"fmt"
	"strings"

	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

// Kind identifies a family of remote resources
type Kind string

const (
	KindYellow        Kind = "yellow"
	KindGreen         Kind = "green"
	KindFHV           Kind = "fhv"
	KindFHVHV         Kind = "fhvhv"
	KindZoneLookup    Kind = "zone-lookup"
	KindZoneShapefile Kind = "zone-shapefile"
	KindZoneMap       Kind = "zone-map"
)

// Format is the on-disk format of a resource, used to pick the signature check
type Format string

const (
	FormatParquet Format = "parquet"
	FormatCSV     Format = "csv"
	FormatZip     Format = "zip"
	FormatJPEG    Format = "jpeg"
)

// Local layout
const (
	ZoneDir      = "nyc_taxi_mapping"
	ShapefileDir = "shapefiles"
)

// TripArchive describes one monthly trip dataset kind.
type TripArchive struct {
	Kind         Kind
	Prefix       string
	Description  string
	EarliestYear int
}

// Dir returns the data directory holding this kind's monthly files.
func (t TripArchive) Dir() string {
	return string(t.Kind) + "_trip"
}

// FileName returns the canonical file name for a month.
func (t TripArchive) FileName(year, month int) string {
	return fmt.Sprintf("%s_%04d-%02d.parquet", t.Prefix, year, month)
}

// tripArchives is the availability table. Order is the resolution order.
var tripArchives = []TripArchive{
	{Kind: KindYellow, Prefix: "yellow_tripdata", Description: "Yellow Taxi (Manhattan pickups)", EarliestYear: 2009},
	{Kind: KindGreen, Prefix: "green_tripdata", Description: "Green Taxi (Outer boroughs)", EarliestYear: 2013},
	{Kind: KindFHV, Prefix: "fhv_tripdata", Description: "For-Hire Vehicles", EarliestYear: 2015},
	{Kind: KindFHVHV, Prefix: "fhvhv_tripdata", Description: "High Volume FHV (Uber/Lyft)", EarliestYear: 2019},
}

// ZoneResource describes a single non-monthly zone mapping file.
type ZoneResource struct {
	Kind        Kind
	Name        string
	FileName    string
	Description string
	Essential   bool
}

var zoneResources = []ZoneResource{
	{Kind: KindZoneLookup, Name: "zone_lookup", FileName: "taxi_zone_lookup.csv", Description: "Taxi Zone ID to Borough/Zone name mapping", Essential: true},
	{Kind: KindZoneShapefile, Name: "zone_shapefile", FileName: "taxi_zones.zip", Description: "Taxi Zone boundaries shapefile (ZIP archive)", Essential: true},
	{Kind: KindZoneMap, Name: "zone_map_manhattan", FileName: "taxi_zone_map_manhattan.jpg", Description: "Manhattan taxi zones map"},
	{Kind: KindZoneMap, Name: "zone_map_brooklyn", FileName: "taxi_zone_map_brooklyn.jpg", Description: "Brooklyn taxi zones map"},
	{Kind: KindZoneMap, Name: "zone_map_queens", FileName: "taxi_zone_map_queens.jpg", Description: "Queens taxi zones map"},
	{Kind: KindZoneMap, Name: "zone_map_bronx", FileName: "taxi_zone_map_bronx.jpg", Description: "Bronx taxi zones map"},
	{Kind: KindZoneMap, Name: "zone_map_staten_island", FileName: "taxi_zone_map_staten_island.jpg", Description: "Staten Island taxi zones map"},
}

// ShapefileBaseName is the base name shared by every geometry component.
const ShapefileBaseName = "taxi_zones"

// RequiredShapefileMembers are the members that must be present and non-empty
// after expanding the zone-geometry bundle.
var RequiredShapefileMembers = []string{
	ShapefileBaseName + ".shp",
	ShapefileBaseName + ".shx",
	ShapefileBaseName + ".dbf",
	ShapefileBaseName + ".sbn",
	ShapefileBaseName + ".prj",
}

// ZoneLookupHeader is the header row of the zone lookup table.
var ZoneLookupHeader = []string{"LocationID", "Borough", "Zone", "service_zone"}

// TripArchives returns a copy of the availability table.
func TripArchives() []TripArchive {
	out := make([]TripArchive, len(tripArchives))
	copy(out, tripArchives)
	return out
}

// ZoneResources returns a copy of the zone resource table.
func ZoneResources() []ZoneResource {
	out := make([]ZoneResource, len(zoneResources))
	copy(out, zoneResources)
	return out
}

// LookupTrip returns the trip archive description for kind.
func LookupTrip(kind Kind) (TripArchive, bool) {
	for _, t := range tripArchives {
		if t.Kind == kind {
			return t, true
		}
	}
	return TripArchive{}, false
}

// TripKinds returns every trip archive kind in table order.
func TripKinds() []Kind {
	kinds := make([]Kind, 0, len(tripArchives))
	for _, t := range tripArchives {
		kinds = append(kinds, t.Kind)
	}
	return kinds
}

// ParseKinds parses a list of trip kind names. "all" expands to every kind.
func ParseKinds(names []string) ([]Kind, error) {
	var kinds []Kind
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if name == "all" {
			return TripKinds(), nil
		}
		if _, ok := LookupTrip(Kind(name)); !ok {
			return nil, apperrors.BadRequest(fmt.Sprintf("unknown data type %q", raw))
		}
		kinds = append(kinds, Kind(name))
	}
	return kinds, nil
}

// ZoneLevel selects which zone mapping files to include.
type ZoneLevel string

const (
	ZonesNone      ZoneLevel = "none"
	ZonesEssential ZoneLevel = "essential"
	ZonesAll       ZoneLevel = "all"
)

// ParseZoneLevel parses a zone level name.
func ParseZoneLevel(s string) (ZoneLevel, error) {
	switch level := ZoneLevel(strings.ToLower(strings.TrimSpace(s))); level {
	case "", ZonesNone:
		return ZonesNone, nil
	case ZonesEssential, ZonesAll:
		return level, nil
	default:
		return "", apperrors.BadRequest(fmt.Sprintf("unknown zone level %q", s))
	}
}
