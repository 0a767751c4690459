package catalog

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

// Selection is a caller's request for resources.
type Selection struct {
	Kinds  []Kind    `json:"kinds" yaml:"kinds"`
	Years  []int     `json:"years" yaml:"years"`
	Months []int     `json:"months,omitempty" yaml:"months,omitempty"` // empty means all twelve
	Zones  ZoneLevel `json:"zones" yaml:"zones"`
}

// NotApplicable records a (kind, year) pair that predates the kind's data.
type NotApplicable struct {
	Kind         Kind `json:"kind" yaml:"kind"`
	Year         int  `json:"year" yaml:"year"`
	EarliestYear int  `json:"earliest_year" yaml:"earliest_year"`
}

func (n NotApplicable) String() string {
	return fmt.Sprintf("%s %d: data starts from %d", n.Kind, n.Year, n.EarliestYear)
}

// Resolution is the ordered, de-duplicated result of resolving a Selection.
type Resolution struct {
	Entries       []Entry         `json:"entries" yaml:"entries"`
	NotApplicable []NotApplicable `json:"not_applicable,omitempty" yaml:"not_applicable,omitempty"`
}

// Resolver turns selections into catalog entries. It never touches the
// filesystem or the network.
type Resolver struct {
	tripBaseURL string
	miscBaseURL string
	knownSizes  map[string]int64
	logger      *zap.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithKnownSizes supplies expected byte sizes keyed by entry RelPath.
func WithKnownSizes(sizes map[string]int64) ResolverOption {
	return func(r *Resolver) {
		for k, v := range sizes {
			r.knownSizes[k] = v
		}
	}
}

// NewResolver creates a resolver for the given base locations.
func NewResolver(tripBaseURL, miscBaseURL string, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		tripBaseURL: tripBaseURL,
		miscBaseURL: miscBaseURL,
		knownSizes:  make(map[string]int64),
		logger:      logger.Named("catalog"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve expands sel into entries. Combinations before a kind's earliest
// year are dropped and listed as not applicable.
func (r *Resolver) Resolve(sel Selection) (*Resolution, error) {
	kinds, err := r.normalizeKinds(sel.Kinds)
	if err != nil {
		return nil, err
	}
	years, err := normalizeInts(sel.Years, 1, 9999, "year")
	if err != nil {
		return nil, err
	}
	months := sel.Months
	if len(months) == 0 {
		months = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	}
	months, err = normalizeInts(months, 1, 12, "month")
	if err != nil {
		return nil, err
	}
	zones, err := ParseZoneLevel(string(sel.Zones))
	if err != nil {
		return nil, err
	}

	res := &Resolution{}
	seen := make(map[string]struct{})

	for _, t := range tripArchives {
		if _, want := kinds[t.Kind]; !want {
			continue
		}
		for _, year := range years {
			if year < t.EarliestYear {
				res.NotApplicable = append(res.NotApplicable, NotApplicable{
					Kind:         t.Kind,
					Year:         year,
					EarliestYear: t.EarliestYear,
				})
				continue
			}
			for _, month := range months {
				r.add(res, seen, newTripEntry(t, r.tripBaseURL, year, month))
			}
		}
	}

	if zones != ZonesNone {
		for _, z := range zoneResources {
			if !z.Essential && zones != ZonesAll {
				continue
			}
			r.add(res, seen, newZoneEntry(z, r.miscBaseURL))
		}
	}

	r.logger.Debug("selection resolved",
		zap.Int("entries", len(res.Entries)),
		zap.Int("not_applicable", len(res.NotApplicable)),
	)

	return res, nil
}

func (r *Resolver) add(res *Resolution, seen map[string]struct{}, e Entry) {
	if _, dup := seen[e.RelPath]; dup {
		return
	}
	seen[e.RelPath] = struct{}{}
	if size, ok := r.knownSizes[e.RelPath]; ok {
		e.ExpectedSize = size
	}
	res.Entries = append(res.Entries, e)
}

func (r *Resolver) normalizeKinds(in []Kind) (map[Kind]struct{}, error) {
	out := make(map[Kind]struct{}, len(in))
	for _, k := range in {
		if _, ok := LookupTrip(k); !ok {
			return nil, apperrors.BadRequest(fmt.Sprintf("unknown data type %q", k))
		}
		out[k] = struct{}{}
	}
	return out, nil
}

func normalizeInts(in []int, lo, hi int, what string) ([]int, error) {
	set := make(map[int]struct{}, len(in))
	for _, v := range in {
		if v < lo || v > hi {
			return nil, apperrors.BadRequest(fmt.Sprintf("%s %d out of range [%d, %d]", what, v, lo, hi))
		}
		set[v] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}
