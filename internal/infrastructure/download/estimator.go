package download

import (
	"context"
	"errors"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
)

// averageSizes is the fallback per-resource size when neither a known size
// nor a probe is available. Yellow uses the 60 MiB average trip archive; the
// other kinds are scaled from recent monthly sizes.
var averageSizes = map[catalog.Kind]int64{
	catalog.KindYellow:        60 * humanize.MiByte,
	catalog.KindGreen:         1500 * humanize.KiByte,
	catalog.KindFHV:           15 * humanize.MiByte,
	catalog.KindFHVHV:         450 * humanize.MiByte,
	catalog.KindZoneLookup:    12 * humanize.KiByte,
	catalog.KindZoneShapefile: 1 * humanize.MiByte,
	catalog.KindZoneMap:       500 * humanize.KiByte,
}

const defaultAverageSize = 60 * humanize.MiByte

// SizeEstimator sums known sizes and probes the rest
type SizeEstimator struct {
	prober  download.Prober
	workers int
	logger  *zap.Logger
}

// NewSizeEstimator creates a new size estimator. prober may be nil, in which
// case unknown sizes fall back to the heuristic.
func NewSizeEstimator(prober download.Prober, workers int, logger *zap.Logger) *SizeEstimator {
	if workers < 1 {
		workers = 1
	}
	return &SizeEstimator{
		prober:  prober,
		workers: workers,
		logger:  logger.Named("estimator"),
	}
}

// Estimate returns per-entry estimates in input order. It issues at most one
// metadata probe per entry and never transfers a body.
func (e *SizeEstimator) Estimate(ctx context.Context, entries []catalog.Entry) (*download.Estimate, error) {
	out := make([]download.EntryEstimate, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, entry := range entries {
		out[i] = download.EntryEstimate{Path: entry.RelPath}
		if entry.HasExpectedSize() {
			out[i].Bytes = entry.ExpectedSize
			out[i].Source = download.SourceKnown
			continue
		}
		if e.prober == nil {
			out[i].Bytes, out[i].Source = heuristicSize(entry), download.SourceHeuristic
			continue
		}

		i, entry := i, entry
		g.Go(func() error {
			info, err := e.prober.Probe(gctx, entry.URL)
			if err == nil && info.Size >= 0 {
				out[i].Bytes, out[i].Source = info.Size, download.SourceProbe
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return err
			}
			if err != nil {
				e.logger.Debug("probe failed, using heuristic",
					zap.String("path", entry.RelPath),
					zap.Error(err),
				)
			}
			out[i].Bytes, out[i].Source = heuristicSize(entry), download.SourceHeuristic
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	est := &download.Estimate{Entries: out}
	for _, ee := range out {
		est.TotalBytes += ee.Bytes
	}

	e.logger.Info("estimated selection size",
		zap.Int("entries", len(out)),
		zap.String("total", humanize.IBytes(uint64(est.TotalBytes))),
	)
	return est, nil
}

func heuristicSize(entry catalog.Entry) int64 {
	if size, ok := averageSizes[entry.Kind]; ok {
		return size
	}
	return defaultAverageSize
}
