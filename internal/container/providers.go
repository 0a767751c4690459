package container

import (
	"context"
	"errors"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/weathertaxi/tlcfetch/internal/application/fetch"
	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	dlinfra "github.com/weathertaxi/tlcfetch/internal/infrastructure/download"
	"github.com/weathertaxi/tlcfetch/internal/infrastructure/events"
	gormrepo "github.com/weathertaxi/tlcfetch/internal/infrastructure/persistence/gorm"
	"github.com/weathertaxi/tlcfetch/internal/infrastructure/storage"
	"github.com/weathertaxi/tlcfetch/internal/progress"
)

// App holds everything a CLI command needs
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Orchestrator *fetch.Orchestrator
	Runs         download.RunRepository
}

// PipelineSet provides the acquisition pipeline components
var PipelineSet = wire.NewSet(
	ProvideResolver,
	ProvideHTTPClient,
	dlinfra.NewFileValidator,
	dlinfra.NewArchiveExpander,
	ProvideProgress,
	ProvideTransferManager,
	ProvideEstimator,
	ProvideOrchestrator,
)

// ProvideResolver builds the catalog resolver from the configured base URLs
func ProvideResolver(cfg *config.Config, logger *zap.Logger) *catalog.Resolver {
	return catalog.NewResolver(cfg.Catalog.TripBaseURL, cfg.Catalog.MiscBaseURL, logger)
}

// ProvideHTTPClient builds the shared HTTP client
func ProvideHTTPClient(cfg *config.Config, logger *zap.Logger) *dlinfra.HTTPClient {
	return dlinfra.NewHTTPClient(cfg.Fetch, logger)
}

// ProvideProgress builds the terminal progress reporter
func ProvideProgress(cfg *config.Config, logger *zap.Logger) *progress.Reporter {
	return progress.NewReporter(progress.Options{UpdateInterval: cfg.Fetch.ProgressInterval}, logger)
}

// ProvideTransferManager builds the transfer manager
func ProvideTransferManager(
	cfg *config.Config,
	client *dlinfra.HTTPClient,
	verifier *dlinfra.FileValidator,
	reporter *progress.Reporter,
	logger *zap.Logger,
) *dlinfra.TransferManager {
	return dlinfra.NewTransferManager(client, verifier, reporter, cfg.Fetch.DataDir, logger)
}

// ProvideEstimator builds the size estimator, probing with the HTTP client
func ProvideEstimator(cfg *config.Config, client *dlinfra.HTTPClient, logger *zap.Logger) *dlinfra.SizeEstimator {
	return dlinfra.NewSizeEstimator(client, cfg.Fetch.Workers, logger)
}

// ProvideRunRepository opens run history. Disabled history yields a nil
// repository rather than an error.
func ProvideRunRepository(cfg *config.Config, logger *zap.Logger) (download.RunRepository, func(), error) {
	db, cleanup, err := gormrepo.NewDB(cfg, logger)
	if errors.Is(err, gormrepo.ErrHistoryDisabled) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return gormrepo.NewRunRepository(db), cleanup, nil
}

// ProvidePublisher builds the event publisher selected by events.driver
func ProvidePublisher(cfg *config.Config, logger *zap.Logger) (download.EventPublisher, func(), error) {
	pub, cleanup, err := events.NewPublisher(cfg.Events, logger)
	if err != nil {
		return nil, nil, err
	}
	return pub, cleanup, nil
}

// ProvideMirror opens the configured mirror, nil when mirroring is off
func ProvideMirror(cfg *config.Config, logger *zap.Logger) (download.Mirror, func(), error) {
	m, err := storage.NewMirror(context.Background(), cfg.Mirror, logger)
	if err != nil {
		return nil, nil, err
	}
	if m == nil {
		return nil, func() {}, nil
	}
	cleanup := func() {
		if err := m.Close(); err != nil {
			logger.Warn("Failed to close mirror", zap.Error(err))
		}
	}
	return m, cleanup, nil
}

// ProvideOrchestrator assembles the orchestrator
func ProvideOrchestrator(
	cfg *config.Config,
	resolver *catalog.Resolver,
	estimator *dlinfra.SizeEstimator,
	transfers *dlinfra.TransferManager,
	verifier *dlinfra.FileValidator,
	expander *dlinfra.ArchiveExpander,
	mirror download.Mirror,
	runs download.RunRepository,
	publisher download.EventPublisher,
	reporter *progress.Reporter,
	logger *zap.Logger,
) *fetch.Orchestrator {
	return fetch.NewOrchestrator(
		resolver,
		estimator,
		transfers,
		verifier,
		expander,
		mirror,
		runs,
		publisher,
		reporter,
		cfg.Fetch,
		logger,
	)
}
