package fetch_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/weathertaxi/tlcfetch/internal/application/fetch"
	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	domainevents "github.com/weathertaxi/tlcfetch/internal/domain/events"
	infradownload "github.com/weathertaxi/tlcfetch/internal/infrastructure/download"
	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
	"github.com/weathertaxi/tlcfetch/test/testutil"
)

const (
	yellowJan = "/trip-data/yellow_tripdata_2023-01.parquet"
	yellowFeb = "/trip-data/yellow_tripdata_2023-02.parquet"
	lookupCSV = "/misc/taxi_zone_lookup.csv"
	zonesZip  = "/misc/taxi_zones.zip"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domainevents.Event
}

func (p *recordingPublisher) PublishEvent(_ context.Context, event domainevents.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type memoryRuns struct {
	mu      sync.Mutex
	reports []*download.RunReport
}

func (r *memoryRuns) Save(_ context.Context, report *download.RunReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *memoryRuns) FindRecent(context.Context, int) ([]download.RunSummary, error) {
	return nil, nil
}

func (r *memoryRuns) FindOutcomes(context.Context, uuid.UUID) ([]download.TaskOutcome, error) {
	return nil, nil
}

type memoryMirror struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (m *memoryMirror) Upload(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("bucket unavailable")
	}
	m.keys = append(m.keys, key)
	return nil
}

func (m *memoryMirror) Close() error { return nil }

type OrchestratorTestSuite struct {
	suite.Suite

	ctx       context.Context
	srv       *testutil.Server
	cfg       config.FetchConfig
	publisher *recordingPublisher
	runs      *memoryRuns
	mirror    *memoryMirror
	jan       []byte
}

func (suite *OrchestratorTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.srv = testutil.NewServer(suite.T())
	suite.publisher = &recordingPublisher{}
	suite.runs = &memoryRuns{}
	suite.mirror = &memoryMirror{}

	suite.cfg = config.Default().Fetch
	suite.cfg.DataDir = suite.T().TempDir()
	suite.cfg.Workers = 2
	suite.cfg.InitialBackoff = time.Millisecond
	suite.cfg.MaxBackoff = 5 * time.Millisecond
	suite.cfg.ProbeTimeout = 5 * time.Second

	suite.jan = testutil.ParquetBytes(suite.T(), 128*1024)
	suite.srv.Put(yellowJan, suite.jan)
	suite.srv.Put(yellowFeb, testutil.ParquetBytes(suite.T(), 64*1024))
	suite.srv.Put(lookupCSV, testutil.ZoneLookupCSV())
	suite.srv.Put(zonesZip, testutil.ShapefileZip(suite.T(), "", testutil.ShapefileMembers...))
}

func (suite *OrchestratorTestSuite) orchestrator() *fetch.Orchestrator {
	logger := zaptest.NewLogger(suite.T())
	resolver := catalog.NewResolver(suite.srv.URL+"/trip-data", suite.srv.URL+"/misc", logger)
	client := infradownload.NewHTTPClient(suite.cfg, logger)
	validator := infradownload.NewFileValidator(logger)

	return fetch.NewOrchestrator(
		resolver,
		infradownload.NewSizeEstimator(client, suite.cfg.Workers, logger),
		infradownload.NewTransferManager(client, validator, nil, suite.cfg.DataDir, logger),
		validator,
		infradownload.NewArchiveExpander(logger),
		suite.mirror,
		suite.runs,
		suite.publisher,
		nil,
		suite.cfg,
		logger,
	)
}

func (suite *OrchestratorTestSuite) run(mode download.Mode, sel catalog.Selection) (*download.RunReport, error) {
	return suite.orchestrator().Run(suite.ctx, fetch.RunCommand{Mode: mode, Selection: sel})
}

func resolveEntry(suite *OrchestratorTestSuite, sel catalog.Selection) catalog.Entry {
	resolver := catalog.NewResolver(suite.srv.URL+"/trip-data", suite.srv.URL+"/misc", zaptest.NewLogger(suite.T()))
	res, err := resolver.Resolve(sel)
	suite.Require().NoError(err)
	suite.Require().Len(res.Entries, 1)
	return res.Entries[0]
}

func januarySelection() catalog.Selection {
	return catalog.Selection{
		Kinds:  []catalog.Kind{catalog.KindYellow},
		Years:  []int{2023},
		Months: []int{1},
	}
}

func (suite *OrchestratorTestSuite) TestSingleMonthEndToEnd() {
	// Act
	report, err := suite.run(download.ModeDownload, januarySelection())

	// Assert
	suite.Require().NoError(err)
	suite.Require().Len(report.Entries, 1)
	suite.Require().Len(report.Outcomes, 1)

	outcome := report.Outcomes[0]
	suite.Equal(download.StatusComplete, outcome.Status)
	suite.True(outcome.Transferred)
	suite.Require().NotNil(outcome.Verification)
	suite.Equal(download.OutcomeOK, outcome.Verification.Outcome)

	stat, err := os.Stat(report.Entries[0].LocalPath(suite.cfg.DataDir))
	suite.Require().NoError(err)
	suite.Positive(stat.Size())

	suite.Equal(1, report.Summary.Transferred)
	suite.False(report.Failed())
	suite.Equal([]string{"yellow_trip/yellow_tripdata_2023-01.parquet"}, suite.mirror.keys)
	suite.Equal([]string{download.EventTaskCompleted, download.EventRunCompleted}, suite.publisher.types())
	suite.Len(suite.runs.reports, 1)
}

func (suite *OrchestratorTestSuite) TestKindBeforeAvailabilityIsEmpty() {
	// Act
	report, err := suite.run(download.ModeDownload, catalog.Selection{
		Kinds: []catalog.Kind{catalog.KindFHV},
		Years: []int{2010},
	})

	// Assert
	suite.Require().NoError(err)
	suite.Empty(report.Entries)
	suite.Empty(report.Outcomes)
	suite.Require().Len(report.NotApplicable, 1)
	suite.Equal(2015, report.NotApplicable[0].EarliestYear)
	suite.False(report.Failed())
	suite.Zero(suite.srv.TotalRequests())
}

func (suite *OrchestratorTestSuite) TestSecondRunTransfersNothing() {
	// Arrange
	sel := catalog.Selection{
		Kinds:  []catalog.Kind{catalog.KindYellow},
		Years:  []int{2023},
		Months: []int{1, 2},
		Zones:  catalog.ZonesEssential,
	}
	first, err := suite.run(download.ModeDownload, sel)
	suite.Require().NoError(err)
	suite.Equal(4, first.Summary.Transferred)
	requests := suite.srv.TotalRequests()

	// Act
	second, err := suite.run(download.ModeDownload, sel)

	// Assert
	suite.Require().NoError(err)
	suite.Equal(0, second.Summary.Transferred)
	suite.Equal(4, second.Summary.Skipped)
	suite.Equal(requests, suite.srv.TotalRequests())
}

func (suite *OrchestratorTestSuite) TestInterruptedTransferResumesByteIdentical() {
	// Arrange
	suite.srv.CutNext(yellowJan, 50*1024)

	// Act
	report, err := suite.run(download.ModeDownload, januarySelection())

	// Assert
	suite.Require().NoError(err)
	outcome := report.Outcomes[0]
	suite.Equal(download.StatusComplete, outcome.Status)
	suite.Equal(2, outcome.Attempts)
	suite.Equal(int64(50*1024), outcome.ResumedFrom)

	got, err := os.ReadFile(report.Entries[0].LocalPath(suite.cfg.DataDir))
	suite.Require().NoError(err)
	suite.Equal(suite.jan, got)
}

func (suite *OrchestratorTestSuite) TestCompletePartialCountsAsTransferred() {
	// Arrange: an earlier run received every byte but never renamed the file
	entry := resolveEntry(suite, januarySelection())
	partial := infradownload.PartialPath(entry.LocalPath(suite.cfg.DataDir))
	suite.Require().NoError(os.MkdirAll(filepath.Dir(partial), 0o755))
	suite.Require().NoError(os.WriteFile(partial, suite.jan, 0o644))

	// Act
	report, err := suite.run(download.ModeDownload, januarySelection())

	// Assert
	suite.Require().NoError(err)
	suite.Equal(download.StatusComplete, report.Outcomes[0].Status)
	suite.True(report.Outcomes[0].Transferred)
	suite.Equal(1, report.Summary.Transferred)
	suite.Zero(report.Summary.Skipped)
	suite.Zero(suite.srv.TotalGets())
	suite.Equal([]string{"yellow_trip/yellow_tripdata_2023-01.parquet"}, suite.mirror.keys)
	suite.NoFileExists(partial)
}

func (suite *OrchestratorTestSuite) TestTransientFailuresAreRetried() {
	// Arrange
	suite.srv.FailNext(yellowJan, 2)

	// Act
	report, err := suite.run(download.ModeDownload, januarySelection())

	// Assert
	suite.Require().NoError(err)
	suite.Equal(download.StatusComplete, report.Outcomes[0].Status)
	suite.Equal(3, report.Outcomes[0].Attempts)
}

func (suite *OrchestratorTestSuite) TestRetriesAreBounded() {
	// Arrange
	suite.srv.FailNext(yellowJan, 100)

	// Act
	report, err := suite.run(download.ModeDownload, januarySelection())

	// Assert
	suite.Require().NoError(err)
	outcome := report.Outcomes[0]
	suite.Equal(download.StatusFailed, outcome.Status)
	suite.Equal(suite.cfg.MaxAttempts, outcome.Attempts)
	suite.Equal(string(apperrors.ErrorTypeTransient), outcome.ErrorType)
	suite.True(report.Failed())
}

func (suite *OrchestratorTestSuite) TestUnpublishedMonthIsReportedNotRetried() {
	// Arrange
	suite.srv.Remove(yellowFeb)
	sel := januarySelection()
	sel.Months = []int{1, 2}

	// Act
	report, err := suite.run(download.ModeDownload, sel)

	// Assert
	suite.Require().NoError(err)
	suite.Equal(1, report.Summary.Complete)
	suite.Equal(1, report.Summary.Failed)
	suite.Equal(1, report.Summary.NotAvailable)
	suite.Equal(1, report.Outcomes[1].Attempts)
	suite.False(report.Failed())
}

func (suite *OrchestratorTestSuite) TestTruncatedFileIsDetectedAndRefetched() {
	// Arrange
	first, err := suite.run(download.ModeDownload, januarySelection())
	suite.Require().NoError(err)
	path := first.Entries[0].LocalPath(suite.cfg.DataDir)
	suite.Require().NoError(os.Truncate(path, 1000))

	// Act: verification pass
	verify, err := suite.run(download.ModeVerify, januarySelection())

	// Assert
	suite.Require().NoError(err)
	suite.Equal(1, verify.Summary.Invalid)
	suite.Equal(download.OutcomeTruncated, verify.Outcomes[0].Verification.Outcome)
	suite.True(verify.Failed())
	suite.NoFileExists(path)

	// Act: download again
	again, err := suite.run(download.ModeDownload, januarySelection())

	// Assert
	suite.Require().NoError(err)
	suite.Equal(1, again.Summary.Transferred)
	got, err := os.ReadFile(path)
	suite.Require().NoError(err)
	suite.Equal(suite.jan, got)
}

func (suite *OrchestratorTestSuite) TestVerifyNeverTouchesNetwork() {
	// Act
	report, err := suite.run(download.ModeVerify, catalog.Selection{
		Kinds:  []catalog.Kind{catalog.KindYellow},
		Years:  []int{2023},
		Months: []int{1, 2},
		Zones:  catalog.ZonesEssential,
	})

	// Assert
	suite.Require().NoError(err)
	suite.Equal(4, report.Summary.Missing)
	suite.True(report.Failed())
	suite.Zero(suite.srv.TotalRequests())
}

func (suite *OrchestratorTestSuite) TestArchiveMissingMemberFailsWithoutLayout() {
	// Arrange
	suite.srv.Put(zonesZip, testutil.ShapefileZip(suite.T(), "", "taxi_zones.shp", "taxi_zones.shx", "taxi_zones.dbf", "taxi_zones.sbn"))

	// Act
	report, err := suite.run(download.ModeDownload, catalog.Selection{Zones: catalog.ZonesEssential})

	// Assert
	suite.Require().NoError(err)
	suite.Require().Len(report.Outcomes, 2)

	var archive download.TaskOutcome
	for _, o := range report.Outcomes {
		if o.Entry.Kind == catalog.KindZoneShapefile {
			archive = o
		}
	}
	suite.Equal(download.StatusFailed, archive.Status)
	suite.Equal(download.FailureFatal, archive.Failure)
	suite.Equal(string(apperrors.ErrorTypeExtractionIncomplete), archive.ErrorType)
	suite.Equal(1, archive.Attempts)
	suite.NoDirExists(filepath.Join(suite.cfg.DataDir, catalog.ZoneDir, catalog.ShapefileDir))
	suite.True(report.Failed())
}

func (suite *OrchestratorTestSuite) TestZoneBundleIsExpanded() {
	// Act
	report, err := suite.run(download.ModeDownload, catalog.Selection{Zones: catalog.ZonesEssential})

	// Assert
	suite.Require().NoError(err)
	suite.False(report.Failed())
	for _, name := range catalog.RequiredShapefileMembers {
		suite.FileExists(filepath.Join(suite.cfg.DataDir, catalog.ZoneDir, catalog.ShapefileDir, name))
	}

	// Removing the layout alone brings it back without a transfer
	suite.Require().NoError(os.RemoveAll(filepath.Join(suite.cfg.DataDir, catalog.ZoneDir, catalog.ShapefileDir)))
	gets := suite.srv.TotalGets()
	again, err := suite.run(download.ModeDownload, catalog.Selection{Zones: catalog.ZonesEssential})
	suite.Require().NoError(err)
	suite.Equal(2, again.Summary.Skipped)
	suite.Equal(gets, suite.srv.TotalGets())
	suite.FileExists(filepath.Join(suite.cfg.DataDir, catalog.ZoneDir, catalog.ShapefileDir, "taxi_zones.prj"))
}

func (suite *OrchestratorTestSuite) TestFilesystemFailureAbortsRun() {
	// Arrange: a file where the trip directory should be
	suite.Require().NoError(os.WriteFile(filepath.Join(suite.cfg.DataDir, "yellow_trip"), []byte("x"), 0o644))
	suite.cfg.Workers = 1
	sel := januarySelection()
	sel.Months = nil

	// Act
	report, err := suite.run(download.ModeDownload, sel)

	// Assert
	suite.Require().Error(err)
	suite.True(apperrors.IsFilesystem(err), "got %v", err)
	suite.Require().NotNil(report)
	suite.True(report.Aborted)
	suite.True(report.Failed())
	suite.Len(report.Outcomes, 12)
}

func (suite *OrchestratorTestSuite) TestCancelledRunIsAborted() {
	// Arrange
	ctx, cancel := context.WithCancel(suite.ctx)
	cancel()

	// Act
	report, err := suite.orchestrator().Run(ctx, fetch.RunCommand{Mode: download.ModeDownload, Selection: januarySelection()})

	// Assert
	suite.Require().ErrorIs(err, context.Canceled)
	suite.True(report.Aborted)
	suite.Equal("interrupted", report.AbortReason)
	suite.NoFileExists(filepath.Join(suite.cfg.DataDir, "yellow_trip", "yellow_tripdata_2023-01.parquet"))
	suite.Len(suite.runs.reports, 1)
}

func (suite *OrchestratorTestSuite) TestMirrorFailureIsOnlyAWarning() {
	// Arrange
	suite.mirror.fail = true

	// Act
	report, err := suite.run(download.ModeDownload, januarySelection())

	// Assert
	suite.Require().NoError(err)
	suite.Equal(download.StatusComplete, report.Outcomes[0].Status)
	suite.Contains(report.Outcomes[0].MirrorWarning, "bucket unavailable")
	suite.False(report.Failed())
}

func (suite *OrchestratorTestSuite) TestListAndEstimate() {
	// Act
	list, err := suite.run(download.ModeList, januarySelection())
	suite.Require().NoError(err)
	est, err := suite.run(download.ModeEstimate, januarySelection())
	suite.Require().NoError(err)

	// Assert
	suite.Len(list.Entries, 1)
	suite.Empty(list.Outcomes)
	suite.Require().NotNil(est.Estimate)
	suite.Equal(int64(len(suite.jan)), est.Estimate.TotalBytes)
	suite.Zero(suite.srv.TotalGets())
	suite.Len(suite.runs.reports, 1, "list runs are not stored")
}

func (suite *OrchestratorTestSuite) TestInvalidSelection() {
	report, err := suite.run(download.ModeDownload, catalog.Selection{
		Kinds: []catalog.Kind{"purple"},
		Years: []int{2023},
	})

	suite.Nil(report)
	suite.True(apperrors.IsBadRequest(err))
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}
