package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weathertaxi/tlcfetch/internal/config"
	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
	domainevents "github.com/weathertaxi/tlcfetch/internal/domain/events"
	applogger "github.com/weathertaxi/tlcfetch/internal/logger"
	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

// finishTimeout bounds history and event writes after the run, which may
// happen after the caller's context was cancelled.
const finishTimeout = 10 * time.Second

// Resolver turns a selection into catalog entries
type Resolver interface {
	Resolve(sel catalog.Selection) (*catalog.Resolution, error)
}

// ProgressDisplay shows live transfer progress during download runs
type ProgressDisplay interface {
	Expect(files int, bytes int64)
	Start()
	Stop()
}

// Orchestrator sequences resolve, estimate, transfer, verify and expand over
// a bounded worker pool and owns the retry loop.
type Orchestrator struct {
	resolver   Resolver
	estimator  download.Estimator
	transferer download.Transferer
	verifier   download.Verifier
	expander   download.Expander
	mirror     download.Mirror
	runs       download.RunRepository
	publisher  download.EventPublisher
	progress   ProgressDisplay
	backoff    BackoffPolicy
	cfg        config.FetchConfig
	logger     *zap.Logger
}

// NewOrchestrator creates a new orchestrator. mirror, runs, publisher and
// progress are optional.
func NewOrchestrator(
	resolver Resolver,
	estimator download.Estimator,
	transferer download.Transferer,
	verifier download.Verifier,
	expander download.Expander,
	mirror download.Mirror,
	runs download.RunRepository,
	publisher download.EventPublisher,
	progress ProgressDisplay,
	cfg config.FetchConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Orchestrator{
		resolver:   resolver,
		estimator:  estimator,
		transferer: transferer,
		verifier:   verifier,
		expander:   expander,
		mirror:     mirror,
		runs:       runs,
		publisher:  publisher,
		progress:   progress,
		backoff:    NewBackoffPolicy(cfg),
		cfg:        cfg,
		logger:     logger.Named("orchestrator"),
	}
}

// Run executes one command and returns its report. The report is returned
// even when err is non-nil, except for an invalid selection. A run aborted
// by a filesystem failure or by cancellation returns the report together
// with the cause.
func (o *Orchestrator) Run(ctx context.Context, cmd RunCommand) (*download.RunReport, error) {
	runID := uuid.New()
	logger := applogger.WithRun(o.logger, runID.String(), string(cmd.Mode))

	res, err := o.resolver.Resolve(cmd.Selection)
	if err != nil {
		return nil, err
	}

	builder := download.NewReportBuilder(runID, cmd.Mode, cmd.Selection)
	builder.SetResolution(res)

	for _, na := range res.NotApplicable {
		logger.Info("selection predates availability", zap.String("reason", na.String()))
	}
	logger.Info("selection resolved",
		zap.Int("entries", len(res.Entries)),
		zap.Int("not_applicable", len(res.NotApplicable)),
	)

	var runErr error
	switch cmd.Mode {
	case download.ModeList:
	case download.ModeEstimate:
		_, runErr = o.estimate(ctx, res.Entries, builder)
	case download.ModeVerify:
		runErr = o.verifyAll(ctx, runID, res.Entries, builder, logger)
	case download.ModeDownload:
		var est *download.Estimate
		if cmd.Estimate {
			if est, err = o.estimate(ctx, res.Entries, builder); err != nil {
				logger.Warn("estimate failed, continuing without it", zap.Error(err))
			}
		}
		runErr = o.downloadAll(ctx, runID, res.Entries, est, builder, logger)
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown mode %q", cmd.Mode))
	}

	if runErr != nil {
		reason := runErr.Error()
		if errors.Is(runErr, context.Canceled) {
			reason = "interrupted"
		}
		builder.Abort(reason)
	}

	report := builder.Build()
	o.finish(ctx, report, logger)
	return report, runErr
}

func (o *Orchestrator) estimate(ctx context.Context, entries []catalog.Entry, builder *download.ReportBuilder) (*download.Estimate, error) {
	est, err := o.estimator.Estimate(ctx, entries)
	if err != nil {
		return nil, err
	}
	builder.SetEstimate(est)
	return est, nil
}

// downloadAll runs one worker per entry under the worker limit. Only
// cancellation and filesystem failures escape a worker; both stop the
// scheduling of further entries.
func (o *Orchestrator) downloadAll(
	ctx context.Context,
	runID uuid.UUID,
	entries []catalog.Entry,
	est *download.Estimate,
	builder *download.ReportBuilder,
	logger *zap.Logger,
) error {
	if o.progress != nil {
		var total int64
		if est != nil {
			total = est.TotalBytes
		}
		o.progress.Expect(len(entries), total)
		o.progress.Start()
		defer o.progress.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	submitted := 0
	for _, entry := range entries {
		if gctx.Err() != nil {
			break
		}
		submitted++
		entry := entry
		g.Go(func() error {
			return o.process(gctx, runID, entry, builder, logger)
		})
	}
	err := g.Wait()

	for _, entry := range entries[submitted:] {
		builder.Add(download.TaskOutcome{
			Entry:     entry,
			Status:    download.StatusFailed,
			Failure:   download.FailureFatal,
			ErrorType: string(apperrors.ErrorTypeInternal),
			Reason:    "not attempted: run aborted",
		})
	}

	if err == nil {
		// errgroup only reports worker errors; an interrupt that landed
		// between tasks still counts.
		err = ctx.Err()
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// attemptResult carries what a single attempt learned beyond the task state
type attemptResult struct {
	verification  *download.VerificationResult
	extracted     []string
	mirrorWarning string
}

// process owns one entry end to end, including retries, and records its
// outcome exactly once.
func (o *Orchestrator) process(ctx context.Context, runID uuid.UUID, entry catalog.Entry, builder *download.ReportBuilder, logger *zap.Logger) error {
	logger = logger.With(zap.String("path", entry.RelPath))

	task, err := download.NewTask(entry, o.cfg.MaxAttempts-1)
	if err != nil {
		builder.Add(download.TaskOutcome{
			Entry:     entry,
			Status:    download.StatusFailed,
			Failure:   download.FailureFatal,
			ErrorType: string(apperrors.ErrorTypeInternal),
			Reason:    err.Error(),
		})
		return nil
	}

	verifyFailures := 0
	for {
		result, err := o.attempt(ctx, task)
		if err == nil {
			o.record(ctx, runID, task, result, nil, builder, logger)
			return nil
		}

		switch {
		case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			task.Fail(download.FailureFatal, "interrupted")
			o.record(ctx, runID, task, result, err, builder, logger)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err

		case apperrors.IsFilesystem(err):
			task.Fail(download.FailureFatal, err.Error())
			o.record(ctx, runID, task, result, err, builder, logger)
			return err
		}

		class := download.FailureFatal
		switch {
		case apperrors.IsTransient(err):
			class = download.FailureRetryable
		case apperrors.IsTruncated(err) || apperrors.IsCorrupt(err):
			if verifyFailures < o.cfg.VerifyRetries {
				class = download.FailureRetryable
			}
			verifyFailures++
		}
		task.Fail(class, err.Error())

		if !task.CanRetry() {
			o.record(ctx, runID, task, result, err, builder, logger)
			return nil
		}

		next := task.RetryCount() + 1
		logger.Warn("attempt failed, retrying",
			zap.Int("attempt", task.Attempts()),
			zap.Duration("backoff", o.backoff.Delay(next)),
			zap.Error(err),
		)
		if waitErr := o.backoff.Wait(ctx, next); waitErr != nil {
			task.Fail(download.FailureFatal, "interrupted")
			o.record(ctx, runID, task, result, waitErr, builder, logger)
			return waitErr
		}
		if err := task.Retry(); err != nil {
			o.record(ctx, runID, task, result, err, builder, logger)
			return nil
		}
	}
}

// attempt runs transfer, verify and expand once
func (o *Orchestrator) attempt(ctx context.Context, task *download.Task) (attemptResult, error) {
	var result attemptResult
	entry := task.Entry()
	canonical := entry.LocalPath(o.cfg.DataDir)

	if err := o.transferer.Transfer(ctx, task); err != nil {
		return result, err
	}

	if task.Status() == download.StatusSkipped {
		if entry.IsArchive() && !o.expander.Complete(o.bundle(entry)) {
			extracted, err := o.expand(ctx, entry, canonical)
			result.extracted = extracted
			return result, err
		}
		return result, nil
	}

	if err := task.StartVerifying(); err != nil {
		return result, apperrors.Wrap(apperrors.ErrorTypeInternal, "invalid task state", err)
	}
	vr := o.verifier.Verify(ctx, task.ID(), entry, canonical)
	result.verification = &vr
	switch vr.Outcome {
	case download.OutcomeOK:
	case download.OutcomeTruncated:
		return result, apperrors.Truncated(vr.Detail)
	case download.OutcomeMissing:
		return result, apperrors.Transient("file vanished after transfer: "+canonical, nil)
	default:
		return result, apperrors.Corrupt(vr.Detail)
	}

	if entry.IsArchive() {
		extracted, err := o.expand(ctx, entry, canonical)
		if err != nil {
			return result, err
		}
		result.extracted = extracted
	}

	if err := task.Complete(); err != nil {
		return result, apperrors.Wrap(apperrors.ErrorTypeInternal, "invalid task state", err)
	}

	if task.Transferred() {
		result.mirrorWarning = o.mirrorFiles(ctx, entry, canonical, result.extracted)
	}
	return result, nil
}

func (o *Orchestrator) bundle(entry catalog.Entry) download.ZoneBundle {
	return download.ZoneBundle{
		ArchivePath:     entry.LocalPath(o.cfg.DataDir),
		TargetDir:       entry.ExtractDir(o.cfg.DataDir),
		RequiredMembers: entry.RequiredMembers,
	}
}

// expand lays out the archive. A corrupt archive is removed so the retry
// fetches it again.
func (o *Orchestrator) expand(ctx context.Context, entry catalog.Entry, canonical string) ([]string, error) {
	extracted, err := o.expander.Expand(ctx, o.bundle(entry))
	if err != nil && apperrors.IsCorrupt(err) {
		if rmErr := os.Remove(canonical); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, apperrors.Filesystem("failed to remove corrupt archive", rmErr)
		}
	}
	return extracted, err
}

// mirrorFiles copies a freshly transferred file, and anything extracted from
// it, to the mirror. Failures never fail the task.
func (o *Orchestrator) mirrorFiles(ctx context.Context, entry catalog.Entry, canonical string, extracted []string) string {
	if o.mirror == nil {
		return ""
	}

	keys := map[string]string{entry.RelPath: canonical}
	for _, path := range extracted {
		rel, err := filepath.Rel(o.cfg.DataDir, path)
		if err != nil {
			continue
		}
		keys[filepath.ToSlash(rel)] = path
	}

	var errs []error
	for key, path := range keys {
		if err := o.mirror.Upload(ctx, key, path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if len(errs) == 0 {
		return ""
	}

	err := errors.Join(errs...)
	o.logger.Warn("mirror upload failed", zap.String("path", entry.RelPath), zap.Error(err))
	return err.Error()
}

// record adds the terminal outcome to the report and publishes its event
func (o *Orchestrator) record(
	ctx context.Context,
	runID uuid.UUID,
	task *download.Task,
	result attemptResult,
	err error,
	builder *download.ReportBuilder,
	logger *zap.Logger,
) {
	outcome := download.OutcomeFromTask(task)
	outcome.Verification = result.verification
	outcome.Extracted = result.extracted
	outcome.MirrorWarning = result.mirrorWarning

	var event domainevents.Event
	switch task.Status() {
	case download.StatusSkipped:
		logger.Info("skipped", zap.String("reason", task.SkipReason()))
		event = download.NewTaskSkipped(runID, task)

	case download.StatusComplete:
		logger.Info("complete",
			zap.Int64("bytes", task.BytesTransferred()),
			zap.Int64("resumed_from", task.ResumedFrom()),
			zap.Int("attempts", task.Attempts()),
		)
		event = download.NewTaskCompleted(runID, task)

	default:
		if outcome.Status != download.StatusFailed {
			task.Fail(download.FailureFatal, fmt.Sprintf("unexpected state %s", outcome.Status))
			outcome = download.OutcomeFromTask(task)
		}
		errType := apperrors.TypeOf(err)
		if errors.Is(err, context.Canceled) {
			errType = apperrors.ErrorTypeInternal
		}
		outcome.ErrorType = string(errType)
		if errType == apperrors.ErrorTypeNotAvailable {
			logger.Info("not published", zap.String("reason", task.Error()))
		} else {
			logger.Error("failed",
				zap.String("error_type", outcome.ErrorType),
				zap.Int("attempts", task.Attempts()),
				zap.Error(err),
			)
		}
		event = download.NewTaskFailed(runID, task, outcome.ErrorType)
	}

	builder.Add(outcome)
	o.publish(ctx, event)
}

// verifyAll checks local files only. It never touches the network.
func (o *Orchestrator) verifyAll(
	ctx context.Context,
	runID uuid.UUID,
	entries []catalog.Entry,
	builder *download.ReportBuilder,
	logger *zap.Logger,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			builder.Add(o.verifyOne(gctx, entry, logger))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (o *Orchestrator) verifyOne(ctx context.Context, entry catalog.Entry, logger *zap.Logger) download.TaskOutcome {
	taskID := uuid.New()
	start := time.Now()
	canonical := entry.LocalPath(o.cfg.DataDir)

	vr := o.verifier.Verify(ctx, taskID, entry, canonical)
	if vr.OK() && entry.IsArchive() && !o.expander.Complete(o.bundle(entry)) {
		vr = download.VerificationResult{
			TaskID:  taskID,
			Path:    entry.ExtractDir(o.cfg.DataDir),
			Outcome: download.OutcomeMissing,
			Detail:  "extraction directory is missing required members",
		}
	}

	outcome := download.TaskOutcome{
		TaskID:       taskID,
		Entry:        entry,
		Status:       download.StatusComplete,
		Attempts:     1,
		Verification: &vr,
		Duration:     time.Since(start),
	}
	if !vr.OK() {
		outcome.Status = download.StatusFailed
		outcome.Failure = download.FailureFatal
		outcome.Reason = vr.Detail
		switch vr.Outcome {
		case download.OutcomeTruncated:
			outcome.ErrorType = string(apperrors.ErrorTypeTruncated)
		case download.OutcomeCorrupt:
			outcome.ErrorType = string(apperrors.ErrorTypeCorrupt)
		}
		logger.Warn("verification failed",
			zap.String("path", entry.RelPath),
			zap.String("outcome", string(vr.Outcome)),
			zap.String("detail", vr.Detail),
		)
	}
	return outcome
}

// finish stores the report and announces it. Both are best effort.
func (o *Orchestrator) finish(ctx context.Context, report *download.RunReport, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if o.runs != nil && report.Mode != download.ModeList {
		if err := o.runs.Save(ctx, report); err != nil {
			logger.Warn("failed to save run history", zap.Error(err))
		}
	}
	o.publish(ctx, download.NewRunCompleted(report))

	logger.Info("run finished",
		zap.Int("resolved", report.Summary.Resolved),
		zap.Int("transferred", report.Summary.Transferred),
		zap.Int("skipped", report.Summary.Skipped),
		zap.Int("failed", report.Summary.Failed),
		zap.Bool("aborted", report.Aborted),
	)
}

func (o *Orchestrator) publish(ctx context.Context, event domainevents.Event) {
	if o.publisher == nil || event == nil {
		return
	}
	if err := o.publisher.PublishEvent(context.WithoutCancel(ctx), event); err != nil {
		o.logger.Warn("failed to publish event",
			zap.String("event_type", event.EventType()),
			zap.Error(err),
		)
	}
}
