package download

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	domainevents "github.com/weathertaxi/tlcfetch/internal/domain/events"
)

// Prober discovers remote size and range support without transferring a body
type Prober interface {
	// Probe issues a metadata-only request
	Probe(ctx context.Context, url string) (*RemoteInfo, error)
}

// Stream is an open response body for a transfer
type Stream struct {
	Body io.ReadCloser
	// Ranged is false when the remote ignored the range and sent the whole body
	Ranged bool
	// Length is the number of body bytes to expect, -1 when unknown
	Length int64
	// Total is the full resource size, -1 when unknown
	Total int64
	// Unsatisfiable is set on 416; Body is nil
	Unsatisfiable bool
}

// Fetcher opens remote bodies for transfer
type Fetcher interface {
	Prober

	// Open starts a GET at offset
	Open(ctx context.Context, url string, offset int64) (*Stream, error)
}

// Transferer moves one task's resource to its canonical path
type Transferer interface {
	Transfer(ctx context.Context, task *Task) error
}

// Verifier checks completed canonical files
type Verifier interface {
	// Verify runs every check and removes the file when it fails
	Verify(ctx context.Context, taskID uuid.UUID, entry catalog.Entry, path string) VerificationResult

	// Complete is the cheap skip check: size match when the size is known,
	// otherwise the format signature.
	Complete(entry catalog.Entry, path string) (bool, error)
}

// Expander lays out the zone-geometry bundle
type Expander interface {
	// Expand extracts the required members and returns their final paths
	Expand(ctx context.Context, bundle ZoneBundle) ([]string, error)

	// Complete reports whether the target already holds every required member
	Complete(bundle ZoneBundle) bool
}

// Estimator computes pre-flight sizes
type Estimator interface {
	Estimate(ctx context.Context, entries []catalog.Entry) (*Estimate, error)
}

// Mirror copies verified files to secondary storage
type Mirror interface {
	Upload(ctx context.Context, key string, localPath string) error
	Close() error
}

// ProgressSink receives byte counts as data arrives
type ProgressSink interface {
	Started(entry catalog.Entry, offset, total int64)
	Add(n int64)
	Finished(entry catalog.Entry)
}

// RunSummary is a persisted row of run history
type RunSummary struct {
	RunID       uuid.UUID `json:"run_id" yaml:"run_id"`
	Mode        Mode      `json:"mode" yaml:"mode"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time `json:"finished_at" yaml:"finished_at"`
	Resolved    int       `json:"resolved" yaml:"resolved"`
	Transferred int       `json:"transferred" yaml:"transferred"`
	Skipped     int       `json:"skipped" yaml:"skipped"`
	Failed      int       `json:"failed" yaml:"failed"`
	Aborted     bool      `json:"aborted" yaml:"aborted"`
}

// RunRepository stores finished run reports. It is write-mostly history and
// is never consulted when deciding whether a file needs fetching.
type RunRepository interface {
	// Save saves a run report and its outcomes
	Save(ctx context.Context, report *RunReport) error

	// FindRecent lists the latest runs, newest first
	FindRecent(ctx context.Context, limit int) ([]RunSummary, error)

	// FindOutcomes lists the task outcomes stored for a run
	FindOutcomes(ctx context.Context, runID uuid.UUID) ([]TaskOutcome, error)
}

// EventPublisher publishes run and task events
type EventPublisher interface {
	PublishEvent(ctx context.Context, event domainevents.Event) error
}
