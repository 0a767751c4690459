package download

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
)

// Status represents the status of a download task
type Status string

const (
	StatusPending      Status = "pending"
	StatusProbing      Status = "probing"
	StatusTransferring Status = "transferring"
	StatusVerifying    Status = "verifying"
	StatusComplete     Status = "complete"
	StatusSkipped      Status = "skipped"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusSkipped || s == StatusFailed
}

// FailureClass tells the orchestrator whether a failed task may be retried
type FailureClass string

const (
	FailureNone      FailureClass = ""
	FailureRetryable FailureClass = "retryable"
	FailureFatal     FailureClass = "fatal"
)

// Task tracks one catalog entry through probe, transfer, verify and expand.
// A task is owned by a single worker; it is not safe for concurrent use.
type Task struct {
	id               uuid.UUID
	entry            catalog.Entry
	status           Status
	failure          FailureClass
	bytesTransferred int64
	totalBytes       int64
	resumedFrom      int64
	transferred      bool
	error            string
	skipReason       string
	retryCount       int
	maxRetries       int
	startedAt        *time.Time
	completedAt      *time.Time
	createdAt        time.Time
	updatedAt        time.Time
}

// NewTask creates a pending task for entry
func NewTask(entry catalog.Entry, maxRetries int) (*Task, error) {
	if entry.URL == "" {
		return nil, fmt.Errorf("download URL is required")
	}
	if entry.RelPath == "" {
		return nil, fmt.Errorf("target path is required")
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	now := time.Now()
	return &Task{
		id:         uuid.New(),
		entry:      entry,
		status:     StatusPending,
		totalBytes: entry.ExpectedSize,
		maxRetries: maxRetries,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// Getters
func (t *Task) ID() uuid.UUID             { return t.id }
func (t *Task) Entry() catalog.Entry      { return t.entry }
func (t *Task) Status() Status            { return t.status }
func (t *Task) Failure() FailureClass     { return t.failure }
func (t *Task) BytesTransferred() int64   { return t.bytesTransferred }
func (t *Task) TotalBytes() int64         { return t.totalBytes }
func (t *Task) ResumedFrom() int64        { return t.resumedFrom }
func (t *Task) Transferred() bool         { return t.transferred }
func (t *Task) Error() string             { return t.error }
func (t *Task) SkipReason() string        { return t.skipReason }
func (t *Task) RetryCount() int           { return t.retryCount }
func (t *Task) MaxRetries() int           { return t.maxRetries }
func (t *Task) StartedAt() *time.Time     { return t.startedAt }
func (t *Task) CompletedAt() *time.Time   { return t.completedAt }
func (t *Task) CreatedAt() time.Time      { return t.createdAt }
func (t *Task) UpdatedAt() time.Time      { return t.updatedAt }

// StartProbing marks the metadata probe as started
func (t *Task) StartProbing() error {
	if t.status != StatusPending {
		return fmt.Errorf("cannot probe task in status %s", t.status)
	}

	now := time.Now()
	t.status = StatusProbing
	if t.startedAt == nil {
		t.startedAt = &now
	}
	t.updatedAt = now
	return nil
}

// StartTransfer marks the body transfer as started at offset of total bytes.
// total is zero when the remote size is unknown.
func (t *Task) StartTransfer(offset, total int64) error {
	if t.status != StatusProbing {
		return fmt.Errorf("cannot start transfer in status %s", t.status)
	}

	t.status = StatusTransferring
	t.resumedFrom = offset
	t.bytesTransferred = offset
	if total > 0 {
		t.totalBytes = total
	}
	t.updatedAt = time.Now()
	return nil
}

// RestartTransfer resets the byte count when the remote ignored a range request.
func (t *Task) RestartTransfer() {
	t.resumedFrom = 0
	t.bytesTransferred = 0
	t.updatedAt = time.Now()
}

// AddBytes records n more bytes written to the in-progress file
func (t *Task) AddBytes(n int64) {
	t.bytesTransferred += n
	t.transferred = true
}

// Promote records that a partial file left by an earlier attempt was moved
// into place in this one without needing more bytes.
func (t *Task) Promote(size int64) {
	t.resumedFrom = size
	t.bytesTransferred = size
	if size > 0 {
		t.totalBytes = size
	}
	t.transferred = true
	t.updatedAt = time.Now()
}

// StartVerifying marks the task as verifying
func (t *Task) StartVerifying() error {
	if t.status != StatusTransferring && t.status != StatusProbing {
		return fmt.Errorf("cannot start verifying in status %s", t.status)
	}

	t.status = StatusVerifying
	t.updatedAt = time.Now()
	return nil
}

// Complete marks the task as complete
func (t *Task) Complete() error {
	if t.status != StatusVerifying {
		return fmt.Errorf("cannot complete task in status %s", t.status)
	}

	now := time.Now()
	t.status = StatusComplete
	t.failure = FailureNone
	t.error = ""
	t.completedAt = &now
	t.updatedAt = now
	return nil
}

// Skip marks a pending task as already satisfied by the local file
func (t *Task) Skip(reason string) error {
	if t.status != StatusPending {
		return fmt.Errorf("cannot skip task in status %s", t.status)
	}

	now := time.Now()
	t.status = StatusSkipped
	t.skipReason = reason
	t.completedAt = &now
	t.updatedAt = now
	return nil
}

// Fail marks the task as failed with the given class
func (t *Task) Fail(class FailureClass, err string) {
	now := time.Now()
	t.status = StatusFailed
	t.failure = class
	t.error = err
	t.completedAt = &now
	t.updatedAt = now
}

// CanRetry reports whether another attempt is allowed
func (t *Task) CanRetry() bool {
	return t.status == StatusFailed && t.failure == FailureRetryable && t.retryCount < t.maxRetries
}

// Retry moves a retryable failure back to pending and counts the attempt
func (t *Task) Retry() error {
	if !t.CanRetry() {
		return fmt.Errorf("cannot retry task in status %s (%s), retries %d/%d",
			t.status, t.failure, t.retryCount, t.maxRetries)
	}

	t.retryCount++
	t.status = StatusPending
	t.failure = FailureNone
	t.completedAt = nil
	t.updatedAt = time.Now()
	return nil
}

// Attempts returns the number of attempts made so far
func (t *Task) Attempts() int {
	return t.retryCount + 1
}

// Progress returns a snapshot of the transfer progress
func (t *Task) Progress() Progress {
	return Progress{
		BytesDownloaded: t.bytesTransferred,
		TotalBytes:      t.totalBytes,
	}
}

// Progress tracks download progress
type Progress struct {
	BytesDownloaded int64
	TotalBytes      int64
}

// PercentComplete returns the completion percentage
func (p *Progress) PercentComplete() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	return float64(p.BytesDownloaded) / float64(p.TotalBytes) * 100
}

// RemoteInfo is the result of a metadata-only probe
type RemoteInfo struct {
	Size          int64 // -1 when unknown
	AcceptsRanges bool
	ETag          string
	ContentType   string
}

// ZoneBundle describes an archive and where its required members must land.
type ZoneBundle struct {
	ArchivePath     string
	TargetDir       string
	RequiredMembers []string
}
