package download

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	apperrors "github.com/weathertaxi/tlcfetch/pkg/errors"
)

// Mode selects what a run does with the resolved catalog
type Mode string

const (
	ModeList     Mode = "list"
	ModeEstimate Mode = "estimate"
	ModeVerify   Mode = "verify"
	ModeDownload Mode = "download"
)

// Outcome is the result of verifying one local file
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTruncated Outcome = "truncated"
	OutcomeCorrupt   Outcome = "corrupt"
	OutcomeMissing   Outcome = "missing"
)

// VerificationResult is produced once per verified task
type VerificationResult struct {
	TaskID  uuid.UUID `json:"task_id" yaml:"task_id"`
	Path    string    `json:"path" yaml:"path"`
	Outcome Outcome   `json:"outcome" yaml:"outcome"`
	Detail  string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	Removed bool      `json:"removed,omitempty" yaml:"removed,omitempty"`
}

// OK reports whether the file passed every check
func (v VerificationResult) OK() bool {
	return v.Outcome == OutcomeOK
}

// EstimateSource tells where a per-entry size came from
type EstimateSource string

const (
	SourceKnown     EstimateSource = "known"
	SourceProbe     EstimateSource = "probe"
	SourceHeuristic EstimateSource = "heuristic"
)

// EntryEstimate is the expected size of a single entry
type EntryEstimate struct {
	Path   string         `json:"path" yaml:"path"`
	Bytes  int64          `json:"bytes" yaml:"bytes"`
	Source EstimateSource `json:"source" yaml:"source"`
}

// Estimate is the pre-flight size report for a resolved list
type Estimate struct {
	TotalBytes int64           `json:"total_bytes" yaml:"total_bytes"`
	Entries    []EntryEstimate `json:"entries" yaml:"entries"`
}

// TaskOutcome is the terminal record of one task
type TaskOutcome struct {
	TaskID           uuid.UUID           `json:"task_id" yaml:"task_id"`
	Entry            catalog.Entry       `json:"entry" yaml:"entry"`
	Status           Status              `json:"status" yaml:"status"`
	Failure          FailureClass        `json:"failure,omitempty" yaml:"failure,omitempty"`
	ErrorType        string              `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	Reason           string              `json:"reason,omitempty" yaml:"reason,omitempty"`
	Attempts         int                 `json:"attempts" yaml:"attempts"`
	Transferred      bool                `json:"transferred" yaml:"transferred"`
	BytesTransferred int64               `json:"bytes_transferred" yaml:"bytes_transferred"`
	ResumedFrom      int64               `json:"resumed_from,omitempty" yaml:"resumed_from,omitempty"`
	Verification     *VerificationResult `json:"verification,omitempty" yaml:"verification,omitempty"`
	Extracted        []string            `json:"extracted,omitempty" yaml:"extracted,omitempty"`
	MirrorWarning    string              `json:"mirror_warning,omitempty" yaml:"mirror_warning,omitempty"`
	Duration         time.Duration       `json:"duration" yaml:"duration"`
}

// OutcomeFromTask snapshots a task in a terminal state
func OutcomeFromTask(t *Task) TaskOutcome {
	o := TaskOutcome{
		TaskID:           t.ID(),
		Entry:            t.Entry(),
		Status:           t.Status(),
		Failure:          t.Failure(),
		Attempts:         t.Attempts(),
		Transferred:      t.Transferred(),
		BytesTransferred: t.BytesTransferred(),
		ResumedFrom:      t.ResumedFrom(),
	}
	switch t.Status() {
	case StatusFailed:
		o.Reason = t.Error()
	case StatusSkipped:
		o.Reason = t.SkipReason()
	}
	if t.StartedAt() != nil && t.CompletedAt() != nil {
		o.Duration = t.CompletedAt().Sub(*t.StartedAt())
	}
	return o
}

// Summary counts outcomes by category
type Summary struct {
	Resolved      int `json:"resolved" yaml:"resolved"`
	NotApplicable int `json:"not_applicable" yaml:"not_applicable"`
	Transferred   int `json:"transferred" yaml:"transferred"`
	Complete      int `json:"complete" yaml:"complete"`
	Skipped       int `json:"skipped" yaml:"skipped"`
	Failed        int `json:"failed" yaml:"failed"`
	NotAvailable  int `json:"not_available" yaml:"not_available"`
	Verified      int `json:"verified" yaml:"verified"`
	Invalid       int `json:"invalid" yaml:"invalid"`
	Missing       int `json:"missing" yaml:"missing"`
}

// RunReport is the immutable aggregate handed back to the caller
type RunReport struct {
	RunID         uuid.UUID               `json:"run_id" yaml:"run_id"`
	Mode          Mode                    `json:"mode" yaml:"mode"`
	Selection     catalog.Selection       `json:"selection" yaml:"selection"`
	StartedAt     time.Time               `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time               `json:"finished_at" yaml:"finished_at"`
	Entries       []catalog.Entry         `json:"entries" yaml:"entries"`
	NotApplicable []catalog.NotApplicable `json:"not_applicable,omitempty" yaml:"not_applicable,omitempty"`
	Estimate      *Estimate               `json:"estimate,omitempty" yaml:"estimate,omitempty"`
	Outcomes      []TaskOutcome           `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Aborted       bool                    `json:"aborted,omitempty" yaml:"aborted,omitempty"`
	AbortReason   string                  `json:"abort_reason,omitempty" yaml:"abort_reason,omitempty"`
	Summary       Summary                 `json:"summary" yaml:"summary"`
}

// Failed reports whether the run should signal a non-zero result: it aborted,
// a resource failed for a reason other than never having been published, or
// verification found invalid or missing files.
func (r *RunReport) Failed() bool {
	return r.Aborted ||
		r.Summary.Failed-r.Summary.NotAvailable > 0 ||
		r.Summary.Invalid > 0 ||
		r.Summary.Missing > 0
}

// ReportBuilder accumulates outcomes from concurrent workers. Every mutation
// goes through one mutex; Build freezes the result.
type ReportBuilder struct {
	mu     sync.Mutex
	report RunReport
	built  bool
}

// NewReportBuilder starts a report for a new run
func NewReportBuilder(runID uuid.UUID, mode Mode, sel catalog.Selection) *ReportBuilder {
	return &ReportBuilder{
		report: RunReport{
			RunID:     runID,
			Mode:      mode,
			Selection: sel,
			StartedAt: time.Now(),
		},
	}
}

// SetResolution records the resolved catalog
func (b *ReportBuilder) SetResolution(res *Resolution) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built || res == nil {
		return
	}
	b.report.Entries = append([]catalog.Entry(nil), res.Entries...)
	b.report.NotApplicable = append([]catalog.NotApplicable(nil), res.NotApplicable...)
}

// SetEstimate records the size estimate
func (b *ReportBuilder) SetEstimate(est *Estimate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return
	}
	b.report.Estimate = est
}

// Add appends one terminal task outcome
func (b *ReportBuilder) Add(o TaskOutcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return
	}
	b.report.Outcomes = append(b.report.Outcomes, o)
}

// Abort marks the run as aborted; the first reason wins
func (b *ReportBuilder) Abort(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built || b.report.Aborted {
		return
	}
	b.report.Aborted = true
	b.report.AbortReason = reason
}

// Build freezes the report. Outcomes are ordered by catalog path so repeated
// runs render identically regardless of completion order.
func (b *ReportBuilder) Build() *RunReport {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.built {
		b.built = true
		b.report.FinishedAt = time.Now()
		order := make(map[string]int, len(b.report.Entries))
		for i, e := range b.report.Entries {
			order[e.RelPath] = i
		}
		sort.SliceStable(b.report.Outcomes, func(i, j int) bool {
			return order[b.report.Outcomes[i].Entry.RelPath] < order[b.report.Outcomes[j].Entry.RelPath]
		})
		b.report.Summary = summarize(&b.report)
	}

	out := b.report
	out.Entries = append([]catalog.Entry(nil), b.report.Entries...)
	out.Outcomes = append([]TaskOutcome(nil), b.report.Outcomes...)
	return &out
}

func summarize(r *RunReport) Summary {
	s := Summary{
		Resolved:      len(r.Entries),
		NotApplicable: len(r.NotApplicable),
	}
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusComplete:
			s.Complete++
			if o.Transferred {
				s.Transferred++
			}
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
			if o.ErrorType == string(apperrors.ErrorTypeNotAvailable) {
				s.NotAvailable++
			}
		}
		if v := o.Verification; v != nil && r.Mode == ModeVerify {
			switch v.Outcome {
			case OutcomeOK:
				s.Verified++
			case OutcomeMissing:
				s.Missing++
			default:
				s.Invalid++
			}
		}
	}
	return s
}

// Resolution aliases the catalog result so callers of this package need not
// import catalog for it.
type Resolution = catalog.Resolution
