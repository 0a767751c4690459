package download

import (
	"time"

	"github.com/google/uuid"

	domainevents "github.com/weathertaxi/tlcfetch/internal/domain/events"
)

const (
	aggregateTask = "Task"
	aggregateRun  = "Run"

	EventTaskSkipped   = "TaskSkipped"
	EventTaskCompleted = "TaskCompleted"
	EventTaskFailed    = "TaskFailed"
	EventRunCompleted  = "RunCompleted"
)

// TaskSkipped is emitted when a local file already satisfies a task
type TaskSkipped struct {
	domainevents.BaseEvent
	RunID  uuid.UUID `json:"run_id"`
	Path   string    `json:"path"`
	Reason string    `json:"reason"`
}

// NewTaskSkipped creates a new TaskSkipped event
func NewTaskSkipped(runID uuid.UUID, task *Task) *TaskSkipped {
	return &TaskSkipped{
		BaseEvent: domainevents.NewBaseEvent(task.ID(), aggregateTask, EventTaskSkipped, 1),
		RunID:     runID,
		Path:      task.Entry().RelPath,
		Reason:    task.SkipReason(),
	}
}

// TaskCompleted is emitted when a file has been transferred and verified
type TaskCompleted struct {
	domainevents.BaseEvent
	RunID            uuid.UUID     `json:"run_id"`
	Path             string        `json:"path"`
	URL              string        `json:"url"`
	BytesTransferred int64         `json:"bytes_transferred"`
	ResumedFrom      int64         `json:"resumed_from,omitempty"`
	Attempts         int           `json:"attempts"`
	Duration         time.Duration `json:"duration"`
}

// NewTaskCompleted creates a new TaskCompleted event
func NewTaskCompleted(runID uuid.UUID, task *Task) *TaskCompleted {
	var duration time.Duration
	if task.StartedAt() != nil && task.CompletedAt() != nil {
		duration = task.CompletedAt().Sub(*task.StartedAt())
	}
	return &TaskCompleted{
		BaseEvent:        domainevents.NewBaseEvent(task.ID(), aggregateTask, EventTaskCompleted, 1),
		RunID:            runID,
		Path:             task.Entry().RelPath,
		URL:              task.Entry().URL,
		BytesTransferred: task.BytesTransferred(),
		ResumedFrom:      task.ResumedFrom(),
		Attempts:         task.Attempts(),
		Duration:         duration,
	}
}

// TaskFailed is emitted when a task reaches a terminal failure
type TaskFailed struct {
	domainevents.BaseEvent
	RunID     uuid.UUID    `json:"run_id"`
	Path      string       `json:"path"`
	URL       string       `json:"url"`
	Failure   FailureClass `json:"failure"`
	ErrorType string       `json:"error_type"`
	Error     string       `json:"error"`
	Attempts  int          `json:"attempts"`
}

// NewTaskFailed creates a new TaskFailed event
func NewTaskFailed(runID uuid.UUID, task *Task, errorType string) *TaskFailed {
	return &TaskFailed{
		BaseEvent: domainevents.NewBaseEvent(task.ID(), aggregateTask, EventTaskFailed, 1),
		RunID:     runID,
		Path:      task.Entry().RelPath,
		URL:       task.Entry().URL,
		Failure:   task.Failure(),
		ErrorType: errorType,
		Error:     task.Error(),
		Attempts:  task.Attempts(),
	}
}

// RunCompleted is emitted once a run report has been built
type RunCompleted struct {
	domainevents.BaseEvent
	Mode        Mode    `json:"mode"`
	Summary     Summary `json:"summary"`
	Aborted     bool    `json:"aborted"`
	AbortReason string  `json:"abort_reason,omitempty"`
	Failed      bool    `json:"failed"`
}

// NewRunCompleted creates a new RunCompleted event
func NewRunCompleted(report *RunReport) *RunCompleted {
	return &RunCompleted{
		BaseEvent:   domainevents.NewBaseEvent(report.RunID, aggregateRun, EventRunCompleted, 1),
		Mode:        report.Mode,
		Summary:     report.Summary,
		Aborted:     report.Aborted,
		AbortReason: report.AbortReason,
		Failed:      report.Failed(),
	}
}
