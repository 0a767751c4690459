package gorm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weathertaxi/tlcfetch/internal/domain/catalog"
	"github.com/weathertaxi/tlcfetch/internal/domain/download"
)

// RunModel represents one finished run
type RunModel struct {
	ID          string    `gorm:"type:varchar(36);primaryKey"`
	Mode        string    `gorm:"not null;index"`
	Selection   string    `gorm:"type:text"`
	StartedAt   time.Time `gorm:"not null;index"`
	FinishedAt  time.Time `gorm:"not null"`
	Resolved    int
	Transferred int
	Skipped     int
	Complete    int
	Failed      int
	Aborted     bool
	AbortReason string
	CreatedAt   time.Time `gorm:"not null"`

	Outcomes []OutcomeModel `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name
func (RunModel) TableName() string {
	return "runs"
}

// OutcomeModel represents the terminal record of one task within a run
type OutcomeModel struct {
	ID               uint   `gorm:"primaryKey;autoIncrement"`
	RunID            string `gorm:"type:varchar(36);not null;index"`
	Position         int    `gorm:"not null"`
	TaskID           string `gorm:"type:varchar(36)"`
	Kind             string `gorm:"not null"`
	Name             string `gorm:"not null"`
	Year             int
	Month            int
	URL              string `gorm:"not null"`
	Path             string `gorm:"not null;index"`
	Format           string
	Status           string `gorm:"not null"`
	Failure          string
	ErrorType        string
	Reason           string `gorm:"type:text"`
	Attempts         int
	Transferred      bool
	BytesTransferred int64
	ResumedFrom      int64
	Verification     string
	MirrorWarning    string `gorm:"type:text"`
	DurationNanos    int64
}

// TableName specifies the table name
func (OutcomeModel) TableName() string {
	return "run_outcomes"
}

// RunRepository stores run reports using GORM
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Save saves a run report and its outcomes
func (r *RunRepository) Save(ctx context.Context, report *download.RunReport) error {
	model, err := toRunModel(report)
	if err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", model.ID).Delete(&OutcomeModel{}).Error; err != nil {
			return err
		}
		outcomes := model.Outcomes
		model.Outcomes = nil
		if err := tx.Save(model).Error; err != nil {
			return err
		}
		if len(outcomes) == 0 {
			return nil
		}
		return tx.CreateInBatches(outcomes, 200).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// FindRecent lists the latest runs, newest first
func (r *RunRepository) FindRecent(ctx context.Context, limit int) ([]download.RunSummary, error) {
	var models []RunModel

	query := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]download.RunSummary, 0, len(models))
	for i := range models {
		runs = append(runs, toRunSummary(&models[i]))
	}

	return runs, nil
}

// FindOutcomes lists the task outcomes stored for a run
func (r *RunRepository) FindOutcomes(ctx context.Context, runID uuid.UUID) ([]download.TaskOutcome, error) {
	var models []OutcomeModel

	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID.String()).
		Order("position ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find outcomes: %w", err)
	}

	outcomes := make([]download.TaskOutcome, 0, len(models))
	for i := range models {
		outcomes = append(outcomes, toDomainOutcome(&models[i]))
	}

	return outcomes, nil
}

func toRunModel(report *download.RunReport) (*RunModel, error) {
	sel, err := json.Marshal(report.Selection)
	if err != nil {
		return nil, fmt.Errorf("encode selection: %w", err)
	}

	model := &RunModel{
		ID:          report.RunID.String(),
		Mode:        string(report.Mode),
		Selection:   string(sel),
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		Resolved:    report.Summary.Resolved,
		Transferred: report.Summary.Transferred,
		Skipped:     report.Summary.Skipped,
		Complete:    report.Summary.Complete,
		Failed:      report.Summary.Failed,
		Aborted:     report.Aborted,
		AbortReason: report.AbortReason,
	}

	for i, o := range report.Outcomes {
		m := OutcomeModel{
			RunID:            model.ID,
			Position:         i,
			Kind:             string(o.Entry.Kind),
			Name:             o.Entry.Name,
			Year:             o.Entry.Year,
			Month:            o.Entry.Month,
			URL:              o.Entry.URL,
			Path:             o.Entry.RelPath,
			Format:           string(o.Entry.Format),
			Status:           string(o.Status),
			Failure:          string(o.Failure),
			ErrorType:        o.ErrorType,
			Reason:           o.Reason,
			Attempts:         o.Attempts,
			Transferred:      o.Transferred,
			BytesTransferred: o.BytesTransferred,
			ResumedFrom:      o.ResumedFrom,
			MirrorWarning:    o.MirrorWarning,
			DurationNanos:    int64(o.Duration),
		}
		if o.TaskID != uuid.Nil {
			m.TaskID = o.TaskID.String()
		}
		if o.Verification != nil {
			m.Verification = string(o.Verification.Outcome)
		}
		model.Outcomes = append(model.Outcomes, m)
	}

	return model, nil
}

func toRunSummary(m *RunModel) download.RunSummary {
	id, _ := uuid.Parse(m.ID)
	return download.RunSummary{
		RunID:       id,
		Mode:        download.Mode(m.Mode),
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
		Resolved:    m.Resolved,
		Transferred: m.Transferred,
		Skipped:     m.Skipped,
		Failed:      m.Failed,
		Aborted:     m.Aborted,
	}
}

func toDomainOutcome(m *OutcomeModel) download.TaskOutcome {
	o := download.TaskOutcome{
		Entry: catalog.Entry{
			Kind:    catalog.Kind(m.Kind),
			Name:    m.Name,
			Year:    m.Year,
			Month:   m.Month,
			URL:     m.URL,
			RelPath: m.Path,
			Format:  catalog.Format(m.Format),
		},
		Status:           download.Status(m.Status),
		Failure:          download.FailureClass(m.Failure),
		ErrorType:        m.ErrorType,
		Reason:           m.Reason,
		Attempts:         m.Attempts,
		Transferred:      m.Transferred,
		BytesTransferred: m.BytesTransferred,
		ResumedFrom:      m.ResumedFrom,
		MirrorWarning:    m.MirrorWarning,
		Duration:         time.Duration(m.DurationNanos),
	}
	if m.TaskID != "" {
		o.TaskID, _ = uuid.Parse(m.TaskID)
	}
	if m.Verification != "" {
		o.Verification = &download.VerificationResult{
			TaskID:  o.TaskID,
			Path:    m.Path,
			Outcome: download.Outcome(m.Verification),
		}
	}
	return o
}
