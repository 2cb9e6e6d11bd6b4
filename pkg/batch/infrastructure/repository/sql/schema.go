package sql

import (
	"time"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
)

// RunExecutionEntity is the schema model of a run history record.
type RunExecutionEntity struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Operation    string    `gorm:"size:64;not null;index:idx_run_latest,priority:1"`
	TenantID     string    `gorm:"size:64;not null;index:idx_run_latest,priority:2"`
	BusinessDate time.Time `gorm:"not null"`
	Status       string    `gorm:"size:16;not null"`
	StartTime    time.Time `gorm:"index:idx_run_latest,priority:3"`
	EndTime      *time.Time
	Pages        int             `gorm:"not null"`
	Processed    int             `gorm:"not null"`
	FailedCount  int             `gorm:"not null"`
	Failures     []model.Failure `gorm:"serializer:json;type:text"`
	ExitMessage  string          `gorm:"size:2048"`
	Version      int             `gorm:"not null"`
	LastUpdated  time.Time       `gorm:"autoUpdateTime"`
}

// TableName returns the table name for RunExecutionEntity.
func (RunExecutionEntity) TableName() string {
	return "batch_run_execution"
}

func fromDomainRunExecution(e *model.RunExecution) *RunExecutionEntity {
	return &RunExecutionEntity{
		ID:           e.ID,
		Operation:    e.Operation,
		TenantID:     e.TenantID,
		BusinessDate: e.BusinessDate,
		Status:       e.Status.String(),
		StartTime:    e.StartTime,
		EndTime:      e.EndTime,
		Pages:        e.Pages,
		Processed:    e.Processed,
		FailedCount:  len(e.Failures),
		Failures:     e.Failures,
		ExitMessage:  e.ExitMessage,
		Version:      e.Version,
	}
}

func toDomainRunExecution(entity *RunExecutionEntity) *model.RunExecution {
	return &model.RunExecution{
		ID:           entity.ID,
		Operation:    entity.Operation,
		TenantID:     entity.TenantID,
		BusinessDate: entity.BusinessDate,
		Status:       model.BatchStatus(entity.Status),
		StartTime:    entity.StartTime,
		EndTime:      entity.EndTime,
		Pages:        entity.Pages,
		Processed:    entity.Processed,
		Failures:     entity.Failures,
		ExitMessage:  entity.ExitMessage,
		Version:      entity.Version,
	}
}
