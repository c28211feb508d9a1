package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReportStatus represents the lifecycle of an analysis report.
type ReportStatus string

const (
	ReportStatusProcessing ReportStatus = "processing"
	ReportStatusCompleted  ReportStatus = "completed"
	ReportStatusFailed     ReportStatus = "failed"
)

// Report is the analysis result for exactly one recording.
type Report struct {
	ID                   string              `json:"id" gorm:"type:char(36);primaryKey"`
	RecordingID          string              `json:"recording_id" gorm:"type:char(36);not null;uniqueIndex"`
	UserID               string              `json:"user_id" gorm:"type:char(36);not null;index"`
	Transcript           *string             `json:"transcript" gorm:"type:longtext"`
	Segments             Segments            `json:"segments" gorm:"type:json"`
	Analysis             RawJSON             `json:"analysis" gorm:"type:json"`
	TeacherSpeechRate    decimal.NullDecimal `json:"teacher_speech_rate" gorm:"type:decimal(5,2)"`
	StudentParticipation decimal.NullDecimal `json:"student_participation" gorm:"type:decimal(5,2)"`
	InteractionQuality   decimal.NullDecimal `json:"interaction_quality" gorm:"type:decimal(5,2)"`
	ContentStructure     decimal.NullDecimal `json:"content_structure" gorm:"type:decimal(5,2)"`
	OverallScore         decimal.NullDecimal `json:"overall_score" gorm:"type:decimal(5,2)"`
	Suggestions          StringList          `json:"suggestions" gorm:"type:text"`
	ErrorMessage         *string             `json:"error_message,omitempty" gorm:"size:500"`
	Status               ReportStatus        `json:"status" gorm:"type:enum('processing','completed','failed');default:'processing'"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// BeforeCreate sets UUID and the initial status before creating the record.
func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = ReportStatusProcessing
	}
	return nil
}

// ReportResult is everything the pipeline writes when a report completes.
type ReportResult struct {
	Transcript           string
	Segments             Segments
	Analysis             RawJSON
	TeacherSpeechRate    decimal.Decimal
	StudentParticipation decimal.Decimal
	InteractionQuality   decimal.Decimal
	ContentStructure     decimal.Decimal
	OverallScore         decimal.Decimal
	Suggestions          StringList
}
