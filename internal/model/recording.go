package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RecordingStatus represents the lifecycle of an uploaded audio asset.
type RecordingStatus string

const (
	RecordingStatusUploading  RecordingStatus = "uploading"
	RecordingStatusUploaded   RecordingStatus = "uploaded"
	RecordingStatusProcessing RecordingStatus = "processing"
	RecordingStatusCompleted  RecordingStatus = "completed"
	RecordingStatusFailed     RecordingStatus = "failed"
)

// recordingTransitions lists the only moves the pipeline may make.
var recordingTransitions = map[RecordingStatus][]RecordingStatus{
	RecordingStatusUploading:  {RecordingStatusUploaded},
	RecordingStatusUploaded:   {RecordingStatusProcessing},
	RecordingStatusProcessing: {RecordingStatusCompleted, RecordingStatusFailed},
}

// CanTransition reports whether from -> to is a legal recording status move.
func CanTransition(from, to RecordingStatus) bool {
	for _, next := range recordingTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Recording is one uploaded classroom audio file owned by a user.
type Recording struct {
	ID        string          `json:"id" gorm:"type:char(36);primaryKey"`
	UserID    string          `json:"user_id" gorm:"type:char(36);not null;index"`
	Title     string          `json:"title" gorm:"size:200;not null"`
	Duration  int             `json:"duration" gorm:"not null"`
	FileSize  int64           `json:"file_size" gorm:"not null"`
	FileURL   string          `json:"file_url" gorm:"size:500;not null"`
	Status    RecordingStatus `json:"status" gorm:"type:enum('uploading','uploaded','processing','completed','failed');default:'uploaded';index"`
	CreatedAt time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BeforeCreate sets UUID and the initial status before creating the record.
func (r *Recording) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = RecordingStatusUploaded
	}
	return nil
}
