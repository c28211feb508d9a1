package repository

import (
	"context"
	"unicode/utf8"

	"gorm.io/gorm"

	"lessonscope/internal/model"
)

const maxErrorMessage = 500

// ReportRepository defines report persistence operations.
type ReportRepository interface {
	Create(ctx context.Context, report *model.Report) error
	FindByID(ctx context.Context, id string) (*model.Report, error)
	FindByRecordingID(ctx context.Context, recordingID string) (*model.Report, error)
	List(ctx context.Context, filter ListFilter) ([]model.Report, error)
	Count(ctx context.Context, userID string) (int64, error)
	// Complete writes the analysis result and moves a processing report to completed.
	Complete(ctx context.Context, id string, result model.ReportResult) error
	// MarkFailed moves a processing report to failed without touching result fields.
	MarkFailed(ctx context.Context, id, reason string) error
	// FailProcessing marks every processing report failed with reason.
	FailProcessing(ctx context.Context, reason string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository creates a new report repository.
func NewReportRepository(db *gorm.DB) ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Create(ctx context.Context, report *model.Report) error {
	return translate("create report", r.db.WithContext(ctx).Create(report).Error)
}

func (r *reportRepository) FindByID(ctx context.Context, id string) (*model.Report, error) {
	var report model.Report
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&report).Error; err != nil {
		return nil, translate("report", err)
	}
	return &report, nil
}

func (r *reportRepository) FindByRecordingID(ctx context.Context, recordingID string) (*model.Report, error) {
	var report model.Report
	if err := r.db.WithContext(ctx).Where("recording_id = ?", recordingID).First(&report).Error; err != nil {
		return nil, translate("report", err)
	}
	return &report, nil
}

// List returns one page of reports, newest first.
func (r *reportRepository) List(ctx context.Context, filter ListFilter) ([]model.Report, error) {
	filter = filter.Normalize()
	reports := []model.Report{}
	err := scopeUser(r.db.WithContext(ctx), filter.UserID).
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&reports).Error
	if err != nil {
		return nil, translate("list reports", err)
	}
	return reports, nil
}

func (r *reportRepository) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := scopeUser(r.db.WithContext(ctx).Model(&model.Report{}), userID).Count(&n).Error
	return n, translate("count reports", err)
}

func (r *reportRepository) Complete(ctx context.Context, id string, result model.ReportResult) error {
	res := r.db.WithContext(ctx).Model(&model.Report{}).
		Where("id = ? AND status = ?", id, model.ReportStatusProcessing).
		Updates(map[string]any{
			"transcript":            result.Transcript,
			"segments":              result.Segments,
			"analysis":              result.Analysis,
			"teacher_speech_rate":   result.TeacherSpeechRate,
			"student_participation": result.StudentParticipation,
			"interaction_quality":   result.InteractionQuality,
			"content_structure":     result.ContentStructure,
			"overall_score":         result.OverallScore,
			"suggestions":           result.Suggestions,
			"status":                model.ReportStatusCompleted,
		})
	if res.Error != nil {
		return translate("complete report", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("processing report", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *reportRepository) MarkFailed(ctx context.Context, id, reason string) error {
	res := r.db.WithContext(ctx).Model(&model.Report{}).
		Where("id = ? AND status = ?", id, model.ReportStatusProcessing).
		Updates(map[string]any{
			"status":        model.ReportStatusFailed,
			"error_message": truncate(reason, maxErrorMessage),
		})
	if res.Error != nil {
		return translate("fail report", res.Error)
	}
	return nil
}

func (r *reportRepository) FailProcessing(ctx context.Context, reason string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Report{}).
		Where("status = ?", model.ReportStatusProcessing).
		Updates(map[string]any{
			"status":        model.ReportStatusFailed,
			"error_message": truncate(reason, maxErrorMessage),
		})
	if res.Error != nil {
		return 0, translate("fail processing reports", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *reportRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Report{})
	if res.Error != nil {
		return translate("delete report", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("report", gorm.ErrRecordNotFound)
	}
	return nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
