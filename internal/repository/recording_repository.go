package repository

import (
	"context"

	"gorm.io/gorm"

	"lessonscope/internal/model"
)

// RecordingRepository defines recording persistence operations.
type RecordingRepository interface {
	Create(ctx context.Context, recording *model.Recording) error
	FindByID(ctx context.Context, id string) (*model.Recording, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.Recording, error)
	List(ctx context.Context, filter ListFilter) ([]model.Recording, error)
	Count(ctx context.Context, userID string) (int64, error)
	UpdateTitle(ctx context.Context, id, title string) error
	// TransitionStatus moves the recording from one status to another in a
	// single conditional UPDATE. It reports false when the recording was not in from.
	TransitionStatus(ctx context.Context, id string, from, to model.RecordingStatus) (bool, error)
	// FailProcessing moves every processing recording to failed.
	FailProcessing(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}

type recordingRepository struct {
	db *gorm.DB
}

// NewRecordingRepository creates a new recording repository.
func NewRecordingRepository(db *gorm.DB) RecordingRepository {
	return &recordingRepository{db: db}
}

func (r *recordingRepository) Create(ctx context.Context, recording *model.Recording) error {
	return translate("create recording", r.db.WithContext(ctx).Create(recording).Error)
}

func (r *recordingRepository) FindByID(ctx context.Context, id string) (*model.Recording, error) {
	var recording model.Recording
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&recording).Error; err != nil {
		return nil, translate("recording", err)
	}
	return &recording, nil
}

func (r *recordingRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Recording, error) {
	var recordings []model.Recording
	if len(ids) == 0 {
		return recordings, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&recordings).Error; err != nil {
		return nil, translate("recordings", err)
	}
	return recordings, nil
}

// List returns one page of recordings, newest first.
func (r *recordingRepository) List(ctx context.Context, filter ListFilter) ([]model.Recording, error) {
	filter = filter.Normalize()
	recordings := []model.Recording{}
	err := scopeUser(r.db.WithContext(ctx), filter.UserID).
		Order("created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&recordings).Error
	if err != nil {
		return nil, translate("list recordings", err)
	}
	return recordings, nil
}

func (r *recordingRepository) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := scopeUser(r.db.WithContext(ctx).Model(&model.Recording{}), userID).Count(&n).Error
	return n, translate("count recordings", err)
}

func (r *recordingRepository) UpdateTitle(ctx context.Context, id, title string) error {
	err := r.db.WithContext(ctx).Model(&model.Recording{}).Where("id = ?", id).Update("title", title).Error
	return translate("update recording", err)
}

func (r *recordingRepository) TransitionStatus(ctx context.Context, id string, from, to model.RecordingStatus) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Recording{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, translate("update recording status", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *recordingRepository) FailProcessing(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Recording{}).
		Where("status = ?", model.RecordingStatusProcessing).
		Update("status", model.RecordingStatusFailed)
	if res.Error != nil {
		return 0, translate("fail processing recordings", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *recordingRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Recording{})
	if res.Error != nil {
		return translate("delete recording", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("recording", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *recordingRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Recording{})
	if res.Error != nil {
		return 0, translate("delete recordings", res.Error)
	}
	return res.RowsAffected, nil
}
