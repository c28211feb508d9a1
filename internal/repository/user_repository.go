package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lessonscope/internal/model"
)

// UserRepository defines persistence operations.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByOpenID(ctx context.Context, openID string) (*model.User, error)
	Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error)
	Count(ctx context.Context) (int64, error)
	// CountForUpdate counts users while holding a locking read, so two first
	// logins inside transactions cannot both observe an empty table.
	CountForUpdate(ctx context.Context) (int64, error)
	Stats(ctx context.Context, userID string) (*model.UserStats, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository builds a GORM-backed repository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return translate("create user", r.db.WithContext(ctx).Create(user).Error)
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate("user", err)
	}
	return &user, nil
}

func (r *userRepository) FindByOpenID(ctx context.Context, openID string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("openid = ?", openID).First(&user).Error; err != nil {
		return nil, translate("user", err)
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, id string, update model.ProfileUpdate) (*model.User, error) {
	fields := map[string]any{}
	if update.Nickname != nil {
		fields["nickname"] = *update.Nickname
	}
	if update.AvatarURL != nil {
		fields["avatar_url"] = *update.AvatarURL
	}
	if update.Phone != nil {
		fields["phone"] = *update.Phone
	}
	if update.Email != nil {
		fields["email"] = *update.Email
	}
	if len(fields) > 0 {
		res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, translate("update user", res.Error)
		}
	}
	return r.FindByID(ctx, id)
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error
	return n, translate("count users", err)
}

func (r *userRepository) CountForUpdate(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Count(&n).Error
	return n, translate("count users", err)
}

func (r *userRepository) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	var row struct {
		RecordingCount int64
		TotalDuration  int64
	}
	err := r.db.WithContext(ctx).Model(&model.Recording{}).
		Select("COUNT(*) AS recording_count, COALESCE(SUM(duration), 0) AS total_duration").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return nil, translate("user stats", err)
	}

	stats := &model.UserStats{RecordingCount: row.RecordingCount, TotalDuration: row.TotalDuration}
	if err := r.db.WithContext(ctx).Model(&model.Report{}).
		Where("user_id = ?", userID).
		Count(&stats.ReportCount).Error; err != nil {
		return nil, translate("user stats", err)
	}
	return stats, nil
}
