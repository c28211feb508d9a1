package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"lessonscope/internal/model"
)

// SessionRepository persists server-side session rows.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	// FindValid returns the session for (userID, tokenHash) only if it expires after now.
	FindValid(ctx context.Context, userID, tokenHash string, now time.Time) (*model.Session, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository builds a GORM-backed repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	return translate("create session", r.db.WithContext(ctx).Create(session).Error)
}

func (r *sessionRepository) FindValid(ctx context.Context, userID, tokenHash string, now time.Time) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ? AND expires_at > ?", userID, tokenHash, now).
		First(&session).Error
	if err != nil {
		return nil, translate("session", err)
	}
	return &session, nil
}

func (r *sessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) (bool, error) {
	res := r.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&model.Session{})
	if res.Error != nil {
		return false, translate("delete session", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&model.Session{})
	if res.Error != nil {
		return 0, translate("delete expired sessions", res.Error)
	}
	return res.RowsAffected, nil
}
