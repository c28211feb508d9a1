package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	apperr "lessonscope/internal/errors"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrDuplicate marks a unique-constraint violation. It always travels
// together with errors.ErrPersistence.
var ErrDuplicate = errors.New("duplicate key")

// Store is the unit of work over every repository. Repositories obtained from
// the Store passed to WithTransaction's callback share its transaction.
type Store interface {
	Users() UserRepository
	Sessions() SessionRepository
	Recordings() RecordingRepository
	Reports() ReportRepository
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore builds a GORM-backed Store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Users() UserRepository           { return &userRepository{db: s.db} }
func (s *gormStore) Sessions() SessionRepository     { return &sessionRepository{db: s.db} }
func (s *gormStore) Recordings() RecordingRepository { return &recordingRepository{db: s.db} }
func (s *gormStore) Reports() ReportRepository       { return &reportRepository{db: s.db} }

// WithTransaction executes a function within a database transaction.
func (s *gormStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormStore{db: tx})
	})
}

// ListFilter scopes list and count queries. An empty UserID means every user.
type ListFilter struct {
	UserID string
	Limit  int
	Offset int
}

// Normalize applies the default page size and clamps out of range values.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func scopeUser(db *gorm.DB, userID string) *gorm.DB {
	if userID == "" {
		return db
	}
	return db.Where("user_id = ?", userID)
}

// translate maps gorm failures onto the application error taxonomy.
func translate(what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w: %w", what, ErrDuplicate, apperr.ErrPersistence)
	default:
		return fmt.Errorf("%s: %w: %w", what, apperr.ErrPersistence, err)
	}
}
