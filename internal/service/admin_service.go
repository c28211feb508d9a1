package service

import (
	"context"
	"fmt"

	apperr "lessonscope/internal/errors"
	"lessonscope/internal/model"
	"lessonscope/internal/repository"
)

// SystemStats are global entity counts.
type SystemStats struct {
	Users      int64 `json:"users"`
	Recordings int64 `json:"recordings"`
	Reports    int64 `json:"reports"`
}

// AdminService exposes admin-only views.
type AdminService interface {
	Stats(ctx context.Context, actor *model.User) (*SystemStats, error)
}

type adminService struct {
	store repository.Store
}

// NewAdminService creates a new admin service.
func NewAdminService(store repository.Store) AdminService {
	return &adminService{store: store}
}

func (s *adminService) Stats(ctx context.Context, actor *model.User) (*SystemStats, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: admin only", apperr.ErrForbidden)
	}

	var (
		stats SystemStats
		err   error
	)
	if stats.Users, err = s.store.Users().Count(ctx); err != nil {
		return nil, err
	}
	if stats.Recordings, err = s.store.Recordings().Count(ctx, ""); err != nil {
		return nil, err
	}
	if stats.Reports, err = s.store.Reports().Count(ctx, ""); err != nil {
		return nil, err
	}
	return &stats, nil
}
