package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lessonscope/internal/cache"
	"lessonscope/internal/model"
	"lessonscope/internal/repository"
)

const userCacheTTL = 5 * time.Minute

// Profile is the current user with their usage totals.
type Profile struct {
	User  *model.User     `json:"user"`
	Stats model.UserStats `json:"stats"`
}

// UserService exposes profile operations.
type UserService interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	Me(ctx context.Context, actor *model.User) (*Profile, error)
	UpdateMe(ctx context.Context, actor *model.User, update model.ProfileUpdate) (*model.User, error)
}

type userService struct {
	repo  repository.UserRepository
	cache *cache.Client
}

// NewUserService builds a UserService with repository and cache.
func NewUserService(repo repository.UserRepository, cache *cache.Client) UserService {
	return &userService{repo: repo, cache: cache}
}

func (s *userService) cacheKey(id string) string {
	return fmt.Sprintf("user:%s", id)
}

// GetUser loads a user, reading through the cache.
func (s *userService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if data, _ := s.cache.Get(ctx, s.cacheKey(id)); data != nil {
		var cached model.User
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(user); err == nil {
		_ = s.cache.Set(ctx, s.cacheKey(id), payload, userCacheTTL)
	}
	return user, nil
}

func (s *userService) Me(ctx context.Context, actor *model.User) (*Profile, error) {
	user, err := s.repo.FindByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	stats, err := s.repo.Stats(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Stats: *stats}, nil
}

// UpdateMe changes only the provided fields and returns the stored user.
func (s *userService) UpdateMe(ctx context.Context, actor *model.User, update model.ProfileUpdate) (*model.User, error) {
	user, err := s.repo.Update(ctx, actor.ID, update)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Delete(ctx, s.cacheKey(actor.ID))
	return user, nil
}
