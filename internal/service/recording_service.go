package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	apperr "lessonscope/internal/errors"
	"lessonscope/internal/model"
	"lessonscope/internal/repository"
	"lessonscope/internal/storage"
	"lessonscope/internal/worker"
)

// MaxBatchDelete caps the ids accepted by one batch delete.
const MaxBatchDelete = 100

// JobSubmitter accepts background work without blocking.
type JobSubmitter interface {
	Submit(job worker.Job) error
}

// CreateRecordingInput is the metadata of an uploaded file.
type CreateRecordingInput struct {
	Title    string
	Duration int
	FileSize int64
	FileURL  string
}

// RecordingPage is one page of recordings.
type RecordingPage struct {
	Recordings []model.Recording `json:"recordings"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
	Total      int64             `json:"total"`
}

// RecordingService handles recording CRUD and admits transcription requests.
type RecordingService interface {
	Create(ctx context.Context, actor *model.User, in CreateRecordingInput) (*model.Recording, error)
	List(ctx context.Context, actor *model.User, limit, offset int, all bool) (*RecordingPage, error)
	Get(ctx context.Context, actor *model.User, id string) (*model.Recording, error)
	UpdateTitle(ctx context.Context, actor *model.User, id, title string) (*model.Recording, error)
	Delete(ctx context.Context, actor *model.User, id string) error
	DeleteMany(ctx context.Context, actor *model.User, ids []string) (int64, error)
	RequestTranscription(ctx context.Context, actor *model.User, id string) error
}

type recordingService struct {
	store    repository.Store
	storage  storage.Storage
	jobs     JobSubmitter
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewRecordingService creates a new recording service.
func NewRecordingService(store repository.Store, st storage.Storage, jobs JobSubmitter, pipeline *Pipeline, logger *slog.Logger) RecordingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &recordingService{
		store:    store,
		storage:  st,
		jobs:     jobs,
		pipeline: pipeline,
		logger:   logger,
	}
}

func (s *recordingService) Create(ctx context.Context, actor *model.User, in CreateRecordingInput) (*model.Recording, error) {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return nil, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	case in.Duration <= 0:
		return nil, fmt.Errorf("%w: duration must be positive", apperr.ErrValidation)
	case in.FileSize <= 0:
		return nil, fmt.Errorf("%w: file_size must be positive", apperr.ErrValidation)
	case strings.TrimSpace(in.FileURL) == "":
		return nil, fmt.Errorf("%w: file_url is required", apperr.ErrValidation)
	}

	recording := &model.Recording{
		UserID:   actor.ID,
		Title:    in.Title,
		Duration: in.Duration,
		FileSize: in.FileSize,
		FileURL:  in.FileURL,
		Status:   model.RecordingStatusUploaded,
	}
	if err := s.store.Recordings().Create(ctx, recording); err != nil {
		return nil, err
	}
	return recording, nil
}

func (s *recordingService) List(ctx context.Context, actor *model.User, limit, offset int, all bool) (*RecordingPage, error) {
	filter := listScope(actor, limit, offset, all)

	recordings, err := s.store.Recordings().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Recordings().Count(ctx, filter.UserID)
	if err != nil {
		return nil, err
	}
	return &RecordingPage{Recordings: recordings, Limit: filter.Limit, Offset: filter.Offset, Total: total}, nil
}

func (s *recordingService) Get(ctx context.Context, actor *model.User, id string) (*model.Recording, error) {
	recording, err := s.store.Recordings().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, recording.UserID); err != nil {
		return nil, err
	}
	return recording, nil
}

func (s *recordingService) UpdateTitle(ctx context.Context, actor *model.User, id, title string) (*model.Recording, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	if err := s.store.Recordings().UpdateTitle(ctx, id, title); err != nil {
		return nil, err
	}
	return s.store.Recordings().FindByID(ctx, id)
}

// Delete removes the recording (its report cascades) and then the stored audio.
func (s *recordingService) Delete(ctx context.Context, actor *model.User, id string) error {
	recording, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.store.Recordings().Delete(ctx, id); err != nil {
		return err
	}
	if key, ok := s.objectKey(recording.FileURL); ok {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Warn("delete recording audio", "recording_id", id, "key", key, "error", err)
		}
	}
	return nil
}

// DeleteMany deletes every listed recording or none of them.
func (s *recordingService) DeleteMany(ctx context.Context, actor *model.User, ids []string) (int64, error) {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return 0, fmt.Errorf("%w: ids is required", apperr.ErrValidation)
	}
	if len(unique) > MaxBatchDelete {
		return 0, fmt.Errorf("%w: at most %d ids per call", apperr.ErrValidation, MaxBatchDelete)
	}

	var (
		deleted int64
		keys    []string
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		recordings, err := tx.Recordings().FindByIDs(ctx, unique)
		if err != nil {
			return err
		}
		if len(recordings) != len(unique) {
			return fmt.Errorf("recording: %w", apperr.ErrNotFound)
		}
		for _, r := range recordings {
			if err := authorize(actor, r.UserID); err != nil {
				return err
			}
			if key, ok := s.objectKey(r.FileURL); ok {
				keys = append(keys, key)
			}
		}
		deleted, err = tx.Recordings().DeleteMany(ctx, unique)
		return err
	})
	if err != nil {
		return 0, err
	}

	if len(keys) > 0 {
		if err := s.storage.DeleteMany(ctx, keys); err != nil {
			s.logger.Warn("delete recording audio batch", "count", len(keys), "error", err)
		}
	}
	return deleted, nil
}

// RequestTranscription admits an uploaded recording into the pipeline. Only
// a recording in uploaded status is admitted; anything else is a conflict.
func (s *recordingService) RequestTranscription(ctx context.Context, actor *model.User, id string) error {
	recording, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	admitted, err := s.store.Recordings().TransitionStatus(ctx, id, model.RecordingStatusUploaded, model.RecordingStatusProcessing)
	if err != nil {
		return err
	}
	if !admitted {
		return fmt.Errorf("%w: recording is %s, transcription needs %s", apperr.ErrConflict, s.currentStatus(ctx, id, recording.Status), model.RecordingStatusUploaded)
	}

	job := PipelineJob{RecordingID: recording.ID, UserID: recording.UserID, FileURL: recording.FileURL}
	if err := s.jobs.Submit(func(ctx context.Context) { s.pipeline.Run(ctx, job) }); err != nil {
		s.rejectAdmission(ctx, id, err)
		return fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	return nil
}

func (s *recordingService) currentStatus(ctx context.Context, id string, fallback model.RecordingStatus) model.RecordingStatus {
	if r, err := s.store.Recordings().FindByID(ctx, id); err == nil {
		return r.Status
	}
	return fallback
}

// rejectAdmission fails a recording whose job could not be queued.
func (s *recordingService) rejectAdmission(ctx context.Context, id string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	if _, err := s.store.Recordings().TransitionStatus(ctx, id, model.RecordingStatusProcessing, model.RecordingStatusFailed); err != nil {
		s.logger.Error("fail unqueued recording", "recording_id", id, "error", err)
	}
	level := slog.LevelWarn
	if errors.Is(cause, worker.ErrClosed) {
		level = slog.LevelInfo
	}
	s.logger.Log(ctx, level, "transcription not queued", "recording_id", id, "reason", cause)
}

func (s *recordingService) objectKey(fileURL string) (string, bool) {
	if s.storage == nil {
		return "", false
	}
	return s.storage.KeyFromURL(fileURL)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

