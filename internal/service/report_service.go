package service

import (
	"context"

	"lessonscope/internal/model"
	"lessonscope/internal/repository"
)

// ReportPage is one page of reports.
type ReportPage struct {
	Reports []model.Report `json:"reports"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
	Total   int64          `json:"total"`
}

// ReportService exposes ownership-checked report reads and deletes.
// Reports are written only by the Pipeline.
type ReportService interface {
	List(ctx context.Context, actor *model.User, limit, offset int, all bool) (*ReportPage, error)
	Get(ctx context.Context, actor *model.User, id string) (*model.Report, error)
	GetByRecording(ctx context.Context, actor *model.User, recordingID string) (*model.Report, error)
	Delete(ctx context.Context, actor *model.User, id string) error
}

type reportService struct {
	store repository.Store
}

// NewReportService creates a new report service.
func NewReportService(store repository.Store) ReportService {
	return &reportService{store: store}
}

func (s *reportService) List(ctx context.Context, actor *model.User, limit, offset int, all bool) (*ReportPage, error) {
	filter := listScope(actor, limit, offset, all)

	reports, err := s.store.Reports().List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.store.Reports().Count(ctx, filter.UserID)
	if err != nil {
		return nil, err
	}
	return &ReportPage{Reports: reports, Limit: filter.Limit, Offset: filter.Offset, Total: total}, nil
}

func (s *reportService) Get(ctx context.Context, actor *model.User, id string) (*model.Report, error) {
	report, err := s.store.Reports().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, report.UserID); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *reportService) GetByRecording(ctx context.Context, actor *model.User, recordingID string) (*model.Report, error) {
	report, err := s.store.Reports().FindByRecordingID(ctx, recordingID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, report.UserID); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *reportService) Delete(ctx context.Context, actor *model.User, id string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	return s.store.Reports().Delete(ctx, id)
}
