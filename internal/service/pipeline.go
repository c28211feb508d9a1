package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lessonscope/internal/gemini"
	"lessonscope/internal/metrics"
	"lessonscope/internal/model"
	"lessonscope/internal/repository"
	"lessonscope/internal/storage"
)

const failureWriteTimeout = 10 * time.Second

var (
	errNoLongerProcessing = errors.New("recording is no longer processing")
	errInterrupted        = errors.New("processing interrupted by server shutdown")
)

// PipelineJob identifies the recording a pipeline run works on.
type PipelineJob struct {
	RecordingID string
	UserID      string
	FileURL     string
}

// PipelineOptions tunes a Pipeline.
type PipelineOptions struct {
	SignedURLTTL time.Duration
	StepTimeout  time.Duration
}

// Pipeline transcribes a recording, analyses the transcript and stores the
// report. Recording and report statuses move together:
//
//	admit          recording uploaded->processing
//	report created report processing
//	success        both ->completed
//	failure        recording ->failed, report ->failed when it exists
type Pipeline struct {
	store       repository.Store
	transcriber gemini.Transcriber
	analyzer    gemini.Analyzer
	storage     storage.Storage
	opts        PipelineOptions
	logger      *slog.Logger
}

// NewPipeline wires a Pipeline. storage may be nil; audio URLs are then used as stored.
func NewPipeline(store repository.Store, transcriber gemini.Transcriber, analyzer gemini.Analyzer, st storage.Storage, opts PipelineOptions, logger *slog.Logger) *Pipeline {
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = time.Hour
	}
	if opts.StepTimeout <= 0 {
		opts.StepTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:       store,
		transcriber: transcriber,
		analyzer:    analyzer,
		storage:     st,
		opts:        opts,
		logger:      logger,
	}
}

// Run executes one job to a terminal state. It never returns an error; the
// outcome is visible only through the recording and report statuses. A panic
// inside the job fails the recording like any other error.
func (p *Pipeline) Run(ctx context.Context, job PipelineJob) {
	start := time.Now()
	logger := p.logger.With("recording_id", job.RecordingID, "user_id", job.UserID)

	var reportID string
	defer func() {
		if r := recover(); r != nil {
			metrics.PipelineDuration.Observe(time.Since(start).Seconds())
			logger.Error("transcription pipeline panicked", "report_id", reportID, "panic", r)
			metrics.PipelineRuns.WithLabelValues("failed").Inc()
			p.recordFailure(logger, job.RecordingID, reportID, fmt.Errorf("panic: %v", r))
		}
	}()

	err := p.run(ctx, job, &reportID)
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error("transcription pipeline failed", "report_id", reportID, "error", err)
		metrics.PipelineRuns.WithLabelValues("failed").Inc()
		p.recordFailure(logger, job.RecordingID, reportID, err)
		return
	}

	logger.Info("transcription pipeline completed", "report_id", reportID, "elapsed", time.Since(start))
	metrics.PipelineRuns.WithLabelValues("completed").Inc()
}

// run sets *reportID as soon as the report row exists.
func (p *Pipeline) run(ctx context.Context, job PipelineJob, reportID *string) error {
	var transcript *gemini.Transcript
	err := p.step(ctx, func(ctx context.Context) error {
		audioURL, err := p.audioURL(ctx, job.FileURL)
		if err != nil {
			return err
		}
		transcript, err = p.transcriber.Transcribe(ctx, audioURL)
		return err
	})
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}

	report := &model.Report{
		RecordingID: job.RecordingID,
		UserID:      job.UserID,
		Status:      model.ReportStatusProcessing,
	}
	if err := p.step(ctx, func(ctx context.Context) error {
		return p.store.Reports().Create(ctx, report)
	}); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	*reportID = report.ID

	var analysis *gemini.Analysis
	if err := p.step(ctx, func(ctx context.Context) error {
		var err error
		analysis, err = p.analyzer.Analyze(ctx, transcript.Text)
		return err
	}); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	result := model.ReportResult{
		Transcript:           transcript.Text,
		Segments:             transcript.Segments,
		Analysis:             model.RawJSON(analysis.Raw),
		TeacherSpeechRate:    analysis.TeacherSpeechRate,
		StudentParticipation: analysis.StudentParticipation,
		InteractionQuality:   analysis.InteractionQuality,
		ContentStructure:     analysis.ContentStructure,
		OverallScore:         analysis.OverallScore,
		Suggestions:          model.StringList(analysis.Suggestions),
	}

	// Report and recording complete together or not at all.
	return p.step(ctx, func(ctx context.Context) error {
		return p.store.WithTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
			if err := tx.Reports().Complete(ctx, report.ID, result); err != nil {
				return fmt.Errorf("complete report: %w", err)
			}
			moved, err := tx.Recordings().TransitionStatus(ctx, job.RecordingID, model.RecordingStatusProcessing, model.RecordingStatusCompleted)
			if err != nil {
				return fmt.Errorf("finalize recording: %w", err)
			}
			if !moved {
				return errNoLongerProcessing
			}
			return nil
		})
	})
}

func (p *Pipeline) step(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.StepTimeout)
	defer cancel()
	return fn(ctx)
}

// audioURL signs URLs that point into our own bucket and passes others through.
func (p *Pipeline) audioURL(ctx context.Context, fileURL string) (string, error) {
	if p.storage == nil {
		return fileURL, nil
	}
	key, ok := p.storage.KeyFromURL(fileURL)
	if !ok {
		return fileURL, nil
	}
	return p.storage.SignedURL(ctx, key, p.opts.SignedURLTTL)
}

// FailInterrupted marks every recording and report still processing as
// failed. It runs at startup, before any job is admitted, to release rows a
// previous process left behind when it stopped mid-run.
func (p *Pipeline) FailInterrupted(ctx context.Context) (recordings, reports int64, err error) {
	err = p.store.WithTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		var err error
		if recordings, err = tx.Recordings().FailProcessing(ctx); err != nil {
			return err
		}
		reports, err = tx.Reports().FailProcessing(ctx, errInterrupted.Error())
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return recordings, reports, nil
}

// recordFailure runs on a fresh context so it still lands when the job's
// context has expired.
func (p *Pipeline) recordFailure(logger *slog.Logger, recordingID, reportID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteTimeout)
	defer cancel()

	if _, err := p.store.Recordings().TransitionStatus(ctx, recordingID, model.RecordingStatusProcessing, model.RecordingStatusFailed); err != nil {
		logger.Error("record recording failure", "error", err)
	}
	if reportID == "" {
		return
	}
	if err := p.store.Reports().MarkFailed(ctx, reportID, cause.Error()); err != nil {
		logger.Error("record report failure", "report_id", reportID, "error", err)
	}
}
