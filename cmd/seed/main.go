package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"lessonscope/internal/config"
	"lessonscope/internal/db"
	apperr "lessonscope/internal/errors"
	"lessonscope/internal/logging"
	"lessonscope/internal/model"
	"lessonscope/internal/repository"
)

const (
	adminOpenID   = "admin_default"
	adminNickname = "管理员"
)

// demoSegments is a short classroom exchange used for the sample report.
var demoSegments = model.Segments{
	{Role: "老师", Text: "同学们好，今天我们学习分数的加法。"},
	{Role: "学生", Text: "老师，分母不同怎么办？"},
	{Role: "老师", Text: "很好的问题，我们先通分。"},
}

func demoTranscript() string {
	var b strings.Builder
	for _, seg := range demoSegments {
		fmt.Fprintf(&b, "[%s] %s\n", seg.Role, seg.Text)
	}
	return b.String()
}

func main() {
	demo := flag.Bool("demo", false, "also create a completed sample recording and report for the admin")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.Server.Env)

	if err := run(context.Background(), cfg, *demo, logger); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, demo bool, logger *slog.Logger) error {
	logger.Info("starting seed script")

	gormDB, err := db.NewMySQL(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := db.Migrate(ctx, gormDB, false); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("database migrations completed")

	store := repository.NewStore(gormDB)

	admin, created, err := ensureAdmin(ctx, store)
	if err != nil {
		return err
	}
	if created {
		logger.Info("admin user created", "user_id", admin.ID, "openid", admin.OpenID)
	} else {
		logger.Info("admin user already present", "user_id", admin.ID)
	}

	if !demo {
		return nil
	}

	rec, report, err := seedDemo(ctx, store, admin)
	if err != nil {
		return err
	}
	logger.Info("sample report created", "recording_id", rec.ID, "report_id", report.ID)
	return nil
}

func ensureAdmin(ctx context.Context, store repository.Store) (*model.User, bool, error) {
	existing, err := store.Users().FindByOpenID(ctx, adminOpenID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}

	admin := &model.User{
		OpenID:   adminOpenID,
		Nickname: adminNickname,
		Role:     model.RoleAdmin,
	}
	if err := store.Users().Create(ctx, admin); err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	return admin, true, nil
}

func seedDemo(ctx context.Context, store repository.Store, owner *model.User) (*model.Recording, *model.Report, error) {
	rec := &model.Recording{
		UserID:   owner.ID,
		Title:    "示例课堂：分数的加法",
		Duration: 45,
		FileSize: 1024,
		FileURL:  "https://example.invalid/audio/demo.mp3",
	}
	report := &model.Report{}

	err := store.WithTransaction(ctx, func(ctx context.Context, tx repository.Store) error {
		if err := tx.Recordings().Create(ctx, rec); err != nil {
			return err
		}
		if _, err := tx.Recordings().TransitionStatus(ctx, rec.ID, model.RecordingStatusUploaded, model.RecordingStatusProcessing); err != nil {
			return err
		}

		report.RecordingID = rec.ID
		report.UserID = owner.ID
		if err := tx.Reports().Create(ctx, report); err != nil {
			return err
		}
		if err := tx.Reports().Complete(ctx, report.ID, model.ReportResult{
			Transcript:           demoTranscript(),
			Segments:             demoSegments,
			Analysis:             model.RawJSON(`{"overallScore":82}`),
			TeacherSpeechRate:    decimal.RequireFromString("78.50"),
			StudentParticipation: decimal.RequireFromString("65.00"),
			InteractionQuality:   decimal.RequireFromString("80.00"),
			ContentStructure:     decimal.RequireFromString("88.00"),
			OverallScore:         decimal.RequireFromString("82.00"),
			Suggestions:          []string{"增加开放式提问", "给学生更多独立思考时间"},
		}); err != nil {
			return err
		}
		_, err := tx.Recordings().TransitionStatus(ctx, rec.ID, model.RecordingStatusProcessing, model.RecordingStatusCompleted)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("seed sample report: %w", err)
	}
	return rec, report, nil
}
