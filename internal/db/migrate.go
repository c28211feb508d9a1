package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"

	"lessonscope/internal/db/migrations"
)

// gooseUp and gooseReset are seams for testing the goose calls.
var (
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	}
	gooseReset = func(ctx context.Context, db *sql.DB, dir string) error {
		return goose.DownToContext(ctx, db, dir, 0)
	}
)

// Migrate applies the embedded schema migrations. When reset is true every
// migration is rolled back first, which drops all application tables.
func Migrate(ctx context.Context, gormDB *gorm.DB, reset bool) error {
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}

	if reset {
		slog.Warn("RESET_DB=true, rolling back all migrations")
		if err := gooseReset(ctx, sqlDB, "."); err != nil {
			return fmt.Errorf("migrate: reset: %w", err)
		}
	}
	if err := gooseUp(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	return nil
}
