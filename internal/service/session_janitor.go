package service

import (
	"context"
	"log/slog"
	"time"
)

// SessionJanitor periodically removes expired session rows.
type SessionJanitor struct {
	auth     AuthService
	interval time.Duration
	logger   *slog.Logger
}

// NewSessionJanitor builds a janitor. A non-positive interval means hourly.
func NewSessionJanitor(auth AuthService, interval time.Duration, logger *slog.Logger) *SessionJanitor {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionJanitor{auth: auth, interval: interval, logger: logger}
}

// Run sweeps on every tick until ctx is cancelled.
func (j *SessionJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (j *SessionJanitor) sweep(ctx context.Context) {
	n, err := j.auth.CleanExpiredSessions(ctx)
	if err != nil {
		j.logger.Error("session sweep failed", "error", err)
		return
	}
	j.logger.Info("session sweep", "removed", n)
}
