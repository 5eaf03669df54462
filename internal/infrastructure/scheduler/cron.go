// Package scheduler triggers the recurring sync on a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kremserw/mitteilungsblattscraper/internal/ports"
)

// CronScheduler runs one job on a standard 5-field cron expression.
type CronScheduler struct {
	expression string
	logger     *slog.Logger
	cron       *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// New builds a scheduler for the given expression.
func New(expression string, logger *slog.Logger) *CronScheduler {
	return &CronScheduler{expression: expression, logger: logger}
}

// Start registers the job and begins ticking.
func (s *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.expression, func() {
		if ctx.Err() != nil {
			return
		}
		job(time.Now())
	}); err != nil {
		return fmt.Errorf("register cron %q: %w", s.expression, err)
	}

	c.Start()
	s.cron = c
	s.logger.Info("scheduler started", "expression", s.expression)
	return nil
}

// Stop halts ticking and waits for a running job to return.
func (s *CronScheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}

	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.cron = nil
	s.logger.Info("scheduler stopped")
	return nil
}
