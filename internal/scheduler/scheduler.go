// Package scheduler runs the periodic sweep that refreshes stale city
// records with the server-held provider key.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/zelara/weather-service/internal/refresh"
	"github.com/zelara/weather-service/internal/store"
)

// Sweeper periodically refreshes stale records.
type Sweeper struct {
	scheduler   *gocron.Scheduler
	coordinator *refresh.Coordinator
	apiKey      string
	interval    time.Duration
	jobTimeout  time.Duration
	logger      *zap.Logger
}

// New creates a Sweeper. apiKey is the server-held provider credential; an
// empty key disables the sweep (Start becomes a no-op).
func New(coordinator *refresh.Coordinator, apiKey string, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		scheduler:   gocron.NewScheduler(time.UTC),
		coordinator: coordinator,
		apiKey:      apiKey,
		interval:    interval,
		jobTimeout:  5 * time.Minute,
		logger:      logger,
	}
}

// Start schedules the periodic sweep and starts the underlying scheduler.
func (s *Sweeper) Start() error {
	if s.apiKey == "" {
		s.logger.Info("no server provider key configured; stale sweep disabled")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 60
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()

		report, err := s.coordinator.RefreshStale(ctx, s.apiKey)
		if err != nil {
			if errors.Is(err, store.ErrEmptyStore) {
				s.logger.Debug("stale sweep: no records")
				return
			}
			s.logger.Warn("stale sweep failed", zap.Error(err))
			return
		}
		s.logger.Info("stale sweep complete",
			zap.Int("refreshed", report.Refreshed),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
