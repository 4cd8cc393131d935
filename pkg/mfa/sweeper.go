package mfa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/dmitrymomot/mfakit/pkg/logger"
)

const sweepJobTag = "mfa-sweep"

// Sweeper periodically removes expired and retained one-time codes.
type Sweeper struct {
	cleaners []Cleaner
	logger   *slog.Logger

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	cancel    context.CancelFunc
}

// NewSweeper creates a sweeper over the given cleaners. Nil cleaners are skipped.
func NewSweeper(cleaners []Cleaner, opts ...Option) *Sweeper {
	o := newOptions(opts)
	s := &Sweeper{logger: o.logger.With(logger.Component("mfa-sweeper"))}
	for _, c := range cleaners {
		if c != nil {
			s.cleaners = append(s.cleaners, c)
		}
	}
	return s
}

// Run executes one sweep over every cleaner and returns the number of rows
// removed. A failing cleaner does not stop the others.
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	var (
		total int64
		errs  []error
	)
	start := time.Now()
	for _, c := range s.cleaners {
		n, err := c.CleanExpiredCodes(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		total += n
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep failed", logger.Error(err))
	} else {
		s.logger.InfoContext(ctx, "sweep completed",
			slog.Int64("removed", total),
			logger.Duration(time.Since(start)),
		)
	}
	return total, err
}

// Start schedules Run every interval until Stop is called.
func (s *Sweeper) Start(every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("%w: sweep interval must be positive, got %s", ErrInvalidConfig, every)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return fmt.Errorf("%w: sweeper already started", ErrInvalidConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sch := gocron.NewScheduler(time.UTC)
	job, err := sch.Cron(fmt.Sprintf("@every %s", every)).Do(func() {
		_, _ = s.Run(ctx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	job.Tag(sweepJobTag)

	sch.StartAsync()
	s.scheduler, s.cancel = sch, cancel
	s.logger.Info("sweeper started", slog.String("every", every.String()))
	return nil
}

// Stop halts the schedule. Safe to call when not started.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return
	}
	s.scheduler.Stop()
	s.cancel()
	s.scheduler, s.cancel = nil, nil
	s.logger.Info("sweeper stopped")
}
