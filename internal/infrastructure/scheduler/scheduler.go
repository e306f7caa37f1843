// Package scheduler runs a job once a day at a fixed wall clock time.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// checkInterval is how often the loop compares the clock with the next run
const checkInterval = time.Minute

// Job is the work run on schedule
type Job func(ctx context.Context) error

// Config describes when and how long a job runs
type Config struct {
	Name     string
	Hour     int // 0-23
	Minute   int // 0-59
	Timeout  time.Duration
	Location *time.Location
}

// Status is a snapshot of the scheduler state
type Status struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// DailyScheduler runs one job a day
type DailyScheduler struct {
	cfg    Config
	job    Job
	logger *zap.Logger

	now  func() time.Time
	tick time.Duration

	mu        sync.Mutex
	running   bool
	busy      bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastRunAt *time.Time
	nextRunAt *time.Time
	lastErr   error
}

// New validates cfg and creates a stopped scheduler
func New(cfg Config, job Job, logger *zap.Logger) (*DailyScheduler, error) {
	if cfg.Hour < 0 || cfg.Hour > 23 || cfg.Minute < 0 || cfg.Minute > 59 {
		return nil, fmt.Errorf("%w: %02d:%02d", ErrInvalidConfig, cfg.Hour, cfg.Minute)
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyScheduler{
		cfg:    cfg,
		job:    job,
		logger: logger.With(zap.String("job", cfg.Name)),
		now:    time.Now,
		tick:   checkInterval,
	}, nil
}

// Start launches the loop. Calling Start twice is a no-op.
func (s *DailyScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	next := NextRun(s.now().In(s.cfg.Location), s.cfg.Hour, s.cfg.Minute)
	s.nextRunAt = &next

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Scheduler started", zap.Time("next_run_at", next))
}

// Stop cancels the loop and waits for a running job, bounded by ctx
func (s *DailyScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *DailyScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now().In(s.cfg.Location)
			s.mu.Lock()
			due := s.nextRunAt != nil && !now.Before(*s.nextRunAt)
			s.mu.Unlock()
			if !due {
				continue
			}
			if err := s.RunNow(ctx); err != nil {
				s.logger.Error("Scheduled job failed", zap.Error(err))
			}
			next := NextRun(now, s.cfg.Hour, s.cfg.Minute)
			s.mu.Lock()
			s.nextRunAt = &next
			s.mu.Unlock()
		}
	}
}

// RunNow runs the job immediately with the configured timeout
func (s *DailyScheduler) RunNow(ctx context.Context) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.busy = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	started := s.now()
	err := s.job(ctx)

	s.mu.Lock()
	s.busy = false
	s.lastRunAt = &started
	s.lastErr = err
	s.mu.Unlock()

	s.logger.Info("Scheduled job finished",
		zap.Duration("duration", s.now().Sub(started)),
		zap.Bool("success", err == nil))
	return err
}

// Status returns the current state
func (s *DailyScheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Name:      s.cfg.Name,
		Running:   s.running,
		LastRunAt: s.lastRunAt,
		NextRunAt: s.nextRunAt,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// NextRun returns the first hour:minute strictly after after, in after's location
func NextRun(after time.Time, hour, minute int) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// ParseCronSchedule reads the minute and hour fields of a daily cron expression
// such as "30 2 * * *". Any other field is ignored. An empty expression means 02:00.
func ParseCronSchedule(expr string) (hour, minute int, err error) {
	parts := strings.Fields(expr)
	if len(parts) == 0 {
		return 2, 0, nil
	}
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("%w: %q needs minute and hour fields", ErrInvalidConfig, expr)
	}
	if minute, err = strconv.Atoi(parts[0]); err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: bad minute %q", ErrInvalidConfig, parts[0])
	}
	if hour, err = strconv.Atoi(parts[1]); err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: bad hour %q", ErrInvalidConfig, parts[1])
	}
	return hour, minute, nil
}
