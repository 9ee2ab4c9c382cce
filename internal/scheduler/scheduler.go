package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs one job on a cron schedule until stopped. Jobs never overlap.
type Scheduler struct {
	schedule cron.Schedule
	job      func(context.Context)
	log      *slog.Logger

	running atomic.Bool
	nextRun atomic.Int64

	mu     sync.Mutex
	jobMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New parses spec as a standard five-field cron expression (descriptors such
// as @daily and a CRON_TZ= prefix are accepted).
func New(spec string, job func(context.Context), log *slog.Logger) (*Scheduler, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return NewWithSchedule(sched, job, log)
}

func NewWithSchedule(schedule cron.Schedule, job func(context.Context), log *slog.Logger) (*Scheduler, error) {
	if schedule == nil {
		return nil, errors.New("schedule must not be nil")
	}
	if job == nil {
		return nil, errors.New("job must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		schedule: schedule,
		job:      job,
		log:      log.With(slog.String("component", "scheduler")),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)
		defer s.nextRun.Store(0)

		s.log.Info("scheduler started")

		for {
			next := s.schedule.Next(time.Now())
			if next.IsZero() {
				s.log.Warn("schedule has no future runs")
				<-ctx.Done()
				return
			}
			s.nextRun.Store(next.UnixNano())

			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				s.log.Info("scheduler stopping")
				return
			case <-timer.C:
				s.safeRun(ctx)
			}
		}
	}()

	return true
}

func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// NextRun is the time of the next scheduled run, or zero when stopped.
func (s *Scheduler) NextRun() time.Time {
	n := s.nextRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// RunNow executes the job synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.safeRun(ctx)
}

func (s *Scheduler) safeRun(ctx context.Context) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler job panic recovered", "panic", r)
		}
	}()

	start := time.Now()
	s.job(ctx)
	s.log.Info("scheduler job completed", "duration_ms", time.Since(start).Milliseconds())
}
