// Package cron schedules and dispatches recurring jobs: outbound HTTP calls
// with encrypted headers, and built-in platform actions like backups and
// retention sweeps.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	robcron "github.com/robfig/cron/v3"

	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/store"
)

// cronParser accepts standard five-field cron expressions.
var cronParser = robcron.NewParser(
	robcron.Minute | robcron.Hour | robcron.Dom | robcron.Month | robcron.Dow | robcron.Descriptor,
)

// FailureNotifier receives exhausted-dispatch events.
type FailureNotifier interface {
	JobFailure(ctx context.Context, jobName string, attempts int, lastError string)
}

// arm is one live scheduling arm: a goroutine waiting on the job's next
// cron fire. A job in the registry has exactly one arm; re-loading cancels
// and replaces it.
type arm struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns the process-wide job registry. It periodically syncs
// enabled jobs from the store, installs one arm per job, and bounds
// concurrent dispatches.
type Scheduler struct {
	store          *store.Store
	cipher         *crypto.Cipher
	actions        *Actions
	notifier       FailureNotifier
	httpClient     *http.Client
	logger         *slog.Logger
	pollInterval   time.Duration
	defaultTimeout time.Duration
	maxConcurrent  int

	mu           sync.Mutex
	active       map[uuid.UUID]*arm
	runningCount int
}

// Config carries the scheduler knobs.
type Config struct {
	PollInterval   time.Duration
	DefaultTimeout time.Duration
	MaxConcurrent  int
}

// NewScheduler creates a Scheduler. notifier may be nil.
func NewScheduler(st *store.Store, cipher *crypto.Cipher, actions *Actions, notifier FailureNotifier, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:          st,
		cipher:         cipher,
		actions:        actions,
		notifier:       notifier,
		httpClient:     &http.Client{},
		logger:         logger,
		pollInterval:   cfg.PollInterval,
		defaultTimeout: cfg.DefaultTimeout,
		maxConcurrent:  cfg.MaxConcurrent,
		active:         make(map[uuid.UUID]*arm),
	}
}

// Run syncs jobs once at startup, then on every poll tick, until ctx is
// cancelled. On return all arms are stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"poll_interval", s.pollInterval,
		"max_concurrent", s.maxConcurrent,
	)

	s.sync(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.sync(ctx)
		}
	}
}

// sync reconciles the registry with the enabled jobs in the store: arms for
// vanished jobs are cancelled, and every loaded job gets a fresh arm.
func (s *Scheduler) sync(ctx context.Context) {
	jobs, err := s.store.ListEnabledCronJobs(ctx)
	if err != nil {
		s.logger.Error("scheduler sync: loading jobs", "error", err)
		return
	}

	loaded := make(map[uuid.UUID]store.CronJob, len(jobs))
	for _, j := range jobs {
		loaded[j.ID] = j
	}

	s.mu.Lock()
	for id, a := range s.active {
		if _, ok := loaded[id]; !ok {
			a.cancel()
			delete(s.active, id)
			s.logger.Info("scheduler: job unscheduled", "job_id", id)
		}
	}
	s.mu.Unlock()

	for _, j := range jobs {
		if err := s.install(ctx, j); err != nil {
			s.logger.Error("scheduler: installing job",
				"job_id", j.ID,
				"job_name", j.Name,
				"error", err,
			)
		}
	}
}

// install (re)creates the scheduling arm for one job and persists its next
// fire time. Persistence failures are logged, never fatal.
func (s *Scheduler) install(ctx context.Context, job store.CronJob) error {
	sched, loc, err := parseSchedule(job.CronExpr, job.Timezone)
	if err != nil {
		return err
	}

	armCtx, cancel := context.WithCancel(context.Background())
	a := &arm{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if prev, ok := s.active[job.ID]; ok {
		prev.cancel()
	}
	s.active[job.ID] = a
	s.mu.Unlock()

	go s.runArm(armCtx, a, job, sched, loc)

	next := sched.Next(time.Now().In(loc))
	if err := s.store.UpdateCronJobNextRun(ctx, job.ID, next.UTC()); err != nil {
		s.logger.Warn("scheduler: persisting next run", "error", err, "job_id", job.ID)
	}
	return nil
}

// runArm waits for each cron fire and dispatches. The dispatch is awaited,
// so firings of the same job never overlap.
func (s *Scheduler) runArm(ctx context.Context, a *arm, job store.CronJob, sched robcron.Schedule, loc *time.Location) {
	defer close(a.done)

	for {
		next := sched.Next(time.Now().In(loc))
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.dispatch(ctx, job, sched, loc)
		}
	}
}

// stopAll cancels every arm and waits for in-flight dispatches to return.
func (s *Scheduler) stopAll() {
	s.mu.Lock()
	arms := make([]*arm, 0, len(s.active))
	for id, a := range s.active {
		a.cancel()
		arms = append(arms, a)
		delete(s.active, id)
	}
	s.mu.Unlock()

	for _, a := range arms {
		<-a.done
	}
}

// ActiveJobs returns the ids currently registered.
func (s *Scheduler) ActiveJobs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	return ids
}

// parseSchedule parses a cron expression in the job's timezone.
func parseSchedule(expr, timezone string) (robcron.Schedule, *time.Location, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}

	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
		}
	}
	return sched, loc, nil
}
