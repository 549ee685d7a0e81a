package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/searchlock"
)

// Starter starts searches, implemented by session.Manager.
type Starter interface {
	StartSearch(ctx context.Context, kind model.SearchKind, filters model.SearchFilters) (string, error)
}

// Supervisor triggers the configured recurring searches. A trigger that
// finds the search lock held by another kind is logged and skipped, it is
// not retried until the next scheduled time.
type Supervisor struct {
	starter   Starter
	scheduler gocron.Scheduler
	start     chan string

	mx      sync.Mutex
	order   []string
	entries map[string]*entry
}

type entry struct {
	cfg     model.Schedule
	job     gocron.Job
	lastRun *time.Time
	lastID  string
	lastErr string
}

func NewSupervisor(ctx context.Context, schedules []model.Schedule, starter Starter) (*Supervisor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}

	s := &Supervisor{
		starter:   starter,
		scheduler: scheduler,
		start:     make(chan string, len(schedules)+1),
		entries:   make(map[string]*entry, len(schedules)),
	}
	for _, cfg := range schedules {
		if err := s.add(ctx, cfg); err != nil {
			_ = scheduler.Shutdown()
			return nil, fmt.Errorf("schedule %q: %w", cfg.Name, err)
		}
	}
	return s, nil
}

func (s *Supervisor) add(ctx context.Context, cfg model.Schedule) error {
	if _, ok := s.entries[cfg.Name]; ok {
		return errors.New("duplicate name")
	}
	if !cfg.Kind.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidKind, cfg.Kind)
	}
	def, err := jobDefinition(ctx, cfg)
	if err != nil {
		return err
	}
	name := cfg.Name
	job, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(func() { s.Start(name) }),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("initializing gocron job: %w", err)
	}
	s.entries[name] = &entry{cfg: cfg, job: job}
	s.order = append(s.order, name)
	return nil
}

func jobDefinition(ctx context.Context, cfg model.Schedule) (gocron.JobDefinition, error) {
	switch {
	case cfg.Cron != "" && cfg.Duration != "":
		return nil, errors.New("both cron and duration are set")
	case cfg.Cron != "":
		if err := ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing cron: %w", err)
		}
		slog.DebugContext(ctx, "successfully parsed", "schedule", cfg.Name, "cron", cfg.Cron)
		return gocron.CronJob(cfg.Cron, false), nil
	case cfg.Duration != "":
		d, err := ParseISODuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("parsing duration: %w", err)
		}
		slog.DebugContext(ctx, "successfully parsed", "schedule", cfg.Name, "duration", d.String())
		return gocron.DurationJob(d), nil
	default:
		return nil, errors.New("both cron and duration are empty")
	}
}

// Start asks the supervisor loop to trigger the schedule name. It never
// blocks, a trigger arriving while the previous one is still queued is
// dropped.
func (s *Supervisor) Start(name string) {
	select {
	case s.start <- name:
	default:
		slog.Warn("schedule trigger dropped: queue full", "schedule", name)
	}
}

// Do runs the supervisor loop until ctx is cancelled.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor", "schedules", len(s.order))
	s.scheduler.Start()
	defer func() {
		if err := s.scheduler.Shutdown(); err != nil {
			slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case name := <-s.start:
			if _, err := s.Run(ctx, name); err != nil {
				slog.DebugContext(ctx, "scheduled search not started", "schedule", name, "error", err)
			}
		}
	}
}

// Run triggers the schedule name right away and returns the id of the
// search it started or joined.
func (s *Supervisor) Run(ctx context.Context, name string) (string, error) {
	s.mx.Lock()
	e, ok := s.entries[name]
	s.mx.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", model.ErrUnknownSchedule, name)
	}

	id, err := s.starter.StartSearch(ctx, e.cfg.Kind, e.cfg.Filters)
	now := time.Now()

	s.mx.Lock()
	defer s.mx.Unlock()
	e.lastRun = &now
	e.lastID = id
	e.lastErr = ""
	switch {
	case errors.Is(err, searchlock.ErrLocked):
		e.lastErr = err.Error()
		slog.WarnContext(ctx, "scheduled search skipped", "schedule", name, "reason", err.Error())
		return "", err
	case err != nil:
		e.lastErr = err.Error()
		slog.ErrorContext(ctx, "scheduled search failed to start", "schedule", name, "error", err)
		return "", err
	}
	slog.InfoContext(ctx, "scheduled search started", "schedule", name, "search_id", id)
	return id, nil
}

// Schedules returns the state of all schedules in configuration order.
func (s *Supervisor) Schedules() []model.ScheduleStatus {
	s.mx.Lock()
	defer s.mx.Unlock()
	ret := make([]model.ScheduleStatus, 0, len(s.order))
	for _, name := range s.order {
		e := s.entries[name]
		st := model.ScheduleStatus{
			Name:         name,
			Kind:         e.cfg.Kind,
			Spec:         e.cfg.Spec(),
			LastRun:      e.lastRun,
			LastSearchID: e.lastID,
			LastError:    e.lastErr,
		}
		if next, err := e.job.NextRun(); err == nil && !next.IsZero() {
			st.NextRun = &next
		}
		ret = append(ret, st)
	}
	return ret
}
