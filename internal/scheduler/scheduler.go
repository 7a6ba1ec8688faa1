// Package scheduler owns the engine lifecycle and drives check cycles on an interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"visa-slot-backend/config"
	"visa-slot-backend/internal/engine"
	"visa-slot-backend/internal/metrics"
	"visa-slot-backend/internal/model"
	"visa-slot-backend/internal/selector"
	"visa-slot-backend/internal/store"
)

const (
	DefaultFailureThreshold = 5

	stepScheduler = "scheduler"
)

// ErrInvalidTransition is returned when a control call is not allowed from the current state.
var ErrInvalidTransition = errors.New("invalid state transition")

// Cycler runs one check cycle.
type Cycler interface {
	RunOnce(ctx context.Context, settings model.RunSettings) engine.Outcome
}

// Store persists the scheduler state and its audit entries.
type Store interface {
	store.ConfigStore
	store.LogSink
}

type Options struct {
	// FailureThreshold is the number of consecutive session failures that moves
	// a running system to the error state.
	FailureThreshold int
	// RunOnStart fires the first cycle immediately instead of after one interval.
	RunOnStart bool
}

func OptionsFrom(cfg config.SchedulerConfig) Options {
	return Options{FailureThreshold: cfg.FailureThreshold, RunOnStart: cfg.RunOnStart}
}

// Scheduler is the single owner of SystemConfig. Control calls may come from any
// goroutine; Run is the one long-lived loop that launches cycles.
type Scheduler struct {
	exec    Cycler
	store   Store
	metrics *metrics.Collector
	opts    Options
	log     *zap.Logger
	now     func() time.Time
	// interval maps settings to the wait between cycles.
	interval func(model.RunSettings) time.Duration

	mu       sync.RWMutex
	state    model.SystemConfig
	due      time.Time // zero when nothing is scheduled
	failures int       // consecutive session failures

	wake      chan struct{}
	cycleMu   sync.Mutex
	inFlight  atomic.Bool
	persistMu sync.Mutex
}

func New(exec Cycler, st Store, m *metrics.Collector, opts Options, log *zap.Logger) *Scheduler {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		exec:     exec,
		store:    st,
		metrics:  m,
		opts:     opts,
		log:      log.With(zap.String("component", "scheduler")),
		now:      func() time.Time { return time.Now().UTC() },
		interval: func(s model.RunSettings) time.Duration { return s.CheckInterval },
		state:    model.DefaultSystemConfig(),
		wake:     make(chan struct{}, 1),
	}
}

// Restore loads the persisted configuration. A system left running by a previous
// process is reset to stopped; it never resumes on its own.
func (s *Scheduler) Restore(ctx context.Context) error {
	cfg, err := s.store.LoadSystemConfig(ctx)
	if err != nil {
		return fmt.Errorf("load system config: %w", err)
	}

	reset := cfg.Status != model.StatusStopped
	if reset {
		s.log.Warn("resetting stale system status", zap.String("status", string(cfg.Status)))
		cfg.Status = model.StatusStopped
		cfg.StartedAt = nil
	}

	s.mu.Lock()
	s.state = cfg
	s.due = time.Time{}
	s.failures = 0
	s.mu.Unlock()

	s.metrics.SetState(cfg.Status)
	if reset {
		s.persist(ctx)
	}
	return nil
}

// Status returns a snapshot of the current state and counters.
func (s *Scheduler) Status() model.SystemConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// InFlight reports whether a cycle is executing right now.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// Start validates settings and moves stopped or paused to running. The new
// settings apply from the next cycle; one already in flight keeps its own.
func (s *Scheduler) Start(ctx context.Context, settings model.RunSettings) (model.SystemConfig, error) {
	if err := settings.Validate(); err != nil {
		return s.Status(), err
	}

	s.mu.Lock()
	prev := s.state.Status
	if prev != model.StatusStopped && prev != model.StatusPaused {
		snap := s.state
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: cannot start from %s", ErrInvalidTransition, prev)
	}
	now := s.now()
	s.state.ApplySettings(settings)
	s.state.Status = model.StatusRunning
	if prev == model.StatusStopped || s.state.StartedAt == nil {
		s.state.StartedAt = &now
	}
	s.failures = 0
	s.due = now.Add(s.interval(settings))
	if s.opts.RunOnStart {
		s.due = now
	}
	snap := s.state
	s.mu.Unlock()

	s.transitioned(ctx, snap, model.LevelSuccess, "System started", datatypes.JSONMap{
		"from":              string(prev),
		"check_interval":    snap.CheckIntervalMinutes,
		"visa_type":         string(snap.VisaType),
		"visa_subtype":      string(snap.VisaSubType),
		"appointment_type":  string(snap.AppointmentType),
		"number_of_members": snap.NumberOfMembers,
	})
	return snap, nil
}

// Stop moves any state to stopped. A cycle in flight finishes but nothing new is scheduled.
func (s *Scheduler) Stop(ctx context.Context) (model.SystemConfig, error) {
	s.mu.Lock()
	prev := s.state.Status
	if prev == model.StatusStopped {
		snap := s.state
		s.mu.Unlock()
		return snap, nil
	}
	s.state.Status = model.StatusStopped
	s.state.StartedAt = nil
	s.due = time.Time{}
	s.failures = 0
	snap := s.state
	s.mu.Unlock()

	s.transitioned(ctx, snap, model.LevelInfo, "System stopped", datatypes.JSONMap{"from": string(prev)})
	return snap, nil
}

// Pause moves running to paused. A cycle in flight finishes.
func (s *Scheduler) Pause(ctx context.Context) (model.SystemConfig, error) {
	s.mu.Lock()
	if s.state.Status != model.StatusRunning {
		snap := s.state
		s.mu.Unlock()
		return snap, fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, snap.Status)
	}
	s.state.Status = model.StatusPaused
	s.due = time.Time{}
	snap := s.state
	s.mu.Unlock()

	s.transitioned(ctx, snap, model.LevelInfo, "System paused", nil)
	return snap, nil
}

// RunOnce runs a single cycle now with the current settings, waiting for any
// cycle already in flight to finish first.
func (s *Scheduler) RunOnce(ctx context.Context) engine.Outcome {
	return s.runCycle(ctx, s.Status().Settings())
}

// Run drives scheduled cycles until ctx is cancelled, then waits for a cycle
// in flight to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler loop started")
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var done chan struct{}
	for {
		s.arm(timer, done != nil)

		select {
		case <-ctx.Done():
			if done != nil {
				s.log.Info("waiting for in-flight cycle before shutdown")
				<-done
			}
			s.log.Info("scheduler loop stopped")
			return
		case <-s.wake:
		case <-done:
			done = nil
		case <-timer.C:
			if done == nil {
				done = s.launch(ctx)
			}
		}
	}
}

// arm points the timer at the next due cycle, or disarms it.
func (s *Scheduler) arm(timer *time.Timer, busy bool) {
	timer.Stop()
	if busy {
		return
	}
	s.mu.RLock()
	due := s.due
	running := s.state.Status == model.StatusRunning
	s.mu.RUnlock()
	if !running || due.IsZero() {
		return
	}
	timer.Reset(max(due.Sub(s.now()), 0))
}

func (s *Scheduler) launch(ctx context.Context) chan struct{} {
	s.mu.Lock()
	if s.state.Status != model.StatusRunning || s.due.IsZero() {
		s.mu.Unlock()
		return nil
	}
	settings := s.state.Settings()
	s.due = time.Time{}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runCycle(ctx, settings)
	}()
	return done
}

func (s *Scheduler) runCycle(ctx context.Context, settings model.RunSettings) engine.Outcome {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	s.inFlight.Store(true)
	out := s.exec.RunOnce(ctx, settings)
	s.inFlight.Store(false)

	s.apply(ctx, settings, out)
	return out
}

// apply folds a cycle outcome into the counters and decides what happens next.
func (s *Scheduler) apply(ctx context.Context, settings model.RunSettings, out engine.Outcome) {
	finished := out.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}

	s.mu.Lock()
	st := &s.state
	st.TotalChecks++
	st.SlotsFound += int64(len(out.Slots))
	if out.Booked() {
		st.SuccessfulBookings++
	}
	st.LastCheck = &finished

	running := st.Status == model.StatusRunning
	switch {
	case out.SessionFailed():
		st.ErrorCount++
		if running {
			s.failures++
		}
	case errors.Is(out.Err, selector.ErrNoCredentialAvailable):
	case out.Err == nil,
		errors.Is(out.Err, engine.ErrCaptchaUnresolved),
		errors.Is(out.Err, engine.ErrBookingRejected):
		s.failures = 0
	}

	tripped := running && s.failures >= s.opts.FailureThreshold
	failures := s.failures
	switch {
	case tripped:
		st.Status = model.StatusError
		s.due = time.Time{}
	case running:
		s.due = s.now().Add(s.interval(settings))
	}
	snap := s.state
	s.mu.Unlock()

	if tripped {
		s.transitioned(ctx, snap, model.LevelError,
			fmt.Sprintf("Stopped polling after %d consecutive session failures", failures),
			datatypes.JSONMap{"last_error": errString(out.Err)})
		return
	}
	s.persist(ctx)
	s.signal()
}

func (s *Scheduler) transitioned(ctx context.Context, snap model.SystemConfig, level model.LogLevel, msg string, details datatypes.JSONMap) {
	s.metrics.SetState(snap.Status)
	s.persist(ctx)
	s.log.Info(msg, zap.String("status", string(snap.Status)))
	entry := &model.SystemLog{Level: level, Message: msg, Details: details, Step: stepScheduler}
	if err := s.store.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Error("failed to append system log", zap.Error(err))
	}
	s.signal()
}

// persist saves the latest state. Saves are serialized and each one reads the
// state under the lock, so the last write always carries the newest counters.
func (s *Scheduler) persist(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.store.SaveSystemConfig(context.WithoutCancel(ctx), s.Status()); err != nil {
		s.log.Error("failed to persist system config", zap.Error(err))
	}
}

// signal wakes the loop without blocking; one pending wake is enough.
func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
