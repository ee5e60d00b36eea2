package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tickd/internal/eventbus"
	"tickd/pkg/logx"
)

// Config controls the scheduler.
type Config struct {
	// Timezone is the IANA zone used to match daily task times
	// (e.g. "Asia/Jakarta"). Empty means local time.
	Timezone string

	// PollEvery is the wall-clock polling cadence for daily tasks.
	// Defaults to one minute; tests shorten it.
	PollEvery time.Duration
}

// entry is one registry slot. The timer handle is owned here by the scheduler,
// not by the task, so cancellation stays under registry control.
type entry struct {
	task    *Task
	entryID cron.EntryID
	armed   bool
}

// arm records the timer handle. An entry holds at most one live handle during
// its lifetime; arming twice is a programmer error.
func (e *entry) arm(id cron.EntryID) error {
	if e.armed {
		return ErrAlreadyArmed
	}
	e.armed = true
	e.entryID = id
	return nil
}

// Scheduler owns the id -> task registry and all timer arming/cancellation.
// It is the sole mutator of task membership.
type Scheduler struct {
	mu  sync.Mutex
	log logx.Logger
	bus eventbus.Bus
	cfg Config

	loc         *time.Location
	c           *cron.Cron
	entries     map[string]*entry
	runCtx      context.Context
	cancel      context.CancelFunc
	initialized bool
}

// New creates a scheduler with an injected logging sink. bus may be nil when
// no observer cares about lifecycle events.
func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Scheduler {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		entries: map[string]*entry{},
	}
}

// Add registers a task and arms its timer (or, for instant tasks, starts the
// single asynchronous run). Malformed registrations — empty id, disabled task,
// duplicate id, task that already left the Created state — are logged and
// refused; the registry is left unchanged and no error is raised.
func (s *Scheduler) Add(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t == nil {
		s.log.Warn("add rejected: nil task")
		return
	}
	id := t.ID()
	if strings.TrimSpace(id) == "" {
		s.log.Warn("add rejected: empty task id")
		return
	}

	s.initLocked()

	if !t.Enabled() {
		s.log.Warn("add rejected: task disabled", logx.String("task", id))
		return
	}
	if _, ok := s.entries[id]; ok {
		s.log.Warn("add rejected: duplicate task id", logx.String("task", id))
		return
	}
	if !t.created() {
		s.log.Warn("add rejected: task already armed or finalized", logx.String("task", id), logx.String("kind", t.kind.String()))
		return
	}

	en := &entry{task: t}
	switch t.kind.id {
	case kindPeriodic:
		if !s.armLocked(en, intervalSchedule{every: t.kind.every}, func() { s.dispatch(t) }) {
			return
		}
		s.entries[id] = en
		s.log.Info("task scheduled",
			logx.String("task", id),
			logx.String("kind", t.kind.String()),
			logx.Duration("every", t.kind.every))

	case kindDaily:
		if !s.armLocked(en, intervalSchedule{every: s.cfg.PollEvery}, func() { s.pollDaily(t) }) {
			return
		}
		s.entries[id] = en
		s.log.Info("task scheduled",
			logx.String("task", id),
			logx.String("kind", t.kind.String()),
			logx.String("at", t.kind.atString()))

	case kindInstant:
		s.entries[id] = en
		go s.runInstant(t)
		s.log.Info("task scheduled",
			logx.String("task", id),
			logx.String("kind", t.kind.String()))

	default:
		// Unreachable given NewTask validation; refuse rather than guess.
		s.log.Warn("add rejected: unknown task kind", logx.String("task", id))
		return
	}

	s.publish(eventbus.TaskRegistered, RunEvent{ID: id, Kind: t.kind.String()})
}

// armLocked schedules job on the cron runner and stores the handle in the
// entry. Call with s.mu held.
func (s *Scheduler) armLocked(en *entry, sched cron.Schedule, job func()) bool {
	eid := s.c.Schedule(sched, cron.FuncJob(job))
	if err := en.arm(eid); err != nil {
		// Cannot happen for a freshly built entry; release the timer if it does.
		s.c.Remove(eid)
		s.log.Error("timer arm failed", logx.String("task", en.task.ID()), logx.Err(err))
		return false
	}
	if err := en.task.markArmed(); err != nil {
		s.c.Remove(eid)
		s.log.Error("timer arm failed", logx.String("task", en.task.ID()), logx.Err(err))
		return false
	}
	return true
}

// Remove cancels the task's timer, finalizes it and drops it from the
// registry. Instant tasks hold no cancellable timer and are refused; unknown
// ids are refused. Both refusals only log a warning.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	en, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		s.log.Warn("remove rejected: unknown task id", logx.String("task", id))
		return
	}
	if en.task.kind.id == kindInstant {
		s.mu.Unlock()
		s.log.Warn("remove rejected: instant task holds no timer", logx.String("task", id))
		return
	}
	if en.armed && s.c != nil {
		s.c.Remove(en.entryID)
	}
	delete(s.entries, id)
	s.mu.Unlock()

	// Finalize immediately; an in-flight execution is not waited for.
	if err := en.task.finalize(); err != nil {
		s.log.Warn("task finalize failed", logx.String("task", id), logx.Err(err))
	}
	s.log.Info("task removed", logx.String("task", id))
	s.publish(eventbus.TaskRemoved, RunEvent{ID: id, Kind: en.task.kind.String()})
}

// Stop cancels every timer, finalizes all non-instant tasks best-effort and
// clears the registry. The scheduler re-initializes lazily on the next Add.
// In-flight executions are not drained.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	c := s.c
	cancel := s.cancel
	entries := s.entries
	s.entries = map[string]*entry{}
	s.c = nil
	s.runCtx = nil
	s.cancel = nil
	s.initialized = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		// Cancels all future fires; deliberately does not wait for the
		// returned context (no drain of in-flight runs).
		c.Stop()
	}

	finalized := 0
	for id, en := range entries {
		if en.task.kind.id == kindInstant {
			// Finalizes itself after its single run.
			continue
		}
		if err := en.task.finalize(); err != nil {
			// Best-effort: keep stopping the remaining tasks.
			s.log.Warn("task finalize failed", logx.String("task", id), logx.Err(err))
		}
		finalized++
	}

	s.log.Info("scheduler stopped", logx.Int("tasks", len(entries)), logx.Int("finalized", finalized))
	s.publish(eventbus.SchedulerStop, nil)
}

// IsScheduled reports whether id is currently registered.
func (s *Scheduler) IsScheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// TaskCount returns the number of registered tasks.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// initLocked lazily creates and starts the cron runner on first use. The flag
// gates only runner creation and the one-time log line, never task admission.
// Call with s.mu held.
func (s *Scheduler) initLocked() {
	if s.initialized {
		return
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithLocation(s.loc))
	s.c.Start()
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.initialized = true
	s.log.Info("scheduler initialized",
		logx.String("tz", s.loc.String()),
		logx.Duration("poll", s.cfg.PollEvery))
}

func (s *Scheduler) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Scheduler) ctx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil {
		return context.Background()
	}
	return s.runCtx
}

func (s *Scheduler) location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc == nil {
		return time.Local
	}
	return s.loc
}

// pollDaily runs on every poll tick of a daily task and fires the task only
// when the current wall-clock hour and minute match its target. No minute-level
// deduplication: the run-exclusivity guard is the only overlap suppression.
func (s *Scheduler) pollDaily(t *Task) {
	now := time.Now().In(s.location())
	if now.Hour() != t.kind.hour || now.Minute() != t.kind.minute {
		return
	}
	s.dispatch(t)
}

// dispatch performs one run attempt and reports the outcome through the log
// and the event bus. Execution failures stay isolated here.
func (s *Scheduler) dispatch(t *Task) {
	started := time.Now()
	res := t.run(s.ctx())

	switch res.status {
	case runSkippedDisabled:
		s.log.Debug("run skipped: task disabled", logx.String("task", t.id))
		s.publish(eventbus.TaskSkipped, RunEvent{ID: t.id, Kind: t.kind.String(), Started: started, Reason: "disabled"})
	case runSkippedBusy:
		s.log.Debug("run skipped: previous run still in flight", logx.String("task", t.id))
		s.publish(eventbus.TaskSkipped, RunEvent{ID: t.id, Kind: t.kind.String(), Started: started, Reason: "busy"})
	default:
		if res.err != nil {
			s.log.Warn("task failed",
				logx.String("task", t.id),
				logx.String("kind", t.kind.String()),
				logx.Err(res.err),
				logx.Duration("took", res.took),
				logx.Stack(res.stack))
			s.publish(eventbus.TaskFailed, RunEvent{ID: t.id, Kind: t.kind.String(), Started: started, Duration: res.took, Error: res.err.Error()})
		} else {
			s.log.Debug("task completed",
				logx.String("task", t.id),
				logx.Duration("took", res.took))
			s.publish(eventbus.TaskCompleted, RunEvent{ID: t.id, Kind: t.kind.String(), Started: started, Duration: res.took})
		}
	}
}

// runInstant executes an instant task exactly once and finalizes it whatever
// the outcome. The task stays registered (and counted) until Stop.
func (s *Scheduler) runInstant(t *Task) {
	started := time.Now()
	res := t.run(s.ctx())

	if res.err != nil {
		s.log.Warn("instant task failed",
			logx.String("task", t.id),
			logx.Err(res.err),
			logx.Duration("took", res.took),
			logx.Stack(res.stack))
		s.publish(eventbus.TaskFailed, RunEvent{ID: t.id, Kind: t.kind.String(), Started: started, Duration: res.took, Error: res.err.Error()})
	} else {
		s.log.Info("instant task completed",
			logx.String("task", t.id),
			logx.Duration("took", res.took))
		s.publish(eventbus.TaskCompleted, RunEvent{ID: t.id, Kind: t.kind.String(), Started: started, Duration: res.took})
	}

	if err := t.finalize(); err != nil {
		s.log.Warn("task finalize failed", logx.String("task", t.id), logx.Err(err))
	} else {
		s.log.Debug("task finalized", logx.String("task", t.id))
	}
	s.publish(eventbus.TaskFinalized, RunEvent{ID: t.id, Kind: t.kind.String()})
}

func (s *Scheduler) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
