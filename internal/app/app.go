// Package app assembles the tickd daemon: config, logging, scheduler, run
// journal and the hot-reload loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"tickd/internal/config"
	"tickd/internal/eventbus"
	"tickd/internal/journal"
	"tickd/internal/scheduler"
	"tickd/pkg/logx"
)

// ErrSchedulerDisabled is returned by AddTask when the scheduler subsystem has
// not been enabled yet (or was stopped).
var ErrSchedulerDisabled = errors.New("scheduler is not enabled")

// App owns the daemon's components and their lifecycle.
type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store journal.Store
	rec   *journal.Recorder
	sched *scheduler.Scheduler

	mu           sync.Mutex
	schedEnabled bool
	started      bool
	cfgTasks     map[string]config.TaskConfig
	cancel       context.CancelFunc
	sub          chan *config.Config
	wg           sync.WaitGroup
}

// New loads the config file and builds all components. Nothing runs until
// Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	jcfg, err := mapJournalConfig(cfg.Journal)
	if err != nil {
		logs.Close()
		return nil, err
	}
	store, err := journal.Open(jcfg, log.With(logx.String("comp", "journal")))
	if err != nil {
		logs.Close()
		return nil, err
	}

	scfg, err := mapSchedulerConfig(cfg.Scheduler)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		logs.Close()
		return nil, err
	}

	return &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logs,
		bus:      bus,
		store:    store,
		rec:      journal.NewRecorder(store, log.With(logx.String("comp", "journal"))),
		sched:    scheduler.New(scfg, log.With(logx.String("comp", "scheduler")), bus),
		cfgTasks: map[string]config.TaskConfig{},
	}, nil
}

// Start begins the background loops and, when the config enables the
// scheduler, registers the declared tasks.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("app already started")
	}
	a.started = true
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	a.rec.Start(runCtx, a.bus)

	cfg := a.cfgm.Get()
	if cfg != nil && cfg.Scheduler.Enabled {
		a.EnableScheduler()
		a.applyTasks(cfg.Tasks)
	}

	sub := a.cfgm.Subscribe(8)
	a.mu.Lock()
	a.sub = sub
	a.mu.Unlock()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("app started", logx.Int("tasks", a.sched.TaskCount()))
	return nil
}

// Stop shuts everything down: scheduler first (no drain of in-flight runs),
// then the recorder and background loops. ctx bounds the wait for loops.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.started {
		a.mu.Unlock()
		return nil
	}
	a.started = false
	cancel := a.cancel
	a.cancel = nil
	sub := a.sub
	a.sub = nil
	a.mu.Unlock()

	a.StopScheduler()

	if cancel != nil {
		cancel()
	}
	a.rec.Stop()
	if sub != nil {
		a.cfgm.Unsubscribe(sub)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("stop timed out waiting for background loops", logx.Err(ctx.Err()))
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}

	a.log.Info("app stopped")
	a.logs.Close()
	return nil
}

// EnableScheduler activates the scheduler subsystem. AddTask refuses work
// until this has been called.
func (a *App) EnableScheduler() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.schedEnabled {
		return
	}
	a.schedEnabled = true
	a.log.Info("scheduler enabled")
}

// AddTask registers a task with the scheduler. Calling it before
// EnableScheduler is a state error.
func (a *App) AddTask(t *scheduler.Task) error {
	if !a.schedulerEnabled() {
		return fmt.Errorf("add task: %w", ErrSchedulerDisabled)
	}
	a.sched.Add(t)
	return nil
}

// RemoveTask cancels and finalizes a registered task.
func (a *App) RemoveTask(id string) {
	a.sched.Remove(id)
	a.mu.Lock()
	delete(a.cfgTasks, id)
	a.mu.Unlock()
}

// StopScheduler stops the scheduler and deactivates the subsystem. A later
// EnableScheduler starts it fresh.
func (a *App) StopScheduler() {
	a.mu.Lock()
	enabled := a.schedEnabled
	a.schedEnabled = false
	a.cfgTasks = map[string]config.TaskConfig{}
	a.mu.Unlock()

	a.sched.Stop()
	if enabled {
		a.log.Info("scheduler disabled")
	}
}

func (a *App) TaskCount() int { return a.sched.TaskCount() }

func (a *App) TaskIDs() []string { return a.sched.TaskIDs() }

func (a *App) IsScheduled(id string) bool { return a.sched.IsScheduled(id) }

// Snapshot returns the scheduler's diagnostic view.
func (a *App) Snapshot() scheduler.Snapshot { return a.sched.Snapshot() }

// RecentRuns reads the newest journal entries. ErrDisabled when no journal is
// configured.
func (a *App) RecentRuns(ctx context.Context, limit int) ([]journal.Run, error) {
	if a.store == nil {
		return nil, journal.ErrDisabled
	}
	return a.store.RecentRuns(ctx, limit)
}

func (a *App) schedulerEnabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.schedEnabled
}

// reloadLoop applies committed config updates: logging settings immediately,
// the task list as a diff. Scheduler and journal settings are fixed at startup.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			if cfg == nil {
				continue
			}
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(mapLogConfig(cfg.Logging))

	enabled := a.schedulerEnabled()
	switch {
	case cfg.Scheduler.Enabled && !enabled:
		a.EnableScheduler()
		a.applyTasks(cfg.Tasks)
	case !cfg.Scheduler.Enabled && enabled:
		a.StopScheduler()
	case enabled:
		a.applyTasks(cfg.Tasks)
	}

	a.log.Info("config applied", logx.Int("tasks", a.sched.TaskCount()))
}

// applyTasks reconciles the registered config-declared tasks against the
// desired list: dropped or changed definitions are removed, new ones added.
// Tasks registered directly through AddTask are not touched.
func (a *App) applyTasks(tasks []config.TaskConfig) {
	desired := make(map[string]config.TaskConfig, len(tasks))
	for _, tc := range tasks {
		if tc.IsEnabled() {
			desired[tc.ID] = tc
		}
	}

	a.mu.Lock()
	current := a.cfgTasks
	a.mu.Unlock()

	tracked := make(map[string]config.TaskConfig, len(desired))
	var removals []string

	for id, old := range current {
		next, ok := desired[id]
		if ok && reflect.DeepEqual(old, next) {
			tracked[id] = old
			continue
		}
		if strings.EqualFold(strings.TrimSpace(old.Kind), "instant") {
			// Instant tasks hold no timer and keep their registry slot until
			// scheduler stop; a changed definition cannot be applied live.
			if ok {
				a.log.Warn("instant task changed in config; ignored until restart", logx.String("task", id))
			}
			tracked[id] = old
			continue
		}
		removals = append(removals, id)
	}

	sort.Strings(removals)
	for _, id := range removals {
		a.sched.Remove(id)
	}

	for _, tc := range tasks {
		if !tc.IsEnabled() {
			continue
		}
		if _, ok := tracked[tc.ID]; ok {
			continue
		}
		t, err := buildTask(tc)
		if err != nil {
			a.log.Warn("task definition rejected", logx.String("task", tc.ID), logx.Err(err))
			continue
		}
		a.sched.Add(t)
		if a.sched.IsScheduled(tc.ID) {
			tracked[tc.ID] = tc
		}
	}

	a.mu.Lock()
	a.cfgTasks = tracked
	a.mu.Unlock()
}

// ---- config mapping ----

func mapLogConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
	}
}

func mapSchedulerConfig(sc config.SchedulerConfig) (scheduler.Config, error) {
	poll, err := config.ParseDurationField("scheduler.poll_every", sc.PollEvery)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Timezone:  sc.Timezone,
		PollEvery: poll,
	}, nil
}

func mapJournalConfig(jc *config.JournalConfig) (journal.Config, error) {
	if jc == nil {
		return journal.Config{}, nil
	}
	busy, err := config.ParseDurationField("journal.busy_timeout", jc.BusyTimeout)
	if err != nil {
		return journal.Config{}, err
	}
	return journal.Config{
		Enabled:     jc.Enabled,
		Path:        jc.Path,
		BusyTimeout: busy,
		KeepRuns:    jc.KeepRuns,
	}, nil
}

// validateConfig gates hot reloads: a config that fails here is dropped and
// the previous one stays committed.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("config is empty")
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, err := config.ParseDurationField("scheduler.poll_every", cfg.Scheduler.PollEvery); err != nil {
		return err
	}
	if _, err := mapJournalConfig(cfg.Journal); err != nil {
		return err
	}
	return validateTasks(cfg.Tasks)
}
