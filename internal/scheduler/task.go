package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// ExecFunc is the caller-supplied body of a task. params is the opaque payload
// given at construction; the scheduler does not interpret it.
type ExecFunc func(ctx context.Context, params any) error

// FinalizeFunc is the caller-supplied cleanup hook, invoked exactly once when
// the task leaves the armed lifecycle.
type FinalizeFunc func() error

// Options carries the optional parts of a task definition.
type Options struct {
	// Params is passed through to every ExecFunc invocation.
	Params any
	// Finalize runs once on removal, scheduler stop, or after an instant
	// task's single run.
	Finalize FinalizeFunc
	// Disabled registers the task in the disabled state. The scheduler
	// refuses to arm disabled tasks.
	Disabled bool
}

type phase uint8

const (
	phaseCreated phase = iota
	phaseArmed
	phaseFinalized
)

// Task is one background job. Construct with NewTask; the scheduler drives
// run/finalize, the host may only toggle enablement.
type Task struct {
	id     string
	kind   Kind
	exec   ExecFunc
	fin    FinalizeFunc
	params any

	mu      sync.Mutex
	enabled bool
	running bool
	phase   phase
}

// NewTask validates the definition and returns a task in the Created state.
func NewTask(id string, kind Kind, exec ExecFunc, opt Options) (*Task, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("task id is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("task %q: execute func is required", id)
	}
	if err := kind.validate(); err != nil {
		return nil, fmt.Errorf("task %q: %w", id, err)
	}
	return &Task{
		id:      id,
		kind:    kind,
		exec:    exec,
		fin:     opt.Finalize,
		params:  opt.Params,
		enabled: !opt.Disabled,
	}, nil
}

func (t *Task) ID() string { return t.id }

func (t *Task) Kind() Kind { return t.kind }

func (t *Task) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// Running reports whether an execution is currently in flight.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// SetEnabled toggles the task. Disabling a task whose execution is in flight
// is a contract violation and returns ErrTaskRunning.
func (t *Task) SetEnabled(v bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !v && t.running {
		return fmt.Errorf("task %q: %w", t.id, ErrTaskRunning)
	}
	t.enabled = v
	return nil
}

type runStatus uint8

const (
	runDone runStatus = iota
	runSkippedDisabled
	runSkippedBusy
)

type runResult struct {
	status runStatus
	err    error
	stack  string
	took   time.Duration
}

// run performs one execution cycle. A fire while disabled or while a previous
// execution is still in flight is dropped without side effects. The running
// flag is reset on every exit path, including panics in the exec hook.
func (t *Task) run(ctx context.Context) runResult {
	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return runResult{status: runSkippedDisabled}
	}
	if t.running {
		t.mu.Unlock()
		return runResult{status: runSkippedBusy}
	}
	t.running = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
	}()

	start := time.Now()
	err, stack := t.safeExec(ctx)
	return runResult{status: runDone, err: err, stack: stack, took: time.Since(start)}
}

func (t *Task) safeExec(ctx context.Context) (err error, stack string) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			stack = string(debug.Stack())
		}
	}()
	return t.exec(ctx, t.params), ""
}

// markArmed transitions Created -> Armed. Any other starting state means the
// task already owned a timer at some point in its lifetime.
func (t *Task) markArmed() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase != phaseCreated {
		return fmt.Errorf("task %q: %w", t.id, ErrNotArmable)
	}
	t.phase = phaseArmed
	return nil
}

func (t *Task) created() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase == phaseCreated
}

func (t *Task) finalized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase == phaseFinalized
}

// finalize enters the terminal state and runs the cleanup hook at most once.
// Hook failures (including panics) are returned for logging, never propagated
// further. Subsequent calls are no-ops.
func (t *Task) finalize() error {
	t.mu.Lock()
	if t.phase == phaseFinalized {
		t.mu.Unlock()
		return nil
	}
	t.phase = phaseFinalized
	fin := t.fin
	t.mu.Unlock()

	if fin == nil {
		return nil
	}
	return safeFinalize(t.id, fin)
}

func safeFinalize(id string, fin FinalizeFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %q finalize panic: %v", id, r)
		}
	}()
	return fin()
}
