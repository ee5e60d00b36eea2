package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func noopExec(context.Context, any) error { return nil }

func TestNewTaskValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		id   string
		kind Kind
		exec ExecFunc
		ok   bool
	}{
		{name: "periodic ok", id: "p1", kind: Periodic(time.Second), exec: noopExec, ok: true},
		{name: "daily ok", id: "d1", kind: DailyAt(23, 59), exec: noopExec, ok: true},
		{name: "instant ok", id: "i1", kind: Instant(), exec: noopExec, ok: true},
		{name: "empty id", id: "  ", kind: Instant(), exec: noopExec},
		{name: "nil exec", id: "x", kind: Instant(), exec: nil},
		{name: "zero interval", id: "p2", kind: Periodic(0), exec: noopExec},
		{name: "negative interval", id: "p3", kind: Periodic(-time.Second), exec: noopExec},
		{name: "hour out of range", id: "d2", kind: DailyAt(24, 0), exec: noopExec},
		{name: "minute out of range", id: "d3", kind: DailyAt(0, 60), exec: noopExec},
		{name: "unset kind", id: "k1", kind: Kind{}, exec: noopExec},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTask(tt.id, tt.kind, tt.exec, Options{})
			if tt.ok && err != nil {
				t.Fatalf("NewTask error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestRunSkipsWhenDisabled(t *testing.T) {
	t.Parallel()
	calls := 0
	task, err := NewTask("t", Periodic(time.Second), func(context.Context, any) error {
		calls++
		return nil
	}, Options{Disabled: true})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	res := task.run(context.Background())
	if res.status != runSkippedDisabled {
		t.Fatalf("status = %d, want runSkippedDisabled", res.status)
	}
	if calls != 0 {
		t.Fatalf("execute ran %d times on a disabled task", calls)
	}
}

func TestRunExclusivityDropsOverlap(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	release := make(chan struct{})
	task, err := NewTask("t", Periodic(time.Second), func(context.Context, any) error {
		close(entered)
		<-release
		return nil
	}, Options{})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	done := make(chan runResult, 1)
	go func() { done <- task.run(context.Background()) }()
	<-entered

	// Second cycle while the first is in flight is dropped, not queued.
	res := task.run(context.Background())
	if res.status != runSkippedBusy {
		t.Fatalf("status = %d, want runSkippedBusy", res.status)
	}

	close(release)
	first := <-done
	if first.status != runDone || first.err != nil {
		t.Fatalf("first run: status=%d err=%v", first.status, first.err)
	}
	if task.Running() {
		t.Fatal("running flag not reset after completion")
	}
}

func TestRunResetsRunningOnErrorAndPanic(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	task, err := NewTask("t", Periodic(time.Second), func(context.Context, any) error {
		return boom
	}, Options{})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	res := task.run(context.Background())
	if !errors.Is(res.err, boom) {
		t.Fatalf("err = %v, want %v", res.err, boom)
	}
	if task.Running() {
		t.Fatal("running flag not reset after error")
	}

	panicky, err := NewTask("t2", Periodic(time.Second), func(context.Context, any) error {
		panic("kaboom")
	}, Options{})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	res = panicky.run(context.Background())
	if res.err == nil || !strings.Contains(res.err.Error(), "kaboom") {
		t.Fatalf("panic not converted to error: %v", res.err)
	}
	if res.stack == "" {
		t.Fatal("panic stack not captured")
	}
	if panicky.Running() {
		t.Fatal("running flag not reset after panic")
	}

	// The task stays usable after a failed cycle.
	if res := panicky.run(context.Background()); res.status != runDone {
		t.Fatalf("second run status = %d, want runDone", res.status)
	}
}

func TestSetEnabledWhileRunning(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{})
	release := make(chan struct{})
	task, err := NewTask("t", Periodic(time.Second), func(context.Context, any) error {
		close(entered)
		<-release
		return nil
	}, Options{})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	go task.run(context.Background())
	<-entered

	if err := task.SetEnabled(false); !errors.Is(err, ErrTaskRunning) {
		t.Fatalf("SetEnabled(false) while running = %v, want ErrTaskRunning", err)
	}
	// Enabling while running is fine.
	if err := task.SetEnabled(true); err != nil {
		t.Fatalf("SetEnabled(true) while running = %v", err)
	}
	close(release)

	waitFor(t, time.Second, func() bool { return !task.Running() })
	if err := task.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled(false) while idle = %v", err)
	}
	if task.Enabled() {
		t.Fatal("task still enabled after SetEnabled(false)")
	}
}

func TestFinalizeExactlyOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	task, err := NewTask("t", Periodic(time.Second), noopExec, Options{
		Finalize: func() error {
			calls++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}

	if err := task.finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := task.finalize(); err != nil {
		t.Fatalf("second finalize: %v", err)
	}
	if calls != 1 {
		t.Fatalf("finalize hook ran %d times, want 1", calls)
	}
	if !task.finalized() {
		t.Fatal("task not in finalized state")
	}
}

func TestFinalizeCapturesFailures(t *testing.T) {
	t.Parallel()
	failing, err := NewTask("t", Periodic(time.Second), noopExec, Options{
		Finalize: func() error { return errors.New("cleanup failed") },
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := failing.finalize(); err == nil {
		t.Fatal("finalize error swallowed")
	}

	panicking, err := NewTask("t2", Periodic(time.Second), noopExec, Options{
		Finalize: func() error { panic("cleanup panic") },
	})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	err = panicking.finalize()
	if err == nil || !strings.Contains(err.Error(), "cleanup panic") {
		t.Fatalf("finalize panic not converted to error: %v", err)
	}
}

func TestMarkArmedOnce(t *testing.T) {
	t.Parallel()
	task, err := NewTask("t", Periodic(time.Second), noopExec, Options{})
	if err != nil {
		t.Fatalf("NewTask: %v", err)
	}
	if err := task.markArmed(); err != nil {
		t.Fatalf("first markArmed: %v", err)
	}
	if err := task.markArmed(); !errors.Is(err, ErrNotArmable) {
		t.Fatalf("second markArmed = %v, want ErrNotArmable", err)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
