package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"tickd/internal/eventbus"
	"tickd/internal/scheduler"
	"tickd/pkg/logx"
)

func openTestStore(t *testing.T, keep int) Store {
	t.Helper()
	st, err := Open(Config{
		Enabled:  true,
		Path:     filepath.Join(t.TempDir(), "journal.db"),
		KeepRuns: keep,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabledReturnsNil(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st != nil {
		t.Fatal("disabled journal returned a store")
	}
}

func TestAppendAndRecentRuns(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, 0)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute).Truncate(time.Millisecond)
	runs := []Run{
		{TaskID: "p1", Kind: "periodic", Started: started, Duration: 120 * time.Millisecond},
		{TaskID: "p1", Kind: "periodic", Started: started.Add(time.Second), Duration: 80 * time.Millisecond, Error: "boom"},
		{TaskID: "i1", Kind: "instant", Started: started.Add(2 * time.Second)},
	}
	for _, r := range runs {
		if err := st.AppendRun(ctx, r); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}

	got, err := st.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("RecentRuns returned %d rows, want 3", len(got))
	}
	// Newest first.
	if got[0].TaskID != "i1" {
		t.Fatalf("first row = %s, want i1", got[0].TaskID)
	}
	if got[1].Error != "boom" {
		t.Fatalf("error column lost: %+v", got[1])
	}
	if got[2].Duration != 120*time.Millisecond {
		t.Fatalf("duration column lost: %v", got[2].Duration)
	}
}

func TestRecentRunsLimit(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, 0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := st.AppendRun(ctx, Run{TaskID: "p1", Kind: "periodic"}); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	got, err := st.RecentRuns(ctx, 4)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("limit ignored: %d rows", len(got))
	}
}

func TestRecorderPersistsOutcomes(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, 0)
	bus := eventbus.New()

	rec := NewRecorder(st, logx.Nop())
	rec.Start(context.Background(), bus)
	defer rec.Stop()

	bus.Publish(eventbus.Event{
		Type: eventbus.TaskCompleted,
		Data: scheduler.RunEvent{ID: "p1", Kind: "periodic", Started: time.Now(), Duration: 30 * time.Millisecond},
	})
	bus.Publish(eventbus.Event{
		Type: eventbus.TaskFailed,
		Data: scheduler.RunEvent{ID: "p1", Kind: "periodic", Started: time.Now(), Error: "transient"},
	})
	// Skipped events are not persisted.
	bus.Publish(eventbus.Event{
		Type: eventbus.TaskSkipped,
		Data: scheduler.RunEvent{ID: "p1", Kind: "periodic", Reason: "busy"},
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := st.RecentRuns(context.Background(), 10)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		if len(got) == 2 {
			if got[0].Error != "transient" {
				t.Fatalf("newest row = %+v, want the failed run", got[0])
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("recorder persisted %d rows, want 2", len(got))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRecorderNilStoreIsNoop(t *testing.T) {
	t.Parallel()
	rec := NewRecorder(nil, logx.Nop())
	rec.Start(context.Background(), eventbus.New())
	rec.Stop()
}
