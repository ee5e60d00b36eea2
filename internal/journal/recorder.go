package journal

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tickd/internal/eventbus"
	"tickd/internal/scheduler"
	"tickd/pkg/logx"
)

const appendTimeout = 2 * time.Second

// Recorder subscribes to task lifecycle events and persists completed and
// failed runs. Store write failures are logged (throttled) and never block
// the scheduler.
type Recorder struct {
	store Store
	log   logx.Logger

	// warnLimit throttles repeated append-failure warnings so a broken disk
	// does not flood the log at task cadence.
	warnLimit *rate.Limiter

	mu     sync.Mutex
	cancel context.CancelFunc
	unsub  func()
	wg     sync.WaitGroup
}

func NewRecorder(store Store, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{
		store:     store,
		log:       log,
		warnLimit: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Start begins consuming events. A nil store makes Start a no-op.
func (r *Recorder) Start(ctx context.Context, bus eventbus.Bus) {
	if r.store == nil || bus == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	events, unsub := bus.Subscribe(128)
	r.unsub = unsub

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.consume(ctx, events)
	}()
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	unsub := r.unsub
	r.cancel = nil
	r.unsub = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsub != nil {
		unsub()
	}
	r.wg.Wait()
}

func (r *Recorder) consume(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Type != eventbus.TaskCompleted && e.Type != eventbus.TaskFailed {
				continue
			}
			run, ok := e.Data.(scheduler.RunEvent)
			if !ok {
				continue
			}
			r.append(ctx, Run{
				TaskID:   run.ID,
				Kind:     run.Kind,
				Started:  run.Started,
				Duration: run.Duration,
				Error:    run.Error,
			})
		}
	}
}

func (r *Recorder) append(ctx context.Context, run Run) {
	actx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	if err := r.store.AppendRun(actx, run); err != nil {
		if r.warnLimit.Allow() {
			r.log.Warn("journal append failed", logx.String("task", run.TaskID), logx.Err(err))
		}
	}
}
