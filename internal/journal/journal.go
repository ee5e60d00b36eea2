// Package journal persists task run outcomes for diagnostics.
//
// The journal is owned by the host application, not by the scheduler: the
// scheduler stays purely in-memory and the Recorder feeds the store from
// lifecycle events on the bus. Losing the journal never affects scheduling.
package journal

import (
	"context"
	"errors"
	"time"

	"tickd/pkg/logx"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the sqlite run journal.
type Config struct {
	Enabled     bool
	Path        string
	BusyTimeout time.Duration // 0 means driver default
	KeepRuns    int           // retained rows; 0 means default
}

// Run is one recorded task execution.
type Run struct {
	TaskID   string
	Kind     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// Store is the minimal persistence API used by the recorder and diagnostics.
type Store interface {
	AppendRun(ctx context.Context, r Run) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when the
// journal is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
