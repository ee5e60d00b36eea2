// Package config loads and watches the tickd daemon configuration.
//
// Config files are YAML or JSON; YAML is coerced to JSON so both formats share
// one strict decoder (unknown fields are rejected).
package config

import (
	"fmt"
	"strconv"
	"strings"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Journal   *JournalConfig  `json:"journal,omitempty"`
	Tasks     []TaskConfig    `json:"tasks,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Jakarta"

	// PollEvery is the wall-clock poll cadence for daily tasks, as a Go
	// duration string. Empty means the scheduler default (one minute).
	PollEvery string `json:"poll_every,omitempty"`
}

// JournalConfig controls the sqlite run journal. Disabled when omitted.
type JournalConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	KeepRuns    int    `json:"keep_runs,omitempty"`
}

// TaskConfig declares one background task registered by the daemon.
//
// Kind values:
//   - "periodic": requires Every (Go duration string).
//   - "daily":    requires At ("HH:MM", scheduler timezone).
//   - "instant":  runs once at startup.
//
// Enabled is a pointer so "omitted" (default true) is distinguishable from an
// explicit false.
type TaskConfig struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Every   string   `json:"every,omitempty"`
	At      string   `json:"at,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
	Command []string `json:"command"`
	WorkDir string   `json:"workdir,omitempty"`
	Timeout string   `json:"timeout,omitempty"`
}

func (t TaskConfig) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// ParseAt splits an "HH:MM" wall-clock time.
func ParseAt(raw string) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return h, m, nil
}
