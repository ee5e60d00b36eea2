package scheduler

import (
	"sort"
	"time"
)

// TaskInfo is one registry row in a Snapshot.
type TaskInfo struct {
	ID      string
	Kind    string
	Enabled bool
	Running bool
	Armed   bool
	Next    time.Time
	Prev    time.Time
}

// Snapshot is a point-in-time view of the scheduler for diagnostics.
type Snapshot struct {
	Initialized bool
	Timezone    string
	Tasks       []TaskInfo
}

// TaskIDs returns the registered ids in sorted order.
func (s *Scheduler) TaskIDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Snapshot captures the registry state. Read-only, no side effects.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	initialized := s.initialized
	loc := s.loc
	c := s.c
	rows := make([]TaskInfo, 0, len(s.entries))
	for id, en := range s.entries {
		rows = append(rows, TaskInfo{
			ID:      id,
			Kind:    en.task.kind.String(),
			Enabled: en.task.Enabled(),
			Running: en.task.Running(),
			Armed:   en.armed,
		})
	}
	entriesByID := make(map[string]*entry, len(s.entries))
	for id, en := range s.entries {
		entriesByID[id] = en
	}
	s.mu.Unlock()

	// Fetch timer positions outside s.mu; cron serves Entry from its own loop.
	if c != nil {
		for i := range rows {
			en := entriesByID[rows[i].ID]
			if en != nil && en.armed {
				e := c.Entry(en.entryID)
				rows[i].Next = e.Next
				rows[i].Prev = e.Prev
			}
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	tz := ""
	if loc != nil {
		tz = loc.String()
	}
	return Snapshot{Initialized: initialized, Timezone: tz, Tasks: rows}
}
