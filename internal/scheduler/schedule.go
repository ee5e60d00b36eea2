package scheduler

import "time"

// intervalSchedule fires at a fixed interval anchored at activation time.
//
// cron.Every rounds intervals up to a full second; this keeps sub-second
// intervals intact, which short periodic tasks rely on. It also anchors the
// daily-task poll cadence at scheduler start rather than at minute boundaries,
// preserving the coarse wall-clock matching policy.
type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.every)
}
