package scheduler

import (
	"fmt"
	"time"
)

type kindID uint8

const (
	kindPeriodic kindID = iota + 1
	kindDaily
	kindInstant
)

// Kind is a task's schedule variant. Exactly one variant is carried per task;
// the payload (interval, or target hour/minute) lives inside the value, so an
// interval and a wall-clock time can never be set at the same time.
//
// The zero Kind is invalid and rejected at task construction.
type Kind struct {
	id     kindID
	every  time.Duration
	hour   int
	minute int
}

// Periodic fires every interval. Sub-second intervals are supported.
func Periodic(every time.Duration) Kind {
	return Kind{id: kindPeriodic, every: every}
}

// DailyAt fires once per day when the wall-clock poll matches hour:minute in
// the scheduler's timezone.
func DailyAt(hour, minute int) Kind {
	return Kind{id: kindDaily, hour: hour, minute: minute}
}

// Instant runs exactly once, immediately upon registration.
func Instant() Kind {
	return Kind{id: kindInstant}
}

func (k Kind) validate() error {
	switch k.id {
	case kindPeriodic:
		if k.every <= 0 {
			return fmt.Errorf("periodic interval must be positive, got %s", k.every)
		}
	case kindDaily:
		if k.hour < 0 || k.hour > 23 {
			return fmt.Errorf("daily hour out of range: %d", k.hour)
		}
		if k.minute < 0 || k.minute > 59 {
			return fmt.Errorf("daily minute out of range: %d", k.minute)
		}
	case kindInstant:
	default:
		return fmt.Errorf("task kind is not set")
	}
	return nil
}

func (k Kind) String() string {
	switch k.id {
	case kindPeriodic:
		return "periodic"
	case kindDaily:
		return "daily"
	case kindInstant:
		return "instant"
	default:
		return "unset"
	}
}

func (k Kind) atString() string {
	return fmt.Sprintf("%02d:%02d", k.hour, k.minute)
}

// Every returns the interval of a periodic kind (zero otherwise).
func (k Kind) Every() time.Duration { return k.every }

// At returns the target wall-clock time of a daily kind.
func (k Kind) At() (hour, minute int) { return k.hour, k.minute }
