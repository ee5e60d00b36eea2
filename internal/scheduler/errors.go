package scheduler

import "errors"

// Contract violations surfaced to the caller. Admission problems (duplicate
// ids, disabled tasks) are logged and refused instead; see Scheduler.Add.
var (
	// ErrTaskRunning is returned when a task is disabled while a run is in flight.
	ErrTaskRunning = errors.New("task is currently running")

	// ErrAlreadyArmed is returned when a registry entry that already owns a
	// live timer handle is armed again.
	ErrAlreadyArmed = errors.New("task timer already armed")

	// ErrNotArmable is returned when a task that already left the Created
	// state is armed (e.g. re-adding a finalized task).
	ErrNotArmable = errors.New("task is not in the created state")
)
