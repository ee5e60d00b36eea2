// Package scheduler provides the in-process background task scheduler embedded
// in the tickd daemon.
//
// # Overview
//
// A Task couples a stable id with one schedule Kind and caller-supplied
// execution logic. The Scheduler owns the id -> task registry, arms and
// cancels timers through a shared cron runner, and is the only component that
// mutates task membership. Hosts interact through Add, Remove, Stop and the
// read-only accessors.
//
// # Kinds
//
//   - Periodic(interval): fires every interval.
//   - DailyAt(hour, minute): fires when a coarse wall-clock poll (default
//     cadence one minute) lands in the target minute. This is deliberately not
//     a precise cron: a fire is missed entirely if the process is down across
//     the target minute, and imprecise poll timing can land two polls in the
//     same matching minute.
//   - Instant(): executed asynchronously exactly once upon registration, then
//     finalized.
//
// # Concurrency and failure isolation
//
// Timer fires are dispatched on their own goroutines, so each task carries a
// run-exclusivity guard: a fire that arrives while a previous run is still in
// flight is dropped, not queued. Failures (including panics) inside a task's
// execute or finalize hooks are caught and logged per task; they never reach
// the dispatch loop or other tasks.
//
// # Lifecycle
//
// The scheduler initializes lazily on the first Add and can be reused after
// Stop. Stop cancels timers synchronously and finalizes tasks immediately; it
// does not wait for in-flight executions to drain.
package scheduler
