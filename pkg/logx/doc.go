// Package logx is a small structured-logging layer over zerolog.
//
// It exists so components receive an injected Logger value instead of touching
// a process-wide logger: the daemon builds one Service, hands derived Loggers
// to each subsystem, and can re-apply sink/level config at runtime without
// invalidating loggers already handed out. Tests construct a writer-backed
// Logger to capture output deterministically.
//
// The zero Logger value is a safe no-op, which keeps optional logger fields on
// config-style structs cheap.
package logx
