// Package cosimlog carries the process-wide structured logger: the one
// piece of global mutable state the core allows, initialised once and used
// read-only thereafter.
package cosimlog

import (
	"context"
	"log/slog"
)

const (
	// LevelTrace sits just above Info, so any handler enabled at Info or
	// lower (slog's default handler included) emits it; no toggle gates
	// Trace, mirroring the teacher's trace level.
	LevelTrace slog.Level = slog.LevelInfo + 1

	// LevelSchedule marks per-tick scheduler decisions: which
	// subsimulators stepped, which transfers fired, which function
	// decimation factors changed.
	LevelSchedule slog.Level = slog.LevelInfo + 2
)

// EnableScheduleLog toggles LevelSchedule logging; false by default since a
// full run emits one line per tick per component.
var EnableScheduleLog = false

// Trace logs at LevelTrace.
func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// Schedule logs at LevelSchedule, subject to EnableScheduleLog.
func Schedule(msg string, args ...any) {
	if !EnableScheduleLog {
		return
	}
	slog.Log(context.Background(), LevelSchedule, msg, args...)
}
