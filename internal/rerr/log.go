package rerr

import (
	"fmt"
	"log"
)

// Level is a logging verbosity threshold, derived from the -q/-v flags.
type Level int

const (
	// LevelQuiet suppresses everything but fatal errors.
	LevelQuiet Level = iota
	// LevelNormal is the default: errors, warnings, and task progress.
	LevelNormal
	// LevelVerbose adds per-task timing and scheduling detail (-v).
	LevelVerbose
	// LevelDebug adds script-runtime and freshness-check detail (-vv).
	LevelDebug
)

// LevelFromFlags maps the CLI's -q and repeated -v flags to a Level.
// quiet wins over verbose if both are given.
func LevelFromFlags(quiet bool, verboseCount int) Level {
	if quiet {
		return LevelQuiet
	}
	switch {
	case verboseCount >= 2:
		return LevelDebug
	case verboseCount == 1:
		return LevelVerbose
	default:
		return LevelNormal
	}
}

// Logger is a minimal level-gated wrapper around the standard logger,
// used so -q and -v control what the CLI prints without threading a
// verbosity flag through every call site.
type Logger struct {
	level Level
}

// NewLogger returns a Logger gated at level.
func NewLogger(level Level) *Logger {
	return &Logger{level: level}
}

// Errorf always prints, regardless of level.
func (l *Logger) Errorf(format string, args ...any) {
	log.Print(fmt.Sprintf("error: "+format, args...))
}

// Warnf prints unless the logger is at LevelQuiet.
func (l *Logger) Warnf(format string, args ...any) {
	if l.level < LevelNormal {
		return
	}
	log.Print(fmt.Sprintf("warning: "+format, args...))
}

// Infof prints at LevelNormal and above: task progress, schedule summaries.
func (l *Logger) Infof(format string, args ...any) {
	if l.level < LevelNormal {
		return
	}
	log.Print(fmt.Sprintf(format, args...))
}

// Verbosef prints at LevelVerbose and above: per-task timing detail.
func (l *Logger) Verbosef(format string, args ...any) {
	if l.level < LevelVerbose {
		return
	}
	log.Print(fmt.Sprintf(format, args...))
}

// Debugf prints only at LevelDebug: script and freshness internals.
func (l *Logger) Debugf(format string, args ...any) {
	if l.level < LevelDebug {
		return
	}
	log.Print(fmt.Sprintf("debug: "+format, args...))
}
