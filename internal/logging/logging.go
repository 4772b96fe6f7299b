// Package logging provides the leveled diagnostic logger shared by vibe's components.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"
)

// Level controls logging verbosity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

var ErrUnknownLevel = errors.New("unknown log level")

// LookupLevel maps a config string to a Level, rejecting unknown names.
func LookupLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %q (want debug, info, warn or error)", ErrUnknownLevel, s)
	}
}

// ParseLevel is LookupLevel defaulting to info.
func ParseLevel(s string) Level {
	l, _ := LookupLevel(s)
	return l
}

// Logger writes "RFC3339 LEVEL component: message" lines.
type Logger struct {
	logger    *log.Logger
	level     Level
	component string
	now       func() time.Time
}

// New returns a Logger writing to w at the given level.
func New(w io.Writer, level string, component string) *Logger {
	return &Logger{
		logger:    log.New(w, "", 0),
		level:     ParseLevel(level),
		component: component,
		now:       time.Now,
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, "error", "")
}

// With returns a Logger sharing the writer and level under another component name.
func (l *Logger) With(component string) *Logger {
	cp := *l
	cp.component = component
	return &cp
}

func (l *Logger) Enabled(level Level) bool {
	return level >= l.level
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }

func (l *Logger) log(level Level, format string, args ...any) {
	if l == nil || level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s %s %s: %s", l.now().Format(time.RFC3339), level, l.component, msg)
}
