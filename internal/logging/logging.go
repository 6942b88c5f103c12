// Package logging implements the ambient diagnostic sink (SPEC_FULL.md
// §A.1): a thread-safe wrapper over the standard library's log.Logger,
// color-highlighted per severity following the sunholo-data-ailang
// cmd/ailang/main.go convention of github.com/fatih/color SprintFunc
// helpers, gated on terminal detection the way the teacher's
// internal/batch.go gates its status display via golang.org/x/sys/unix
// IoctlGetTermios.
package logging

import (
	"io"
	"log"
	"os"

	"github.com/fatih/color"
	"golang.org/x/sys/unix"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// IsTerminal reports whether stdout is an interactive terminal, following
// the teacher's isTerminal gate in internal/batch.go.
func IsTerminal() bool {
	_, err := unix.IoctlGetTermios(int(os.Stdout.Fd()), unix.TCGETS)
	return err == nil
}

// Logger is the thread-safe sink every build-time component writes to
// (§5, "Logger: thread-safe sink"). The underlying log.Logger already
// serializes writes, so Logger adds only the severity-to-color mapping.
type Logger struct {
	std   *log.Logger
	color bool
}

// New wraps w in a Logger. color, when true, wraps each line's prefix in
// the corresponding fatih/color SprintFunc; pass logging.IsTerminal() so
// redirected output (CI logs, compile_commands.json piping) stays plain.
func New(w io.Writer, color bool) *Logger {
	return &Logger{std: log.New(w, "", log.LstdFlags), color: color}
}

// Default returns a Logger writing to stderr with color enabled iff stderr
// is a terminal.
func Default() *Logger {
	_, err := unix.IoctlGetTermios(int(os.Stderr.Fd()), unix.TCGETS)
	return New(os.Stderr, err == nil)
}

// Infof logs a routine progress line (compiling/linking a given task).
func (l *Logger) Infof(format string, args ...interface{}) {
	l.std.Printf(format, args...)
}

// Diagnosticf logs a module-level notice, e.g. a toolchain fallback.
func (l *Logger) Diagnosticf(format string, args ...interface{}) {
	if l.color {
		l.std.Printf(cyan(format), args...)
		return
	}
	l.std.Printf(format, args...)
}

// Warnf logs a recoverable problem (a skipped dependent, a stale cache
// entry).
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.color {
		l.std.Printf(bold(yellow(format)), args...)
		return
	}
	l.std.Printf(format, args...)
}

// Errorf logs a task or build failure.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.color {
		l.std.Printf(bold(red(format)), args...)
		return
	}
	l.std.Printf(format, args...)
}

// Func adapts Infof into the plain func(string) shape
// internal/orchestrate.Orchestrator.Logger expects.
func (l *Logger) Func() func(string) {
	return func(s string) { l.Infof("%s", s) }
}
