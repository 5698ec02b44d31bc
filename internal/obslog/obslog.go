// Package obslog centralizes the default structured logger construction for
// the scheduler and client packages, following the configure-once pattern
// the teacher package uses for its own cross-cutting logging concern
// (joeycumines-go-utilpkg/eventloop/logging.go's SetStructuredLogger /
// getGlobalLogger), but built on the real logiface + stumpy pairing instead
// of a hand-rolled Logger interface, since that pairing is itself part of
// the retrieved corpus (github.com/joeycumines/logiface,
// github.com/joeycumines/stumpy).
package obslog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type every package in this module accepts.
type Logger = logiface.Logger[*stumpy.Event]

// Disabled returns a logger that discards everything, used as the default
// when a caller does not configure one explicitly, so the core scheduler and
// client never force I/O.
func Disabled() *Logger {
	return logiface.New[*stumpy.Event](
		logiface.WithLevel[*stumpy.Event](logiface.LevelDisabled),
	)
}

// New constructs the default structured logger: JSON lines over w, at the
// given minimum level, via stumpy.
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return logiface.New[*stumpy.Event](
		stumpy.WithStumpy(stumpy.WithWriter(w)),
		logiface.WithLevel[*stumpy.Event](level),
	)
}

// Default is the package-level logger used when nothing else is configured;
// writes informational-and-above events to stderr.
func Default() *Logger {
	return New(os.Stderr, logiface.LevelInformational)
}
