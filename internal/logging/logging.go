// Package logging provides the shared structured-logger factory used by
// the binaries and pipelines. New returns a *log.Logger whose prefix
// is the given name; the logger is handed to components via their
// constructors rather than read from a package global.
package logging

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// New returns a logger scoped to component, writing to stderr at Info
// level by default. Components that need more detail raise their own
// logger's level independently.
func New(component string) *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          component,
	})
}

// Discard returns a logger that writes nowhere, for tests that don't
// want pipeline logging cluttering test output.
func Discard() *log.Logger {
	l := log.New(discardWriter{})
	l.SetLevel(log.FatalLevel + 1)
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// frameTimestampFormat renders TX/RX frame log records with
// millisecond precision, matching the granularity the TDD scheduler
// itself operates at (§4.9's guard interval is 50ms).
var frameTimestampFormat = strftime.MustNew("%Y-%m-%d %H:%M:%S.%L")

// FrameTimestamp formats t for a tx/rx frame log record.
func FrameTimestamp(t time.Time) string {
	return frameTimestampFormat.FormatString(t)
}
