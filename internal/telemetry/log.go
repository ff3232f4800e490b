// Package telemetry carries gistd's ambient logging and tracing setup:
// structured per-module logging (replacing gnbsim's dprint/indent
// idiom) and an OpenTelemetry tracer provider for handshake spans.
package telemetry

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds a logrus logger configured from the ambient logging
// section of gistd's config. Call sites attach a "module" field the way
// gnbsim's dprint calls were gated by an indent level and a component
// name; here that's logrus.WithField("module", ...) instead of a
// hand-rolled prefix string.
func NewLogger(level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}

	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// ForModule returns a logger entry tagged with the originating
// component, mirroring gnbsim's per-function dprint(indent, name, ...)
// calls but as a structured field instead of string indentation.
func ForModule(l *logrus.Logger, module string) *logrus.Entry {
	return l.WithField("module", module)
}
