// Package xlog centralizes structured logging for the engine. The teacher
// (pkg/minikanren/wfs_trace.go) gates an ad hoc stdlib-log tracer behind an
// env var; this package promotes that idea to github.com/sirupsen/logrus
// with named fields instead of a single format string, while keeping the
// same "opt-in, env-gated" ergonomics.
package xlog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.WarnLevel)
	if os.Getenv("SIVSYNTH_DEBUG") == "1" {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// For returns a logger scoped to a named component ("partition",
// "transition", "synth", ...), analogous to the "[WFS]" prefix in
// wfs_trace.go but carrying the component as a structured field instead of
// string-prefixing every message.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// SetLevel allows a host (or a test) to raise verbosity programmatically,
// mirroring the teacher's DebugWFS config flag (solver.go's SolverConfig
// carries similar debug toggles).
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}
