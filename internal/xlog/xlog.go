// Package xlog wraps logrus with the component-tagged entry convention
// used throughout this module: every long-lived object is constructed
// with its own *logrus.Entry rather than reaching for a package-level
// logger.
package xlog

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	baseOnce sync.Once
	base     *logrus.Logger
)

// Base returns the process-wide logrus.Logger used to derive tagged
// entries. It is configured once, lazily, so tests that never touch
// logging don't pay for it.
func Base() *logrus.Logger {
	baseOnce.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	})
	return base
}

// SetLevel adjusts the base logger's level, e.g. from a -d/trace flag.
func SetLevel(lvl logrus.Level) {
	Base().SetLevel(lvl)
}

// SetOutput redirects the base logger, e.g. to the -l logfile.
func SetOutput(w io.Writer) {
	Base().SetOutput(w)
}

// For returns a *logrus.Entry tagged with "component" = name, the
// convention every constructor in this module follows in place of the
// teacher's fs.Infof(name, ...) / fs.Debugf(obj, ...) style.
func For(component string) *logrus.Entry {
	return Base().WithField("component", component)
}

// With further tags an existing entry, e.g. xlog.With(e, "slot", 3).
func With(e *logrus.Entry, key string, value interface{}) *logrus.Entry {
	return e.WithField(key, value)
}
