// Package klog is the kernel's structured boot/diagnostic logger. It
// wraps logrus the way moby-moby wraps it for its daemon log: one
// shared logger, fields for the subsystem identifiers a kernel console
// actually has (cpu=, pid=, drive=) instead of caller-assembled
// strings.
package klog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    false,
		DisableTimestamp: false,
	})
	base.SetOutput(os.Stderr)
	base.SetLevel(logrus.InfoLevel)
}

// SetOutput redirects the logger, e.g. to the framebuffer terminal's
// writer once it is up.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// SetLevel adjusts verbosity; the kernel's boot sequence passes it the
// log level bootcfg parsed from the command line.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	base.SetLevel(lvl)
	return nil
}

// CPU returns a logger scoped to one CPU's boot/scheduler messages.
func CPU(id int) *logrus.Entry {
	return base.WithField("cpu", id)
}

// Proc returns a logger scoped to one process's lifecycle messages.
func Proc(pid int) *logrus.Entry {
	return base.WithField("pid", pid)
}

// Drive returns a logger scoped to one mounted file system's messages.
func Drive(name string) *logrus.Entry {
	return base.WithField("drive", name)
}

// Boot logs an unscoped boot-sequence milestone.
func Boot(format string, args ...interface{}) {
	base.Infof(format, args...)
}

// Warn logs a recoverable condition (e.g. a failed best-effort sync on
// handle close, per spec §7's "logged but never panicked" rule).
func Warn(format string, args ...interface{}) {
	base.Warnf(format, args...)
}

// Fatal logs an unrecoverable boot condition and halts. It never
// returns, matching the kernel's own "killing the current thread...
// never returns" convention for code that cannot continue.
func Fatal(format string, args ...interface{}) {
	base.Fatalf(format, args...)
}
