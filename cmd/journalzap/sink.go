/* SPDX-License-Identifier: LGPL-2.1-or-later */
package main

import (
	"github.com/sirupsen/logrus"

	"github.com/appgate/journalzap/internal/journal"
)

// logSink adapts a *logrus.Entry to the core's journal.Sink interface, so
// internal/journal never imports a logging library directly.
type logSink struct {
	entry *logrus.Entry
}

func newLogSink(log *logrus.Logger) journal.Sink {
	return logSink{entry: logrus.NewEntry(log)}
}

func (s logSink) Debugf(format string, args ...any) { s.entry.Debugf(format, args...) }
func (s logSink) Infof(format string, args ...any)  { s.entry.Infof(format, args...) }
func (s logSink) Warnf(format string, args ...any)  { s.entry.Warnf(format, args...) }
func (s logSink) Errorf(format string, args ...any) { s.entry.Errorf(format, args...) }

func (s logSink) WithFields(fields map[string]any) journal.Sink {
	return logSink{entry: s.entry.WithFields(logrus.Fields(fields))}
}
