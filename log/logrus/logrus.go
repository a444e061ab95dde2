package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/cachekit/log"
)

var _ log.Logger = Logger{}

// Logger adapts a logrus entry. Fields are attached with WithFields so they
// render through whatever formatter the entry's logger uses.
type Logger struct{ E *logrus.Entry }

// New wraps l, tagging every record with component=cachekit.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "cachekit")}
}

func (l Logger) Debug(msg string, f log.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f log.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f log.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f log.Fields) { l.E.WithFields(logrus.Fields(f)).Error(msg) }
