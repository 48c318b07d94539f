package logrus

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/cascheck"
)

type LogrusLogger struct{ E *logrus.Entry }

var _ cascheck.Logger = LogrusLogger{}

// New returns a JSON logrus logger writing to w. Unknown levels fall back to info.
func New(w io.Writer, level string) LogrusLogger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return LogrusLogger{E: logrus.NewEntry(l).WithField("component", "cascheck")}
}

func (l LogrusLogger) Debug(msg string, f cascheck.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f cascheck.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f cascheck.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f cascheck.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
