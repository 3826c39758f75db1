package utils

import (
	"os"

	"github.com/manningwu07/recurrent/params"
	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetDebug toggles debug output both in the config and on the logger.
func SetDebug(on bool) {
	params.Config.Debug = on
	if on {
		Log.SetLevel(logrus.DebugLevel)
		return
	}
	Log.SetLevel(logrus.InfoLevel)
}

// Debugf logs only while params.Config.Debug is set.
func Debugf(format string, args ...any) {
	if !params.Config.Debug {
		return
	}
	Log.Debugf(format, args...)
}
