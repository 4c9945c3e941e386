// Package logging configures the process-wide logger.
package logging

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Setup applies the configured level and a full-timestamp text formatter
// to the standard logrus logger. Unknown levels fall back to info.
func Setup(level string) {
	formatter := new(logrus.TextFormatter)
	formatter.TimestampFormat = time.RFC3339
	formatter.FullTimestamp = true
	logrus.SetFormatter(formatter)

	switch strings.ToLower(level) {
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// Component returns a logger tagged with the owning component name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}
