package telemetry

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// SetupLogging configures the process-wide logrus logger. Output defaults to stderr so
// command results on stdout stay machine readable.
func SetupLogging(level, format string, w io.Writer) {
	if w != nil {
		logrus.SetOutput(w)
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetLevel(ParseLevel(level))
}

func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
