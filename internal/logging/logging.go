package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. format is "json" or "text"; an unknown level
// falls back to info.
func New(level string, format string) *logrus.Logger {
	return NewWithOutput(level, format, os.Stdout)
}

func NewWithOutput(level string, format string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// Discard is for tests that need a logger but not its output.
func Discard() *logrus.Logger {
	return NewWithOutput("panic", "text", io.Discard)
}

// LogError logs err with the module and operation it came from.
func LogError(logger *logrus.Logger, module string, operation string, fields logrus.Fields, err error) {
	entry := logger.WithFields(logrus.Fields{
		"module":    module,
		"operation": operation,
	})
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(err.Error())
}
