package internal

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel names accepted by LOG_LEVEL, in increasing verbosity.
const (
	LogLevelError = "ERROR"
	LogLevelWarn  = "WARN"
	LogLevelInfo  = "INFO"
	LogLevelDebug = "DEBUG"
	LogLevelTrace = "TRACE"
)

// ParseLogLevel maps a LOG_LEVEL value to a logrus level. Empty means INFO.
func ParseLogLevel(name string) (logrus.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case LogLevelError:
		return logrus.ErrorLevel, true
	case LogLevelWarn, "WARNING":
		return logrus.WarnLevel, true
	case LogLevelInfo, "":
		return logrus.InfoLevel, true
	case LogLevelDebug:
		return logrus.DebugLevel, true
	case LogLevelTrace:
		return logrus.TraceLevel, true
	}
	return logrus.InfoLevel, false
}

// NewLogger creates a text logger writing to out at the given level.
func NewLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	return logger
}

// NewDefaultLogger creates a stderr logger based on the LOG_LEVEL environment variable
func NewDefaultLogger() *logrus.Logger {
	level, _ := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	return NewLogger(os.Stderr, level)
}
