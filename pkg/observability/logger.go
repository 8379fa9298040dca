package observability

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// LogLevel is the severity threshold configured for the process.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}[l]
}

// ToLogrus maps a LogLevel to the corresponding logrus level.
func (l LogLevel) ToLogrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// NewLogger builds the process logger: JSON-formatted logrus at the
// given level. Log lines are structured so they can be shipped to a
// collector without extra parsing.
func NewLogger(level LogLevel, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}
	log := logrus.New()
	log.SetOutput(output)
	log.SetLevel(level.ToLogrus())
	log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	return log
}
