package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	sentrylogrus "github.com/getsentry/sentry-go/logrus"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerConfig defines the configuration for the logger.
type LoggerConfig struct {
	Level      string // debug, info, warn or error
	FilePath   string // rotated log file; empty logs to stdout only
	MaxSize    int    // MB before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	Console    bool   // mirror file output to stdout
	SentryDSN  string // error-level entries go to Sentry when set
}

// sentryLevels are the levels reported to Sentry.
var sentryLevels = []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}

// NewLogger returns a JSON logrus.Logger writing to a rotated file and,
// optionally, stdout and Sentry.
func NewLogger(config LoggerConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	out, err := output(config)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	if config.SentryDSN != "" {
		hook, err := sentrylogrus.New(sentryLevels, sentry.ClientOptions{Dsn: config.SentryDSN})
		if err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
		logger.AddHook(hook)
	}

	return logger, nil
}

func output(config LoggerConfig) (io.Writer, error) {
	if config.FilePath == "" {
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
		return nil, err
	}
	file := &lumberjack.Logger{
		Filename:   config.FilePath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	if config.Console {
		return io.MultiWriter(file, os.Stdout), nil
	}
	return file, nil
}

// Flush waits up to timeout for buffered Sentry events of logger.
func Flush(logger *logrus.Logger, timeout time.Duration) {
	for _, hooks := range logger.Hooks {
		for _, h := range hooks {
			if sh, ok := h.(*sentrylogrus.Hook); ok {
				sh.Flush(timeout)
				return
			}
		}
	}
}

// WithOperation returns a logger entry with the specified operation context.
func WithOperation(logger *logrus.Logger, operation string) *logrus.Entry {
	return logger.WithField("operation", operation)
}

// WithFileOperation returns a logger entry with both file and operation context.
func WithFileOperation(logger *logrus.Logger, filePath, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"file":      filePath,
		"operation": operation,
	})
}

// WithBatch returns a logger entry tagged with a batch ID.
func WithBatch(logger *logrus.Logger, batchID string) *logrus.Entry {
	return logger.WithField("batch_id", batchID)
}
