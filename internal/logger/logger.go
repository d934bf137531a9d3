package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// writerCloser holds a reference to closable writers for Sync()
var (
	writerCloser   io.Closer
	writerCloserMu sync.Mutex
)

// Logger wraps logrus.Entry to provide structured logging with context support.
type Logger struct {
	*logrus.Entry
}

// Config holds logger configuration.
type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	Output      io.Writer // output destination
	ServiceName string    // service name for log tagging
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "json",
		Output:      os.Stdout,
		ServiceName: "mangalm-upload",
	}
}

// New creates a new Logger with the given configuration.
// Parameters:
//   - cfg: logger configuration; nil uses DefaultConfig.
// Returns:
//   - *Logger: initialized logger instance.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	log := logrus.New()

	if cfg.Output != nil {
		log.SetOutput(cfg.Output)
	} else {
		log.SetOutput(os.Stdout)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportCaller(true)
	log.SetFormatter(newFormatter(cfg.Format))

	entry := log.WithField("service", cfg.ServiceName)
	return &Logger{Entry: entry}
}

// NewFromEnv creates a new Logger from environment configuration.
// This supports log rotation and multi-output (stdout + file).
func NewFromEnv(envCfg *EnvConfig) *Logger {
	if envCfg == nil {
		envCfg = LoadFromEnv()
	}

	log := logrus.New()

	level, err := logrus.ParseLevel(envCfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetReportCaller(true)
	log.SetFormatter(newFormatter(envCfg.Format))

	if envCfg.Output != nil {
		log.SetOutput(envCfg.Output)
	} else {
		var writers []io.Writer

		if envCfg.Environment == "local" || !envCfg.LogFileOnly {
			writers = append(writers, os.Stdout)
		}

		if envCfg.Environment != "local" && envCfg.LogFile != "" {
			fileWriter := &lumberjack.Logger{
				Filename:   envCfg.LogFile,
				MaxSize:    envCfg.MaxSize, // MB
				MaxBackups: envCfg.MaxBackups,
				MaxAge:     envCfg.MaxAge, // days
				Compress:   envCfg.Compress,
			}
			writers = append(writers, fileWriter)

			writerCloserMu.Lock()
			writerCloser = fileWriter
			writerCloserMu.Unlock()
		}

		if len(writers) == 0 {
			writers = append(writers, os.Stdout)
		}

		log.SetOutput(io.MultiWriter(writers...))
	}

	entry := log.WithField("service", envCfg.ServiceName)
	return &Logger{Entry: entry}
}

// NewDefault creates a new Logger using environment variable configuration.
// This is the recommended way to create a logger in main().
func NewDefault() *Logger {
	return NewFromEnv(nil)
}

// Sync flushes all pending logs and closes file handles.
// Should be called before program exit to ensure no logs are lost.
func Sync() error {
	writerCloserMu.Lock()
	defer writerCloserMu.Unlock()

	if writerCloser != nil {
		return writerCloser.Close()
	}
	return nil
}

func newFormatter(format string) logrus.Formatter {
	if strings.ToLower(format) == "text" {
		return &logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02T15:04:05.000Z07:00",
			CallerPrettyfier: callerPrettyfier,
		}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: callerPrettyfier,
	}
}

// WithFields returns a new Logger with additional fields.
func (l *Logger) WithFields(fields Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// WithField returns a new Logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithError returns a new Logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

// callerPrettyfier simplifies caller information to show only relative path and line number
func callerPrettyfier(frame *runtime.Frame) (function string, file string) {
	funcName := frame.Function
	if idx := strings.LastIndex(funcName, "/"); idx != -1 {
		funcName = funcName[idx+1:]
	}
	fileName := filepath.Base(frame.File)
	return funcName, fileName + ":" + strconv.Itoa(frame.Line)
}

// ============================================
// Context Log Functions
// ============================================

// CtxDebug logs a message at Debug level with context fields.
func CtxDebug(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Debugf(format, args...)
}

// CtxInfo logs a message at Info level with context fields.
func CtxInfo(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Infof(format, args...)
}

// CtxWarn logs a message at Warn level with context fields.
func CtxWarn(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Warnf(format, args...)
}

// CtxError logs a message at Error level with context fields.
func CtxError(ctx context.Context, format string, args ...interface{}) {
	FromContext(ctx).Errorf(format, args...)
}
