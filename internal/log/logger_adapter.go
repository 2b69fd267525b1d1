package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"firestige.xyz/otus/internal/config"
)

// LoggerConfig is the runtime logging configuration consumed by Init.
type LoggerConfig struct {
	Level  string
	Format string // "json" | "text"

	FileEnabled bool
	FilePath    string
	FileAppenderOpt
}

// FromConfig bridges config.LogConfig into a LoggerConfig. Defined here,
// not in package config, to keep package config free of a dependency on
// the logging backend.
func FromConfig(cfg config.LogConfig) LoggerConfig {
	r := cfg.Outputs.File.Rotation
	return LoggerConfig{
		Level:       cfg.Level,
		Format:      cfg.Format,
		FileEnabled: cfg.Outputs.File.Enabled,
		FilePath:    cfg.Outputs.File.Path,
		FileAppenderOpt: FileAppenderOpt{
			Filename:   cfg.Outputs.File.Path,
			MaxSize:    r.MaxSizeMB,
			MaxBackups: r.MaxBackups,
			MaxAge:     r.MaxAgeDays,
			Compress:   r.Compress,
		},
	}
}

// defaultPattern/defaultTime are used when Format == "text"; "json" bypasses
// the custom formatter in favor of logrus.JSONFormatter, matching what
// structured consumers of netwatchd logs expect.
const (
	defaultPattern = "%time [%level] %msg %field"
	defaultTime    = "2006-01-02T15:04:05.000Z07:00"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

func initByConfig(cfg LoggerConfig) error {
	l := logrus.New()

	switch cfg.Format {
	case "", "text":
		l.SetFormatter(&formatter{pattern: defaultPattern, time: defaultTime})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: defaultTime})
	default:
		return fmt.Errorf("log: unsupported format %q", cfg.Format)
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	out := NewMultiWriter().Add(os.Stdout)
	if cfg.FileEnabled {
		if cfg.FilePath == "" {
			return fmt.Errorf("log: file output requires a path")
		}
		out.AddFileAppender(FileAppenderOpt{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	l.SetOutput(out)

	logger = &logrusAdapter{entry: logrus.NewEntry(l)}
	return nil
}

func (l *logrusAdapter) Print(args ...interface{})                 { l.entry.Print(args...) }
func (l *logrusAdapter) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusAdapter) Panic(args ...interface{})                 { l.entry.Panic(args...) }
func (l *logrusAdapter) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}
func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
func (l *logrusAdapter) IsInfoEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.InfoLevel)
}
