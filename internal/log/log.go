// Package log implements structured logging on top of logrus.
package log

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var logger Logger

// GetLogger returns the process-wide logger. Init must run first; before
// that it returns nil.
func GetLogger() Logger {
	return logger
}

// Init builds the global logger from a LoggerConfig. Later calls replace
// the logger, which tests rely on to exercise distinct configurations.
func Init(cfg LoggerConfig) error {
	return initByConfig(cfg)
}
