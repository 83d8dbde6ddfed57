package bredr

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface used throughout the stack. The default
// is a logrus text logger on stderr; swap it out with SetLogger.
type Logger interface {
	Info(...interface{})
	Debug(...interface{})
	Error(...interface{})
	Warn(...interface{})

	Infof(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Warnf(string, ...interface{})

	ChildLogger(tags map[string]interface{}) Logger
}

var logger Logger
var loggerMu sync.Mutex

// SetLogLevel adjusts the default logger's verbosity. Accepts logrus
// level names ("debug", "trace", ...). No effect on custom loggers.
func SetLogLevel(level string) error {
	l := GetLogger()

	lg, ok := l.(*defaultLogger)
	if !ok {
		return ErrNotSupported
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	lg.Entry.Logger.SetLevel(lvl)
	return nil
}

func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = l
}

func GetLogger() Logger {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if logger == nil {
		logger = buildDefaultLogger()
	}

	return logger
}

// ComponentLogger returns a child logger tagged with a component name.
// Subsystems grab one at construction time.
func ComponentLogger(name string) Logger {
	return GetLogger().ChildLogger(map[string]interface{}{"component": name})
}

type defaultLogger struct {
	*logrus.Entry
}

func buildDefaultLogger() Logger {
	l := &logrus.Logger{
		Formatter: &logrus.TextFormatter{DisableTimestamp: true},
		Level:     logrus.InfoLevel,
		Out:       os.Stderr,
		Hooks:     make(logrus.LevelHooks),
	}

	return &defaultLogger{Entry: l.WithFields(map[string]interface{}{})}
}

func (d *defaultLogger) ChildLogger(ff map[string]interface{}) Logger {
	nl := &defaultLogger{d.Entry.WithFields(ff)}
	return nl
}
