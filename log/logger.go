// Package log provides named, leveled loggers shared by the kd-tree tools.
package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/op/go-logging"
	"github.com/pkg/errors"
)

type Level logging.Level

const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

var levels = []struct {
	level   Level
	name    string
	backend logging.Level
}{
	{Debug, "debug", logging.DEBUG},
	{Info, "info", logging.INFO},
	{Notice, "notice", logging.NOTICE},
	{Warning, "warning", logging.WARNING},
	{Error, "error", logging.ERROR},
}

var (
	lineFormat = logging.MustStringFormatter(
		`%{color}%{time:15:04:05.000} %{level:.4s} [%{module}]%{color:reset} %{message}`,
	)

	mu      sync.Mutex
	backend logging.LeveledBackend
	current = Notice
)

type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// New returns the logger for a module. Module names appear in every line.
func New(module string) Logger {
	return logging.MustGetLogger(module)
}

// SetSink redirects all loggers to sink. The active level is kept.
func SetSink(sink io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	formatted := logging.NewBackendFormatter(logging.NewLogBackend(sink, "", 0), lineFormat)
	backend = logging.AddModuleLevel(formatted)
	backend.SetLevel(backendLevel(current), "")
	logging.SetBackend(backend)
}

// SetLevel changes the verbosity of every module.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()

	current = level
	backend.SetLevel(backendLevel(level), "")
}

// ParseLevel maps a level name (debug, info, notice, warning, error) to a Level.
func ParseLevel(name string) (Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, l := range levels {
		if l.name == name {
			return l.level, nil
		}
	}
	return Notice, errors.Errorf("log: unknown level %q", name)
}

// Unknown levels fall back to notice.
func backendLevel(level Level) logging.Level {
	for _, l := range levels {
		if l.level == level {
			return l.backend
		}
	}
	return logging.NOTICE
}

func init() {
	SetSink(os.Stderr)
}
