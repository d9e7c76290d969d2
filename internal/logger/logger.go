package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const (
	rotateThresholdKB = 10 * 1024
	rotateMaxRolls    = 3
)

// stderr is where console output goes.
var stderr io.Writer = os.Stderr

// Logger wraps standard log with debug flag
type Logger struct {
	debug bool
	*log.Logger
	closer io.Closer
}

// New creates a logger on stderr. Printf output needs debug; warnings and
// errors are written either way.
func New(debug bool) *Logger {
	return NewWithWriter(stderr, debug)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, debug bool) *Logger {
	return &Logger{
		debug:  debug,
		Logger: log.New(w, "", log.LstdFlags),
	}
}

// NewWithFile creates a logger that always writes to a rotated log file and,
// in debug mode, to stderr as well.
func NewWithFile(logFile string, debug bool) (*Logger, error) {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return nil, errors.Wrap(err, "failed to create log directory")
		}
	}
	r, err := rotator.New(logFile, rotateThresholdKB, false, rotateMaxRolls)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file rotator")
	}
	var writer io.Writer = r
	if debug {
		writer = io.MultiWriter(stderr, r)
	}
	l := NewWithWriter(writer, true)
	l.closer = r
	return l, nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Debug reports whether debug output is enabled
func (l *Logger) Debug() bool {
	return l.debug
}

// Printf logs if debug is enabled
func (l *Logger) Printf(format string, v ...interface{}) {
	if l.debug {
		l.Logger.Printf(format, v...)
	}
}

// Print logs if debug is enabled
func (l *Logger) Print(v ...interface{}) {
	if l.debug {
		l.Logger.Print(v...)
	}
}

// Println logs if debug is enabled
func (l *Logger) Println(v ...interface{}) {
	if l.debug {
		l.Logger.Println(v...)
	}
}

// Warnf always logs
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.Logger.Printf("WARN "+format, v...)
}

// Errorf always logs
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.Logger.Printf("ERROR "+format, v...)
}

// Fatalf always logs (fatal errors)
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.Logger.Fatalf(format, v...)
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard, false)
}
