package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns the process logger: text output with full timestamps, debug
// level when debug is set and info otherwise.
func New(debug bool) *logrus.Logger {
	return NewWithWriter(os.Stderr, debug)
}

// NewWithWriter is New with an explicit output.
func NewWithWriter(w io.Writer, debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)
	return logger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
