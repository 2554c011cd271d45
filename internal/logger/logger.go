package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// console formats zerolog's JSON events for the current destination. Every
// logger, including the ones handed out by With, writes through it, so a
// redirect to the log file also moves loggers created before it.
type console struct {
	mu      sync.Mutex
	w       zerolog.ConsoleWriter
	logFile *os.File
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}

func (c *console) redirect(out io.Writer, noColor bool, f *os.File) *os.File {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.logFile
	c.w = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: noColor}
	c.logFile = f
	return prev
}

var (
	out    = &console{w: zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}}
	logger = zerolog.New(out).With().Timestamp().Logger()
)

// SetOutputFile sends the log to filename, without colors. The terminal
// cake owns stdout while it is drawn.
func SetOutputFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	if prev := out.redirect(f, true, f); prev != nil {
		prev.Close()
	}
	return nil
}

// CloseLogFile closes the log file if it's open and goes back to stdout
func CloseLogFile() {
	if prev := out.redirect(os.Stdout, false, nil); prev != nil {
		prev.Close()
	}
}

// SetLevel sets the global log level. Unknown names mean info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// With returns a child logger carrying the given component name, for
// packages that log structured fields (frame counters, baselines).
func With(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

func Debug(msg string) {
	logger.Debug().Msg(msg)
}

func Debugf(format string, v ...interface{}) {
	logger.Debug().Msgf(format, v...)
}

func Info(msg string) {
	logger.Info().Msg(msg)
}

func Infof(format string, v ...interface{}) {
	logger.Info().Msgf(format, v...)
}

func Warn(msg string) {
	logger.Warn().Msg(msg)
}

func Warnf(format string, v ...interface{}) {
	logger.Warn().Msgf(format, v...)
}

// Error logs msg with err attached
func Error(msg string, err error) {
	logger.Error().Err(err).Msg(msg)
}

// Errorf logs a formatted message with err attached; err comes before the
// format arguments.
func Errorf(format string, err error, v ...interface{}) {
	logger.Error().Err(err).Msgf(format, v...)
}
