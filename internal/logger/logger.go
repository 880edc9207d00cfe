package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Global logger instance
	Logger zerolog.Logger

	output = &switchWriter{w: newConsoleWriter(os.Stdout)}
)

// switchWriter lets component loggers created at package init follow later Initialize calls.
type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}
}

func init() {
	Logger = zerolog.New(output).With().Timestamp().Logger()
}

// Initialize sets up the global logger with appropriate configuration.
// Extra writers (e.g. a log file from FileWriter) receive the same JSON events as the console.
func Initialize(logLevel string, extra ...io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339

	var w io.Writer = newConsoleWriter(os.Stdout)
	if len(extra) > 0 {
		writers := append([]io.Writer{w}, extra...)
		w = zerolog.MultiLevelWriter(writers...)
	}
	output.set(w)

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(logLevel))

	// Replace standard log with zerolog
	log.Logger = Logger
}

// ParseLevel maps LOG_LEVEL values to zerolog levels, defaulting to info.
func ParseLevel(logLevel string) zerolog.Level {
	switch logLevel {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return zerolog.New(output).With().Timestamp().Str("component", component).Logger()
}

// FileWriter returns a writer to a log file for optional use alongside console logging
func FileWriter(path string) (io.Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}
	return file, nil
}
