package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

func init() {
	// Default until Init runs: info level, JSON lines on stderr.
	// stdout is left alone so CLI subcommands can print results cleanly.
	Logger = newLogger(os.Stderr)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = Logger
}

// ParseLevel maps a config/flag level string to a zerolog level.
// Unknown values fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the global logger with the specified level and output
func Init(level string, pretty bool) {
	var output io.Writer = os.Stderr
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
	}
	InitWriter(level, output)
}

// InitWriter is Init with an explicit sink. Tests use it to capture output.
func InitWriter(level string, w io.Writer) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	Logger = newLogger(w)
	log.Logger = Logger
}

// SetLevel changes the global level without rebuilding the logger.
// Used when the config file is reloaded.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &Logger
}

// WithComponent returns a logger with a component field set
func WithComponent(component string) *zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	return &l
}

// WithSession returns a component logger tagged with a session handle
func WithSession(component, handle string) *zerolog.Logger {
	l := Logger.With().
		Str("component", component).
		Str("session", handle).
		Logger()
	return &l
}
