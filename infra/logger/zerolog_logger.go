package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

var (
	mu             sync.RWMutex
	levelOverride  string
	formatOverride string
)

// Configure sets the level and format used by loggers created afterwards.
// Empty values keep the LOG_LEVEL and APP_ENV behaviour.
func Configure(level, format string) {
	mu.Lock()
	levelOverride = strings.ToLower(level)
	formatOverride = strings.ToLower(format)
	mu.Unlock()
}

// NewZerologLogger creates a ZerologLogger using the APP_ENV environment variable
// to determine the output format. All logs include the provided component field.
// LOG_LEVEL selects the minimum level and defaults to info.
func NewZerologLogger(component string) Logger {
	return NewZerologLoggerTo(os.Stdout, component)
}

// NewZerologLoggerTo is NewZerologLogger writing to w.
func NewZerologLoggerTo(w io.Writer, component string) Logger {
	mu.RLock()
	lvl, format := levelOverride, formatOverride
	mu.RUnlock()
	if lvl == "" {
		lvl = strings.ToLower(os.Getenv("LOG_LEVEL"))
	}
	console := format == "console"
	if format == "" {
		console = strings.ToLower(os.Getenv("APP_ENV")) == "dev"
	}
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(lvl)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	z := zerolog.New(w).Level(level).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Infow(msg string, fields map[string]any) {
	l.log.Info().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
