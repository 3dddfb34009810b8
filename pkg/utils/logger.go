package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Logger printf-style обертка над zerolog
type Logger struct {
	level  LogLevel
	logger zerolog.Logger
}

func parseLevel(levelStr string) (LogLevel, zerolog.Level) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return DEBUG, zerolog.DebugLevel
	case "warn":
		return WARN, zerolog.WarnLevel
	case "error":
		return ERROR, zerolog.ErrorLevel
	default:
		return INFO, zerolog.InfoLevel
	}
}

// NewLogger JSON-логгер в stdout
func NewLogger(levelStr string) *Logger {
	return NewLoggerWithFormat(levelStr, "json", os.Stdout)
}

// NewLoggerWithFormat format: "json" или "console"
func NewLoggerWithFormat(levelStr, format string, w io.Writer) *Logger {
	level, zl := parseLevel(levelStr)
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	}
	return &Logger{
		level:  level,
		logger: zerolog.New(w).With().Timestamp().Logger().Level(zl),
	}
}

// With возвращает логгер с дополнительным полем
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{
		level:  l.level,
		logger: l.logger.With().Interface(key, value).Logger(),
	}
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level <= DEBUG {
		l.logger.Debug().Msg(fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	if l.level <= INFO {
		l.logger.Info().Msg(fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Warn(format string, v ...interface{}) {
	if l.level <= WARN {
		l.logger.Warn().Msg(fmt.Sprintf(format, v...))
	}
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.level <= ERROR {
		l.logger.Error().Msg(fmt.Sprintf(format, v...))
	}
}
