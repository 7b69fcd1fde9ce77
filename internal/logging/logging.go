// Package logging configures the process-wide console logger.
//
// Debug, info and warn lines go to stdout, error and above to stderr, so
// shell pipelines can capture object listings without interleaved errors.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	writer := zerolog.MultiLevelWriter(
		levelWriter{
			Writer: zerolog.ConsoleWriter{
				Out:        os.Stdout,
				TimeFormat: time.RFC3339,
			},
			levels: []zerolog.Level{
				zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel,
			},
		},
		levelWriter{
			Writer: zerolog.ConsoleWriter{
				Out:        os.Stderr,
				TimeFormat: time.RFC3339,
			},
			levels: []zerolog.Level{
				zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel,
			},
		},
	)
	logger = zerolog.New(writer).Level(zerolog.InfoLevel).With().Timestamp().Logger()
}

// SetDebug switches the global level between info and debug.
func SetDebug(debug bool) {
	if debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
}

// L returns the shared logger. Callers attach their own fields:
//
//	logging.L().Info().Str("space", id).Msg("pulled")
func L() *zerolog.Logger {
	return &logger
}

func Debugf(format string, args ...any) {
	logger.Debug().Msgf(format, args...)
}

func Infof(format string, args ...any) {
	logger.Info().Msgf(format, args...)
}

func Warnf(format string, args ...any) {
	logger.Warn().Msgf(format, args...)
}

func Errorf(format string, args ...any) {
	logger.Error().Msgf(format, args...)
}

type levelWriter struct {
	io.Writer
	levels []zerolog.Level
}

func (w levelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}
