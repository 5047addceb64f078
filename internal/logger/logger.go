package logger

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New returns a JSON logger in prod and a human readable console logger
// otherwise. Unknown levels fall back to info.
func New(w io.Writer, env string, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = w
	if env != "prod" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	if err != nil {
		logger.Warn().Str("value", level).Msg("invalid log level, using info")
	}
	return logger
}
