package app

import (
	"io"
	"time"

	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/rs/zerolog"
)

// newLogger writes structured logs to w. Console format is meant for a
// terminal; json is for log shippers.
func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Nop(), clierr.Wrap(clierr.CodeUsage, "parse log level", err)
		}
		lvl = parsed
	}
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
