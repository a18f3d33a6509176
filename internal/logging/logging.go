// Package logging builds the zerolog logger of the server.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mickamy/contentorm/internal/config"
	"github.com/mickamy/contentorm/orm"
)

const permission = 0o664

// Builder collects the outputs of a logger.
type Builder struct {
	writer io.Writer
	path   string
	level  zerolog.Level
	pretty bool
}

// New returns a Builder writing JSON to stdout at info level.
func New() *Builder {
	return &Builder{writer: os.Stdout, level: zerolog.InfoLevel}
}

// FromConfig applies the logging section of cfg.
func (b *Builder) FromConfig(cfg config.LoggingConfig) (*Builder, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	b.level = level
	b.pretty = cfg.Format == "console"
	b.path = cfg.File
	return b, nil
}

// FromWriter sends output to w.
func (b *Builder) FromWriter(w io.Writer) *Builder {
	b.writer = w
	return b
}

// Level sets the minimum level.
func (b *Builder) Level(l zerolog.Level) *Builder {
	b.level = l
	return b
}

// Logger is a built logger and the file it owns, if any.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// Make builds the logger. A configured file replaces the writer.
func (b *Builder) Make() (*Logger, error) {
	out := &Logger{}
	w := b.writer
	if b.path != "" {
		f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		out.file = f
		w = zerolog.SyncWriter(f)
	}
	if b.pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	out.Logger = zerolog.New(w).Level(b.level).With().Timestamp().Logger()
	return out, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close() //nolint:wrapcheck // thin wrapper
}

// QueryLogger logs SQL statements at debug level. The request logger in
// ctx is preferred so statements carry the request id.
type QueryLogger struct {
	Fallback zerolog.Logger
}

var _ orm.Logger = QueryLogger{}

// Log implements orm.Logger.
func (q QueryLogger) Log(ctx context.Context, query string, args ...any) {
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		l = &q.Fallback
	}
	l.Debug().Str("query", query).Interface("args", args).Msg("sql")
}
