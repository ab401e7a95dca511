//
//
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/AnonymousTalent/opsradar/internal/config"
)

// LevelWriter forwards only the listed levels to Writer.
type LevelWriter struct {
	io.Writer
	Levels []zerolog.Level
}

// WriteLevel implements zerolog.LevelWriter.
func (w LevelWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	for _, l := range w.Levels {
		if l == level {
			return w.Write(p)
		}
	}
	return len(p), nil
}

var (
	lowLevels  = []zerolog.Level{zerolog.TraceLevel, zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel, zerolog.NoLevel}
	highLevels = []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel}
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to stdout, with errors routed to stderr in
// console format. When cfg.File is set a rotating JSON copy is written there
// too; the returned closer releases it.
func New(cfg config.LogConfig, stdout, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("log level: %w", err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = stdout
	}

	var writers []io.Writer
	switch cfg.Format {
	case config.FormatJSON:
		writers = append(writers, stdout)
	case config.FormatConsole, "":
		writers = append(writers,
			LevelWriter{Writer: zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}, Levels: lowLevels},
			LevelWriter{Writer: zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}, Levels: highLevels},
		)
	default:
		return zerolog.Nop(), nil, fmt.Errorf("log format %q", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("log dir: %w", err)
		}
		rot := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, rot)
		closer = rot
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
	return logger, closer, nil
}
