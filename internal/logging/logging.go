// Package logging builds the daemon's slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	console "github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	Level  string
	Format string
	// File, when set, receives a copy of every record in addition to Stderr.
	// An existing file is truncated.
	File string
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
	// Mirror also receives every record as plain text, e.g. an in-memory tail.
	Mirror io.Writer
}

// New returns the logger and a close func for the log file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	out := opts.Stderr
	if out == nil {
		out = os.Stderr
	}

	closer := func() error { return nil }
	var mirrors []io.Writer
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		mirrors = append(mirrors, f)
		closer = f.Close
	}
	if opts.Mirror != nil {
		mirrors = append(mirrors, opts.Mirror)
	}
	var mirror io.Writer
	if len(mirrors) > 0 {
		mirror = io.MultiWriter(mirrors...)
	}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "console":
		if mirror != nil {
			// Colors stay on the terminal; mirrors get plain text.
			h = slogmulti.Fanout(
				console.NewHandler(out, &console.HandlerOptions{Level: level}),
				slog.NewTextHandler(mirror, &slog.HandlerOptions{Level: level}),
			)
		} else {
			h = console.NewHandler(out, &console.HandlerOptions{Level: level})
		}
	case "text":
		h = slog.NewTextHandler(tee(out, mirror), &slog.HandlerOptions{Level: level})
	case "json":
		h = slog.NewJSONHandler(tee(out, mirror), &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					a.Key = "ts"
				}
				return a
			},
		})
	default:
		_ = closer()
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	return slog.New(h), closer, nil
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

func tee(out, mirror io.Writer) io.Writer {
	if mirror == nil {
		return out
	}
	return io.MultiWriter(out, mirror)
}
