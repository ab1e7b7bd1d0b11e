package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn, err := New(Options{Level: "info", Format: "json", Stderr: &buf})
	require.NoError(t, err)
	defer closeFn()

	log.Debug("hidden")
	log.Info("started", "port", 2948)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "started", rec["msg"])
	require.EqualValues(t, 2948, rec["port"])
	require.Contains(t, rec, "ts")
}

func TestNew_ConsoleMirrorsToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "gpsd-sim.log")
	log, closeFn, err := New(Options{Level: "debug", Format: "console", File: path, Stderr: &buf})
	require.NoError(t, err)

	log.With("session", "abc").Info("client connected")
	require.NoError(t, closeFn())

	require.Contains(t, buf.String(), "client connected")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "msg=\"client connected\"")
	require.Contains(t, string(b), "session=abc")
}

func TestNew_TextMirrorsToFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "gpsd-sim.log")
	log, closeFn, err := New(Options{Format: "text", File: path, Stderr: &buf})
	require.NoError(t, err)
	log.Warn("bye")
	require.NoError(t, closeFn())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, buf.String(), string(b))
}

func TestNew_Errors(t *testing.T) {
	_, _, err := New(Options{Format: "xml", Stderr: &bytes.Buffer{}})
	require.Error(t, err)
	_, _, err = New(Options{Level: "loud"})
	require.Error(t, err)
	_, _, err = New(Options{File: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}

func TestNew_Mirror(t *testing.T) {
	var out, tail bytes.Buffer
	log, closeFn, err := New(Options{Stderr: &out, Mirror: &tail})
	require.NoError(t, err)
	defer closeFn()

	log.Info("listening", "addr", "localhost:2948")
	require.Contains(t, tail.String(), "msg=listening")
	require.Contains(t, tail.String(), "addr=localhost:2948")
}

func TestNew_TruncatesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gpsd-sim.log")
	require.NoError(t, os.WriteFile(path, []byte("previous run\n"), 0o644))

	log, closeFn, err := New(Options{Format: "text", File: path, Stderr: &bytes.Buffer{}})
	require.NoError(t, err)
	log.Info("fresh")
	require.NoError(t, closeFn())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(b), "previous run")
	require.Contains(t, string(b), "msg=fresh")
}

func TestNew_ConsoleMirrorKeepsGroupsAndLevel(t *testing.T) {
	var out, tail bytes.Buffer
	log, closeFn, err := New(Options{Level: "warn", Stderr: &out, Mirror: &tail})
	require.NoError(t, err)
	defer closeFn()

	log.Info("hidden")
	log.WithGroup("client").With("id", "c1").Warn("queue full", "depth", 64)

	require.NotContains(t, tail.String(), "hidden")
	require.NotContains(t, out.String(), "hidden")
	require.Contains(t, tail.String(), "client.id=c1")
	require.Contains(t, tail.String(), "client.depth=64")
	require.Contains(t, out.String(), "queue full")
}
