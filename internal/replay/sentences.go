package replay

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gpsd-sim/internal/gps"
)

// File format: line-oriented NMEA text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Every other line is one NMEA sentence. Lines that fail to decode are
//   logged and skipped so one bad capture line does not spoil a recording.

//go:embed data/example.nmea
var exampleNMEA []byte

// ExampleName is reported as the source when the embedded track is used.
const ExampleName = "builtin:example.nmea"

type Reader struct {
	r       io.Reader
	log     *slog.Logger
	dropped int
}

func NewReader(r io.Reader, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{r: r, log: log}
}

// ReadAll decodes every sentence in the input, in order.
func (rr *Reader) ReadAll() ([]gps.Sentence, error) {
	s := bufio.NewScanner(rr.r)
	// NMEA sentences are typically < 82 chars, but allow some headroom.
	s.Buffer(make([]byte, 0, 4096), 64*1024)

	out := make([]gps.Sentence, 0, 256)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sent, err := gps.Decode(line)
		if err != nil {
			rr.log.Warn("replay line dropped", "line", lineNo, "error", err)
			rr.dropped++
			continue
		}
		out = append(out, sent)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Dropped is the number of lines ReadAll skipped because they did not decode.
func (rr *Reader) Dropped() int { return rr.dropped }

// Example returns a copy of the embedded example track.
func Example() []byte {
	return append([]byte(nil), exampleNMEA...)
}

// Load reads the sentence file at path. An empty path selects the embedded
// example track.
func Load(path string, log *slog.Logger) ([]gps.Sentence, error) {
	if strings.TrimSpace(path) == "" {
		return NewReader(bytes.NewReader(exampleNMEA), log).ReadAll()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	sents, err := NewReader(f, log).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read replay file %s: %w", path, err)
	}
	return sents, nil
}
