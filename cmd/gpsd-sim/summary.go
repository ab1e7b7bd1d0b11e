package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gpsd-sim/internal/gps"
	"gpsd-sim/internal/replay"
)

type sentenceSummary struct {
	Sentences int
	Dropped   int
	// Epochs counts RMC sentences; each closes one fix update.
	Epochs     int
	FirstTime  string
	LastTime   string
	FirstDate  string
	TypeCounts map[string]int
}

func summarizeSentences(sents []gps.Sentence) sentenceSummary {
	s := sentenceSummary{TypeCounts: map[string]int{}}
	for _, sent := range sents {
		s.Sentences++
		s.TypeCounts[sent.Talker+sent.Type]++
		if sent.Kind != gps.KindRMC {
			continue
		}
		s.Epochs++
		if len(sent.Fields) > 0 {
			if s.FirstTime == "" {
				s.FirstTime = sent.Fields[0]
			}
			s.LastTime = sent.Fields[0]
		}
		if s.FirstDate == "" && len(sent.Fields) > 8 {
			s.FirstDate = sent.Fields[8]
		}
	}
	return s
}

func printSummary(w io.Writer, path string) error {
	var src io.Reader
	if strings.TrimSpace(path) == "" {
		src = bytes.NewReader(replay.Example())
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

	// Dropped lines are counted below; keep the per-line warnings quiet.
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	rr := replay.NewReader(src, quiet)
	sents, err := rr.ReadAll()
	if err != nil {
		return err
	}
	s := summarizeSentences(sents)
	s.Dropped = rr.Dropped()

	fmt.Fprintf(w, "path: %s\n", sourceName(path))
	fmt.Fprintf(w, "sentences: %d\n", s.Sentences)
	fmt.Fprintf(w, "dropped_lines: %d\n", s.Dropped)
	fmt.Fprintf(w, "epochs: %d\n", s.Epochs)
	if s.FirstTime != "" {
		fmt.Fprintf(w, "time_span: %s .. %s\n", s.FirstTime, s.LastTime)
	}
	if s.FirstDate != "" {
		fmt.Fprintf(w, "date: %s\n", s.FirstDate)
	}

	keys := make([]string, 0, len(s.TypeCounts))
	for k := range s.TypeCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "type_counts:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.TypeCounts[k])
	}
	return nil
}
