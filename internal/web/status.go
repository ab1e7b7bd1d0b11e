package web

import (
	"sync"
	"sync/atomic"
	"time"

	"gpsd-sim/internal/gps"
)

// FixSource is the shared fix state.
type FixSource interface {
	Snapshot() gps.Fix
}

// SessionLister reports connected client identities.
type SessionLister interface {
	IDs() []string
}

// Status collects replay progress for /api/status. Counters are updated from
// the replay goroutine and read by HTTP handlers.
type Status struct {
	startUnixNano int64
	applied       uint64
	rejected      uint64
	lastNano      int64

	mu       sync.Mutex
	lastKind string
	lastErr  string
	static   StaticInfo
}

// StaticInfo is fixed at startup.
type StaticInfo struct {
	Listen   string `json:"listen"`
	Source   string `json:"source"`
	Interval string `json:"interval"`
	Loop     bool   `json:"loop"`
	Release  string `json:"release"`
	Device   string `json:"device"`
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	return s
}

func (s *Status) SetStatic(info StaticInfo) {
	s.mu.Lock()
	s.static = info
	s.mu.Unlock()
}

// MarkSentence records one replayed sentence and whether it was applied.
func (s *Status) MarkSentence(nowUTC time.Time, kind gps.Kind, err error) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastNano, nowUTC.UnixNano())
	if err != nil {
		atomic.AddUint64(&s.rejected, 1)
	} else {
		atomic.AddUint64(&s.applied, 1)
	}

	s.mu.Lock()
	s.lastKind = kind.String()
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
}

type StatusSnapshot struct {
	Service           string     `json:"service"`
	NowUTC            string     `json:"now_utc"`
	UptimeSec         int64      `json:"uptime_sec"`
	Static            StaticInfo `json:"static"`
	SentencesApplied  uint64     `json:"sentences_applied"`
	SentencesRejected uint64     `json:"sentences_rejected"`
	LastSentenceKind  string     `json:"last_sentence_kind,omitempty"`
	LastSentenceUTC   string     `json:"last_sentence_utc,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	Sessions          []string   `json:"sessions"`
	Fix               *gps.Fix   `json:"fix,omitempty"`
}

// Snapshot renders the status. fix and sessions may be nil.
func (s *Status) Snapshot(nowUTC time.Time, fix FixSource, sessions SessionLister) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	last := atomic.LoadInt64(&s.lastNano)

	s.mu.Lock()
	snap := StatusSnapshot{
		Service:           "gpsd-sim",
		NowUTC:            nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:         int64(nowUTC.Sub(start).Seconds()),
		Static:            s.static,
		SentencesApplied:  atomic.LoadUint64(&s.applied),
		SentencesRejected: atomic.LoadUint64(&s.rejected),
		LastSentenceKind:  s.lastKind,
		LastError:         s.lastErr,
		Sessions:          []string{},
	}
	s.mu.Unlock()

	if last != 0 {
		snap.LastSentenceUTC = time.Unix(0, last).UTC().Format(time.RFC3339Nano)
	}
	if sessions != nil {
		snap.Sessions = sessions.IDs()
	}
	if fix != nil {
		f := fix.Snapshot()
		snap.Fix = &f
	}
	return snap
}
