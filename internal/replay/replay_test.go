package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gpsd-sim/internal/gps"
)

type fakeSleeper struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (fs *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	fs.mu.Lock()
	fs.slept = append(fs.slept, d)
	fs.mu.Unlock()
	return ctx.Err()
}

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

var (
	rmcLine = nmeaLine("GPRMC,135454.873,A,4807.038,N,01131.000,E,022.4,084.4,291120,003.1,W")
	ggaLine = nmeaLine("GPGGA,135454.873,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	gsaLine = nmeaLine("GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1")
)

func sentences(t *testing.T, lines ...string) []gps.Sentence {
	t.Helper()
	out := make([]gps.Sentence, 0, len(lines))
	for _, l := range lines {
		s, err := gps.Decode(l)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func TestReaderReadAll(t *testing.T) {
	in := strings.NewReader(`
# comment

` + gsaLine + `
not-a-sentence
` + rmcLine + `
` + ggaLine + "\n")

	rr := NewReader(in, nil)
	sents, err := rr.ReadAll()
	require.NoError(t, err)
	require.Len(t, sents, 3)
	require.Equal(t, 1, rr.Dropped())
	require.Equal(t, gps.KindGSA, sents[0].Kind)
	require.Equal(t, gps.KindRMC, sents[1].Kind)
	require.Equal(t, gps.KindGGA, sents[2].Kind)
}

func TestLoad_EmbeddedExample(t *testing.T) {
	sents, err := Load("", nil)
	require.NoError(t, err)
	require.NotEmpty(t, sents)

	kinds := map[gps.Kind]int{}
	for _, s := range sents {
		kinds[s.Kind]++
	}
	require.Positive(t, kinds[gps.KindRMC])
	require.Positive(t, kinds[gps.KindGGA])
	require.Positive(t, kinds[gps.KindGSA])
	require.Positive(t, kinds[gps.KindOther])
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.nmea")
	require.NoError(t, os.WriteFile(path, []byte(rmcLine+"\n"+ggaLine+"\n"), 0o644))

	sents, err := Load(path, nil)
	require.NoError(t, err)
	require.Len(t, sents, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.nmea"), nil)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestPlay_VisitsEachSentenceOnceInOrder(t *testing.T) {
	fs := &fakeSleeper{}
	in := sentences(t, gsaLine, rmcLine, ggaLine)

	var got []gps.Kind
	err := Play(context.Background(), in, Options{Interval: 100 * time.Millisecond, Sleeper: fs}, func(s gps.Sentence) error {
		got = append(got, s.Kind)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []gps.Kind{gps.KindGSA, gps.KindRMC, gps.KindGGA}, got)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, fs.slept)
}

func TestPlay_LoopUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := sentences(t, rmcLine, ggaLine)

	calls := 0
	err := Play(ctx, in, Options{Loop: true, Sleeper: &fakeSleeper{}}, func(gps.Sentence) error {
		calls++
		if calls == 7 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 7, calls)
}

func TestPlay_CallbackErrorStops(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Play(context.Background(), sentences(t, rmcLine, ggaLine), Options{}, func(gps.Sentence) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestPlay_InvalidArgs(t *testing.T) {
	ok := func(gps.Sentence) error { return nil }
	require.Error(t, Play(context.Background(), nil, Options{}, ok))
	require.Error(t, Play(context.Background(), sentences(t, rmcLine), Options{}, nil))
	require.Error(t, Play(context.Background(), sentences(t, rmcLine), Options{Interval: -1}, ok))
}

func TestDriver_AppliesSequenceToFix(t *testing.T) {
	st := gps.NewState()
	var applied atomic.Int32
	var rejected atomic.Int32
	bad := gps.Sentence{Kind: gps.KindRMC, Type: "RMC", Fields: []string{"x"}}
	in := append(sentences(t, gsaLine, rmcLine), bad)
	in = append(in, sentences(t, ggaLine)...)

	d := NewDriver(Config{}, st, in, WithSleeper(&fakeSleeper{}), WithApplied(func(s gps.Sentence, err error) {
		applied.Add(1)
		if err != nil {
			rejected.Add(1)
		}
	}))
	require.NoError(t, d.Start(context.Background()))
	defer d.Close()

	require.Eventually(t, func() bool { return applied.Load() == 4 }, time.Second, time.Millisecond)
	require.Equal(t, int32(1), rejected.Load())

	f := st.Snapshot()
	require.Equal(t, 3, f.Mode)
	require.Equal(t, 1, f.Quality)
	require.NotNil(t, f.Altitude)
	require.Equal(t, "291120", f.Date)

	// The sequence is not replayed without Loop.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(4), applied.Load())
}

func TestDriver_ReloadRestarts(t *testing.T) {
	st := gps.NewState()
	var mu sync.Mutex
	var kinds []gps.Kind
	d := NewDriver(Config{}, st, sentences(t, rmcLine), WithSleeper(&fakeSleeper{}), WithApplied(func(s gps.Sentence, err error) {
		mu.Lock()
		kinds = append(kinds, s.Kind)
		mu.Unlock()
	}))
	require.NoError(t, d.Start(context.Background()))
	defer d.Close()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds)
	}
	require.Eventually(t, func() bool { return count() == 1 }, time.Second, time.Millisecond)

	d.Reload(sentences(t, gsaLine, ggaLine))
	require.Eventually(t, func() bool { return count() == 3 }, time.Second, time.Millisecond)

	mu.Lock()
	require.Equal(t, []gps.Kind{gps.KindRMC, gps.KindGSA, gps.KindGGA}, kinds)
	mu.Unlock()
}

func TestDriver_CloseStopsLoop(t *testing.T) {
	d := NewDriver(Config{Interval: time.Millisecond, Loop: true}, gps.NewState(), sentences(t, rmcLine))
	require.NoError(t, d.Start(context.Background()))
	d.Close()

	select {
	case <-d.Done():
	case <-time.After(time.Second):
		t.Fatalf("driver did not stop")
	}
	// Close is idempotent.
	d.Close()
}

func TestDriver_StartWithoutState(t *testing.T) {
	d := NewDriver(Config{}, nil, nil)
	require.Error(t, d.Start(context.Background()))
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.nmea")
	require.NoError(t, os.WriteFile(path, []byte(rmcLine+"\n"), 0o644))

	got := make(chan []gps.Sentence, 4)
	w, err := NewWatcher(path, func(s []gps.Sentence) { got <- s }, nil)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(gsaLine+"\n"+ggaLine+"\n"), 0o644))

	select {
	case sents := <-got:
		require.Len(t, sents, 2)
	case <-time.After(2 * time.Second):
		t.Fatalf("no reload after write")
	}
}
