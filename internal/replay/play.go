package replay

import (
	"context"
	"errors"
	"time"

	"gpsd-sim/internal/gps"
)

type Sleeper interface {
	// Sleep waits for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Options struct {
	// Interval is the pause between two consecutive sentences.
	Interval time.Duration
	// Loop restarts from the first sentence once the sequence is exhausted.
	Loop    bool
	Sleeper Sleeper
}

// Play feeds sentences to cb in order. Without Loop every sentence is visited
// exactly once. The first cb error stops playback and is returned.
func Play(ctx context.Context, sentences []gps.Sentence, opts Options, cb func(gps.Sentence) error) error {
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(sentences) == 0 {
		return errors.New("no sentences")
	}
	if opts.Interval < 0 {
		return errors.New("interval must be >= 0")
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = realSleeper{}
	}

	first := true
	for {
		for _, s := range sentences {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !first && opts.Interval > 0 {
				if err := sleeper.Sleep(ctx, opts.Interval); err != nil {
					return err
				}
			}
			first = false

			if err := cb(s); err != nil {
				return err
			}
		}

		if !opts.Loop {
			return nil
		}
	}
}
