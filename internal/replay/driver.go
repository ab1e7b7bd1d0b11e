package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gpsd-sim/internal/gps"
)

type Config struct {
	Interval time.Duration
	Loop     bool
}

// AppliedFunc is called after every sentence the driver fed to the fix. err
// is the Apply result; the driver has already logged it.
type AppliedFunc func(s gps.Sentence, err error)

// Driver plays a sentence sequence into the shared fix in the background,
// standing in for a live receiver.
type Driver struct {
	cfg     Config
	state   *gps.State
	log     *slog.Logger
	sleeper Sleeper
	applied AppliedFunc

	mu         sync.Mutex
	sentences  []gps.Sentence
	passCancel context.CancelFunc
	cancel     context.CancelFunc
	reload     chan struct{}
	done       chan struct{}
}

type DriverOption func(*Driver)

func WithLogger(log *slog.Logger) DriverOption {
	return func(d *Driver) { d.log = log }
}

func WithSleeper(s Sleeper) DriverOption {
	return func(d *Driver) { d.sleeper = s }
}

func WithApplied(fn AppliedFunc) DriverOption {
	return func(d *Driver) { d.applied = fn }
}

func NewDriver(cfg Config, state *gps.State, sentences []gps.Sentence, opts ...DriverOption) *Driver {
	d := &Driver{
		cfg:       cfg,
		state:     state,
		log:       slog.Default(),
		sentences: sentences,
		reload:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins playback. It returns immediately; Close stops playback and
// waits for it.
func (d *Driver) Start(ctx context.Context) error {
	if d == nil {
		return fmt.Errorf("replay driver is nil")
	}
	if d.state == nil {
		return fmt.Errorf("replay driver has no fix state")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go func() {
		defer close(d.done)
		d.run(runCtx)
	}()
	return nil
}

// Reload replaces the sequence and restarts playback from its first sentence,
// also when the previous sequence had already finished.
func (d *Driver) Reload(sentences []gps.Sentence) {
	d.mu.Lock()
	d.sentences = sentences
	passCancel := d.passCancel
	d.mu.Unlock()

	select {
	case d.reload <- struct{}{}:
	default:
	}
	if passCancel != nil {
		passCancel()
	}
}

// Done is closed once the driver has stopped.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

func (d *Driver) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-d.done
}

func (d *Driver) run(ctx context.Context) {
	for {
		passCtx, passCancel := context.WithCancel(ctx)
		d.mu.Lock()
		sentences := d.sentences
		d.passCancel = passCancel
		d.mu.Unlock()

		d.log.Info("replay started", "sentences", len(sentences), "interval", d.cfg.Interval, "loop", d.cfg.Loop)
		err := Play(passCtx, sentences, Options{Interval: d.cfg.Interval, Loop: d.cfg.Loop, Sleeper: d.sleeper}, d.apply)
		passCancel()

		if ctx.Err() != nil {
			d.log.Info("replay stopped")
			return
		}
		select {
		case <-d.reload:
			d.log.Info("replay reloaded")
			continue
		default:
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			d.log.Warn("replay ended", "error", err)
		} else {
			d.log.Info("replay finished")
		}

		select {
		case <-ctx.Done():
			d.log.Info("replay stopped")
			return
		case <-d.reload:
			d.log.Info("replay reloaded")
		}
	}
}

func (d *Driver) apply(s gps.Sentence) error {
	err := d.state.Apply(s)
	if err != nil {
		d.log.Warn("sentence rejected", "type", s.Type, "error", err)
	}
	if d.applied != nil {
		d.applied(s, err)
	}
	return nil
}
