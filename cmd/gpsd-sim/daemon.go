package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"gpsd-sim/internal/config"
	"gpsd-sim/internal/gps"
	"gpsd-sim/internal/gpsd"
	"gpsd-sim/internal/metrics"
	"gpsd-sim/internal/publish"
	"gpsd-sim/internal/replay"
	"gpsd-sim/internal/udp"
	"gpsd-sim/internal/web"
)

// nmeaForwarder passes replayed sentences on verbatim.
type nmeaForwarder interface {
	Forward(sentence string) error
	Close() error
}

// tpvPublisher mirrors TPV reports somewhere outside the gpsd protocol.
type tpvPublisher interface {
	PublishTPV(r gps.TPVReport) error
	Close() error
}

// daemon owns every long-lived component and the order they start and stop
// in.
type daemon struct {
	cfg config.Config
	log *slog.Logger

	state    *gps.State
	reporter *gps.Reporter
	server   *gpsd.Server
	driver   *replay.Driver
	status   *web.Status
	logs     *web.LogBuffer
	promReg  *prometheus.Registry
	rec      metrics.Recorder
	pub      tpvPublisher
	fwd      nmeaForwarder

	watcher *replay.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	errCh   chan error
}

func newDaemon(cfg config.Config, log *slog.Logger, logs *web.LogBuffer) (*daemon, error) {
	if log == nil {
		log = slog.Default()
	}
	rule, err := gps.ParseLonSignRule(cfg.Report.LonSign)
	if err != nil {
		return nil, err
	}
	sentences, err := replay.Load(cfg.Replay.Path, log)
	if err != nil {
		return nil, err
	}
	if len(sentences) == 0 {
		return nil, fmt.Errorf("no NMEA sentences in %s", sourceName(cfg.Replay.Path))
	}

	d := &daemon{
		cfg:     cfg,
		log:     log,
		state:   gps.NewState(),
		status:  web.NewStatus(),
		logs:    logs,
		promReg: prometheus.NewRegistry(),
		errCh:   make(chan error, 1),
	}
	d.reporter = gps.NewReporter(d.state, cfg.Version, rule)
	d.rec = metrics.NewPrometheusRecorder(d.promReg)

	registry := gpsd.NewRegistry(log)
	d.server = gpsd.NewServer(gpsd.Config{
		Addr:       cfg.Server.Addr(),
		MaxClients: cfg.Server.MaxClients,
		Session: gpsd.SessionConfig{
			WriteTimeout:    cfg.Server.WriteTimeout,
			SendQueue:       cfg.Server.SendQueue,
			MaxRequestBytes: cfg.Server.MaxRequestBytes,
			Banner:          cfg.Server.BannerEnabled(),
		},
	}, d.reporter, registry, gpsd.WithServerLogger(log), gpsd.WithMetrics(d.rec))

	d.driver = replay.NewDriver(replay.Config{
		Interval: cfg.Replay.Interval,
		Loop:     cfg.Replay.Looping(),
	}, d.state, sentences, replay.WithLogger(log), replay.WithApplied(d.onApplied))

	d.status.SetStatic(web.StaticInfo{
		Listen:   cfg.Server.Addr(),
		Source:   sourceName(cfg.Replay.Path),
		Interval: cfg.Replay.Interval.String(),
		Loop:     cfg.Replay.Looping(),
		Release:  cfg.Version.Release,
		Device:   cfg.Version.Device,
	})
	return d, nil
}

// Start binds the listener first so a bad address fails fast, then starts
// serving, replay and the optional extras.
func (d *daemon) Start(ctx context.Context) error {
	if err := d.server.Listen(ctx); err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.cfg.MQTT.Broker != "" && d.pub == nil {
		pub, err := publish.New(publish.Config{
			Broker:   d.cfg.MQTT.Broker,
			Topic:    d.cfg.MQTT.Topic,
			ClientID: d.cfg.MQTT.ClientID,
		}, d.log)
		if err != nil {
			// The gpsd side works without the broker.
			d.log.Warn("mqtt disabled", "error", err)
		} else {
			d.pub = pub
		}
	}

	if d.cfg.UDP.Dest != "" && d.fwd == nil {
		fwd, err := udp.NewForwarder(d.cfg.UDP.Dest)
		if err != nil {
			d.log.Warn("nmea forwarding disabled", "error", err)
		} else {
			d.log.Info("forwarding nmea", "dest", d.cfg.UDP.Dest)
			d.fwd = fwd
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.server.Serve(); err != nil {
			d.fail(fmt.Errorf("gpsd server: %w", err))
		}
	}()

	if err := d.driver.Start(runCtx); err != nil {
		cancel()
		return err
	}

	if d.cfg.Replay.Watch {
		w, err := replay.NewWatcher(d.cfg.Replay.Path, d.driver.Reload, d.log)
		if err != nil {
			d.log.Warn("replay file watch disabled", "error", err)
		} else {
			d.watcher = w
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				w.Run(runCtx)
			}()
		}
	}

	if d.cfg.HTTP.Listen != "" {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.log.Info("status server listening", "addr", d.cfg.HTTP.Listen)
			if err := web.Serve(runCtx, d.cfg.HTTP.Listen, d.httpHandler()); err != nil {
				d.fail(fmt.Errorf("status server: %w", err))
			}
		}()
	}
	return nil
}

// Err delivers the first fatal error from a background component.
func (d *daemon) Err() <-chan error { return d.errCh }

func (d *daemon) fail(err error) {
	select {
	case d.errCh <- err:
	default:
	}
}

func (d *daemon) Addr() net.Addr { return d.server.Addr() }

// Shutdown stops replay before the server so no broadcast races the session
// teardown.
func (d *daemon) Shutdown(ctx context.Context) error {
	d.driver.Close()
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	err := d.server.Shutdown(ctx)
	if d.cancel != nil {
		d.cancel()
	}
	if d.pub != nil {
		_ = d.pub.Close()
	}
	if d.fwd != nil {
		_ = d.fwd.Close()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, ctx.Err())
	}
	return err
}

func (d *daemon) httpHandler() http.Handler {
	return web.Handler(web.Deps{
		Status:   d.status,
		Fix:      d.state,
		Sessions: d.server.Registry(),
		Logs:     d.logs,
		Metrics:  metrics.HTTPHandler(d.promReg),
		Version:  d.cfg.Version,
	})
}

// onApplied runs on the replay goroutine after every sentence. A completed
// RMC closes an epoch, so that is when clients get a fresh TPV.
func (d *daemon) onApplied(s gps.Sentence, err error) {
	d.rec.Sentence(s.Kind.String(), err == nil)
	d.status.MarkSentence(time.Now().UTC(), s.Kind, err)
	if d.fwd != nil {
		if fwdErr := d.fwd.Forward(s.Raw); fwdErr != nil {
			d.log.Debug("nmea forward failed", "error", fwdErr)
		}
	}
	if err != nil || s.Kind != gps.KindRMC {
		return
	}

	report := d.reporter.Position()
	b, encErr := gpsd.EncodeReport(report)
	if encErr != nil {
		d.log.Error("tpv encode failed", "error", encErr)
		return
	}
	n := d.server.Broadcast(b)
	d.log.Debug("tpv broadcast", "clients", n)

	if d.pub != nil {
		if err := d.pub.PublishTPV(report); err != nil {
			d.log.Warn("tpv publish failed", "error", err)
		}
	}
}
