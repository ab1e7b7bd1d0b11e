package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"gpsd-sim/internal/config"
	"gpsd-sim/internal/logging"
	"gpsd-sim/internal/replay"
	"gpsd-sim/internal/web"
)

var version = "0.1.0"

type cli struct {
	IP      string           `short:"i" name:"ip" placeholder:"HOST" help:"Hostname or address to listen on (default: localhost)."`
	Port    int              `short:"p" help:"Port to listen on (default: 2948)."`
	Fname   string           `short:"f" name:"fname" type:"path" placeholder:"FILE" help:"NMEA file to replay (default: built-in example)."`
	Logfile string           `short:"l" type:"path" help:"Also write log output to this file."`
	Config  string           `short:"c" type:"existingfile" help:"YAML configuration file."`
	Verbose bool             `help:"Enable debug logging."`
	Summary bool             `help:"Print a summary of the NMEA file and exit."`
	Version kong.VersionFlag `short:"v" help:"Print version and exit."`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("gpsd-sim"),
		kong.Description("Simulated GPS daemon: replays NMEA sentences and serves them over the gpsd JSON protocol."),
		kong.Vars{"version": version},
		kong.UsageOnError(),
	)
	if err := run(c); err != nil {
		fmt.Fprintf(os.Stderr, "gpsd-sim: %v\n", err)
		os.Exit(1)
	}
}

func run(c cli) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := resolveConfig(c, os.LookupEnv)
	if err != nil {
		return err
	}
	if c.Summary {
		return printSummary(os.Stdout, cfg.Replay.Path)
	}

	logs := web.NewLogBuffer(1000)
	log, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Mirror: logs,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := newDaemon(cfg, log, logs)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return err
	}
	log.Info("gpsd-sim starting", "version", version, "addr", d.Addr())
	log.Info("nmea file", "path", sourceName(cfg.Replay.Path))
	if cfg.Log.File != "" {
		log.Info("logfile", "path", cfg.Log.File)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("interrupted, shutting down")
	case runErr = <-d.Err():
		log.Error("daemon failed", "error", runErr)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := d.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	log.Info("bye")
	return runErr
}

// resolveConfig layers the YAML file (or defaults), GPSDSIM_* variables and
// explicitly given flags, in that order.
func resolveConfig(c cli, lookup func(string) (string, bool)) (config.Config, error) {
	var cfg config.Config
	if c.Config != "" {
		loaded, err := config.Load(c.Config)
		if err != nil {
			return config.Config{}, fmt.Errorf("config load failed: %w", err)
		}
		cfg = loaded
	} else if err := config.ApplyEnv(&cfg, lookup); err != nil {
		return config.Config{}, err
	}

	if ip := strings.TrimSpace(c.IP); ip != "" {
		cfg.Server.Host = ip
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.Fname != "" {
		cfg.Replay.Path = c.Fname
	}
	if c.Logfile != "" {
		cfg.Log.File = c.Logfile
	}
	if c.Verbose {
		cfg.Log.Level = "debug"
	}

	cfg, err := config.DefaultAndValidate(cfg)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func sourceName(path string) string {
	if path == "" {
		return replay.ExampleName
	}
	return path
}
