package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gpsd-sim/internal/gps"
)

// EnvPrefix namespaces environment overrides, e.g. GPSDSIM_SERVER_PORT.
const EnvPrefix = "GPSDSIM_"

type Config struct {
	Server  ServerConfig `yaml:"server"`
	Version gps.Version  `yaml:"version"`
	Replay  ReplayConfig `yaml:"replay"`
	Report  ReportConfig `yaml:"report"`
	Log     LogConfig    `yaml:"log"`
	HTTP    HTTPConfig   `yaml:"http"`
	MQTT    MQTTConfig   `yaml:"mqtt"`
	UDP     UDPConfig    `yaml:"udp"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	SendQueue       int           `yaml:"send_queue"`
	MaxClients      int           `yaml:"max_clients"`
	MaxRequestBytes int           `yaml:"max_request_bytes"`
	// Banner is a pointer so an explicit false survives defaulting.
	Banner *bool `yaml:"banner"`
}

// Addr joins host and port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// BannerEnabled reports whether a VERSION banner is sent on connect.
func (s ServerConfig) BannerEnabled() bool {
	return s.Banner == nil || *s.Banner
}

type ReplayConfig struct {
	// Path is the NMEA file; empty replays the built-in example.
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
	Loop     *bool         `yaml:"loop"`
	Watch    bool          `yaml:"watch"`
}

// Looping reports whether replay restarts after the last sentence. Replay
// runs once unless loop is set.
func (r ReplayConfig) Looping() bool {
	return r.Loop != nil && *r.Loop
}

type ReportConfig struct {
	// LonSign is "literal" or "hemisphere".
	LonSign string `yaml:"lon_sign"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type HTTPConfig struct {
	// Listen enables the status endpoint when set, e.g. "127.0.0.1:8080".
	Listen string `yaml:"listen"`
}

type MQTTConfig struct {
	// Broker enables TPV publishing when set, e.g. "tcp://localhost:1883".
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type UDPConfig struct {
	// Dest enables raw NMEA forwarding when set, e.g. "127.0.0.1:10110".
	Dest string `yaml:"dest"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads a YAML config file, applies environment overrides and defaults
// and validates the result.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return DefaultAndValidate(cfg)
}

// LoadDotEnv loads .env and .env.local from the working directory if they
// exist. Variables already set in the process environment win.
func LoadDotEnv() error {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// DefaultAndValidate fills unset fields and rejects invalid values.
func DefaultAndValidate(cfg Config) (Config, error) {
	applyDefaults(&cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("server.port must be 1..65535")
	}
	if cfg.Server.WriteTimeout < 0 {
		return Config{}, fmt.Errorf("server.write_timeout must be >= 0")
	}
	if cfg.Server.SendQueue < 0 {
		return Config{}, fmt.Errorf("server.send_queue must be >= 0")
	}
	if cfg.Server.MaxClients < 0 {
		return Config{}, fmt.Errorf("server.max_clients must be >= 0")
	}
	if cfg.Server.MaxRequestBytes < 0 {
		return Config{}, fmt.Errorf("server.max_request_bytes must be >= 0")
	}
	if cfg.Replay.Interval < 0 {
		return Config{}, fmt.Errorf("replay.interval must be >= 0")
	}
	if cfg.Replay.Watch && cfg.Replay.Path == "" {
		return Config{}, fmt.Errorf("replay.watch requires replay.path")
	}
	if _, err := gps.ParseLonSignRule(cfg.Report.LonSign); err != nil {
		return Config{}, fmt.Errorf("report.lon_sign: %w", err)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return Config{}, fmt.Errorf("log.level must be debug, info, warn or error")
	}
	switch cfg.Log.Format {
	case "console", "text", "json":
	default:
		return Config{}, fmt.Errorf("log.format must be console, text or json")
	}

	if cfg.MQTT.Broker != "" && cfg.MQTT.Topic == "" {
		return Config{}, fmt.Errorf("mqtt.topic is required when mqtt.broker is set")
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 2948
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 2 * time.Second
	}
	if cfg.Server.SendQueue == 0 {
		cfg.Server.SendQueue = 64
	}
	if cfg.Server.MaxRequestBytes == 0 {
		cfg.Server.MaxRequestBytes = 64 * 1024
	}

	def := gps.DefaultVersion()
	if cfg.Version.Release == "" {
		cfg.Version.Release = def.Release
	}
	if cfg.Version.Rev == "" {
		cfg.Version.Rev = def.Rev
	}
	if cfg.Version.ProtoMajor == 0 && cfg.Version.ProtoMinor == 0 {
		cfg.Version.ProtoMajor = def.ProtoMajor
		cfg.Version.ProtoMinor = def.ProtoMinor
	}
	if cfg.Version.Device == "" {
		cfg.Version.Device = def.Device
	}

	if cfg.Replay.Interval == 0 {
		cfg.Replay.Interval = time.Second
	}
	if cfg.Report.LonSign == "" {
		cfg.Report.LonSign = string(gps.LonSignLiteral)
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.MQTT.Broker != "" && cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "gpsd-sim"
	}
}

// ApplyEnv overrides cfg from GPSDSIM_* variables looked up through lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
		return nil
	}
	flag := func(key string, dst **bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = &b
		return nil
	}

	str("SERVER_HOST", &cfg.Server.Host)
	str("REPLAY_PATH", &cfg.Replay.Path)
	str("REPORT_LON_SIGN", &cfg.Report.LonSign)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("LOG_FILE", &cfg.Log.File)
	str("HTTP_LISTEN", &cfg.HTTP.Listen)
	str("MQTT_BROKER", &cfg.MQTT.Broker)
	str("MQTT_TOPIC", &cfg.MQTT.Topic)
	str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("UDP_DEST", &cfg.UDP.Dest)

	for _, err := range []error{
		num("SERVER_PORT", &cfg.Server.Port),
		num("SERVER_MAX_CLIENTS", &cfg.Server.MaxClients),
		dur("REPLAY_INTERVAL", &cfg.Replay.Interval),
		flag("REPLAY_LOOP", &cfg.Replay.Loop),
		flag("SERVER_BANNER", &cfg.Server.Banner),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
