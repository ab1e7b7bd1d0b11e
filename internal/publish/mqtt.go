// Package publish mirrors TPV reports to an MQTT broker.
package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"gpsd-sim/internal/gps"
)

type Config struct {
	Broker   string
	Topic    string
	ClientID string
	// Timeout bounds connect and each publish acknowledgement.
	Timeout time.Duration
}

// client is the part of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

type newClientFunc func(opts *mqtt.ClientOptions) client

func defaultNewClient(opts *mqtt.ClientOptions) client {
	return mqtt.NewClient(opts)
}

// Publisher sends each TPV report as a retained message so late subscribers
// see the last fix.
type Publisher struct {
	cfg Config
	log *slog.Logger
	c   client

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	return newPublisher(cfg, log, defaultNewClient)
}

func newPublisher(cfg Config, log *slog.Logger, newClient newClientFunc) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gpsd-sim"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "mqtt", "broker", cfg.Broker)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("connection lost", "error", err)
		})

	c := newClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	log.Info("connected", "topic", cfg.Topic)
	return &Publisher{cfg: cfg, log: log, c: c}, nil
}

// PublishTPV queues r for delivery without waiting on the broker.
func (p *Publisher) PublishTPV(r gps.TPVReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode tpv: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	tok := p.c.Publish(p.cfg.Topic, 0, true, payload)
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if !tok.WaitTimeout(p.cfg.Timeout) {
			p.log.Warn("publish timed out", "topic", p.cfg.Topic)
			return
		}
		if err := tok.Error(); err != nil {
			p.log.Warn("publish failed", "topic", p.cfg.Topic, "error", err)
		}
	}()
	return nil
}

// Close waits for pending publishes and disconnects.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	p.c.Disconnect(250)
	p.log.Info("disconnected")
	return nil
}
