// Package mqttpub periodically publishes the navigation record to an MQTT
// broker as a retained JSON message.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"grove-gnss/internal/gps"
)

const (
	connectTimeout = 5 * time.Second
	retryInterval  = 10 * time.Second
	publishTimeout = 2 * time.Second
	quiesceMillis  = 250
)

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Interval time.Duration
	QoS      byte
	Username string
	Password string
}

// NavSource is satisfied by *gps.Aggregator.
type NavSource interface {
	Snapshot() gps.NavState
}

// client is the subset of mqtt.Client the publisher uses.
type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

var newClientFn = func(opts *mqtt.ClientOptions) client { return mqtt.NewClient(opts) }

type Snapshot struct {
	Broker    string `json:"broker"`
	Topic     string `json:"topic"`
	Running   bool   `json:"running"`
	Published uint64 `json:"published"`
	LastError string `json:"last_error,omitempty"`
}

type Publisher struct {
	cfg Config
	src NavSource

	mu      sync.Mutex
	client  client
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr string

	published atomic.Uint64
}

func New(cfg Config, src NavSource) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		cfg.ClientID = "grove-gnss"
	}
	return &Publisher{cfg: cfg, src: src}
}

func (p *Publisher) Start(ctx context.Context) error {
	if p == nil {
		return fmt.Errorf("mqtt publisher is nil")
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	if p.src == nil {
		return fmt.Errorf("mqttpub: nav source is nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(retryInterval).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("mqtt connection lost broker=%s: %v", p.cfg.Broker, err)
		})
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	// With connect retry the token only completes once the broker answers;
	// an unreachable broker leaves paho retrying in the background.
	c := newClientFn(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		p.lastErr = "connect pending"
		log.Printf("mqtt broker unreachable broker=%s; retrying every %s", p.cfg.Broker, retryInterval)
	} else if err := tok.Error(); err != nil {
		p.lastErr = err.Error()
		c.Disconnect(0)
		return fmt.Errorf("mqttpub: connect %s: %w", p.cfg.Broker, err)
	} else {
		log.Printf("mqtt connected broker=%s topic=%s interval=%s", p.cfg.Broker, p.cfg.Topic, p.cfg.Interval)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.client = c
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(runCtx)
	}()
	return nil
}

func (p *Publisher) run(ctx context.Context) {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.PublishOnce(); err != nil {
				p.setError(err)
			}
		}
	}
}

// PublishOnce sends the current snapshot and waits for the broker to
// acknowledge it (for QoS > 0).
func (p *Publisher) PublishOnce() error {
	p.mu.Lock()
	c := p.client
	p.mu.Unlock()
	if c == nil {
		return fmt.Errorf("mqttpub: not connected")
	}

	payload, err := json.Marshal(p.src.Snapshot())
	if err != nil {
		return fmt.Errorf("mqttpub: marshal: %w", err)
	}
	tok := c.Publish(p.cfg.Topic, p.cfg.QoS, true, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqttpub: publish %s: timeout", p.cfg.Topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqttpub: publish %s: %w", p.cfg.Topic, err)
	}
	p.published.Add(1)
	p.clearError()
	return nil
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	cancel := p.cancel
	c := p.client
	p.cancel = nil
	p.client = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	if c != nil {
		c.Disconnect(quiesceMillis)
		log.Printf("mqtt disconnected broker=%s published=%d", p.cfg.Broker, p.published.Load())
	}
}

func (p *Publisher) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Broker:    p.cfg.Broker,
		Topic:     p.cfg.Topic,
		Running:   p.cancel != nil,
		Published: p.published.Load(),
		LastError: p.lastErr,
	}
}

// setError logs only when the error text changes, so a dead broker does not
// flood the log once per interval.
func (p *Publisher) setError(err error) {
	msg := err.Error()
	p.mu.Lock()
	changed := p.lastErr != msg
	p.lastErr = msg
	p.mu.Unlock()
	if changed {
		log.Printf("mqtt publish failed: %v", err)
	}
}

func (p *Publisher) clearError() {
	p.mu.Lock()
	p.lastErr = ""
	p.mu.Unlock()
}
