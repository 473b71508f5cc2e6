// Package mqtt delivers outbound tender events to an MQTT broker. Each event
// is published as a JSON envelope on <prefix>/<event>/<tender id>; consumers
// deduplicate on the tender id since delivery is at least once.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/factory"
	"github.com/kilianp07/tendering/core/notify"
	"github.com/kilianp07/tendering/infra/logger"
)

// ErrNotConnected is returned while the client has no broker session.
var ErrNotConnected = errors.New("mqtt: not connected")

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

func init() {
	_ = notify.RegisterPublisher("mqtt", func(conf map[string]any) (notify.Publisher, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPublisher(c)
	})
}

// Publisher implements notify.Publisher on top of Eclipse Paho.
type Publisher struct {
	cli     pahoClient
	cfg     Config
	log     logger.Logger
	now     func() time.Time
	backoff time.Duration
	timeout time.Duration
}

// NewPublisher connects to the broker.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_publisher")
	p := &Publisher{
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		backoff: time.Duration(cfg.BackoffMS) * time.Millisecond,
		timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		if cfg.StatusTopic != "" {
			p.cli.Publish(cfg.StatusTopic, cfg.QoS, true, "online")
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	p.cli = newMQTTClient(opts)
	token := p.cli.Connect()
	if !token.WaitTimeout(p.timeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	opts.SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.StatusTopic != "" {
		opts.SetWill(cfg.StatusTopic, "offline", cfg.QoS, true)
	}
	return opts, nil
}

// Topic returns the topic an event is published on.
func (p *Publisher) Topic(ev events.Event) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, ev.Name(), ev.Tender())
}

// Publish sends the event, retrying with exponential backoff up to
// MaxRetries times. Waiting honours ctx.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	payload, err := notify.Encode(ev, p.now())
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	topic := p.Topic(ev)
	var publishErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(p.backoff * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(publishErr, ctx.Err())
			case <-t.C:
			}
		}
		publishErr = p.publishOnce(topic, payload)
		if publishErr == nil {
			p.log.Debugf("published %s to %s", ev.Name(), topic)
			return nil
		}
		p.log.Warnf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
	}
	return publishErr
}

func (p *Publisher) publishOnce(topic string, payload []byte) error {
	if !p.cli.IsConnected() {
		return ErrNotConnected
	}
	token := p.cli.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", topic)
	}
	return token.Error()
}

// Close publishes the offline status and disconnects.
func (p *Publisher) Close() {
	if p.cli == nil || !p.cli.IsConnected() {
		return
	}
	if p.cfg.StatusTopic != "" {
		p.cli.Publish(p.cfg.StatusTopic, p.cfg.QoS, true, "offline").WaitTimeout(p.timeout)
	}
	p.cli.Disconnect(250)
}
