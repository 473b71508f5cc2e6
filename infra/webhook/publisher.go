// Package webhook delivers outbound tender events as JSON envelopes POSTed to
// an HTTP endpoint, optionally authenticated with OAuth2 client credentials.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kilianp07/tendering/auth"
	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/factory"
	"github.com/kilianp07/tendering/core/notify"
	"github.com/kilianp07/tendering/infra/logger"
)

func init() {
	_ = notify.RegisterPublisher("webhook", func(conf map[string]any) (notify.Publisher, error) {
		var c Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewPublisher(c)
	})
}

// Config describes the webhook endpoint.
type Config struct {
	URL       string            `json:"url"`
	TimeoutMS int               `json:"timeout_ms"`
	Headers   map[string]string `json:"headers"`
	Auth      *auth.Conf        `json:"auth"`
}

func (c *Config) SetDefaults() {
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 5000
	}
}

func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("webhook: url is required")
	}
	if c.Auth != nil {
		return c.Auth.Validate()
	}
	return nil
}

// StatusError is returned for non-2xx answers so the outbox retries them.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: unexpected status %d: %s", e.Code, e.Body)
}

// Publisher implements notify.Publisher over HTTP.
type Publisher struct {
	cfg    Config
	client *http.Client
	cred   *auth.ClientCred
	log    logger.Logger
	now    func() time.Time
}

func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Publisher{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond},
		log:    logger.New("webhook_publisher"),
		now:    time.Now,
	}
	if cfg.Auth != nil {
		p.cred = auth.NewClientCred(*cfg.Auth)
	}
	return p, nil
}

// Publish posts the event once. A 401 forces a token refresh and one more
// attempt; every other retry is left to the outbox.
func (p *Publisher) Publish(ctx context.Context, ev events.Event) error {
	body, err := notify.Encode(ev, p.now())
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	code, err := p.post(ctx, ev, body)
	if code == http.StatusUnauthorized && p.cred != nil {
		if _, rerr := p.cred.ForceRefresh(ctx); rerr != nil {
			return rerr
		}
		_, err = p.post(ctx, ev, body)
	}
	if err == nil {
		p.log.Debugf("delivered %s for tender %s", ev.Name(), ev.Tender())
	}
	return err
}

func (p *Publisher) post(ctx context.Context, ev events.Event, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tender-Event", ev.Name())
	req.Header.Set("X-Tender-ID", ev.Tender())
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	if p.cred != nil {
		if err := p.cred.SetAuthHeader(req); err != nil {
			return 0, err
		}
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
}

// Close releases idle connections.
func (p *Publisher) Close() {
	p.client.CloseIdleConnections()
}
