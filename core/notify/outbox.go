// Package notify delivers outbound tender events with retry. Delivery is
// fire-and-forget for the caller: Enqueue returns once the event is queued and
// failures are retried with exponential backoff by background workers.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/logger"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("outbox closed")

// Publisher sends one event to a downstream system.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev events.Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev events.Event) error { return f(ctx, ev) }

// Result reports the outcome of one delivery.
type Result struct {
	Event    events.Event
	Attempts int
	Err      error
}

// Outbox queues events and delivers them from a fixed worker pool.
type Outbox struct {
	pub      Publisher
	cfg      Config
	log      logger.Logger
	onResult func(Result)
	sleep    func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	closed   bool
	queue    chan events.Event
	stop     chan struct{}
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures an Outbox.
type Option func(*Outbox)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(o *Outbox) { o.log = l } }

// WithResultHook is called after every delivery, successful or not.
func WithResultHook(fn func(Result)) Option { return func(o *Outbox) { o.onResult = fn } }

// WithSleep replaces the backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Outbox) { o.sleep = fn }
}

// New starts an Outbox delivering through pub.
func New(pub Publisher, cfg Config, opts ...Option) *Outbox {
	cfg.SetDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	o := &Outbox{
		pub:    pub,
		cfg:    cfg,
		log:    logger.Nop{},
		sleep:  sleepCtx,
		queue:  make(chan events.Event, cfg.QueueSize),
		stop:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(o)
	}
	for i := 0; i < cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
	return o
}

// Enqueue queues ev for delivery. It blocks while the queue is full.
func (o *Outbox) Enqueue(ev events.Event) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return ErrClosed
	}
	select {
	case o.queue <- ev:
		return nil
	case <-o.stop:
		return ErrClosed
	}
}

// Close stops accepting events and drains the queue. Deliveries still
// retrying when ctx ends are abandoned.
func (o *Outbox) Close(ctx context.Context) error {
	o.stopOnce.Do(func() { close(o.stop) })
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.queue)
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		<-done
		return ctx.Err()
	}
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for ev := range o.queue {
		res := o.deliver(ev)
		if o.onResult != nil {
			o.onResult(res)
		}
	}
}

func (o *Outbox) deliver(ev events.Event) Result {
	var err error
	attempts := 0
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		attempts++
		if err = o.pub.Publish(o.ctx, ev); err == nil {
			o.log.Debugf("delivered %s for tender %s after %d attempt(s)", ev.Name(), ev.Tender(), attempts)
			return Result{Event: ev, Attempts: attempts}
		}
		if attempt == o.cfg.MaxRetries {
			break
		}
		wait := o.cfg.Backoff(attempt)
		o.log.Warnf("deliver %s for tender %s attempt %d failed: %v (retry in %s)", ev.Name(), ev.Tender(), attempts, err, wait)
		if serr := o.sleep(o.ctx, wait); serr != nil {
			err = errors.Join(err, serr)
			break
		}
	}
	o.log.Errorf("giving up on %s for tender %s after %d attempt(s): %v", ev.Name(), ev.Tender(), attempts, err)
	return Result{Event: ev, Attempts: attempts, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
