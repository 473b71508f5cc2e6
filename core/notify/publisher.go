package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/factory"
	"github.com/kilianp07/tendering/core/logger"
)

var publisherRegistry = factory.NewRegistry[Publisher]()

func init() {
	_ = RegisterPublisher("log", func(map[string]any) (Publisher, error) {
		return LogPublisher{Log: logger.Nop{}}, nil
	})
}

// RegisterPublisher adds a publisher factory identified by name.
func RegisterPublisher(name string, f factory.Factory[Publisher]) error {
	return publisherRegistry.Register(name, f)
}

// PublisherTypes lists the registered publisher names.
func PublisherTypes() []string { return publisherRegistry.Types() }

// NewPublisher builds the configured publishers. Several publishers are
// combined into a MultiPublisher; none yields a LogPublisher.
func NewPublisher(cfgs []factory.ModuleConfig, log logger.Logger) (Publisher, error) {
	if log == nil {
		log = logger.Nop{}
	}
	if len(cfgs) == 0 {
		return LogPublisher{Log: log}, nil
	}
	pubs := make([]Publisher, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := publisherRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		if lp, ok := p.(LogPublisher); ok {
			lp.Log = log
			p = lp
		}
		pubs = append(pubs, p)
	}
	if len(pubs) == 1 {
		return pubs[0], nil
	}
	return MultiPublisher(pubs), nil
}

// MultiPublisher delivers to every publisher; the event counts as delivered
// only when all of them succeed.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev events.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the logger.
type LogPublisher struct {
	Log logger.Logger
}

func (p LogPublisher) Publish(_ context.Context, ev events.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.Log.Infof("event %s: %s", ev.Name(), b)
	return nil
}
