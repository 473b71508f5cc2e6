// Package tender runs the tender lifecycle: sending tenders to eligible
// carriers, collecting bids, deciding awards at the deadline or once every
// carrier answered, and recording manual decisions.
//
// Every tender has its own mutex. The registry lock is only held to look a
// tender up, so unrelated tenders never serialize. Award decisions rank bids
// outside the tender lock and commit with a compare-and-set on the tender
// status and the ledger version.
package tender

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/ledger"
	"github.com/kilianp07/tendering/core/logger"
	"github.com/kilianp07/tendering/core/metrics"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/scheduler"
	"github.com/kilianp07/tendering/core/scoring"
)

// Router resolves the carriers eligible for a tender.
type Router interface {
	Resolve(t model.TenderLoad) ([]string, error)
}

// Carriers looks up carrier master data.
type Carriers interface {
	Carrier(id string) (model.CarrierProfile, bool)
}

// Notifier queues outbound events for delivery.
type Notifier interface {
	Enqueue(ev events.Event) error
}

// Bus receives every tender event for in-process subscribers.
type Bus interface {
	Publish(ev events.Event)
}

// Deps are the collaborators of a Manager. Router and Carriers are required.
type Deps struct {
	Router   Router
	Carriers Carriers
	Outbox   Notifier
	Bus      Bus
	Metrics  metrics.MetricsSink
	Audit    audit.Store
	Logger   logger.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now for the manager and its scheduler.
func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

// WithIDFunc overrides tender id generation.
func WithIDFunc(fn func() string) Option { return func(m *Manager) { m.newID = fn } }

type entry struct {
	mu       sync.Mutex
	t        model.TenderLoad
	carriers map[string]model.CarrierProfile
	ranking  *scoring.Ranking
	sentAt   time.Time
}

// Manager owns the tenders, their bid ledger and deadline scheduler.
type Manager struct {
	cfg      Config
	router   Router
	carriers Carriers
	outbox   Notifier
	bus      Bus
	sink     metrics.MetricsSink
	audit    audit.Store
	log      logger.Logger
	now      func() time.Time
	newID    func() string
	rankFn   func([]scoring.Input, []model.SelectionRule, scoring.Reference, model.Strategy) scoring.Ranking

	ledger *ledger.Ledger
	sched  *scheduler.Scheduler

	mu      sync.RWMutex
	tenders map[string]*entry
	order   []string
}

// NewManager builds a Manager and starts its scheduler.
func NewManager(cfg Config, deps Deps, opts ...Option) (*Manager, error) {
	if deps.Router == nil || deps.Carriers == nil {
		return nil, errors.New("tender: router and carriers are required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		router:   deps.Router,
		carriers: deps.Carriers,
		outbox:   deps.Outbox,
		bus:      deps.Bus,
		sink:     deps.Metrics,
		audit:    deps.Audit,
		log:      deps.Logger,
		now:      time.Now,
		newID:    uuid.NewString,
		rankFn:   scoring.Rank,
		ledger:   ledger.New(),
		tenders:  map[string]*entry{},
	}
	if m.sink == nil {
		m.sink = metrics.NopSink{}
	}
	if m.audit == nil {
		m.audit = audit.NewMemoryStore()
	}
	if m.log == nil {
		m.log = logger.Nop{}
	}
	for _, o := range opts {
		o(m)
	}
	m.sched = scheduler.New(m.HandleTrigger, scheduler.WithClock(m.now), scheduler.WithLogger(m.log))
	m.ledger.OnChange(func(id string) {
		if err := m.sched.Notify(id); err != nil && !errors.Is(err, scheduler.ErrClosed) {
			m.log.Warnf("tender %s: early check not scheduled: %v", id, err)
		}
	})
	return m, nil
}

// Close stops the scheduler. Pending deadlines are dropped.
func (m *Manager) Close() {
	m.sched.Close()
}

func (m *Manager) get(id string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.tenders[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenderNotFound, id)
	}
	return e, nil
}

// Create registers a Draft tender from a planning request and returns its id.
// Tenders without rules receive the configured default rule set.
func (m *Manager) Create(spec model.TenderSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if len(spec.Rules) == 0 {
		spec.Rules = m.cfg.DefaultRules
	}
	id := m.newID()
	t := model.NewTenderLoad(id, spec, m.now())

	m.mu.Lock()
	if _, dup := m.tenders[id]; dup {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: duplicate tender id %s", ErrValidation, id)
	}
	m.tenders[id] = &entry{t: t}
	m.order = append(m.order, id)
	m.mu.Unlock()

	tendersCreated.Inc()
	m.log.Infow("tender created", map[string]any{"tender_id": id, "load_type": string(t.LoadType), "auto_award": t.AutoAward})
	return id, nil
}

// Send resolves the eligible carriers and opens bid collection. When no pool
// serves the tender it moves to PendingReview for manual sourcing and the
// returned error wraps ErrNoEligibleCarriers.
func (m *Manager) Send(id string) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	var fx effects
	err = func() error {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.t.Status() != model.StatusDraft {
			if e.t.Status().Terminal() {
				return stateErr(e.t)
			}
			return fmt.Errorf("%w: tender %s already sent", ErrInvalidTransition, id)
		}
		now := m.now()
		profiles, ids, rerr := m.resolve(e.t)
		if rerr != nil {
			review := model.PendingReview{Reason: model.ReviewNoEligibleCarriers, Since: now}
			if terr := m.transition(e, review, &fx); terr != nil {
				return terr
			}
			fx.review(e.t, review.Reason, now)
			fx.record = &audit.Record{Outcome: model.StatusPendingReview, Reason: string(review.Reason), Strategy: e.t.Strategy}
			return rerr
		}
		deadline := e.t.ResponseDeadline
		if deadline.IsZero() {
			window := e.t.ResponseWindow
			if window <= 0 {
				window = m.cfg.DefaultResponseWindow
			}
			deadline = now.Add(window)
		}
		if !deadline.After(now) {
			return fmt.Errorf("%w: response deadline %s is not in the future", ErrValidation, deadline.Format(time.RFC3339))
		}
		if err := m.transition(e, model.Pending{SentAt: now, Deadline: deadline}, &fx); err != nil {
			return err
		}
		e.t.Eligible = ids
		e.t.ResponseDeadline = deadline
		e.carriers = profiles
		e.sentAt = now
		m.ledger.Open(id, deadline)
		if err := m.sched.Schedule(id, deadline); err != nil {
			return err
		}
		return nil
	}()
	m.apply(fx)
	return err
}

// resolve snapshots the profiles of the eligible carriers. Carriers listed
// in a pool but unknown to the catalog are skipped.
func (m *Manager) resolve(t model.TenderLoad) (map[string]model.CarrierProfile, []string, error) {
	eligible, err := m.router.Resolve(t)
	if err != nil {
		return nil, nil, err
	}
	profiles := make(map[string]model.CarrierProfile, len(eligible))
	ids := make([]string, 0, len(eligible))
	for _, cid := range eligible {
		p, ok := m.carriers.Carrier(cid)
		if !ok {
			m.log.Warnf("tender %s: carrier %s in pool but missing from catalog", t.ID, cid)
			continue
		}
		profiles[cid] = p
		ids = append(ids, cid)
	}
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("%w: no pooled carrier found in catalog", ErrNoEligibleCarriers)
	}
	return profiles, ids, nil
}

// Get returns a copy of the tender.
func (m *Manager) Get(id string) (model.TenderLoad, error) {
	e, err := m.get(id)
	if err != nil {
		return model.TenderLoad{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t.Clone(), nil
}

// List returns every tender in creation order.
func (m *Manager) List() []model.TenderLoad {
	m.mu.RLock()
	ids := append([]string(nil), m.order...)
	m.mu.RUnlock()
	out := make([]model.TenderLoad, 0, len(ids))
	for _, id := range ids {
		if t, err := m.Get(id); err == nil {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Bids returns every bid of the tender, including settled ones. Pending bids
// past their own expiry are reported Expired.
func (m *Manager) Bids(id string) ([]model.CarrierBid, error) {
	if _, err := m.get(id); err != nil {
		return nil, err
	}
	m.ledger.ExpireDue(id, m.now())
	return m.ledger.All(id), nil
}

// Decisions returns the audit history of the tender.
func (m *Manager) Decisions(ctx context.Context, id string) ([]audit.Record, error) {
	if _, err := m.get(id); err != nil {
		return nil, err
	}
	return m.audit.List(ctx, id)
}
