package tender

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/tendering/core/audit"
	"github.com/kilianp07/tendering/core/catalog"
	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/pool"
	"github.com/kilianp07/tendering/core/scheduler"
)

var start = time.Date(2025, 5, 6, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) Enqueue(ev events.Event) error {
	r.Publish(ev)
	return nil
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.evs...)
}

func (r *recorder) awarded() []events.TenderAwarded {
	var out []events.TenderAwarded
	for _, ev := range r.all() {
		if a, ok := ev.(events.TenderAwarded); ok {
			out = append(out, a)
		}
	}
	return out
}

func (r *recorder) count(name string) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Name() == name {
			n++
		}
	}
	return n
}

type harness struct {
	m      *Manager
	clock  *fakeClock
	outbox *recorder
	bus    *recorder
	audit  *audit.MemoryStore
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(catalog.Snapshot{
		Carriers: []model.CarrierProfile{
			{ID: "A", Name: "Swift Haul", Rating: 4.8, OnTimeRate: 96.5, Active: true},
			{ID: "B", Name: "Prime Freight", Rating: 4.6, OnTimeRate: 94.2, Active: true},
			{ID: "C", Name: "Budget Lines", Rating: 4.3, OnTimeRate: 92.1, Active: true},
			{ID: "D", Name: "Parcel Co", Rating: 4.0, OnTimeRate: 90, Active: true},
		},
		Pools: []model.CarrierPool{
			{Name: "ftl-core", Priority: 1, LaneTypes: []model.LoadType{model.LoadFTL}, Carriers: []string{"A", "B", "C"}},
			{Name: "ltl", Priority: 2, LaneTypes: []model.LoadType{model.LoadLTL}, Carriers: []string{"D"}},
		},
	})
	require.NoError(t, err)
	return c
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ResetMetrics(prometheus.NewRegistry())
	t.Cleanup(func() { ResetMetrics(nil) })

	cat := testCatalog(t)
	h := &harness{clock: &fakeClock{t: start}, outbox: &recorder{}, bus: &recorder{}, audit: audit.NewMemoryStore()}
	var seq atomic.Int64
	all := append([]Option{
		WithClock(h.clock.Now),
		WithIDFunc(func() string { return fmt.Sprintf("T%d", seq.Add(1)) }),
	}, opts...)
	m, err := NewManager(Config{}, Deps{
		Router:   pool.NewRouter(cat),
		Carriers: cat,
		Outbox:   h.outbox,
		Bus:      h.bus,
		Audit:    h.audit,
	}, all...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	h.m = m
	return h
}

func exampleSpec(autoAward bool) model.TenderSpec {
	return model.TenderSpec{
		Reference:      "LD-1001",
		LoadType:       model.LoadFTL,
		Origin:         model.Location{City: "Lyon"},
		Destination:    model.Location{City: "Lille"},
		EstimatedCost:  2800,
		ResponseWindow: time.Hour,
		AutoAward:      autoAward,
		Rules:          DefaultRules(),
	}
}

func payload(amount float64, confirmed bool) model.BidPayload {
	return model.BidPayload{Amount: amount, Currency: "USD", TransitDays: 2, CapacityConfirmed: confirmed}
}

// sent creates and sends a tender.
func (h *harness) sent(t *testing.T, spec model.TenderSpec) string {
	t.Helper()
	id, err := h.m.Create(spec)
	require.NoError(t, err)
	require.NoError(t, h.m.Send(id))
	return id
}

func (h *harness) submit(t *testing.T, id, carrier string, p model.BidPayload) model.CarrierBid {
	t.Helper()
	b, err := h.m.SubmitBid(id, carrier, p)
	require.NoError(t, err)
	return b
}

func (h *harness) status(t *testing.T, id string) model.Status {
	t.Helper()
	tl, err := h.m.Get(id)
	require.NoError(t, err)
	return tl.Status()
}

func (h *harness) deadline(id string) {
	h.clock.Advance(time.Hour + time.Second)
	h.m.HandleTrigger(scheduler.Trigger{TenderID: id, Kind: scheduler.KindDeadline, Due: h.clock.Now()})
}
