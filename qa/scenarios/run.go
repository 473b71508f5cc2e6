package scenarios

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/tendering/core/catalog"
	"github.com/kilianp07/tendering/core/events"
	"github.com/kilianp07/tendering/core/logger"
	"github.com/kilianp07/tendering/core/model"
	"github.com/kilianp07/tendering/core/pool"
	"github.com/kilianp07/tendering/core/scheduler"
	"github.com/kilianp07/tendering/core/scoring"
	"github.com/kilianp07/tendering/core/tender"
)

// Epoch is the fake clock origin of every run.
var Epoch = time.Date(2025, 5, 6, 8, 0, 0, 0, time.UTC)

const settleTimeout = 2 * time.Second

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
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

func (r *recorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.evs...)
}

// Outcome is what a replayed scenario produced.
type Outcome struct {
	TenderID   string
	Status     model.Status
	Winner     string
	Amount     float64
	Ranking    scoring.Ranking
	Events     map[string]int
	SendError  string
	StepErrors []string
}

// Run replays sc on a fresh engine and returns its outcome. Errors returned
// by steps are part of the outcome; Run itself only fails when the scenario
// cannot be set up.
func Run(sc *Scenario, log logger.Logger) (*Outcome, error) {
	if log == nil {
		log = logger.Nop{}
	}
	cat, err := catalog.New(sc.Catalog)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	router := pool.NewRouter(cat)
	router.SetInactive(cat.Inactive()...)

	clk := &clock{t: Epoch}
	rec := &recorder{}
	var seq atomic.Int64
	m, err := tender.NewManager(tender.Config{}, tender.Deps{
		Router:   router,
		Carriers: cat,
		Bus:      rec,
		Logger:   log,
	},
		tender.WithClock(clk.Now),
		tender.WithIDFunc(func() string { return fmt.Sprintf("%s-%d", sc.Name, seq.Add(1)) }),
	)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	id, err := m.Create(sc.Tender.ToModel())
	if err != nil {
		return nil, fmt.Errorf("scenario %s: create: %w", sc.Name, err)
	}
	out := &Outcome{TenderID: id}
	out.SendError = tender.ErrorCode(m.Send(id))

	for _, s := range sc.Steps {
		out.StepErrors = append(out.StepErrors, tender.ErrorCode(step(m, clk, id, s)))
	}

	deadline := time.Now().Add(settleTimeout)
	for {
		collect(m, rec, out)
		if len(Check(sc, out)) == 0 || time.Now().After(deadline) {
			return out, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func step(m *tender.Manager, clk *clock, id string, s Step) error {
	switch {
	case s.Bid != nil:
		if _, err := m.SubmitBid(id, s.Bid.Carrier, s.Bid.ToModel()); err != nil {
			return err
		}
		// The scheduler runs the same check asynchronously; deciding twice
		// is a no-op.
		m.HandleTrigger(scheduler.Trigger{TenderID: id, Kind: scheduler.KindCheck, Due: clk.Now()})
		return nil
	case s.Withdraw != "":
		return m.WithdrawBid(id, s.Withdraw)
	case s.Cancel != "":
		return m.CancelTender(id, s.Cancel)
	case s.Review != nil:
		_, err := m.ManualDecision(id, tender.Decision{
			CarrierID: s.Review.Carrier,
			Reject:    s.Review.Reject,
			Actor:     s.Review.Actor,
			Reason:    s.Review.Reason,
		})
		return err
	case s.Deadline:
		t, err := m.Get(id)
		if err != nil {
			return err
		}
		if d := t.ResponseDeadline.Sub(clk.Now()); d >= 0 {
			clk.Advance(d + time.Second)
		}
		m.HandleTrigger(scheduler.Trigger{TenderID: id, Kind: scheduler.KindDeadline, Due: clk.Now()})
		return nil
	case s.Advance > 0:
		clk.Advance(s.Advance)
		m.HandleTrigger(scheduler.Trigger{TenderID: id, Kind: scheduler.KindBidExpiry, Due: clk.Now()})
	}
	return nil
}

func collect(m *tender.Manager, rec *recorder, out *Outcome) {
	if t, err := m.Get(out.TenderID); err == nil {
		out.Status = t.Status()
	}
	if r, err := m.Ranking(out.TenderID); err == nil {
		out.Ranking = r
	}
	out.Events = map[string]int{}
	for _, ev := range rec.snapshot() {
		out.Events[ev.Name()]++
		if a, ok := ev.(events.TenderAwarded); ok {
			out.Winner, out.Amount = a.CarrierID, a.Amount
		}
	}
}

// Check compares an outcome with the scenario expectations and returns one
// line per mismatch.
func Check(sc *Scenario, out *Outcome) []string {
	var diffs []string
	exp := sc.Expected
	if exp.Status != "" && out.Status != exp.Status {
		diffs = append(diffs, fmt.Sprintf("status: want %s, got %s", exp.Status, out.Status))
	}
	if exp.Winner != "" && out.Winner != exp.Winner {
		diffs = append(diffs, fmt.Sprintf("winner: want %s, got %q", exp.Winner, out.Winner))
	}
	if exp.Amount != 0 && out.Amount != exp.Amount {
		diffs = append(diffs, fmt.Sprintf("amount: want %.2f, got %.2f", exp.Amount, out.Amount))
	}
	if exp.SendError != out.SendError {
		diffs = append(diffs, fmt.Sprintf("send: want error %q, got %q", exp.SendError, out.SendError))
	}
	if len(exp.Ranking) > 0 {
		got := make([]string, 0, len(out.Ranking.Results))
		for _, r := range out.Ranking.Results {
			got = append(got, r.CarrierID)
		}
		if fmt.Sprint(got) != fmt.Sprint(exp.Ranking) {
			diffs = append(diffs, fmt.Sprintf("ranking: want %v, got %v", exp.Ranking, got))
		}
	}
	for name, n := range exp.Events {
		if out.Events[name] != n {
			diffs = append(diffs, fmt.Sprintf("events %s: want %d, got %d", name, n, out.Events[name]))
		}
	}
	for i, s := range sc.Steps {
		var got string
		if i < len(out.StepErrors) {
			got = out.StepErrors[i]
		}
		if got != s.Error {
			diffs = append(diffs, fmt.Sprintf("step %d (%s): want error %q, got %q", i, s.action(), s.Error, got))
		}
	}
	return diffs
}
