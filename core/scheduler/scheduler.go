package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/tendering/core/logger"
)

// ErrClosed is returned when scheduling on a closed Scheduler.
var ErrClosed = errors.New("scheduler closed")

// Kind identifies why a trigger fired.
type Kind int

const (
	// KindDeadline fires when the tender's response window ends.
	KindDeadline Kind = iota
	// KindBidExpiry fires when a bid's own validity ends.
	KindBidExpiry
	// KindCheck is an immediate early-decision check.
	KindCheck
)

func (k Kind) String() string {
	switch k {
	case KindDeadline:
		return "deadline"
	case KindBidExpiry:
		return "bid_expiry"
	case KindCheck:
		return "check"
	}
	return "unknown"
}

// Trigger is a due entry handed to the callback.
type Trigger struct {
	TenderID string
	Kind     Kind
	Due      time.Time
}

// Func handles a fired trigger.
type Func func(Trigger)

// Scheduler owns the deadline heap and its polling loop.
type Scheduler struct {
	mu     sync.Mutex
	q      queue
	seq    uint64
	checks map[string]bool
	closed bool

	fn     Func
	now    func() time.Time
	logger logger.Logger

	wake     chan struct{}
	done     chan struct{}
	loopDone chan struct{}
	inflight sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New starts a Scheduler calling fn for every fired trigger.
func New(fn Func, opts ...Option) *Scheduler {
	s := &Scheduler{
		checks:   map[string]bool{},
		fn:       fn,
		now:      time.Now,
		logger:   logger.Nop{},
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.loop()
	return s
}

// Schedule registers the response deadline of a tender.
func (s *Scheduler) Schedule(tenderID string, deadline time.Time) error {
	return s.push(Trigger{TenderID: tenderID, Kind: KindDeadline, Due: deadline})
}

// ScheduleBidExpiry registers the expiry of one bid of a tender.
func (s *Scheduler) ScheduleBidExpiry(tenderID string, at time.Time) error {
	return s.push(Trigger{TenderID: tenderID, Kind: KindBidExpiry, Due: at})
}

// Notify requests an immediate check of the tender. Repeated calls before
// the check fires are coalesced.
func (s *Scheduler) Notify(tenderID string) error {
	return s.push(Trigger{TenderID: tenderID, Kind: KindCheck})
}

func (s *Scheduler) push(t Trigger) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if t.Kind == KindCheck {
		if s.checks[t.TenderID] {
			s.mu.Unlock()
			return nil
		}
		s.checks[t.TenderID] = true
		t.Due = s.now()
	}
	s.seq++
	heap.Push(&s.q, entry{trigger: t, seq: s.seq})
	s.mu.Unlock()
	s.poke()
	return nil
}

// Cancel drops every pending entry of the tender.
func (s *Scheduler) Cancel(tenderID string) int {
	s.mu.Lock()
	kept := s.q[:0]
	removed := 0
	for _, e := range s.q {
		if e.trigger.TenderID == tenderID {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.q = kept
	heap.Init(&s.q)
	delete(s.checks, tenderID)
	s.mu.Unlock()
	if removed > 0 {
		s.poke()
	}
	return removed
}

// Pending returns the number of queued entries for the tender.
func (s *Scheduler) Pending(tenderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.q {
		if e.trigger.TenderID == tenderID {
			n++
		}
	}
	return n
}

// Len returns the number of queued entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

// Close stops the loop and waits for running callbacks. Queued entries are
// dropped.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.q = nil
	s.mu.Unlock()
	close(s.done)
	<-s.loopDone
	s.inflight.Wait()
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	for {
		for _, t := range s.due() {
			s.fire(t)
		}
		s.mu.Lock()
		next, ok := s.q.peek()
		s.mu.Unlock()
		if ok {
			d := next.Sub(s.now())
			if d < 0 {
				d = 0
			}
			timer.Reset(d)
		}
		select {
		case <-s.done:
			timer.Stop()
			return
		case <-s.wake:
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

// due pops every entry whose time has come.
func (s *Scheduler) due() []Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var out []Trigger
	for s.q.Len() > 0 {
		at, _ := s.q.peek()
		if at.After(now) {
			break
		}
		e := heap.Pop(&s.q).(entry)
		if e.trigger.Kind == KindCheck {
			delete(s.checks, e.trigger.TenderID)
		}
		out = append(out, e.trigger)
	}
	return out
}

func (s *Scheduler) fire(t Trigger) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Errorf("scheduler: %s trigger for tender %s panicked: %v", t.Kind, t.TenderID, r)
			}
		}()
		s.fn(t)
	}()
}
