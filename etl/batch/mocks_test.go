package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alapierre/go-factus-etl/etl/table"
	"github.com/alapierre/go-factus-etl/factus"
	"github.com/alapierre/go-factus-etl/factus/model"
	"github.com/go-faster/errors"
)

// callLog records the order in which collaborators were invoked.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type fakeSubmitter struct {
	log        *callLog
	rangeID    int
	rangeErr   error
	rangeCalls int32

	// create decides the outcome of attempt n (1-based) for an invoice
	create func(inv factus.Invoice, attempt int) (*model.BillResult, error)
	delay  time.Duration

	mu       sync.Mutex
	attempts map[string]int

	inFlight    int32
	maxInFlight int32
}

func (f *fakeSubmitter) ActiveNumberingRange(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.rangeCalls, 1)
	if f.log != nil {
		f.log.add("range")
	}
	return f.rangeID, f.rangeErr
}

func (f *fakeSubmitter) CreateInvoice(ctx context.Context, inv factus.Invoice, numberingRangeID int) (*model.BillResult, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxInFlight)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxInFlight, m, n) {
			break
		}
	}

	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = map[string]int{}
	}
	f.attempts[inv.ExternalID]++
	attempt := f.attempts[inv.ExternalID]
	f.mu.Unlock()

	if f.log != nil {
		f.log.add("create:" + inv.ExternalID)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.create(inv, attempt)
}

func (f *fakeSubmitter) attemptsFor(externalID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[externalID]
}

func (f *fakeSubmitter) totalAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.attempts {
		total += n
	}
	return total
}

func succeed(id string) func(factus.Invoice, int) (*model.BillResult, error) {
	return func(factus.Invoice, int) (*model.BillResult, error) {
		return &model.BillResult{ID: model.FlexibleID(id), QR: "q", PDF: "p"}, nil
	}
}

func timeoutErr() error {
	return &factus.TimeoutError{Op: "create-invoice", Err: errors.New("simulated timeout")}
}

type fakeSink struct {
	log   *callLog
	err   error
	saved []*table.Table
}

func (s *fakeSink) SaveTable(ctx context.Context, t *table.Table) error {
	if s.log != nil {
		s.log.add("save")
	}
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, t)
	return nil
}

type fakePublisher struct {
	log *callLog
	err error

	mu   sync.Mutex
	rows []table.Row
}

func (p *fakePublisher) PublishInvoiceProcessed(ctx context.Context, row table.Row) error {
	if p.log != nil {
		p.log.add("publish:" + row.ExternalID)
	}
	p.mu.Lock()
	p.rows = append(p.rows, row)
	p.mu.Unlock()
	return p.err
}
