// Package batch submits one decoded invoice batch to Factus.
//
// A batch is normalized, every row is submitted concurrently (at most
// MaxConcurrency in flight, timeouts retried with exponential backoff), the
// results are merged back into the table, the table is persisted and only then
// one event per row is published. Per-invoice failures are recorded on the row;
// failures before the fan-out (numbering range, auth) abort the whole batch.
package batch

import (
	"context"
	"time"

	"github.com/alapierre/go-factus-etl/etl/invoice"
	"github.com/alapierre/go-factus-etl/etl/metrics"
	"github.com/alapierre/go-factus-etl/etl/table"
	"github.com/go-faster/errors"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var logger = logrus.WithField("component", "etl.batch")

const (
	// MaxRetries retries after the first attempt, timeouts only.
	MaxRetries = 3
	// MaxConcurrency simultaneous create-invoice calls per batch.
	MaxConcurrency        = 50
	DefaultRetryBaseDelay = 500 * time.Millisecond
)

// Summary of one processed batch.
type Summary struct {
	BatchID   string
	Sent      int
	Succeeded int
	Failed    int
}

type Processor struct {
	submitter Submitter
	sink      Sink
	publisher Publisher
	clock     clockwork.Clock

	maxRetries     int
	concurrency    int64
	retryBaseDelay time.Duration
}

type Option func(*Processor)

func WithPublisher(pub Publisher) Option {
	return func(p *Processor) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

func WithRetryBaseDelay(d time.Duration) Option {
	return func(p *Processor) {
		if d >= 0 {
			p.retryBaseDelay = d
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(p *Processor) {
		if c != nil {
			p.clock = c
		}
	}
}

// withConcurrency is used by tests to observe the permit bound on small batches.
func withConcurrency(n int64) Option {
	return func(p *Processor) { p.concurrency = n }
}

func NewProcessor(submitter Submitter, sink Sink, opts ...Option) *Processor {
	p := &Processor{
		submitter:      submitter,
		sink:           sink,
		publisher:      noopPublisher{},
		clock:          clockwork.NewRealClock(),
		maxRetries:     MaxRetries,
		concurrency:    MaxConcurrency,
		retryBaseDelay: DefaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute decodes a raw queue message and processes it. The returned batch id
// is set whenever the message carried or generated one, also on failure.
func (p *Processor) Execute(ctx context.Context, raw []byte) (string, error) {
	b, err := invoice.FromMessage(raw)
	if err != nil {
		var decodeErr *invoice.DecodeError
		if errors.As(err, &decodeErr) {
			return decodeErr.BatchID, err
		}
		return "", err
	}

	if _, err := p.Process(ctx, b); err != nil {
		return b.BatchID, err
	}
	return b.BatchID, nil
}

// Process runs one batch to completion. An error means nothing was persisted.
func (p *Processor) Process(ctx context.Context, b *invoice.Batch) (summary *Summary, err error) {
	started := p.clock.Now()
	log := logger.WithField("batch_id", b.BatchID)

	defer func() {
		metrics.BatchDuration.Observe(p.clock.Since(started).Seconds())
		switch {
		case err != nil:
			metrics.BatchesProcessed.WithLabelValues(metrics.OutcomeFailed).Inc()
		case summary.Sent == 0:
			metrics.BatchesProcessed.WithLabelValues(metrics.OutcomeEmpty).Inc()
		default:
			metrics.BatchesProcessed.WithLabelValues(metrics.OutcomeSuccess).Inc()
		}
	}()

	tbl := table.Normalize(b.BatchID, b.Invoices)
	if tbl.Len() == 0 {
		log.Info("batch has no valid invoices after normalization, skipping submission")
		return &Summary{BatchID: b.BatchID}, nil
	}

	numberingRangeID, err := p.submitter.ActiveNumberingRange(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "resolve numbering range")
	}
	log.WithField("numbering_range_id", numberingRangeID).Debug("numbering range resolved")

	results, err := p.fanOut(ctx, tbl, numberingRangeID)
	if err != nil {
		return nil, err
	}

	merge(tbl, results)

	if err := p.sink.SaveTable(ctx, tbl); err != nil {
		return nil, errors.Wrap(err, "persist batch")
	}

	p.publish(ctx, tbl)

	summary = summarize(tbl)
	log.WithFields(logrus.Fields{
		"sent":    summary.Sent,
		"success": summary.Succeeded,
		"failed":  summary.Failed,
	}).Info("batch_processed")
	return summary, nil
}

// fanOut submits every row, at most p.concurrency at a time, and waits for all
// of them. Results are indexed like tbl.Rows.
func (p *Processor) fanOut(ctx context.Context, tbl *table.Table, numberingRangeID int) ([]Result, error) {
	results := make([]Result, len(tbl.Rows))
	permits := semaphore.NewWeighted(p.concurrency)

	var g errgroup.Group
	for i := range tbl.Rows {
		row := tbl.Rows[i]
		g.Go(func() error {
			if err := permits.Acquire(ctx, 1); err != nil {
				return err
			}
			defer permits.Release(1)

			results[i] = p.submit(ctx, tbl.BatchID, row, numberingRangeID)
			metrics.InvoicesSubmitted.WithLabelValues(string(results[i].Status)).Inc()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "submit invoices")
	}
	// shutdown while submitting: partial results are dropped, not persisted
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "submit invoices")
	}
	return results, nil
}

func (p *Processor) publish(ctx context.Context, tbl *table.Table) {
	for _, row := range tbl.Rows {
		if err := p.publisher.PublishInvoiceProcessed(ctx, row); err != nil {
			metrics.EventsFailed.Inc()
			logger.WithError(err).WithFields(logrus.Fields{
				"batch_id":    tbl.BatchID,
				"external_id": row.ExternalID,
			}).Error("failed to publish invoice event")
		}
	}
}

func summarize(tbl *table.Table) *Summary {
	s := &Summary{BatchID: tbl.BatchID, Sent: tbl.Len()}
	for _, row := range tbl.Rows {
		switch row.Status {
		case table.StatusSuccess:
			s.Succeeded++
		case table.StatusError:
			s.Failed++
		}
	}
	return s
}
