package batch

import (
	"context"
	"time"

	"github.com/alapierre/go-factus-etl/etl/metrics"
	"github.com/alapierre/go-factus-etl/etl/table"
	"github.com/alapierre/go-factus-etl/factus"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of submitting one row.
type Result struct {
	ExternalID      string
	FactusInvoiceID string
	QRURL           string
	PDFURL          string
	Status          table.Status
	ErrorMessage    string
}

// Backoff returns base * 2^attempt, attempt counted from 0.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt)
}

// submit runs the per-invoice state machine: pending -> attempt 1..maxRetries+1
// -> success | error. Only timeouts are retried.
func (p *Processor) submit(ctx context.Context, batchID string, row table.Row, numberingRangeID int) Result {
	inv := factus.Invoice{
		BatchID:    batchID,
		ExternalID: row.ExternalID,
		CustomerID: row.CustomerID,
		IssuedAt:   row.IssuedAt,
		Total:      row.Total,
	}
	log := logger.WithFields(logrus.Fields{"batch_id": batchID, "external_id": row.ExternalID})

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		metrics.SubmissionAttempts.Inc()

		res, err := p.submitter.CreateInvoice(ctx, inv, numberingRangeID)
		if err == nil {
			return Result{
				ExternalID:      row.ExternalID,
				FactusInvoiceID: string(res.ID),
				QRURL:           res.QR,
				PDFURL:          res.PDF,
				Status:          table.StatusSuccess,
			}
		}

		if !factus.IsTimeout(err) {
			log.WithError(err).Warn("invoice submission failed")
			return failed(row.ExternalID, err)
		}

		lastErr = err
		if attempt == p.maxRetries {
			break
		}

		delay := Backoff(p.retryBaseDelay, attempt)
		log.WithFields(logrus.Fields{"attempt": attempt + 1, "delay": delay}).Warn("invoice submission timed out, retrying")

		select {
		case <-ctx.Done():
			return failed(row.ExternalID, ctx.Err())
		case <-p.clock.After(delay):
		}
	}

	log.WithError(lastErr).Warn("invoice submission retries exhausted")
	return failed(row.ExternalID, lastErr)
}

func failed(externalID string, err error) Result {
	return Result{
		ExternalID:   externalID,
		Status:       table.StatusError,
		ErrorMessage: err.Error(),
	}
}
