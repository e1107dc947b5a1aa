package events

import (
	"context"

	"github.com/alapierre/go-factus-etl/etl/batch"
	"github.com/alapierre/go-factus-etl/etl/table"
	"github.com/go-faster/errors"
)

// Fanout delivers each row to every publisher, even when an earlier one
// fails. The first failure is returned, later ones are only logged.
type Fanout []batch.Publisher

func (f Fanout) PublishInvoiceProcessed(ctx context.Context, row table.Row) error {
	var first error
	for i, p := range f {
		err := p.PublishInvoiceProcessed(ctx, row)
		if err == nil {
			continue
		}
		if first == nil {
			first = errors.Wrapf(err, "publisher %d", i)
			continue
		}
		logger.WithError(err).WithField("publisher", i).Warn("invoice event not delivered")
	}
	return first
}
