package batch

import (
	"context"

	"github.com/alapierre/go-factus-etl/etl/table"
	"github.com/alapierre/go-factus-etl/factus"
	"github.com/alapierre/go-factus-etl/factus/model"
)

// Submitter is the part of the Factus client the processor needs.
// *factus.Client implements it.
type Submitter interface {
	ActiveNumberingRange(ctx context.Context) (int, error)
	CreateInvoice(ctx context.Context, invoice factus.Invoice, numberingRangeID int) (*model.BillResult, error)
}

// Sink bulk-writes a merged table. Nothing is written for a failed batch.
type Sink interface {
	SaveTable(ctx context.Context, t *table.Table) error
}

// Publisher receives every merged row once, after the table was persisted.
type Publisher interface {
	PublishInvoiceProcessed(ctx context.Context, row table.Row) error
}

type noopPublisher struct{}

func (noopPublisher) PublishInvoiceProcessed(context.Context, table.Row) error { return nil }
