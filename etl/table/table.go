// Package table turns decoded invoices into the rectangular rows the pipeline
// submits, persists and publishes.
package table

import (
	"time"

	"github.com/alapierre/go-factus-etl/etl/invoice"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "etl.table")

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Columns is the persisted column order, Row.Values follows it.
var Columns = []string{
	"external_id",
	"customer_id",
	"issued_at",
	"total",
	"currency",
	"tax_amount",
	"factus_invoice_id",
	"qr_url",
	"pdf_url",
	"status",
	"error_message",
}

// Row is one normalized invoice plus its submission result.
type Row struct {
	ExternalID      string
	CustomerID      *string
	IssuedAt        *time.Time
	Total           float64
	Currency        *string
	TaxAmount       float64
	FactusInvoiceID *string
	QRURL           *string
	PDFURL          *string
	Status          Status
	ErrorMessage    *string
}

// Values returns the row in Columns order.
func (r Row) Values() []any {
	return []any{
		r.ExternalID,
		r.CustomerID,
		r.IssuedAt,
		r.Total,
		r.Currency,
		r.TaxAmount,
		r.FactusInvoiceID,
		r.QRURL,
		r.PDFURL,
		string(r.Status),
		r.ErrorMessage,
	}
}

type Table struct {
	BatchID string
	Rows    []Row
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Normalize builds one row per invoice, derives tax_amount and drops rows
// without external id or total. Empty input gives an empty table.
func Normalize(batchID string, invoices []invoice.Invoice) *Table {
	started := time.Now()

	rows := make([]Row, 0, len(invoices))
	for _, inv := range invoices {
		if inv.ExternalID == "" || inv.Total == nil {
			continue
		}

		total, _ := inv.Total.Float64()
		tax, _ := inv.TaxAmount().Float64()

		var issuedAt *time.Time
		if inv.IssuedAt != nil {
			utc := inv.IssuedAt.UTC()
			issuedAt = &utc
		}

		rows = append(rows, Row{
			ExternalID: inv.ExternalID,
			CustomerID: inv.CustomerID,
			IssuedAt:   issuedAt,
			Total:      total,
			Currency:   inv.Currency,
			TaxAmount:  tax,
			Status:     StatusPending,
		})
	}

	logger.WithFields(logrus.Fields{
		"batch_id":   batchID,
		"rows_in":    len(invoices),
		"rows_out":   len(rows),
		"elapsed_ms": float64(time.Since(started).Microseconds()) / 1000,
	}).Info("etl_transform_completed")

	return &Table{BatchID: batchID, Rows: rows}
}
