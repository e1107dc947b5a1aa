package factus

import (
	"fmt"
	"time"

	"github.com/alapierre/go-factus-etl/factus/model"
)

const unknownCustomer = "UNKNOWN"

// Invoice is the submission view of one normalized row.
type Invoice struct {
	BatchID    string
	ExternalID string
	CustomerID *string
	IssuedAt   *time.Time
	Total      float64
}

// BuildBillRequest maps an invoice onto the bills/validate body. No I/O.
func BuildBillRequest(invoice Invoice, numberingRangeID int) model.BillRequest {
	var issueDate *string
	if invoice.IssuedAt != nil {
		d := invoice.IssuedAt.UTC().Format(time.DateOnly)
		issueDate = &d
	}

	identification := unknownCustomer
	if invoice.CustomerID != nil && *invoice.CustomerID != "" {
		identification = *invoice.CustomerID
	}

	return model.BillRequest{
		NumberingRangeID: numberingRangeID,
		ReferenceCode:    invoice.ExternalID,
		Observation:      fmt.Sprintf("Batch %s", invoice.BatchID),
		IssueDate:        issueDate,
		Customer: model.Customer{
			Identification: identification,
		},
		Items: []model.BillItem{
			{
				CodeReference: "ITEM-" + invoice.ExternalID,
				Name:          "Invoice " + invoice.ExternalID,
				Quantity:      1,
				Price:         invoice.Total,
			},
		},
	}
}
