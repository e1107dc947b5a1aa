package batch

import "github.com/alapierre/go-factus-etl/etl/table"

// merge left-joins results onto the rows by external id. Every row keeps its
// position and gets at most one result. External ids are expected to be unique
// within a batch; for duplicates the first result with that id is applied to
// every row carrying it.
func merge(t *table.Table, results []Result) {
	byID := make(map[string]Result, len(results))
	for _, r := range results {
		if _, seen := byID[r.ExternalID]; !seen {
			byID[r.ExternalID] = r
		}
	}

	for i := range t.Rows {
		r, ok := byID[t.Rows[i].ExternalID]
		if !ok {
			continue
		}
		row := &t.Rows[i]
		row.Status = r.Status
		row.FactusInvoiceID = optional(r.FactusInvoiceID)
		row.QRURL = optional(r.QRURL)
		row.PDFURL = optional(r.PDFURL)
		row.ErrorMessage = optional(r.ErrorMessage)
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
