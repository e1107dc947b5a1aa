package table

import (
	"time"

	"github.com/go-faster/jx"
)

// MarshalJSON renders the row as the outbound event and API shape. Nil
// optional fields are encoded as null, issued_at as RFC 3339 in UTC.
func (r Row) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	r.Encode(&e)
	return e.Bytes(), nil
}

func (r Row) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("external_id")
	e.Str(r.ExternalID)
	e.FieldStart("customer_id")
	optionalStr(e, r.CustomerID)
	e.FieldStart("issued_at")
	if r.IssuedAt == nil {
		e.Null()
	} else {
		e.Str(r.IssuedAt.UTC().Format(time.RFC3339))
	}
	e.FieldStart("total")
	e.Float64(r.Total)
	e.FieldStart("currency")
	optionalStr(e, r.Currency)
	e.FieldStart("tax_amount")
	e.Float64(r.TaxAmount)
	e.FieldStart("factus_invoice_id")
	optionalStr(e, r.FactusInvoiceID)
	e.FieldStart("qr_url")
	optionalStr(e, r.QRURL)
	e.FieldStart("pdf_url")
	optionalStr(e, r.PDFURL)
	e.FieldStart("status")
	e.Str(string(r.Status))
	e.FieldStart("error_message")
	optionalStr(e, r.ErrorMessage)
	e.ObjEnd()
}

func optionalStr(e *jx.Encoder, s *string) {
	if s == nil {
		e.Null()
		return
	}
	e.Str(*s)
}
