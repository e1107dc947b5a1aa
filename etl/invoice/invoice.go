// Package invoice holds the batch model decoded from an inbound queue message.
package invoice

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// TaxRate is applied to every invoice total. Input tax amounts are never trusted.
var TaxRate = decimal.RequireFromString("0.19")

// Invoice is one fiscal document as received. ExternalID is the join key for
// the result merge; an empty value means it was absent.
type Invoice struct {
	ExternalID string
	CustomerID *string
	IssuedAt   *time.Time
	Total      *decimal.Decimal
	Currency   *string

	// InputTaxAmount is whatever the producer sent; kept for diagnostics only.
	InputTaxAmount *decimal.Decimal
}

// TaxAmount derives the tax from Total, nil when Total is absent.
func (i Invoice) TaxAmount() *decimal.Decimal {
	if i.Total == nil {
		return nil
	}
	tax := i.Total.Mul(TaxRate)
	return &tax
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseTimestamp accepts ISO-8601 strings; values without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseDecimal accepts anything coercible to a fixed-point decimal.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// decodeInvoice reads one invoice object. Field level problems never fail the
// decode, they just leave the field empty.
func decodeInvoice(d *jx.Decoder) (Invoice, error) {
	var inv Invoice
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "external_id":
			v, err := decodeText(d)
			if err != nil {
				return err
			}
			if v != nil {
				inv.ExternalID = *v
			}
		case "customer_id":
			v, err := decodeText(d)
			if err != nil {
				return err
			}
			inv.CustomerID = v
		case "currency":
			v, err := decodeText(d)
			if err != nil {
				return err
			}
			inv.Currency = v
		case "issued_at":
			v, err := decodeText(d)
			if err != nil {
				return err
			}
			if v != nil {
				if t, ok := ParseTimestamp(*v); ok {
					inv.IssuedAt = &t
				}
			}
		case "total":
			v, err := decodeDecimal(d)
			if err != nil {
				return err
			}
			inv.Total = v
		case "tax_amount":
			v, err := decodeDecimal(d)
			if err != nil {
				return err
			}
			inv.InputTaxAmount = v
		default:
			return d.Skip()
		}
		return nil
	})
	return inv, err
}

// decodeText returns strings as-is and numbers as their literal text; other
// types are skipped and yield nil.
func decodeText(d *jx.Decoder) (*string, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		return &s, nil
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		s := n.String()
		return &s, nil
	default:
		return nil, d.Skip()
	}
}

func decodeDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	v, err := decodeText(d)
	if err != nil || v == nil {
		return nil, err
	}
	dec, ok := ParseDecimal(*v)
	if !ok {
		return nil, nil
	}
	return &dec, nil
}
