package model

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    *int64 `json:"expires_in,omitempty"`
}

// NumberingRange one entry of GET /v1/numbering-ranges. Active covers both
// is_active and active field names.
type NumberingRange struct {
	ID     *int
	Active bool
}

type BillRequest struct {
	NumberingRangeID int        `json:"numbering_range_id"`
	ReferenceCode    string     `json:"reference_code"`
	Observation      string     `json:"observation"`
	IssueDate        *string    `json:"issue_date"`
	Customer         Customer   `json:"customer"`
	Items            []BillItem `json:"items"`
}

type Customer struct {
	Identification string `json:"identification"`
}

type BillItem struct {
	CodeReference string  `json:"code_reference"`
	Name          string  `json:"name"`
	Quantity      int     `json:"quantity"`
	Price         float64 `json:"price"`
}

type BillResponse struct {
	Data BillResult `json:"data"`
}

type BillResult struct {
	ID  FlexibleID `json:"id"`
	QR  string     `json:"qr"`
	PDF string     `json:"pdf"`
}

// FlexibleID accepts both numeric and string ids, Factus returns either
// depending on the endpoint version.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(data []byte) error {
	d := jx.DecodeBytes(data)
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return err
		}
		*f = FlexibleID(s)
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return err
		}
		*f = FlexibleID(n.String())
	case jx.Null:
		*f = ""
		return d.Null()
	default:
		return errors.Errorf("unexpected id type %s", d.Next())
	}
	return nil
}
