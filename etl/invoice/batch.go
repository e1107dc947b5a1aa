package invoice

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
)

// ErrMalformedBatch marks messages that can never be processed. Not retryable.
var ErrMalformedBatch = errors.New("malformed invoice batch")

// DecodeError carries the batch id when the message got far enough to have one.
type DecodeError struct {
	BatchID string
	Reason  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedBatch, e.Reason)
}

func (e *DecodeError) Is(target error) bool { return target == ErrMalformedBatch }

// Batch is one message worth of invoices. It is not modified after FromMessage.
type Batch struct {
	BatchID  string
	Invoices []Invoice
}

// FromMessage decodes a raw queue message:
//
//	{"batch_id": "...", "payload": {"invoices": [...]}}
//	{"batch_id": "...", "payload": [...]}
//
// A missing batch id is generated.
func FromMessage(raw []byte) (*Batch, error) {
	d := jx.DecodeBytes(raw)
	if t := d.Next(); t != jx.Object {
		return nil, &DecodeError{Reason: fmt.Sprintf("message must be a JSON object, got %s", t)}
	}

	var (
		batchID string
		payload jx.Raw
	)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "batch_id":
			v, err := decodeText(d)
			if err != nil {
				return err
			}
			if v != nil {
				batchID = *v
			}
			return nil
		case "payload":
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			payload = raw
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, &DecodeError{BatchID: batchID, Reason: err.Error()}
	}

	if batchID == "" {
		batchID = uuid.NewString()
	}

	list, err := resolveInvoiceList(payload)
	if err != nil {
		return nil, &DecodeError{BatchID: batchID, Reason: err.Error()}
	}

	invoices, err := decodeInvoiceList(list)
	if err != nil {
		return nil, &DecodeError{BatchID: batchID, Reason: err.Error()}
	}

	return &Batch{BatchID: batchID, Invoices: invoices}, nil
}

// resolveInvoiceList returns the raw invoice array; nil means an empty list.
// Only a missing payload key is empty, an explicit null is malformed.
func resolveInvoiceList(payload jx.Raw) (jx.Raw, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	d := jx.DecodeBytes(payload)
	switch d.Next() {
	case jx.Array:
		return payload, nil
	case jx.Object:
		var invoices jx.Raw
		err := d.Obj(func(d *jx.Decoder, key string) error {
			if key != "invoices" {
				return d.Skip()
			}
			raw, err := d.Raw()
			invoices = raw
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(invoices) == 0 {
			return nil, nil
		}
		if t := jx.DecodeBytes(invoices).Next(); t != jx.Array {
			return nil, errors.Errorf("payload must contain a list of invoices, got %s", t)
		}
		return invoices, nil
	default:
		return nil, errors.Errorf("payload must contain a list of invoices, got %s", d.Next())
	}
}

func decodeInvoiceList(list jx.Raw) ([]Invoice, error) {
	invoices := make([]Invoice, 0)
	if len(list) == 0 {
		return invoices, nil
	}

	index := 0
	err := jx.DecodeBytes(list).Arr(func(d *jx.Decoder) error {
		if t := d.Next(); t != jx.Object {
			return errors.Errorf("invoice %d must be an object, got %s", index, t)
		}
		inv, err := decodeInvoice(d)
		if err != nil {
			return errors.Wrapf(err, "invoice %d", index)
		}
		invoices = append(invoices, inv)
		index++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
