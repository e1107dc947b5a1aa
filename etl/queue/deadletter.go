package queue

import (
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
)

// DeadLetter is the diagnostic envelope written for a message whose batch failed.
type DeadLetter struct {
	// BatchID is empty when the message did not yield one, encoded as null.
	BatchID      string
	ErrorType    string
	ErrorMessage string
	Topic        string
	Partition    int
	Offset       int64
	Timestamp    time.Time
	RawValue     []byte
}

func newDeadLetter(msg kafka.Message, batchID, errorType string, err error) DeadLetter {
	return DeadLetter{
		BatchID:      batchID,
		ErrorType:    errorType,
		ErrorMessage: err.Error(),
		Topic:        msg.Topic,
		Partition:    msg.Partition,
		Offset:       msg.Offset,
		Timestamp:    msg.Time,
		RawValue:     msg.Value,
	}
}

// Encode renders the dead letter as JSON. The timestamp is in Unix milliseconds
// and raw_value carries the original bytes with invalid UTF-8 replaced.
func (d DeadLetter) Encode() []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("batch_id")
	if d.BatchID == "" {
		e.Null()
	} else {
		e.Str(d.BatchID)
	}
	e.FieldStart("error_type")
	e.Str(d.ErrorType)
	e.FieldStart("error_message")
	e.Str(d.ErrorMessage)

	e.FieldStart("metadata")
	e.ObjStart()
	e.FieldStart("topic")
	e.Str(d.Topic)
	e.FieldStart("partition")
	e.Int(d.Partition)
	e.FieldStart("offset")
	e.Int64(d.Offset)
	e.FieldStart("timestamp")
	if d.Timestamp.IsZero() {
		e.Null()
	} else {
		e.Int64(d.Timestamp.UnixMilli())
	}
	e.ObjEnd()

	e.FieldStart("raw_value")
	e.Str(strings.ToValidUTF8(string(d.RawValue), "\uFFFD"))

	e.ObjEnd()
	return e.Bytes()
}
