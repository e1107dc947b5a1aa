package batch

import (
	"context"

	"github.com/alapierre/go-factus-etl/etl/invoice"
	"github.com/alapierre/go-factus-etl/factus"
	"github.com/go-faster/errors"
)

const (
	ErrorTypeDecode            = "DecodeError"
	ErrorTypeAuthConfiguration = "AuthConfigurationError"
	ErrorTypeAuthResponse      = "AuthResponseError"
	ErrorTypeNoActiveRange     = "NoActiveRangeError"
	ErrorTypeTimeout           = "SubmissionTimeout"
	ErrorTypeHTTP              = "SubmissionHttpError"
	ErrorTypeCancelled         = "Cancelled"
	ErrorTypeProcessing        = "ProcessingError"
)

// ErrorType names the failure class of a batch error, used in dead-letter messages.
func ErrorType(err error) string {
	var reqErr *factus.RequestError
	switch {
	case errors.Is(err, invoice.ErrMalformedBatch):
		return ErrorTypeDecode
	case errors.Is(err, factus.ErrAuthConfiguration):
		return ErrorTypeAuthConfiguration
	case errors.Is(err, factus.ErrAuthResponse):
		return ErrorTypeAuthResponse
	case errors.Is(err, factus.ErrNoActiveRange):
		return ErrorTypeNoActiveRange
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	case factus.IsTimeout(err):
		return ErrorTypeTimeout
	case errors.As(err, &reqErr):
		return ErrorTypeHTTP
	default:
		return ErrorTypeProcessing
	}
}
