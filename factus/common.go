package factus

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "factus")

var (
	// ErrAuthConfiguration missing credentials, the worker can't authenticate at all
	ErrAuthConfiguration = errors.New("factus auth configuration error")
	// ErrAuthResponse token endpoint answered without access_token
	ErrAuthResponse = errors.New("factus auth response error")
	// ErrNoActiveRange no usable numbering range
	ErrNoActiveRange = errors.New("factus active numbering range not found")
	// ErrTimeout marks a request that ran out of time
	ErrTimeout = errors.New("factus request timed out")
	// ErrUnauthorized marks a 401 answer
	ErrUnauthorized = errors.New("factus unauthorized")
)

// RequestError non-2xx answer from Factus
type RequestError struct {
	Op         string
	StatusCode int
	Body       string // truncated, for diagnostics
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("factus %s returns http status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is matches a 401 against ErrUnauthorized
func (e *RequestError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == 401
}

// TimeoutError transport-level timeout, the only failure the batch processor retries.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("factus %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// IsTimeout reports whether err is a submission timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// classifyTransportError separates timeouts from the other transport failures.
func classifyTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Op: op, Err: err}
	}
	return errors.Wrapf(err, "factus %s", op)
}

func truncate(body string, limit int) string {
	if len(body) <= limit {
		return body
	}
	return body[:limit] + "..."
}

type Environment int

const (
	Sandbox Environment = iota
	Prod
)

func (e Environment) BaseURL() string {
	switch e {
	case Prod:
		return "https://api.factus.com.co"
	case Sandbox:
		return "https://api-sandbox.factus.com.co"
	}
	panic("Invalid environment")
}

func (e Environment) Name() string {
	switch e {
	case Prod:
		return "prod"
	case Sandbox:
		return "sandbox"
	}
	panic("Invalid environment")
}

func (e *Environment) UnmarshalText(text []byte) error {
	val := strings.ToLower(strings.TrimSpace(string(text)))

	switch val {
	case "prod", "production":
		*e = Prod
	case "sandbox", "test", "":
		*e = Sandbox
	default:
		return fmt.Errorf("invalid FACTUS_ENV: %q (allowed: prod, sandbox)", val)
	}
	return nil
}
