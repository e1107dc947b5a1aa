package factus

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alapierre/go-factus-etl/factus/model"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
)

const DefaultTimeout = 10 * time.Second

type Config struct {
	BaseURL     string
	Credentials Credentials
	Timeout     time.Duration
	// HTTPClient lets tests swap the transport; nil means a fresh one.
	HTTPClient *http.Client
	Clock      clockwork.Clock
	// Trace dumps requests and responses to the log.
	Trace bool
}

// Client talks to the Factus API. It never retries: retry policy belongs to the caller.
type Client struct {
	http   *resty.Client
	tokens *TokenProvider
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("factus base URL is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(base).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetDebug(cfg.Trace).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   rc,
		tokens: NewTokenProvider(rc, cfg.Credentials, cfg.Clock),
	}, nil
}

// Tokens exposes the provider so callers can force a refresh.
func (c *Client) Tokens() *TokenProvider {
	return c.tokens
}

// ActiveNumberingRange returns the id of the first active numbering range. A 401
// triggers one forced re-authentication and exactly one more listing.
func (c *Client) ActiveNumberingRange(ctx context.Context) (int, error) {
	token, err := c.tokens.Authenticate(ctx, false)
	if err != nil {
		return 0, err
	}

	res, err := c.requestNumberingRanges(ctx, token)
	if err != nil {
		return 0, err
	}

	if res.StatusCode() == http.StatusUnauthorized {
		logger.Info("numbering ranges returned 401, re-authenticating")
		token, err = c.tokens.Reauthenticate(ctx, token)
		if err != nil {
			return 0, err
		}
		res, err = c.requestNumberingRanges(ctx, token)
		if err != nil {
			return 0, err
		}
	}

	if res.IsError() {
		return 0, &RequestError{Op: "numbering-ranges", StatusCode: res.StatusCode(), Body: truncate(res.String(), 512)}
	}

	ranges, err := parseNumberingRanges(res.Body())
	if err != nil {
		return 0, err
	}

	for _, r := range ranges {
		if !r.Active {
			continue
		}
		if r.ID == nil {
			break
		}
		return *r.ID, nil
	}
	return 0, errors.Wrapf(ErrNoActiveRange, "among %d range(s)", len(ranges))
}

func (c *Client) requestNumberingRanges(ctx context.Context, token string) (*resty.Response, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get("/v1/numbering-ranges")
	if err != nil {
		return nil, classifyTransportError("numbering-ranges", err)
	}
	return res, nil
}

// CreateInvoice submits one invoice. Timeouts come back as *TimeoutError, HTTP
// status failures as *RequestError.
func (c *Client) CreateInvoice(ctx context.Context, invoice Invoice, numberingRangeID int) (*model.BillResult, error) {
	token, err := c.tokens.Authenticate(ctx, false)
	if err != nil {
		return nil, err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(BuildBillRequest(invoice, numberingRangeID)).
		SetResult(&model.BillResponse{}).
		ForceContentType("application/json").
		Post("/v1/bills/validate")
	if err != nil {
		return nil, classifyTransportError("create-invoice", err)
	}

	if res.IsError() {
		if res.StatusCode() == http.StatusUnauthorized {
			// next caller gets a fresh token, this attempt stays failed
			if _, rerr := c.tokens.Reauthenticate(ctx, token); rerr != nil {
				logger.WithError(rerr).Warn("re-authentication after 401 failed")
			}
		}
		return nil, &RequestError{Op: "create-invoice", StatusCode: res.StatusCode(), Body: truncate(res.String(), 512)}
	}

	br, _ := res.Result().(*model.BillResponse)
	if br == nil {
		return nil, errors.New("factus create-invoice: empty response")
	}
	return &br.Data, nil
}

// parseNumberingRanges accepts {"data": [...]} as well as a bare list.
func parseNumberingRanges(body []byte) ([]model.NumberingRange, error) {
	d := jx.DecodeBytes(body)

	var list jx.Raw
	switch d.Next() {
	case jx.Array:
		raw, err := d.Raw()
		if err != nil {
			return nil, errors.Wrap(err, "decode numbering ranges")
		}
		list = raw
	case jx.Object:
		found := false
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			if key != "data" {
				return d.Skip()
			}
			found = true
			raw, err := d.Raw()
			list = raw
			return err
		}); err != nil {
			return nil, errors.Wrap(err, "decode numbering ranges")
		}
		if !found {
			list = jx.Raw(body)
		}
	default:
		return nil, errors.Wrapf(ErrNoActiveRange, "invalid response: expected list, got %s", d.Next())
	}

	ld := jx.DecodeBytes(list)
	if t := ld.Next(); t != jx.Array {
		return nil, errors.Wrapf(ErrNoActiveRange, "invalid response: expected list, got %s", t)
	}

	var ranges []model.NumberingRange
	err := ld.Arr(func(d *jx.Decoder) error {
		if d.Next() != jx.Object {
			// entries other than objects are ignored
			return d.Skip()
		}
		var (
			r         model.NumberingRange
			isActive  *bool
			altActive *bool
		)
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			switch key {
			case "id":
				id, err := decodeInt(d)
				if err != nil {
					return err
				}
				r.ID = id
			case "is_active":
				v, err := decodeTruthy(d)
				if err != nil {
					return err
				}
				isActive = v
			case "active":
				v, err := decodeTruthy(d)
				if err != nil {
					return err
				}
				altActive = v
			default:
				return d.Skip()
			}
			return nil
		}); err != nil {
			return err
		}
		if isActive == nil {
			isActive = altActive
		}
		r.Active = isActive != nil && *isActive
		ranges = append(ranges, r)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode numbering ranges")
	}
	return ranges, nil
}

func decodeInt(d *jx.Decoder) (*int, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		v, err := n.Int64()
		if err != nil {
			return nil, err
		}
		i := int(v)
		return &i, nil
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, nil
		}
		return &v, nil
	default:
		return nil, d.Skip()
	}
}

// decodeTruthy returns nil for null so the caller can fall back to the other field name.
// Empty arrays and objects are false.
func decodeTruthy(d *jx.Decoder) (*bool, error) {
	var v bool
	switch d.Next() {
	case jx.Null:
		return nil, d.Null()
	case jx.Bool:
		b, err := d.Bool()
		if err != nil {
			return nil, err
		}
		v = b
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		f, err := n.Float64()
		if err != nil {
			return nil, err
		}
		v = f != 0
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return nil, err
		}
		b, perr := strconv.ParseBool(strings.TrimSpace(s))
		v = perr == nil && b
	case jx.Array:
		n := 0
		if err := d.Arr(func(d *jx.Decoder) error {
			n++
			return d.Skip()
		}); err != nil {
			return nil, err
		}
		v = n > 0
	case jx.Object:
		n := 0
		if err := d.Obj(func(d *jx.Decoder, _ string) error {
			n++
			return d.Skip()
		}); err != nil {
			return nil, err
		}
		v = n > 0
	default:
		if err := d.Skip(); err != nil {
			return nil, err
		}
		v = true
	}
	return &v, nil
}
