package factus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/alapierre/go-factus-etl/factus/model"
	"github.com/go-faster/errors"
	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
)

const (
	defaultTokenLifetime = 3600 * time.Second
	// treat the token as expired this much before its real expiry
	tokenSafetyMargin = 30 * time.Second
)

// Credentials for the OAuth password grant.
type Credentials struct {
	Email        string
	Password     string
	ClientID     string
	ClientSecret string
}

func (c Credentials) missing() []string {
	var m []string
	for _, f := range []struct{ name, value string }{
		{"email", c.Email},
		{"password", c.Password},
		{"client_id", c.ClientID},
		{"client_secret", c.ClientSecret},
	} {
		if f.value == "" {
			m = append(m, f.name)
		}
	}
	return m
}

// TokenProvider caches the access token for the whole process. Refreshes are
// serialized by mu, which is held across the token exchange.
type TokenProvider struct {
	http  *resty.Client
	creds Credentials
	clock clockwork.Clock

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenProvider(http *resty.Client, creds Credentials, clock clockwork.Clock) *TokenProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TokenProvider{
		http:  http,
		creds: creds,
		clock: clock,
	}
}

// Authenticate returns the cached token while it is valid; forceRefresh always
// performs a new credential exchange.
func (p *TokenProvider) Authenticate(ctx context.Context, forceRefresh bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !forceRefresh {
		if token, ok := p.currentIfValidLocked(); ok {
			return token, nil
		}
	}
	return p.exchangeLocked(ctx)
}

// Reauthenticate is the 401 path. The token is refreshed only if the cached one
// is still the stale token the caller got rejected with, so callers racing the
// same 401 end up with a single exchange.
func (p *TokenProvider) Reauthenticate(ctx context.Context, stale string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// double check after taking the lock
	if p.token != stale {
		if token, ok := p.currentIfValidLocked(); ok {
			logger.Debug("TokenProvider: token already refreshed by another caller")
			return token, nil
		}
	}
	return p.exchangeLocked(ctx)
}

func (p *TokenProvider) currentIfValidLocked() (string, bool) {
	if p.token == "" || p.expiresAt.IsZero() {
		return "", false
	}
	if !p.clock.Now().Before(p.expiresAt) {
		return "", false
	}
	return p.token, true
}

func (p *TokenProvider) exchangeLocked(ctx context.Context) (string, error) {
	if missing := p.creds.missing(); len(missing) > 0 {
		return "", errors.Wrapf(ErrAuthConfiguration, "missing credentials %s", strings.Join(missing, ", "))
	}

	logger.Debug("TokenProvider: performing credential exchange")

	res, err := p.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "password",
			"email":         p.creds.Email,
			"password":      p.creds.Password,
			"client_id":     p.creds.ClientID,
			"client_secret": p.creds.ClientSecret,
		}).
		SetResult(&model.TokenResponse{}).
		ForceContentType("application/json").
		Post("/oauth/token")
	if err != nil {
		return "", classifyTransportError("authenticate", err)
	}
	if res.IsError() {
		return "", &RequestError{Op: "authenticate", StatusCode: res.StatusCode(), Body: truncate(res.String(), 512)}
	}

	tr, _ := res.Result().(*model.TokenResponse)
	if tr == nil || tr.AccessToken == "" {
		return "", errors.Wrap(ErrAuthResponse, "access_token not found in response")
	}

	lifetime := defaultTokenLifetime
	if tr.ExpiresIn != nil {
		lifetime = time.Duration(*tr.ExpiresIn) * time.Second
	}
	validFor := lifetime - tokenSafetyMargin
	if validFor < 0 {
		validFor = 0
	}

	p.token = tr.AccessToken
	p.expiresAt = p.clock.Now().Add(validFor)
	logger.WithField("expires_at", p.expiresAt.UTC()).Debug("TokenProvider: token cached")
	return p.token, nil
}
