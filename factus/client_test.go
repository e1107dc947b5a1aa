package factus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alapierre/go-factus-etl/factus/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiCalls struct {
	token  int32
	ranges int32
	bills  int32
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestActiveNumberingRange_ReusesTokenUntilExpiration(t *testing.T) {
	var calls apiCalls
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			atomic.AddInt32(&calls.token, 1)
			writeJSON(w, http.StatusOK, `{"access_token":"token-1","expires_in":3600}`)
		case "/v1/numbering-ranges":
			atomic.AddInt32(&calls.ranges, 1)
			writeJSON(w, http.StatusOK, `{"data":[{"id":9,"is_active":true}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, testCredentials, nil)
	ctx := context.Background()

	first, err := c.ActiveNumberingRange(ctx)
	require.NoError(t, err)
	second, err := c.ActiveNumberingRange(ctx)
	require.NoError(t, err)

	assert.Equal(t, 9, first)
	assert.Equal(t, 9, second)
	assert.Equal(t, int32(1), calls.token)
	assert.Equal(t, int32(2), calls.ranges)
}

func TestActiveNumberingRange_ReauthenticatesOn401(t *testing.T) {
	var calls apiCalls
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			n := atomic.AddInt32(&calls.token, 1)
			if n == 1 {
				writeJSON(w, http.StatusOK, `{"access_token":"token-1","expires_in":3600}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"access_token":"token-2","expires_in":3600}`)
		case "/v1/numbering-ranges":
			atomic.AddInt32(&calls.ranges, 1)
			if r.Header.Get("Authorization") == "Bearer token-1" {
				writeJSON(w, http.StatusUnauthorized, `{"message":"Unauthorized"}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"data":[{"id":11,"is_active":true}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, testCredentials, nil)

	id, err := c.ActiveNumberingRange(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 11, id)
	assert.Equal(t, int32(2), calls.token)
	assert.Equal(t, int32(2), calls.ranges)
}

func TestActiveNumberingRange_RetriesListingOnlyOnce(t *testing.T) {
	var calls apiCalls
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			atomic.AddInt32(&calls.token, 1)
			writeJSON(w, http.StatusOK, `{"access_token":"token","expires_in":3600}`)
		case "/v1/numbering-ranges":
			atomic.AddInt32(&calls.ranges, 1)
			writeJSON(w, http.StatusUnauthorized, `{"message":"Unauthorized"}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, testCredentials, nil)

	_, err := c.ActiveNumberingRange(context.Background())

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(2), calls.token)
	assert.Equal(t, int32(2), calls.ranges)
}

func TestActiveNumberingRange_Selection(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr error
	}{
		{name: "first active wins", body: `{"data":[{"id":1,"is_active":false},{"id":2,"is_active":true},{"id":3,"is_active":true}]}`, want: 2},
		{name: "active alias", body: `{"data":[{"id":4,"active":true}]}`, want: 4},
		{name: "null is_active falls back to active", body: `{"data":[{"id":5,"is_active":null,"active":1}]}`, want: 5},
		{name: "bare list", body: `[{"id":"6","is_active":true}]`, want: 6},
		{name: "non object entries skipped", body: `{"data":["x",7,{"id":8,"is_active":true}]}`, want: 8},
		{name: "empty containers are inactive", body: `{"data":[{"id":1,"is_active":[]},{"id":2,"is_active":{}},{"id":3,"is_active":{"on":1}}]}`, want: 3},
		{name: "empty string is inactive", body: `{"data":[{"id":1,"is_active":""},{"id":2,"active":[0]}]}`, want: 2},
		{name: "none active", body: `{"data":[{"id":1,"is_active":false}]}`, wantErr: ErrNoActiveRange},
		{name: "active without id", body: `{"data":[{"is_active":true},{"id":2,"is_active":true}]}`, wantErr: ErrNoActiveRange},
		{name: "data not a list", body: `{"data":{"id":1}}`, wantErr: ErrNoActiveRange},
		{name: "object without data", body: `{"id":1,"is_active":true}`, wantErr: ErrNoActiveRange},
		{name: "scalar body", body: `"nope"`, wantErr: ErrNoActiveRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/oauth/token" {
					writeJSON(w, http.StatusOK, `{"access_token":"token","expires_in":3600}`)
					return
				}
				writeJSON(w, http.StatusOK, tt.body)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL, testCredentials, nil)
			id, err := c.ActiveNumberingRange(context.Background())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCreateInvoice_Success(t *testing.T) {
	var got model.BillRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/token":
			writeJSON(w, http.StatusOK, `{"access_token":"token","expires_in":3600}`)
		case "/v1/bills/validate":
			assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeJSON(w, http.StatusCreated, `{"data":{"id":1001,"qr":"q","pdf":"p"}}`)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, testCredentials, nil)
	issued := time.Date(2026, 2, 20, 15, 0, 0, 0, time.UTC)

	res, err := c.CreateInvoice(context.Background(), Invoice{
		BatchID:    "b1",
		ExternalID: "INV-1",
		IssuedAt:   &issued,
		Total:      100,
	}, 9)
	require.NoError(t, err)

	assert.Equal(t, model.FlexibleID("1001"), res.ID)
	assert.Equal(t, "q", res.QR)
	assert.Equal(t, "p", res.PDF)
	assert.Equal(t, 9, got.NumberingRangeID)
	assert.Equal(t, "INV-1", got.ReferenceCode)
	assert.Equal(t, "UNKNOWN", got.Customer.Identification)
	require.NotNil(t, got.IssueDate)
	assert.Equal(t, "2026-02-20", *got.IssueDate)
}

func TestCreateInvoice_HTTPErrorIsNotTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			writeJSON(w, http.StatusOK, `{"access_token":"token","expires_in":3600}`)
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, `{"message":"reference_code duplicated"}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, testCredentials, nil)
	_, err := c.CreateInvoice(context.Background(), Invoice{ExternalID: "INV-1", Total: 1}, 1)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusUnprocessableEntity, reqErr.StatusCode)
	assert.Contains(t, err.Error(), "reference_code duplicated")
	assert.False(t, IsTimeout(err))
}

func TestCreateInvoice_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			writeJSON(w, http.StatusOK, `{"access_token":"token","expires_in":3600}`)
			return
		}
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, Credentials: testCredentials, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.CreateInvoice(context.Background(), Invoice{ExternalID: "INV-1", Total: 1}, 1)

	require.Error(t, err)
	assert.True(t, IsTimeout(err), "expected timeout, got %v", err)
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "  "})
	assert.Error(t, err)
}
