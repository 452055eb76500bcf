package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 2*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("")
	assert.Error(t, err)

	_, err = NewClient("ftp://example.com")
	assert.Error(t, err)

	c, err := NewClient("http://api.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com", c.baseURL)
}

func TestDoSetsHeaders(t *testing.T) {
	var gotAuth, gotUA, gotRequestID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		gotRequestID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}, WithAPIKey("secret"))

	require.NoError(t, c.get(context.Background(), "/ping", nil))
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "stratlens-go-sdk/"+Version, gotUA)
	assert.NotEmpty(t, gotRequestID)
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok": true}`))
	})

	var resp struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, c.get(context.Background(), "/flaky", &resp))
	assert.True(t, resp.OK)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code": "GEN_001", "message": "no generation run",
		})
	})

	err := c.get(context.Background(), "/missing", nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "GEN_001", apiErr.Code)
	assert.Equal(t, "no generation run", apiErr.Message)
}

func TestDoGivesUpAfterRetryMax(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryMax(2))

	err := c.get(context.Background(), "/down", nil)
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.True(t, apiErr.IsServerError())
}

func TestDoHonorsContextCancellation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithRetryMax(5), WithRetryWait(time.Second, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.get(ctx, "/slow", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
