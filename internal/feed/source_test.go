package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

func TestDatex2Source_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "application/xml")
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte("<payload/>"))
	}))
	defer srv.Close()

	body, err := NewDatex2Source(srv.URL, ClientOptions{Timeout: time.Second}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<payload/>", string(body))
}

func TestDatex2Source_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewDatex2Source(srv.URL, ClientOptions{Timeout: time.Second}).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDGTSource_BearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	body, err := NewDGTSource(srv.URL, "tok", ClientOptions{Timeout: time.Second}).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
}

func TestDGTSource_NotConfigured(t *testing.T) {
	_, err := NewDGTSource("", "tok", ClientOptions{}).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSourceNotConfigured)

	_, err = NewDGTSource("http://example.invalid", "", ClientOptions{}).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrSourceNotConfigured)
}

func TestBreakerSource_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &fakeSource{kind: KindDatex2, err: errors.New("upstream down")}
	src := NewBreakerSource(inner, 2, time.Minute, zap.NewNop())

	_, err := src.Fetch(context.Background())
	assert.Error(t, err)
	_, err = src.Fetch(context.Background())
	assert.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, src.State())

	_, err = src.Fetch(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "open breaker does not call upstream")
}

func TestBreakerSource_IgnoresMisconfiguration(t *testing.T) {
	inner := &fakeSource{kind: KindREST, err: ErrSourceNotConfigured}
	src := NewBreakerSource(inner, 1, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := src.Fetch(context.Background())
		assert.ErrorIs(t, err, ErrSourceNotConfigured)
	}
	assert.Equal(t, gobreaker.StateClosed, src.State())
	assert.Equal(t, 3, inner.calls)
}
