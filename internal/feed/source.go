package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aislen404/mapabalizasv16/internal/metrics"
	"github.com/go-resty/resty/v2"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// ErrSourceNotConfigured is returned by a source missing its endpoint or credentials
var ErrSourceNotConfigured = errors.New("feed source not configured")

// Source fetches one raw payload from upstream
type Source interface {
	Name() string
	Kind() SourceKind
	Fetch(ctx context.Context) ([]byte, error)
}

// ClientOptions HTTP client settings shared by the sources
type ClientOptions struct {
	Timeout    time.Duration
	RetryCount int
}

func newRestyClient(opts ClientOptions) *resty.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("User-Agent", "mapabalizasv16")
}

// Datex2Source reads the public DATEX2 situation publication (no auth)
type Datex2Source struct {
	client *resty.Client
	url    string
}

// NewDatex2Source creates a DATEX2 source for url
func NewDatex2Source(url string, opts ClientOptions) *Datex2Source {
	return &Datex2Source{client: newRestyClient(opts), url: url}
}

func (s *Datex2Source) Name() string     { return "datex2" }
func (s *Datex2Source) Kind() SourceKind { return KindDatex2 }

// Fetch downloads the XML document
func (s *Datex2Source) Fetch(ctx context.Context) ([]byte, error) {
	if s.url == "" {
		return nil, fmt.Errorf("%w: DATEX2 url is empty", ErrSourceNotConfigured)
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/xml, text/xml, */*").
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("DATEX2 feed request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("DATEX2 feed error: %s", resp.Status())
	}
	return resp.Body(), nil
}

// DGTSource reads the DGT 3.0 REST API with a bearer token
type DGTSource struct {
	client *resty.Client
	url    string
	token  string
}

// NewDGTSource creates a REST source; Fetch fails with ErrSourceNotConfigured
// until both url and token are set
func NewDGTSource(url, token string, opts ClientOptions) *DGTSource {
	client := newRestyClient(opts).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &DGTSource{client: client, url: url, token: token}
}

func (s *DGTSource) Name() string     { return "dgt3" }
func (s *DGTSource) Kind() SourceKind { return KindREST }

// Fetch downloads the JSON document
func (s *DGTSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.url == "" || s.token == "" {
		return nil, fmt.Errorf("%w: DGT_API_URL and DGT_API_TOKEN are required", ErrSourceNotConfigured)
	}
	resp, err := s.client.R().SetContext(ctx).Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("DGT 3.0 API request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("DGT 3.0 API error: %s", resp.Status())
	}
	return resp.Body(), nil
}

// BreakerSource guards a Source with a circuit breaker. While open, Fetch
// fails immediately without touching upstream.
type BreakerSource struct {
	inner Source
	cb    *gobreaker.CircuitBreaker[[]byte]
}

// NewBreakerSource trips after maxFailures consecutive failures and probes again after openFor
func NewBreakerSource(inner Source, maxFailures uint32, openFor time.Duration, logger *zap.Logger) *BreakerSource {
	name := "feed-" + inner.Name()
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// misconfiguration is not an upstream fault
			return err == nil || errors.Is(err, ErrSourceNotConfigured) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("feed circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})
	return &BreakerSource{inner: inner, cb: cb}
}

func (s *BreakerSource) Name() string     { return s.inner.Name() }
func (s *BreakerSource) Kind() SourceKind { return s.inner.Kind() }

// Fetch runs the inner fetch through the breaker and records metrics
func (s *BreakerSource) Fetch(ctx context.Context) ([]byte, error) {
	started := time.Now()
	body, err := s.cb.Execute(func() ([]byte, error) {
		return s.inner.Fetch(ctx)
	})
	switch {
	case err == nil:
		metrics.ObserveFetch(s.Name(), "success", started)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ObserveFetch(s.Name(), "rejected", started)
	default:
		metrics.ObserveFetch(s.Name(), "failure", started)
	}
	return body, err
}

// State exposes the breaker state
func (s *BreakerSource) State() gobreaker.State {
	return s.cb.State()
}

func stateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
