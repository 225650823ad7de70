// Package geocoding resolves free-form addresses to coordinates.
package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"realreview/internal/geocoding/metrics"
)

const (
	providerGoogle = "google"
	geocodePath    = "/maps/api/geocode/json"
	DefaultTimeout = 5 * time.Second
)

// Location is a resolved address.
type Location struct {
	FormattedAddress string
	Latitude         float64
	Longitude        float64
}

// Client calls the Google Geocoding JSON API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
	tracer     trace.Tracer
	metrics    *metrics.Metrics
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its Timeout is left untouched.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: DefaultTimeout,
		tracer:  otel.Tracer("realreview/internal/geocoding"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Resolve looks up address and returns the first match.
func (c *Client) Resolve(ctx context.Context, address string) (*Location, error) {
	ctx, span := c.tracer.Start(ctx, "geocoding.Resolve",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("geocoding.provider", providerGoogle)),
	)
	defer span.End()

	start := time.Now()
	loc, err := c.resolve(ctx, address)
	outcome := "ok"
	if err != nil {
		outcome = string(CategoryOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("geocoding.outcome", outcome))
	if c.metrics != nil {
		c.metrics.ObserveResolve(outcome, time.Since(start))
	}
	return loc, err
}

func (c *Client) resolve(ctx context.Context, address string) (*Location, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, NewProviderError(ErrorNotFound, providerGoogle, "address is empty", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+geocodePath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, NewProviderError(ErrorBadData, providerGoogle, "failed to build request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, NewProviderError(ErrorTimeout, providerGoogle, "request timed out", err)
		}
		return nil, NewProviderError(ErrorProviderOutage, providerGoogle, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, NewProviderError(ErrorProviderOutage, providerGoogle,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	var body geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, NewProviderError(ErrorBadData, providerGoogle, "failed to decode response", err)
	}
	return body.location()
}

func (r *geocodeResponse) location() (*Location, error) {
	switch r.Status {
	case "OK":
	case "ZERO_RESULTS", "INVALID_REQUEST":
		return nil, NewProviderError(ErrorNotFound, providerGoogle, "address not recognised", nil)
	case "REQUEST_DENIED":
		return nil, NewProviderError(ErrorAuthentication, providerGoogle, r.ErrorMessage, nil)
	case "OVER_QUERY_LIMIT", "OVER_DAILY_LIMIT":
		return nil, NewProviderError(ErrorRateLimited, providerGoogle, r.ErrorMessage, nil)
	default:
		return nil, NewProviderError(ErrorProviderOutage, providerGoogle, "status "+r.Status, nil)
	}
	if len(r.Results) == 0 {
		return nil, NewProviderError(ErrorNotFound, providerGoogle, "address not recognised", nil)
	}
	first := r.Results[0]
	return &Location{
		FormattedAddress: first.FormattedAddress,
		Latitude:         first.Geometry.Location.Lat,
		Longitude:        first.Geometry.Location.Lng,
	}, nil
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
