package dynamic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/stroymart/catalog-search/pkg/httpclient"
)

// Attributes is the per-product dynamic payload (stock, pricing, delivery).
type Attributes map[string]any

// Provider supplies per-product dynamic data keyed by product id. The search
// service only depends on this contract; the upstream implementation is
// opaque.
type Provider interface {
	Fetch(ctx context.Context, productIDs []int64, cityID int64, userID string) (map[int64]Attributes, error)
}

// fetchTimeout bounds one enrichment round trip.
const fetchTimeout = 3 * time.Second

// HTTPProvider fetches dynamic data from an internal HTTP endpoint behind a
// circuit breaker.
type HTTPProvider struct {
	client *httpclient.CircuitBreakerClient
	url    string
	logger *slog.Logger
}

// NewHTTPProvider creates a provider posting to the given URL.
func NewHTTPProvider(url string, logger *slog.Logger) *HTTPProvider {
	base := httpclient.New(httpclient.Config{
		Timeout:         fetchTimeout,
		MaxRetries:      1,
		RetryWaitMin:    100 * time.Millisecond,
		RetryWaitMax:    500 * time.Millisecond,
		MaxConnsPerHost: 50,
	})
	cb := httpclient.NewCircuitBreakerClient(base, httpclient.DefaultCircuitBreakerConfig("dynamic-data"), logger)
	return &HTTPProvider{client: cb, url: url, logger: logger}
}

type fetchRequest struct {
	ProductIDs []int64 `json:"product_ids"`
	CityID     int64   `json:"city_id"`
	UserID     string  `json:"user_id,omitempty"`
}

// Fetch posts the id list and decodes the per-id attribute map.
func (p *HTTPProvider) Fetch(ctx context.Context, productIDs []int64, cityID int64, userID string) (map[int64]Attributes, error) {
	if len(productIDs) == 0 {
		return map[int64]Attributes{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	body, err := json.Marshal(fetchRequest{ProductIDs: productIDs, CityID: cityID, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("dynamic data: marshal request: %w", err)
	}

	resp, err := p.client.Post(ctx, p.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("dynamic data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != 200 {
		return nil, httpclient.ParseResponseError(resp, "dynamic-data")
	}

	var raw map[string]Attributes
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("dynamic data: decode response: %w", err)
	}

	out := make(map[int64]Attributes, len(raw))
	for key, attrs := range raw {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			p.logger.Warn("dynamic data: non-numeric product key", slog.String("key", key))
			continue
		}
		out[id] = attrs
	}
	return out, nil
}

// Noop is a Provider that returns no attributes; used when no dynamic data
// endpoint is configured.
type Noop struct{}

// Fetch returns an empty attribute map.
func (Noop) Fetch(_ context.Context, _ []int64, _ int64, _ string) (map[int64]Attributes, error) {
	return map[int64]Attributes{}, nil
}
