package jwks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/obs"
)

// ErrUpstreamUnavailable is returned when the key set cannot be retrieved.
var ErrUpstreamUnavailable = errors.New("jwks upstream unavailable")

// maxBody caps the size of a JWKS response.
const maxBody = 1 << 20

// Fetcher retrieves the raw key set.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPFetcher reads the key set from the provider's JWKS endpoint.
type HTTPFetcher struct {
	URL    string
	APIKey string
	Client *http.Client
}

func NewHTTPFetcher(url, apiKey string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = obs.NewHTTPClient(10 * time.Second)
	}
	return &HTTPFetcher{URL: url, APIKey: apiKey, Client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" {
		req.Header.Set("apikey", f.APIKey)
	}

	start := time.Now()
	resp, err := f.Client.Do(req)
	obs.ProviderLatency.WithLabelValues("jwks").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}
	return body, nil
}
