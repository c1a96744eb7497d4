// Package oidc talks to the identity provider's auth endpoints.
package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/obs"
)

var (
	// ErrRefreshRejected means the provider answered the refresh grant with a
	// non-200 status or an unusable body.
	ErrRefreshRejected = errors.New("token refresh rejected")
	// ErrProviderUnreachable means no response was received.
	ErrProviderUnreachable = errors.New("identity provider unreachable")
)

// UnreachableError carries the transport failure behind ErrProviderUnreachable.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return ErrProviderUnreachable.Error() + ": " + e.Err.Error()
}

func (e *UnreachableError) Unwrap() error { return e.Err }

func (e *UnreachableError) Is(target error) bool {
	return target == ErrProviderUnreachable
}

type Config struct {
	BaseURL        string // e.g. https://<project>.supabase.co
	AnonKey        string
	FrontendURL    string
	CallbackPath   string
	RefreshTimeout time.Duration
	RevokeTimeout  time.Duration
}

// Client calls the provider's authorize, token and logout endpoints.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.SugaredLogger
}

func NewClient(cfg Config, httpClient *http.Client, log *zap.SugaredLogger) *Client {
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/auth/callback"
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}
	if cfg.RevokeTimeout <= 0 {
		cfg.RevokeTimeout = 5 * time.Second
	}
	if httpClient == nil {
		httpClient = obs.NewHTTPClient(cfg.RefreshTimeout)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{cfg: cfg, http: httpClient, log: log}
}

// AuthorizeURL builds the provider login URL. The provider keeps the OAuth
// state and PKCE verifier, so no server-side state is created.
func (c *Client) AuthorizeURL(provider string) (string, error) {
	u, err := url.Parse(c.cfg.BaseURL + "/auth/v1/authorize")
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid provider url %q", c.cfg.BaseURL)
	}
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", c.cfg.FrontendURL+c.cfg.CallbackPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RefreshTimeout)
	defer cancel()

	payload, err := json.Marshal(refreshGrant{GrantType: "refresh_token", RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/v1/token", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AnonKey)
	req.Header.Set("apikey", c.cfg.AnonKey)

	resp, err := c.do(req, "token")
	if err != nil {
		return nil, &UnreachableError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
	}
	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrRefreshRejected, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: no access_token in response", ErrRefreshRejected)
	}
	return &tr, nil
}

// Logout revokes the session behind refreshToken.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RevokeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/auth/v1/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("apikey", c.cfg.AnonKey)

	resp, err := c.do(req, "logout")
	if err != nil {
		return &UnreachableError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("logout: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	obs.ProviderLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.log.Debugw("provider request failed", "endpoint", endpoint, "error", err)
		return nil, err
	}
	c.log.Debugw("provider request", "endpoint", endpoint, "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}
