// Package session implements the cookie-backed login, refresh and logout
// flows. The refresh token cookie is the only session state.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/apperr"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/obs"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/oidc"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/token"
)

// Verifier validates access tokens.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// Provider is the identity provider's auth API.
type Provider interface {
	AuthorizeURL(provider string) (string, error)
	RefreshToken(ctx context.Context, refreshToken string) (*oidc.TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
}

type Config struct {
	OAuthProvider      string
	AccessTTL          time.Duration
	AccessTTLFromToken bool
	RefreshTTL         time.Duration
	Clock              clockwork.Clock
}

// Manager runs the session flows.
type Manager struct {
	verifier Verifier
	provider Provider
	cookies  *CookieCodec
	cfg      Config
	log      *zap.SugaredLogger
}

func NewManager(verifier Verifier, provider Provider, cookies *CookieCodec, cfg Config, log *zap.SugaredLogger) *Manager {
	if cfg.OAuthProvider == "" {
		cfg.OAuthProvider = "google"
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{verifier: verifier, provider: provider, cookies: cookies, cfg: cfg, log: log}
}

// InitiateLogin returns the provider URL the browser should be sent to.
func (m *Manager) InitiateLogin() (*LoginResponse, error) {
	u, err := m.provider.AuthorizeURL(m.cfg.OAuthProvider)
	if err != nil {
		return nil, apperr.OAuth("Failed to initiate login: "+err.Error(), err)
	}
	return &LoginResponse{Success: true, RedirectURL: u}, nil
}

// CreateSession verifies the access token and writes both cookies. Nothing
// is written unless verification succeeds.
func (m *Manager) CreateSession(ctx context.Context, w http.ResponseWriter, req SessionRequest) (*SessionResponse, error) {
	if req.AccessToken == "" || req.RefreshToken == "" {
		obs.SessionsCreated.WithLabelValues("invalid_request").Inc()
		return nil, apperr.Session("access_token and refresh_token are required")
	}

	claims, err := m.verifier.Verify(ctx, req.AccessToken)
	if err != nil {
		obs.SessionsCreated.WithLabelValues(obs.ResultError).Inc()
		obs.WithTrace(ctx, m.log).Debugw("session token rejected", "error", err)
		if isVerificationFailure(err) {
			return nil, apperr.AuthWrap("Invalid access token", err)
		}
		return nil, apperr.AuthWrap("Failed to create session: "+token.Message(err), err)
	}

	m.cookies.SetSession(w, req.AccessToken, req.RefreshToken, m.accessTTL(claims), m.cfg.RefreshTTL)
	obs.SessionsCreated.WithLabelValues(obs.ResultOK).Inc()
	return &SessionResponse{Success: true, Message: "Session created successfully"}, nil
}

func (m *Manager) accessTTL(claims *token.Claims) time.Duration {
	if !m.cfg.AccessTTLFromToken || claims.ExpiresAt == nil {
		return m.cfg.AccessTTL
	}
	if d := claims.ExpiresAt.Sub(m.cfg.Clock.Now()); d >= time.Second {
		return d.Truncate(time.Second)
	}
	return m.cfg.AccessTTL
}

// Refresh exchanges the refresh cookie for a new access token. The refresh
// cookie is rewritten only when the provider rotates it.
func (m *Manager) Refresh(ctx context.Context, w http.ResponseWriter, r *http.Request) (*RefreshTokenResponse, error) {
	rt := m.cookies.RefreshToken(r)
	if rt == "" {
		obs.SessionRefreshes.WithLabelValues("no_cookie").Inc()
		return nil, apperr.Auth("No refresh token found")
	}

	tr, err := m.provider.RefreshToken(ctx, rt)
	if err != nil {
		log := obs.WithTrace(ctx, m.log)
		var unreachable *oidc.UnreachableError
		if errors.As(err, &unreachable) {
			obs.SessionRefreshes.WithLabelValues("unreachable").Inc()
			log.Warnw("token refresh network error", "error", err)
			return nil, apperr.AuthWrap("Network error during token refresh: "+unreachable.Err.Error(), err)
		}
		obs.SessionRefreshes.WithLabelValues("rejected").Inc()
		log.Debugw("token refresh rejected", "error", err)
		return nil, apperr.AuthWrap("Token refresh failed", err)
	}

	// A response without a usable expires_in gets the configured access TTL.
	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = int(m.cfg.AccessTTL / time.Second)
	}
	m.cookies.SetAccess(w, tr.AccessToken, time.Duration(expiresIn)*time.Second)
	if tr.Rotated() {
		m.cookies.SetRefresh(w, tr.RefreshToken, m.cfg.RefreshTTL)
	}
	obs.SessionRefreshes.WithLabelValues(obs.ResultOK).Inc()
	return &RefreshTokenResponse{AccessToken: tr.AccessToken, ExpiresIn: expiresIn}, nil
}

// Logout revokes the refresh token when one is present, then clears both
// cookies. It always succeeds; the revoke outcome is reported separately.
func (m *Manager) Logout(ctx context.Context, w http.ResponseWriter, r *http.Request) (*LogoutResponse, LogoutResult) {
	var res LogoutResult
	if rt := m.cookies.RefreshToken(r); rt != "" {
		res.Attempted = true
		res.Err = m.provider.Logout(ctx, rt)
		res.Revoked = res.Err == nil
	}

	m.cookies.ClearSession(w)

	log := obs.WithTrace(ctx, m.log)
	switch {
	case !res.Attempted:
		obs.LogoutRevocations.WithLabelValues(obs.ResultSkipped).Inc()
	case res.Revoked:
		obs.LogoutRevocations.WithLabelValues(obs.ResultOK).Inc()
	default:
		obs.LogoutRevocations.WithLabelValues(obs.ResultError).Inc()
		log.Warnw("refresh token revocation failed", "error", res.Err)
	}
	return &LogoutResponse{Success: true, Message: "Logged out successfully"}, res
}

func isVerificationFailure(err error) bool {
	return errors.Is(err, token.ErrInvalidToken) ||
		errors.Is(err, token.ErrExpiredToken) ||
		errors.Is(err, token.ErrKeyNotFound)
}
