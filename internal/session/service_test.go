package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/apperr"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/jwks"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/oidc"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/token"
)

type fakeVerifier struct {
	claims *token.Claims
	err    error
	calls  int
}

func (v *fakeVerifier) Verify(context.Context, string) (*token.Claims, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	if v.claims == nil {
		return &token.Claims{}, nil
	}
	return v.claims, nil
}

type fakeProvider struct {
	authorizeErr error
	refresh      *oidc.TokenResponse
	refreshErr   error
	logoutErr    error

	refreshCalls int
	logoutCalls  int
	lastToken    string
}

func (p *fakeProvider) AuthorizeURL(provider string) (string, error) {
	if p.authorizeErr != nil {
		return "", p.authorizeErr
	}
	return "https://project.supabase.co/auth/v1/authorize?provider=" + provider, nil
}

func (p *fakeProvider) RefreshToken(_ context.Context, rt string) (*oidc.TokenResponse, error) {
	p.refreshCalls++
	p.lastToken = rt
	return p.refresh, p.refreshErr
}

func (p *fakeProvider) Logout(_ context.Context, rt string) error {
	p.logoutCalls++
	p.lastToken = rt
	return p.logoutErr
}

func newManager(v Verifier, p Provider, cfg Config) *Manager {
	codec := NewCookieCodec(NewCookiePolicy("localhost", false, true, "lax"))
	return NewManager(v, p, codec, cfg, nil)
}

func withRefreshCookie(r *http.Request, value string) *http.Request {
	r.AddCookie(&http.Cookie{Name: RefreshCookie, Value: value})
	return r
}

func TestInitiateLogin(t *testing.T) {
	m := newManager(&fakeVerifier{}, &fakeProvider{}, Config{})
	resp, err := m.InitiateLogin()
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.RedirectURL, "provider=google")

	m = newManager(&fakeVerifier{}, &fakeProvider{authorizeErr: errors.New("bad url")}, Config{})
	_, err = m.InitiateLogin()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrOAuth)
	assert.Equal(t, "Failed to initiate login: bad url", err.Error())
}

func TestCreateSessionSetsCookies(t *testing.T) {
	v := &fakeVerifier{}
	m := newManager(v, &fakeProvider{}, Config{AccessTTL: time.Hour, RefreshTTL: 7 * 24 * time.Hour})
	rr := httptest.NewRecorder()

	resp, err := m.CreateSession(context.Background(), rr, SessionRequest{AccessToken: "at", RefreshToken: "rt"})
	require.NoError(t, err)
	assert.Equal(t, &SessionResponse{Success: true, Message: "Session created successfully"}, resp)

	got := cookiesByName(rr)
	assert.Equal(t, 3600, got[AccessCookie].MaxAge)
	assert.Equal(t, "at", got[AccessCookie].Value)
	assert.Equal(t, 604800, got[RefreshCookie].MaxAge)
	assert.Equal(t, "rt", got[RefreshCookie].Value)
}

func TestCreateSessionRejectedWritesNothing(t *testing.T) {
	for _, verr := range []error{token.ErrExpiredToken, token.ErrKeyNotFound, token.ErrInvalidToken} {
		m := newManager(&fakeVerifier{err: verr}, &fakeProvider{}, Config{})
		rr := httptest.NewRecorder()

		_, err := m.CreateSession(context.Background(), rr, SessionRequest{AccessToken: "at", RefreshToken: "rt"})
		require.Error(t, err)
		assert.ErrorIs(t, err, apperr.ErrAuth)
		assert.Equal(t, "Invalid access token", err.Error())
		assert.Empty(t, rr.Header().Values("Set-Cookie"))
	}
}

func TestCreateSessionUpstreamFailure(t *testing.T) {
	m := newManager(&fakeVerifier{err: jwks.ErrUpstreamUnavailable}, &fakeProvider{}, Config{})
	rr := httptest.NewRecorder()

	_, err := m.CreateSession(context.Background(), rr, SessionRequest{AccessToken: "at", RefreshToken: "rt"})
	assert.ErrorIs(t, err, apperr.ErrAuth)
	assert.Equal(t, "Failed to create session: Unable to fetch signing keys", err.Error())
	assert.Empty(t, rr.Header().Values("Set-Cookie"))
}

func TestCreateSessionRequiresBothTokens(t *testing.T) {
	v := &fakeVerifier{}
	m := newManager(v, &fakeProvider{}, Config{})

	_, err := m.CreateSession(context.Background(), httptest.NewRecorder(), SessionRequest{AccessToken: "at"})
	assert.ErrorIs(t, err, apperr.ErrSession)
	assert.Zero(t, v.calls)
}

func TestCreateSessionAccessTTLFromToken(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	claims := &token.Claims{}
	claims.ExpiresAt = jwt.NewNumericDate(clock.Now().Add(30 * time.Minute))

	m := newManager(&fakeVerifier{claims: claims}, &fakeProvider{}, Config{AccessTTLFromToken: true, Clock: clock})
	rr := httptest.NewRecorder()

	_, err := m.CreateSession(context.Background(), rr, SessionRequest{AccessToken: "at", RefreshToken: "rt"})
	require.NoError(t, err)
	assert.Equal(t, 1800, cookiesByName(rr)[AccessCookie].MaxAge)
}

func TestRefreshWithoutCookieMakesNoCalls(t *testing.T) {
	p := &fakeProvider{}
	m := newManager(&fakeVerifier{}, p, Config{})
	rr := httptest.NewRecorder()

	_, err := m.Refresh(context.Background(), rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.ErrorIs(t, err, apperr.ErrAuth)
	assert.Equal(t, "No refresh token found", err.Error())
	assert.Zero(t, p.refreshCalls)
	assert.Empty(t, rr.Header().Values("Set-Cookie"))
}

func TestRefreshWithoutRotationKeepsRefreshCookie(t *testing.T) {
	p := &fakeProvider{refresh: &oidc.TokenResponse{AccessToken: "at-2", ExpiresIn: 1800}}
	m := newManager(&fakeVerifier{}, p, Config{})
	rr := httptest.NewRecorder()
	r := withRefreshCookie(httptest.NewRequest(http.MethodPost, "/", nil), "rt-1")

	resp, err := m.Refresh(context.Background(), rr, r)
	require.NoError(t, err)
	assert.Equal(t, &RefreshTokenResponse{AccessToken: "at-2", ExpiresIn: 1800}, resp)
	assert.Equal(t, "rt-1", p.lastToken)

	got := cookiesByName(rr)
	require.Len(t, got, 1)
	assert.Equal(t, "at-2", got[AccessCookie].Value)
	assert.Equal(t, 1800, got[AccessCookie].MaxAge)
}

func TestRefreshWithoutExpiresInUsesAccessTTL(t *testing.T) {
	p := &fakeProvider{refresh: &oidc.TokenResponse{AccessToken: "at-2"}}
	m := newManager(&fakeVerifier{}, p, Config{AccessTTL: time.Hour})
	rr := httptest.NewRecorder()

	resp, err := m.Refresh(context.Background(), rr, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/", nil), "rt-1"))
	require.NoError(t, err)
	assert.Equal(t, 3600, resp.ExpiresIn)

	got := cookiesByName(rr)
	require.Contains(t, got, AccessCookie)
	assert.Equal(t, "at-2", got[AccessCookie].Value)
	assert.Equal(t, 3600, got[AccessCookie].MaxAge)
}

func TestRefreshWithRotation(t *testing.T) {
	p := &fakeProvider{refresh: &oidc.TokenResponse{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresIn: 3600}}
	m := newManager(&fakeVerifier{}, p, Config{RefreshTTL: 24 * time.Hour})
	rr := httptest.NewRecorder()

	_, err := m.Refresh(context.Background(), rr, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/", nil), "rt-1"))
	require.NoError(t, err)

	got := cookiesByName(rr)
	assert.Equal(t, "rt-2", got[RefreshCookie].Value)
	assert.Equal(t, 86400, got[RefreshCookie].MaxAge)
}

func TestRefreshFailures(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"rejected": {
			err:  errors.New("token refresh rejected: status 400"),
			want: "Token refresh failed",
		},
		"network": {
			err:  &oidc.UnreachableError{Err: errors.New("dial tcp: connection refused")},
			want: "Network error during token refresh: dial tcp: connection refused",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			p := &fakeProvider{refreshErr: tc.err}
			m := newManager(&fakeVerifier{}, p, Config{})
			rr := httptest.NewRecorder()

			_, err := m.Refresh(context.Background(), rr, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/", nil), "rt-1"))
			assert.ErrorIs(t, err, apperr.ErrAuth)
			assert.Equal(t, tc.want, err.Error())
			assert.Empty(t, rr.Header().Values("Set-Cookie"))
		})
	}
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	p := &fakeProvider{logoutErr: errors.New("timeout")}
	codec := NewCookieCodec(NewCookiePolicy("chat.example.com", true, true, "lax"))
	m := NewManager(&fakeVerifier{}, p, codec, Config{}, nil)
	rr := httptest.NewRecorder()

	resp, res := m.Logout(context.Background(), rr, withRefreshCookie(httptest.NewRequest(http.MethodPost, "/", nil), "rt-1"))
	assert.Equal(t, &LogoutResponse{Success: true, Message: "Logged out successfully"}, resp)
	assert.True(t, res.Attempted)
	assert.False(t, res.Revoked)
	assert.Error(t, res.Err)
	assert.Equal(t, 1, p.logoutCalls)
	assert.Equal(t, "rt-1", p.lastToken)

	got := cookiesByName(rr)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Less(t, c.MaxAge, 0)
		assert.Equal(t, "chat.example.com", c.Domain)
	}
}

func TestLogoutWithoutCookie(t *testing.T) {
	p := &fakeProvider{}
	m := newManager(&fakeVerifier{}, p, Config{})
	rr := httptest.NewRecorder()

	resp, res := m.Logout(context.Background(), rr, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.True(t, resp.Success)
	assert.False(t, res.Attempted)
	assert.Zero(t, p.logoutCalls)
	assert.Len(t, cookiesByName(rr), 2)
}
