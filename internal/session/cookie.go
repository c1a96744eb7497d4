package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/config"
)

const (
	AccessCookie  = "sb-access-token"
	RefreshCookie = "sb-refresh-token"
)

// CookiePolicy holds the attributes shared by both session cookies.
type CookiePolicy struct {
	HTTPOnly bool
	Secure   bool
	SameSite http.SameSite
	Domain   string // empty means host-only
	Path     string
}

// NewCookiePolicy builds the policy from settings. The localhost sentinel
// domain is dropped so the cookies stay host-only.
func NewCookiePolicy(domain string, secure, httpOnly bool, sameSite string) CookiePolicy {
	if domain == config.LocalCookieDomain {
		domain = ""
	}
	return CookiePolicy{
		HTTPOnly: httpOnly,
		Secure:   secure,
		SameSite: parseSameSite(sameSite),
		Domain:   domain,
		Path:     "/",
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// CookieCodec reads and writes the session cookies.
type CookieCodec struct {
	policy CookiePolicy
}

func NewCookieCodec(policy CookiePolicy) *CookieCodec {
	if policy.Path == "" {
		policy.Path = "/"
	}
	return &CookieCodec{policy: policy}
}

// SetSession writes both cookies.
func (c *CookieCodec) SetSession(w http.ResponseWriter, access, refresh string, accessTTL, refreshTTL time.Duration) {
	c.SetAccess(w, access, accessTTL)
	c.SetRefresh(w, refresh, refreshTTL)
}

func (c *CookieCodec) SetAccess(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, c.cookie(AccessCookie, token, maxAge(ttl)))
}

func (c *CookieCodec) SetRefresh(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, c.cookie(RefreshCookie, token, maxAge(ttl)))
}

// ClearSession expires both cookies with the same domain and path they
// were written with.
func (c *CookieCodec) ClearSession(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		ck := c.cookie(name, "", -1)
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

// AccessToken returns the access token from the cookie, falling back to an
// Authorization: Bearer header.
func (c *CookieCodec) AccessToken(r *http.Request) string {
	if ck, err := r.Cookie(AccessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	if rest, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		if fields := strings.Fields(rest); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// RefreshToken reads the refresh cookie only.
func (c *CookieCodec) RefreshToken(r *http.Request) string {
	if ck, err := r.Cookie(RefreshCookie); err == nil {
		return ck.Value
	}
	return ""
}

func (c *CookieCodec) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     c.policy.Path,
		Domain:   c.policy.Domain,
		MaxAge:   maxAge,
		HttpOnly: c.policy.HTTPOnly,
		Secure:   c.policy.Secure,
		SameSite: c.policy.SameSite,
	}
}

// maxAge converts ttl to whole seconds. A non-positive ttl expires the
// cookie rather than making it a browser-session cookie.
func maxAge(ttl time.Duration) int {
	s := int(ttl / time.Second)
	if s <= 0 {
		return -1
	}
	return s
}
