// Package token verifies access tokens issued by the identity provider.
package token

import "github.com/golang-jwt/jwt/v5"

// Metadata is a free-form claim object such as user_metadata.
type Metadata map[string]any

// String returns the string value at key, or "" when absent or not a string.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// Profile is the user portion of a token. It appears at the top level of the
// claims and, for some issuers, again under a nested "user" object.
type Profile struct {
	ID           string   `json:"id,omitempty"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Role         string   `json:"role,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	UserMetadata Metadata `json:"user_metadata,omitempty"`
	AppMetadata  Metadata `json:"app_metadata,omitempty"`
}

// Claims is the verified token payload.
type Claims struct {
	jwt.RegisteredClaims
	Profile
	SessionID string   `json:"session_id,omitempty"`
	User      *Profile `json:"user,omitempty"`
}

// Principal returns the nested user object when present, otherwise the
// top-level profile. A missing id falls back to the sub claim.
func (c *Claims) Principal() Profile {
	p := c.Profile
	if c.User != nil {
		p = *c.User
	}
	if p.ID == "" {
		p.ID = c.Subject
	}
	return p
}
