package oidc

// TokenResponse is the provider's answer to a refresh_token grant.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// Rotated reports whether the provider issued a new refresh token.
func (t *TokenResponse) Rotated() bool {
	return t.RefreshToken != ""
}

type refreshGrant struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}
