package session

// SessionRequest carries the tokens the frontend received from the provider
// callback.
type SessionRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type SessionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	RedirectURL string `json:"redirect_url"`
}

type RefreshTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LogoutResult records what the revoke step did. It never affects the
// logout response.
type LogoutResult struct {
	Attempted bool
	Revoked   bool
	Err       error
}
