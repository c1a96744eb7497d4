package entity

import (
	"time"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/token"
)

// DefaultRole is used when the token carries no role claim.
const DefaultRole = "user"

// User is the authenticated principal as projected from verified claims.
// Nothing here is stored; every request rebuilds it from its token.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      *string    `json:"name"`
	AvatarURL *string    `json:"avatar_url"`
	Provider  *string    `json:"provider"`
	CreatedAt *time.Time `json:"created_at"`
	Role      string     `json:"role"`
}

// FromClaims projects claims onto a User. The nested user object wins over
// top-level claims when both are present.
func FromClaims(c *token.Claims) *User {
	p := c.Principal()
	u := &User{
		ID:        p.ID,
		Email:     p.Email,
		Name:      optional(p.UserMetadata.String("full_name")),
		AvatarURL: optional(p.UserMetadata.String("avatar_url")),
		Provider:  optional(p.AppMetadata.String("provider")),
		Role:      p.Role,
	}
	if u.Name == nil {
		u.Name = optional(p.UserMetadata.String("name"))
	}
	if u.Role == "" {
		u.Role = DefaultRole
	}
	if p.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, p.CreatedAt); err == nil {
			u.CreatedAt = &t
		}
	}
	return u
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
