package user

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/apperr"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/token"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/user/entity"
)

// Verifier validates access tokens.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// TokenSource pulls the access token out of a request.
type TokenSource interface {
	AccessToken(r *http.Request) string
}

var ErrMissingSubject = errors.New("token has no subject")

// UserService resolves the caller of a request.
type UserService struct {
	verifier Verifier
	tokens   TokenSource
	logger   *zap.SugaredLogger
}

func NewUserService(verifier Verifier, tokens TokenSource, logger *zap.SugaredLogger) *UserService {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UserService{verifier: verifier, tokens: tokens, logger: logger}
}

// CurrentUser verifies the request's access token and returns its user.
func (s *UserService) CurrentUser(ctx context.Context, r *http.Request) (*entity.User, error) {
	raw := s.tokens.AccessToken(r)
	if raw == "" {
		return nil, apperr.Auth("Not authenticated")
	}
	claims, err := s.verifier.Verify(ctx, raw)
	if err != nil {
		s.logger.Debugw("access token rejected", "error", err)
		return nil, apperr.AuthWrap(token.Message(err), err)
	}
	u := entity.FromClaims(claims)
	if u.ID == "" {
		return nil, apperr.AuthWrap("Invalid token", ErrMissingSubject)
	}
	return u, nil
}

// OptionalUser is CurrentUser without the error: anonymous or invalid
// requests yield nil.
func (s *UserService) OptionalUser(ctx context.Context, r *http.Request) *entity.User {
	u, err := s.CurrentUser(ctx, r)
	if err != nil {
		return nil
	}
	return u
}

type ctxKey struct{}

// WithUser stores u in ctx.
func WithUser(ctx context.Context, u *entity.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user stored by RequireUser or Attach.
func FromContext(ctx context.Context) (*entity.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*entity.User)
	return u, ok && u != nil
}

// RequireUser rejects requests without a valid access token and passes the
// user to next through the request context.
func (s *UserService) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := s.CurrentUser(r.Context(), r)
		if err != nil {
			apperr.WriteJSON(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// Attach resolves the user when possible and never rejects the request.
func (s *UserService) Attach(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := s.OptionalUser(r.Context(), r); u != nil {
			r = r.WithContext(WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}
