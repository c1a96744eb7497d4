package token

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/config"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/jwks"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/obs"
)

// Audience required on provider-signed tokens.
const Audience = "authenticated"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrKeyNotFound  = errors.New("no matching key found in JWKS")
)

// KeySource supplies the provider's signing keys.
type KeySource interface {
	Get(ctx context.Context) (*jwks.KeySet, error)
	Refresh(ctx context.Context) (*jwks.KeySet, error)
}

type Config struct {
	Secret        []byte
	HMACAlgorithm string // HS256 unless set
	KeyMissPolicy string // config.KeyMissFail unless set
	Clock         clockwork.Clock
	Logger        *zap.SugaredLogger
}

// Verifier checks token signatures and claims. Tokens with a kid header are
// verified against the provider key set with RS256; tokens without one fall
// back to the shared HMAC secret.
type Verifier struct {
	keys    KeySource
	secret  []byte
	hmacAlg string
	policy  string
	clock   clockwork.Clock
	log     *zap.SugaredLogger
}

func NewVerifier(keys KeySource, cfg Config) *Verifier {
	if cfg.HMACAlgorithm == "" {
		cfg.HMACAlgorithm = jwt.SigningMethodHS256.Alg()
	}
	if cfg.KeyMissPolicy == "" {
		cfg.KeyMissPolicy = config.KeyMissFail
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Verifier{
		keys:    keys,
		secret:  cfg.Secret,
		hmacAlg: cfg.HMACAlgorithm,
		policy:  cfg.KeyMissPolicy,
		clock:   cfg.Clock,
		log:     cfg.Logger,
	}
}

// Verify validates raw and returns its claims.
func (v *Verifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	unverified, _, err := jwt.NewParser().ParseUnverified(raw, &Claims{})
	if err != nil {
		obs.TokenVerifications.WithLabelValues("unknown", "invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		claims, err := v.verifyHMAC(raw)
		v.observe("hmac", err)
		return claims, err
	}
	claims, err := v.verifyRSA(ctx, raw, kid)
	v.observe("rs256", err)
	return claims, err
}

func (v *Verifier) verifyHMAC(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{v.hmacAlg}),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func (v *Verifier) verifyRSA(ctx context.Context, raw, kid string) (*Claims, error) {
	set, err := v.keys.Get(ctx)
	if err != nil {
		return nil, err
	}
	pub, ok := set.Lookup(kid)
	if !ok && v.policy == config.KeyMissRefresh {
		v.log.Debugw("kid not cached, refreshing key set", "kid", kid)
		if set, err = v.keys.Refresh(ctx); err != nil {
			return nil, err
		}
		pub, ok = set.Lookup(kid)
	}
	if !ok {
		return nil, ErrKeyNotFound
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

func (v *Verifier) observe(method string, err error) {
	result := obs.ResultOK
	switch {
	case err == nil:
	case errors.Is(err, ErrExpiredToken):
		result = "expired"
	case errors.Is(err, ErrKeyNotFound):
		result = "key_not_found"
	case errors.Is(err, jwks.ErrUpstreamUnavailable):
		result = "upstream"
	default:
		result = "invalid"
	}
	obs.TokenVerifications.WithLabelValues(method, result).Inc()
}

func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

// Message renders a verification error for the client.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, ErrKeyNotFound):
		return "No matching key found in JWKS"
	case errors.Is(err, jwks.ErrUpstreamUnavailable):
		return "Unable to fetch signing keys"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Token verification cancelled"
	default:
		return "Invalid token"
	}
}
