package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/config"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/jwks"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/obs"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/oidc"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/router"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/session"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/token"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/user"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/pkg/utilities"
)

func main() {
	// best-effort: without a .env file the process environment is used as is
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting auth service", "app", cfg.AppName, "env", cfg.Env, "addr", cfg.Addr, "backend_url", cfg.BackendURL)
	if cfg.IsProduction() && !cfg.CookieSecure {
		sugar.Warn("COOKIE_SECURE is false in production; session cookies will be sent over plain HTTP")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := obs.SetupOTel(ctx, obs.OTELConfig{
		Enable:      cfg.OTELEnable,
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: "service-auth-go",
		SampleRatio: cfg.OTELSampleRatio,
	})
	if err != nil {
		sugar.Fatalf("otel: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(cfg, sugar),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	if err := tel.Shutdown(doneCtx); err != nil {
		sugar.Warnf("otel shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}

func newHandler(cfg config.Config, log *zap.SugaredLogger) http.Handler {
	providerHTTP := obs.NewHTTPClient(cfg.ProviderRefreshTimeout)

	cache := jwks.NewCache(
		jwks.NewHTTPFetcher(cfg.JWKSURL(), cfg.SupabaseAnonKey, providerHTTP),
		jwks.CacheConfig{
			TTL:                cfg.JWKSCacheTTL,
			MinRefreshInterval: cfg.JWKSMinRefreshInterval,
			FetchTimeout:       cfg.ProviderRefreshTimeout,
			Logger:             log.Named("jwks"),
		},
	)
	verifier := token.NewVerifier(cache, token.Config{
		Secret:        []byte(cfg.JWTSecretKey),
		HMACAlgorithm: cfg.JWTAlgorithm,
		KeyMissPolicy: cfg.JWKSKeyMissPolicy,
		Logger:        log.Named("token"),
	})
	client := oidc.NewClient(oidc.Config{
		BaseURL:        cfg.SupabaseURL,
		AnonKey:        cfg.SupabaseAnonKey,
		FrontendURL:    cfg.FrontendURL,
		CallbackPath:   cfg.OAuthCallbackPath,
		RefreshTimeout: cfg.ProviderRefreshTimeout,
		RevokeTimeout:  cfg.ProviderRevokeTimeout,
	}, providerHTTP, log.Named("oidc"))

	codec := session.NewCookieCodec(session.NewCookiePolicy(
		cfg.CookieDomain, cfg.CookieSecure, cfg.CookieHTTPOnly, cfg.CookieSameSite,
	))
	mgr := session.NewManager(verifier, client, codec, session.Config{
		OAuthProvider:      cfg.OAuthProvider,
		AccessTTL:          cfg.AccessTTL,
		AccessTTLFromToken: cfg.AccessTTLFromToken,
		RefreshTTL:         cfg.RefreshTTL(),
	}, log.Named("session"))
	users := user.NewUserService(verifier, codec, log.Named("user"))

	return router.RegisterRoutes(router.Deps{
		Logger:      log,
		AppName:     cfg.AppName,
		CORSOrigins: cfg.CORSAllowedOrigins,
		IDs:         utilities.NewIDGeneratorFromEnv(),
		Sessions:    session.NewHandler(mgr, log.Named("session")),
		Users:       users,
		UserHandler: user.NewHandler(users, log.Named("user")),
	})
}
