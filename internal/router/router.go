package router

import (
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/obs"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/session"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/user"
	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/pkg/utilities"
)

// APIPrefix is where the auth endpoints are mounted.
const APIPrefix = "/api/v1/auth"

// Deps are the handlers and settings the router mounts.
type Deps struct {
	Logger      *zap.SugaredLogger
	AppName     string
	CORSOrigins []string
	IDs         *utilities.IDGenerator
	Sessions    *session.Handler
	Users       *user.UserService
	UserHandler *user.Handler
}

// RegisterRoutes mounts HTTP handlers on an http.ServeMux and wraps them in
// the middleware chain.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to " + d.AppName + " API"})
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", obs.MetricsHandler())

	mux.HandleFunc("GET "+APIPrefix+"/login/google", d.Sessions.Login)
	mux.HandleFunc("POST "+APIPrefix+"/session", d.Sessions.CreateSession)
	mux.Handle("GET "+APIPrefix+"/me", d.Users.RequireUser(http.HandlerFunc(d.UserHandler.Me)))
	mux.HandleFunc("POST "+APIPrefix+"/refresh", d.Sessions.Refresh)
	mux.HandleFunc("POST "+APIPrefix+"/logout", d.Sessions.Logout)

	handler := Chain(mux,
		RequestID(d.IDs),
		LoggingMiddleware(d.Logger),
		Recovery(d.Logger),
		CORS(d.CORSOrigins),
		SecurityHeadersMiddleware(),
	)
	return otelhttp.NewHandler(handler, "auth",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
