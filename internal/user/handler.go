package user

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/apperr"
)

// Handler exposes the current user's profile.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Me returns the user placed in the context by RequireUser.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := FromContext(r.Context())
	if !ok {
		apperr.WriteJSON(w, apperr.Auth("Not authenticated"))
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
