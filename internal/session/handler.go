package session

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/AmirUpSkill/Rag-ChatBot/service-auth-go/internal/apperr"
)

// Handler exposes the session flows over HTTP.
type Handler struct {
	mgr    *Manager
	logger *zap.SugaredLogger
}

func NewHandler(mgr *Manager, logger *zap.SugaredLogger) *Handler {
	return &Handler{mgr: mgr, logger: logger}
}

// Login redirects the browser to the provider.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	resp, err := h.mgr.InitiateLogin()
	if err != nil {
		h.logger.Warnw("login initiation failed", "error", err)
		apperr.WriteJSON(w, err)
		return
	}
	http.Redirect(w, r, resp.RedirectURL, http.StatusTemporaryRedirect)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid session payload", "error", err)
		apperr.WriteJSON(w, apperr.Session("Invalid session payload"))
		return
	}
	resp, err := h.mgr.CreateSession(r.Context(), w, req)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	resp, err := h.mgr.Refresh(r.Context(), w, r)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	resp, res := h.mgr.Logout(r.Context(), w, r)
	h.logger.Debugw("logout", "revoke_attempted", res.Attempted, "revoked", res.Revoked)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
