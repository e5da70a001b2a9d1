package handler

import (
	"net/http"

	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/session"
)

// Sessions serves POST /auth/sessions/restore. Restoration is best-effort:
// the endpoint always answers 200, and an empty token means "no session".
type Sessions struct {
	sessions *session.Manager
}

func NewSessions(sessions *session.Manager) *Sessions {
	return &Sessions{sessions: sessions}
}

func (h *Sessions) Restore(w http.ResponseWriter, r *http.Request) {
	token, _ := h.sessions.Restore(r.Context(), r.Header.Get("X-Device-Id"))
	response.JSON(w, map[string]string{"token": token})
}
