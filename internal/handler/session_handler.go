package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"quillsync/internal/domain"
	"quillsync/internal/session"
	"quillsync/pkg/response"
)

type SessionHandler struct {
	session  *session.Manager
	validate *validator.Validate
}

func NewSessionHandler(session *session.Manager) *SessionHandler {
	return &SessionHandler{
		session:  session,
		validate: validator.New(),
	}
}

// SignIn accepts an account token issued by the hosted service and
// persists it as the local session.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req domain.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.session.SignIn(req.Token); err != nil {
		response.Unauthorized(w, "invalid token")
		return
	}
	response.Success(w, map[string]string{"owner_id": h.session.OwnerID()})
}

func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.session.SignOut(); err != nil {
		response.InternalError(w, "failed to sign out")
		return
	}
	response.Success(w, map[string]string{"message": "signed out"})
}

// Status reports whether a session exists and the remote is reachable.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, map[string]any{
		"authenticated": h.session.IsAuthenticated(),
		"connected":     h.session.IsConnected(r.Context()),
		"owner_id":      h.session.OwnerID(),
	})
}
