package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"quillsync/internal/domain"
	"quillsync/internal/repository"
	"quillsync/internal/service"
	"quillsync/pkg/response"
)

type NoteHandler struct {
	service  *service.NoteService
	validate *validator.Validate
}

func NewNoteHandler(service *service.NoteService) *NoteHandler {
	return &NoteHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Create(r.Context(), &req)
	if err != nil {
		response.InternalError(w, "failed to create note")
		return
	}
	response.Created(w, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		notes []*domain.Note
		err   error
	)
	if r.URL.Query().Get("trashed") == "true" {
		notes, err = h.service.ListTrashed(r.Context())
	} else {
		notes, err = h.service.ListActive(r.Context())
	}
	if err != nil {
		response.InternalError(w, "failed to list notes")
		return
	}
	response.Success(w, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	localID, ok := noteID(w, r)
	if !ok {
		return
	}

	note, err := h.service.Get(r.Context(), localID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(w, "note not found")
			return
		}
		response.InternalError(w, "failed to load note")
		return
	}
	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	localID, ok := noteID(w, r)
	if !ok {
		return
	}

	var req domain.UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Update(r.Context(), localID, &req)
	if err != nil {
		writeNoteError(w, err, "failed to update note")
		return
	}
	response.Success(w, note)
}

func (h *NoteHandler) Trash(w http.ResponseWriter, r *http.Request) {
	localID, ok := noteID(w, r)
	if !ok {
		return
	}

	note, err := h.service.Trash(r.Context(), localID)
	if err != nil {
		writeNoteError(w, err, "failed to trash note")
		return
	}
	response.Success(w, note)
}

func (h *NoteHandler) Restore(w http.ResponseWriter, r *http.Request) {
	localID, ok := noteID(w, r)
	if !ok {
		return
	}

	note, err := h.service.Restore(r.Context(), localID)
	if err != nil {
		writeNoteError(w, err, "failed to restore note")
		return
	}
	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	localID, ok := noteID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeletePermanent(r.Context(), localID); err != nil {
		writeNoteError(w, err, "failed to delete note")
		return
	}
	response.Success(w, map[string]string{"message": "note deleted"})
}

func (h *NoteHandler) Lock(w http.ResponseWriter, r *http.Request) {
	localID, ok := noteID(w, r)
	if !ok {
		return
	}

	var req domain.LockNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.service.Lock(r.Context(), localID, req.Passcode); err != nil {
		writeNoteError(w, err, "failed to lock note")
		return
	}
	response.Success(w, map[string]string{"message": "note locked"})
}

func (h *NoteHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	localID, ok := noteID(w, r)
	if !ok {
		return
	}

	var req domain.UnlockNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.service.Unlock(r.Context(), localID, req.Passcode); err != nil {
		writeNoteError(w, err, "failed to unlock note")
		return
	}
	response.Success(w, map[string]string{"message": "note unlocked"})
}

func noteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid note id")
		return 0, false
	}
	return id, true
}

func writeNoteError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		response.NotFound(w, "note not found")
	case errors.Is(err, service.ErrLocked):
		response.Forbidden(w, service.ErrLocked.Error())
	case errors.Is(err, service.ErrBadPasscode):
		response.Forbidden(w, service.ErrBadPasscode.Error())
	default:
		response.InternalError(w, fallback)
	}
}
