package handler

import (
	"errors"
	"net/http"

	"quillsync/internal/service"
	"quillsync/pkg/response"
)

type SyncHandler struct {
	engine *service.SyncEngine
	status *service.StatusTracker
}

func NewSyncHandler(engine *service.SyncEngine, status *service.StatusTracker) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		status: status,
	}
}

// Trigger runs one synchronization pass. The run is bound to the request
// context, so a dropped connection cancels it.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Synchronize(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSyncInProgress):
			response.Conflict(w, err.Error())
		case errors.Is(err, service.ErrSyncDebounced):
			response.TooManyRequests(w, err.Error())
		case errors.Is(err, service.ErrNotSignedIn):
			response.Unauthorized(w, err.Error())
		case errors.Is(err, service.ErrNoConnection):
			response.ServiceUnavailable(w, err.Error())
		default:
			response.InternalError(w, err.Error())
		}
		return
	}
	response.Success(w, result)
}

// Status reports the current sync state and last successful run time.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.status.Status())
}
