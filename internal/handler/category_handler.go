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

type CategoryHandler struct {
	service  *service.CategoryService
	validate *validator.Validate
}

func NewCategoryHandler(service *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	category, err := h.service.Create(r.Context(), &req)
	if err != nil {
		response.InternalError(w, "failed to create category")
		return
	}
	response.Created(w, category)
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.List(r.Context())
	if err != nil {
		response.InternalError(w, "failed to list categories")
		return
	}
	response.Success(w, categories)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	localID, ok := categoryID(w, r)
	if !ok {
		return
	}

	var req domain.UpdateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	category, err := h.service.Update(r.Context(), localID, &req)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.NotFound(w, "category not found")
			return
		}
		response.InternalError(w, "failed to update category")
		return
	}
	response.Success(w, category)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	localID, ok := categoryID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), localID); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			response.NotFound(w, "category not found")
		case errors.Is(err, service.ErrCategoryInUse):
			response.Conflict(w, service.ErrCategoryInUse.Error())
		default:
			response.InternalError(w, "failed to delete category")
		}
		return
	}
	response.Success(w, map[string]string{"message": "category deleted"})
}

func categoryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid category id")
		return 0, false
	}
	return id, true
}
