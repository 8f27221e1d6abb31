package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-dansa/internal/common"
)

// Handler exposes public course discovery endpoints.
type Handler struct {
	Service *Service
}

// Courses handles GET /v1/courses with an optional ?kind= filter.
func (h *Handler) Courses(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	kind := Kind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "unknown course kind", nil)
		return
	}
	courses, err := h.Service.ListCourses(r.Context(), kind)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, courses)
}

// CourseDetail handles GET /v1/courses/{id}.
func (h *Handler) CourseDetail(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "catalog service not configured", nil)
		return
	}
	course, err := h.Service.GetCourse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, course)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "course not found", nil)
	default:
		common.JSONError(w, http.StatusBadGateway, common.CodeInternal, "catalog unavailable", nil)
	}
}
