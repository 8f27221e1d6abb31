package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-dansa/internal/common"
)

// Handler exposes the authenticated order history endpoints.
type Handler struct {
	Svc *Service
}

// List handles GET /v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	orders, err := h.Svc.List(r.Context(), userID, limit, offset)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load orders", nil)
		return
	}
	common.JSONData(w, http.StatusOK, orders)
}

// Get handles GET /v1/orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "authentication required", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid order id", nil)
		return
	}
	o, err := h.Svc.Get(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load order", nil)
		return
	}
	common.JSONData(w, http.StatusOK, o)
}
