package promo

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-dansa/internal/basket"
	"github.com/noah-isme/backend-dansa/internal/common"
)

// Handler wires promo and credit operations to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// Apply handles POST /v1/basket/promo.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	owner, ok := basket.OwnerID(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	var payload struct {
		Code string `json:"code" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "promo code is required", nil)
		return
	}
	result, err := h.Svc.ApplyCode(r.Context(), owner, payload.Code)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to update basket", nil)
		return
	}
	common.JSONData(w, http.StatusOK, result)
}

// Remove handles DELETE /v1/basket/promo.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	owner, ok := basket.OwnerID(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	result, err := h.Svc.RemoveCode(r.Context(), owner)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to update basket", nil)
		return
	}
	common.JSONData(w, http.StatusOK, result)
}

// Credit handles POST /v1/basket/credit.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	owner, ok := basket.OwnerID(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	var payload struct {
		UseCredit bool `json:"useCredit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	result, err := h.Svc.UseCredit(r.Context(), owner, payload.UseCredit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to update basket", nil)
		return
	}
	common.JSONData(w, http.StatusOK, result)
}
