package basket

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-dansa/internal/catalog"
	"github.com/noah-isme/backend-dansa/internal/common"
)

// Handler wires basket operations to HTTP.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// OwnerID resolves the basket owner for the request: the authenticated user
// when present, otherwise the guest session id. Baskets are per-session, so
// one of the two must exist.
func OwnerID(r *http.Request) (string, bool) {
	if id, ok := common.UserID(r.Context()); ok {
		return id, true
	}
	if id, ok := common.AnonID(r.Context()); ok {
		return "anon:" + id, true
	}
	return "", false
}

type addItemPayload struct {
	ItemID     string `json:"itemId" validate:"required"`
	Kind       string `json:"kind" validate:"required,oneof=studio online session"`
	Taster     bool   `json:"isTaster"`
	PayDeposit bool   `json:"payDeposit"`
	AssignTo   string `json:"assignToUserId"`
	ChargeFrom string `json:"chargeFromDate"`
}

// Get handles GET /v1/basket.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := OwnerID(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	b, err := h.Svc.Get(r.Context(), owner)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to load basket", nil)
		return
	}
	common.JSONData(w, http.StatusOK, b)
}

// AddItem handles POST /v1/basket/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := OwnerID(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	var payload addItemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid add item payload", err.Error())
		return
	}

	result, err := h.Svc.AddItem(r.Context(), owner, AddItemInput{
		ItemID:     payload.ItemID,
		Kind:       catalog.Kind(payload.Kind),
		Taster:     payload.Taster,
		PayDeposit: payload.PayDeposit,
		AssignTo:   payload.AssignTo,
		ChargeFrom: payload.ChargeFrom,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to update basket", nil)
		return
	}
	writeResult(w, result)
}

// RemoveItem handles DELETE /v1/basket/items/{kind}/{id}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := OwnerID(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	kind := catalog.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "unknown course kind", nil)
		return
	}
	result, err := h.Svc.RemoveItem(r.Context(), owner, chi.URLParam(r, "id"), kind)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to update basket", nil)
		return
	}
	writeResult(w, result)
}

// SetFee handles POST /v1/basket/fees.
func (h *Handler) SetFee(w http.ResponseWriter, r *http.Request) {
	owner, ok := OwnerID(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	var payload struct {
		Name     string `json:"name" validate:"required"`
		Included bool   `json:"included"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	if err := h.Validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid fee payload", err.Error())
		return
	}
	result, err := h.Svc.SetFeeIncluded(r.Context(), owner, payload.Name, payload.Included)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to update basket", nil)
		return
	}
	writeResult(w, result)
}

// Clear handles DELETE /v1/basket.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	owner, ok := OwnerID(r)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "session required", nil)
		return
	}
	result, err := h.Svc.Clear(r.Context(), owner)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unable to clear basket", nil)
		return
	}
	writeResult(w, result)
}

// writeResult renders an OperationResult. Failure results are still HTTP 200:
// the operation completed and the payload says whether it took effect, so
// clients always get a basket snapshot to render.
func writeResult(w http.ResponseWriter, result OperationResult) {
	common.JSONData(w, http.StatusOK, result)
}
