package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-dansa/internal/common"
	"github.com/noah-isme/backend-dansa/internal/events"
)

// Handler exposes HTTP endpoints for accounts and sessions.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
	Events   *events.Bus
	Email    common.EmailSender
	BaseURL  string
}

type registerPayload struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginPayload struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshPayload struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type forgotPayload struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPayload struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return false
	}
	if err := h.Validate.Struct(v); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid request payload", err.Error())
		return false
	}
	return true
}

// Register handles POST /v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var payload registerPayload
	if !h.decode(w, r, &payload) {
		return
	}
	user, err := h.Svc.Register(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	if h.Events != nil {
		// registration already succeeded, a failed event must not fail it
		_, _ = h.Events.Emit(r.Context(), events.TopicUserRegistered, user.ID, map[string]any{
			"email": user.Email,
			"name":  user.Name,
		})
	}
	common.JSONData(w, http.StatusCreated, user)
}

// Login handles POST /v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var payload loginPayload
	if !h.decode(w, r, &payload) {
		return
	}
	result, err := h.Svc.Login(r.Context(), payload.Email, payload.Password, r.UserAgent(), common.ClientIP(r))
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, result)
}

// Refresh handles POST /v1/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload refreshPayload
	if !h.decode(w, r, &payload) {
		return
	}
	result, err := h.Svc.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, result)
}

// Logout handles POST /v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var payload refreshPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid json payload", nil)
		return
	}
	if err := h.Svc.Logout(r.Context(), payload.RefreshToken); err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{"loggedOut": true})
}

// Me handles GET /v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "unauthorized", nil)
		return
	}
	user, err := h.Svc.Me(r.Context(), userID)
	if err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, user)
}

// Forgot handles POST /v1/auth/forgot. The response is identical whether or
// not the account exists.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var payload forgotPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.Svc.Forgot(r.Context(), payload.Email, h.BaseURL, h.Email); err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{"sent": true})
}

// Reset handles POST /v1/auth/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var payload resetPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.Svc.Reset(r.Context(), payload.Token, payload.Password); err != nil {
		common.JSONAppError(w, err)
		return
	}
	common.JSONData(w, http.StatusOK, map[string]any{"reset": true})
}
