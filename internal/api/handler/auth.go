package handler

import (
	"encoding/json"
	"net/http"

	"github.com/retrace/retrace/internal/api/models"
	"github.com/retrace/retrace/internal/api/response"
	"github.com/retrace/retrace/internal/auth"
)

// AuthHandler handles device registration endpoints.
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// RegisterDevice handles POST /v1/auth/device - device registration.
func (h *AuthHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		fieldErrors := make([]models.FieldError, 0, len(errs))
		for _, e := range errs {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field:   e.Field,
				Message: e.Message,
				Code:    e.Code,
			})
		}
		response.BadRequest(w, r, "invalid device registration", fieldErrors)
		return
	}

	tokens, err := h.authService.RegisterDevice(r.Context(), &req)
	if err != nil {
		response.InternalError(w, r, "device registration failed")
		return
	}

	response.Created(w, r, "/v1/auth/device/"+tokens.Device.ID, tokens)
}
