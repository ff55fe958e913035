package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// CreateInstanceRequest is the payload for POST /instances.
type CreateInstanceRequest struct {
	Name   string                `json:"name" validate:"required,min=1,max=100"`
	Type   string                `json:"type" validate:"required,oneof=web_bridge cloud_api"`
	Config domain.InstanceConfig `json:"config"`
}

// InstanceResponse augments the persisted instance with live session
// info.
type InstanceResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	PhoneNumber    *string `json:"phone_number"`
	Status         string  `json:"status"`
	MessagesSent   int64   `json:"messages_sent"`
	CreatedAt      string  `json:"created_at"`
	LastActive     string  `json:"last_active"`
	PairingPending bool    `json:"pairing_pending"`
}

// PairingResponse is the payload of GET /instances/{id}/pairing.
type PairingResponse struct {
	Status    string `json:"status"`
	Challenge string `json:"challenge,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// VerifyCloudRequest is the payload for POST /instances/cloud/verify.
type VerifyCloudRequest struct {
	PhoneNumberID string `json:"phone_number_id" validate:"required"`
	AccessToken   string `json:"access_token" validate:"required"`
}

// SendMessageRequest is the payload for POST /messages/send.
type SendMessageRequest struct {
	InstanceID string `json:"instance_id" validate:"required"`
	To         string `json:"to" validate:"required"`
	Message    string `json:"message" validate:"required,min=1"`
}

// SendMessageResponse reports an accepted send.
type SendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	To        string `json:"to"`
}

// InjectMessageRequest is the payload for the debug message-injection
// endpoint.
type InjectMessageRequest struct {
	Direction string `json:"direction" validate:"required,oneof=sent received"`
	From      string `json:"from" validate:"required"`
	Content   string `json:"content" validate:"required"`
}

// CreateRuleRequest is the payload for POST /autoreplies.
type CreateRuleRequest struct {
	InstanceID     string `json:"instance_id" validate:"required"`
	FromNumber     string `json:"from_number"`
	TriggerMessage string `json:"trigger_message" validate:"required"`
	ReplyMessage   string `json:"reply_message" validate:"required"`
	CaseSensitive  bool   `json:"case_sensitive"`
	MatchType      string `json:"match_type" validate:"omitempty,oneof=exact contains"`
	Enabled        *bool  `json:"enabled"`
}

// UpdateRuleRequest carries a partial rule update; absent fields are left
// unchanged.
type UpdateRuleRequest struct {
	FromNumber     *string `json:"from_number"`
	TriggerMessage *string `json:"trigger_message"`
	ReplyMessage   *string `json:"reply_message"`
	CaseSensitive  *bool   `json:"case_sensitive"`
	MatchType      *string `json:"match_type" validate:"omitempty,oneof=exact contains"`
	Enabled        *bool   `json:"enabled"`
}

// GenerateKeyRequest is the payload for POST /keys/generate.
type GenerateKeyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// GenericErrorResponse for API errors.
type GenericErrorResponse struct {
	Error string `json:"error"`
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Default().Error("Failed to write JSON response", "error", err)
		}
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, GenericErrorResponse{Error: message})
}

// mapDomainErrorToHTTPStatus converts the service error taxonomy to HTTP
// status codes.
func mapDomainErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		var transportErr *domain.TransportError
		if errors.As(err, &transportErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

func newInstanceResponse(inst *domain.Instance, pairingPending bool) InstanceResponse {
	return InstanceResponse{
		ID:             inst.ID,
		Name:           inst.Name,
		Type:           string(inst.Type),
		PhoneNumber:    inst.PhoneNumber,
		Status:         string(inst.Status),
		MessagesSent:   inst.MessagesSent,
		CreatedAt:      inst.CreatedAt.Format(time.RFC3339),
		LastActive:     inst.LastActive.Format(time.RFC3339),
		PairingPending: pairingPending,
	}
}
