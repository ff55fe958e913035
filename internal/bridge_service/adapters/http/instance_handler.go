package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/app"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// InstanceOrchestrator is the slice of the session manager the instance
// handler drives.
type InstanceOrchestrator interface {
	CreateInstance(ctx context.Context, name string, instType domain.InstanceType, config domain.InstanceConfig) (*domain.Instance, error)
	ListInstances(ctx context.Context) ([]*domain.Instance, error)
	GetInstance(ctx context.Context, id string) (*domain.Instance, error)
	DeleteInstance(ctx context.Context, id string) error
	PairingInfo(ctx context.Context, id string) (app.PairingInfo, error)
	PairingPending(id string) bool
}

// CloudVerifier checks Graph API credentials and returns the provider's
// phone-number metadata.
type CloudVerifier func(ctx context.Context, phoneNumberID, accessToken string) (json.RawMessage, error)

// InstanceHandler serves instance lifecycle commands.
type InstanceHandler struct {
	orchestrator InstanceOrchestrator
	verifyCloud  CloudVerifier
	logger       *slog.Logger
	validate     *validator.Validate
}

func NewInstanceHandler(orchestrator InstanceOrchestrator, verifyCloud CloudVerifier, logger *slog.Logger, validate *validator.Validate) *InstanceHandler {
	return &InstanceHandler{
		orchestrator: orchestrator,
		verifyCloud:  verifyCloud,
		logger:       logger.With("handler", "instance"),
		validate:     validate,
	}
}

// RegisterRoutes registers instance routes with the given router.
func (h *InstanceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/instances", h.handleListInstances)
	r.Post("/instances", h.handleCreateInstance)
	r.Post("/instances/cloud/verify", h.handleVerifyCloud)
	r.Get("/instances/{instanceID}", h.handleGetInstance)
	r.Delete("/instances/{instanceID}", h.handleDeleteInstance)
	r.Get("/instances/{instanceID}/pairing", h.handleGetPairing)
}

func (h *InstanceHandler) handleListInstances(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	instances, err := h.orchestrator.ListInstances(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list instances", "error", err)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Failed to list instances")
		return
	}

	out := make([]InstanceResponse, 0, len(instances))
	for _, inst := range instances {
		out = append(out, newInstanceResponse(inst, h.orchestrator.PairingPending(inst.ID)))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (h *InstanceHandler) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	inst, err := h.orchestrator.CreateInstance(ctx, req.Name, domain.InstanceType(req.Type), req.Config)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create instance", "error", err, "name", req.Name)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}

	logger.InfoContext(ctx, "Instance created", "instance_id", inst.ID, "type", req.Type)
	respondWithJSON(w, http.StatusCreated, newInstanceResponse(inst, false))
}

func (h *InstanceHandler) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID := chi.URLParam(r, "instanceID")

	inst, err := h.orchestrator.GetInstance(ctx, instanceID)
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Instance not found")
		return
	}
	respondWithJSON(w, http.StatusOK, newInstanceResponse(inst, h.orchestrator.PairingPending(inst.ID)))
}

func (h *InstanceHandler) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	instanceID := chi.URLParam(r, "instanceID")

	if err := h.orchestrator.DeleteInstance(ctx, instanceID); err != nil {
		logger.ErrorContext(ctx, "Failed to delete instance", "error", err, "instance_id", instanceID)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Failed to delete instance")
		return
	}

	logger.InfoContext(ctx, "Instance deleted", "instance_id", instanceID)
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *InstanceHandler) handleGetPairing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	instanceID := chi.URLParam(r, "instanceID")

	info, err := h.orchestrator.PairingInfo(ctx, instanceID)
	if err != nil {
		logger.WarnContext(ctx, "Failed to fetch pairing info", "error", err, "instance_id", instanceID)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}

	resp := PairingResponse{Status: string(info.Status), Challenge: info.Challenge}
	if !info.ExpiresAt.IsZero() {
		resp.ExpiresAt = info.ExpiresAt.Format(time.RFC3339)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *InstanceHandler) handleVerifyCloud(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req VerifyCloudRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	meta, err := h.verifyCloud(ctx, req.PhoneNumberID, req.AccessToken)
	if err != nil {
		logger.WarnContext(ctx, "Cloud credential verification failed", "error", err, "phone_number_id", req.PhoneNumberID)
		respondWithJSON(w, mapDomainErrorToHTTPStatus(err), map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"valid":        true,
		"phone_number": meta,
	})
}
