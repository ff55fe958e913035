package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// KeyIssuer is the slice of the access gate the handler drives.
type KeyIssuer interface {
	Issue(ctx context.Context, name string) (*domain.APIKey, error)
	Revoke(ctx context.Context, key string) error
	List(ctx context.Context) ([]*domain.APIKey, error)
}

// APIKeyHandler serves API key management.
type APIKeyHandler struct {
	gate     KeyIssuer
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAPIKeyHandler(gate KeyIssuer, logger *slog.Logger, validate *validator.Validate) *APIKeyHandler {
	return &APIKeyHandler{
		gate:     gate,
		logger:   logger.With("handler", "api_key"),
		validate: validate,
	}
}

// RegisterRoutes registers key management routes with the given router.
func (h *APIKeyHandler) RegisterRoutes(r chi.Router) {
	r.Get("/keys", h.handleListKeys)
	r.Post("/keys/generate", h.handleGenerateKey)
	r.Delete("/keys/{key}", h.handleRevokeKey)
}

func (h *APIKeyHandler) handleListKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	keys, err := h.gate.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list API keys", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to list API keys")
		return
	}
	respondWithJSON(w, http.StatusOK, keys)
}

func (h *APIKeyHandler) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req GenerateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	key, err := h.gate.Issue(ctx, req.Name)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to issue API key", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to issue API key")
		return
	}

	logger.InfoContext(ctx, "API key issued", "name", req.Name)
	respondWithJSON(w, http.StatusCreated, key)
}

func (h *APIKeyHandler) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	key := chi.URLParam(r, "key")

	if err := h.gate.Revoke(ctx, key); err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "API key not found")
		return
	}

	logger.InfoContext(ctx, "API key revoked")
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
