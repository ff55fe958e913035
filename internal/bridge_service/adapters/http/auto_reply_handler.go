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

// RuleService is the slice of the auto-reply service the handler drives.
type RuleService interface {
	CreateRule(ctx context.Context, rule *domain.AutoReplyRule) (*domain.AutoReplyRule, error)
	UpdateRule(ctx context.Context, id string, patch domain.AutoReplyRulePatch) (*domain.AutoReplyRule, error)
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (*domain.AutoReplyRule, error)
	ListRules(ctx context.Context) ([]*domain.AutoReplyRule, error)
}

// AutoReplyHandler serves the auto-reply rule CRUD surface.
type AutoReplyHandler struct {
	rules    RuleService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewAutoReplyHandler(rules RuleService, logger *slog.Logger, validate *validator.Validate) *AutoReplyHandler {
	return &AutoReplyHandler{
		rules:    rules,
		logger:   logger.With("handler", "auto_reply"),
		validate: validate,
	}
}

// RegisterRoutes registers rule routes with the given router.
func (h *AutoReplyHandler) RegisterRoutes(r chi.Router) {
	r.Get("/autoreplies", h.handleListRules)
	r.Post("/autoreplies", h.handleCreateRule)
	r.Get("/autoreplies/{ruleID}", h.handleGetRule)
	r.Put("/autoreplies/{ruleID}", h.handleUpdateRule)
	r.Delete("/autoreplies/{ruleID}", h.handleDeleteRule)
}

func (h *AutoReplyHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rules, err := h.rules.ListRules(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list auto-reply rules", "error", err)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Failed to list rules")
		return
	}
	respondWithJSON(w, http.StatusOK, rules)
}

func (h *AutoReplyHandler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	rule := &domain.AutoReplyRule{
		InstanceID:     req.InstanceID,
		FromNumber:     req.FromNumber,
		TriggerMessage: req.TriggerMessage,
		ReplyMessage:   req.ReplyMessage,
		CaseSensitive:  req.CaseSensitive,
		MatchType:      domain.MatchType(req.MatchType),
		Enabled:        enabled,
	}

	created, err := h.rules.CreateRule(ctx, rule)
	if err != nil {
		logger.WarnContext(ctx, "Failed to create auto-reply rule", "error", err)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}

	logger.InfoContext(ctx, "Auto-reply rule created", "rule_id", created.ID)
	respondWithJSON(w, http.StatusCreated, created)
}

func (h *AutoReplyHandler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.rules.GetRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Rule not found")
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

func (h *AutoReplyHandler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	ruleID := chi.URLParam(r, "ruleID")

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	patch := domain.AutoReplyRulePatch{
		FromNumber:     req.FromNumber,
		TriggerMessage: req.TriggerMessage,
		ReplyMessage:   req.ReplyMessage,
		CaseSensitive:  req.CaseSensitive,
		Enabled:        req.Enabled,
	}
	if req.MatchType != nil {
		mt := domain.MatchType(*req.MatchType)
		patch.MatchType = &mt
	}

	updated, err := h.rules.UpdateRule(ctx, ruleID, patch)
	if err != nil {
		logger.WarnContext(ctx, "Failed to update auto-reply rule", "error", err, "rule_id", ruleID)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}

	logger.InfoContext(ctx, "Auto-reply rule updated", "rule_id", ruleID)
	respondWithJSON(w, http.StatusOK, updated)
}

func (h *AutoReplyHandler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	ruleID := chi.URLParam(r, "ruleID")

	if err := h.rules.DeleteRule(ctx, ruleID); err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Rule not found")
		return
	}

	logger.InfoContext(ctx, "Auto-reply rule deleted", "rule_id", ruleID)
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}
