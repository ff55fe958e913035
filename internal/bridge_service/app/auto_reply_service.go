package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// AutoReplyService manages the auto-reply rule set. Rules belong to an
// instance and are evaluated by its session supervisor in insertion
// order.
type AutoReplyService struct {
	logger       *slog.Logger
	ruleRepo     domain.AutoReplyRuleRepository
	instanceRepo domain.InstanceRepository
}

func NewAutoReplyService(logger *slog.Logger, ruleRepo domain.AutoReplyRuleRepository, instanceRepo domain.InstanceRepository) *AutoReplyService {
	return &AutoReplyService{
		logger:       logger.With("component", "auto_reply_service"),
		ruleRepo:     ruleRepo,
		instanceRepo: instanceRepo,
	}
}

// CreateRule validates and persists a new rule for an existing instance.
// MatchType defaults to contains; new rules are enabled unless stated
// otherwise by the caller.
func (s *AutoReplyService) CreateRule(ctx context.Context, rule *domain.AutoReplyRule) (*domain.AutoReplyRule, error) {
	if rule.InstanceID == "" || rule.TriggerMessage == "" || rule.ReplyMessage == "" {
		return nil, fmt.Errorf("%w: instance_id, trigger_message and reply_message are required", domain.ErrValidation)
	}
	if rule.MatchType == "" {
		rule.MatchType = domain.MatchTypeContains
	}
	if err := validateMatchType(rule.MatchType); err != nil {
		return nil, err
	}
	if _, err := s.instanceRepo.GetByID(ctx, rule.InstanceID); err != nil {
		return nil, err
	}

	created, err := s.ruleRepo.Create(ctx, rule)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "auto-reply rule created", "rule_id", created.ID, "instance_id", created.InstanceID)
	return created, nil
}

// UpdateRule applies a partial update; nil patch fields are untouched.
func (s *AutoReplyService) UpdateRule(ctx context.Context, id string, patch domain.AutoReplyRulePatch) (*domain.AutoReplyRule, error) {
	if patch.MatchType != nil {
		if err := validateMatchType(*patch.MatchType); err != nil {
			return nil, err
		}
	}
	if patch.TriggerMessage != nil && *patch.TriggerMessage == "" {
		return nil, fmt.Errorf("%w: trigger_message cannot be empty", domain.ErrValidation)
	}
	if patch.ReplyMessage != nil && *patch.ReplyMessage == "" {
		return nil, fmt.Errorf("%w: reply_message cannot be empty", domain.ErrValidation)
	}

	updated, err := s.ruleRepo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "auto-reply rule updated", "rule_id", id)
	return updated, nil
}

func (s *AutoReplyService) DeleteRule(ctx context.Context, id string) error {
	if err := s.ruleRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "auto-reply rule deleted", "rule_id", id)
	return nil
}

func (s *AutoReplyService) GetRule(ctx context.Context, id string) (*domain.AutoReplyRule, error) {
	return s.ruleRepo.GetByID(ctx, id)
}

func (s *AutoReplyService) ListRules(ctx context.Context) ([]*domain.AutoReplyRule, error) {
	return s.ruleRepo.List(ctx)
}

func validateMatchType(mt domain.MatchType) error {
	switch mt {
	case domain.MatchTypeExact, domain.MatchTypeContains:
		return nil
	default:
		return fmt.Errorf("%w: match_type must be %q or %q", domain.ErrValidation, domain.MatchTypeExact, domain.MatchTypeContains)
	}
}
