package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// stubRuleService records calls and serves canned rules.
type stubRuleService struct {
	rules     map[string]*domain.AutoReplyRule
	createErr error
	lastPatch domain.AutoReplyRulePatch
}

func newStubRuleService() *stubRuleService {
	return &stubRuleService{rules: make(map[string]*domain.AutoReplyRule)}
}

func (s *stubRuleService) CreateRule(ctx context.Context, rule *domain.AutoReplyRule) (*domain.AutoReplyRule, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	cp := *rule
	cp.ID = "ar_new"
	if cp.MatchType == "" {
		cp.MatchType = domain.MatchTypeContains
	}
	s.rules[cp.ID] = &cp
	return &cp, nil
}

func (s *stubRuleService) UpdateRule(ctx context.Context, id string, patch domain.AutoReplyRulePatch) (*domain.AutoReplyRule, error) {
	rule, ok := s.rules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.lastPatch = patch
	return rule, nil
}

func (s *stubRuleService) DeleteRule(ctx context.Context, id string) error {
	if _, ok := s.rules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *stubRuleService) GetRule(ctx context.Context, id string) (*domain.AutoReplyRule, error) {
	rule, ok := s.rules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rule, nil
}

func (s *stubRuleService) ListRules(ctx context.Context) ([]*domain.AutoReplyRule, error) {
	out := make([]*domain.AutoReplyRule, 0, len(s.rules))
	for _, rule := range s.rules {
		out = append(out, rule)
	}
	return out, nil
}

func newRuleRouter(svc RuleService) chi.Router {
	handler := NewAutoReplyHandler(svc, discardLogger(), validator.New())
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func TestAutoReplyHandler_Create(t *testing.T) {
	svc := newStubRuleService()
	r := newRuleRouter(svc)

	body := `{"instance_id":"inst-1","trigger_message":"hours","reply_message":"9-5"}`
	req := httptest.NewRequest(http.MethodPost, "/autoreplies", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var rule domain.AutoReplyRule
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rule))
	assert.Equal(t, "ar_new", rule.ID)
	assert.True(t, rule.Enabled) // enabled by default
	assert.Equal(t, domain.MatchTypeContains, rule.MatchType)
}

func TestAutoReplyHandler_CreateRejectsBadMatchType(t *testing.T) {
	r := newRuleRouter(newStubRuleService())

	body := `{"instance_id":"inst-1","trigger_message":"x","reply_message":"y","match_type":"fuzzy"}`
	req := httptest.NewRequest(http.MethodPost, "/autoreplies", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutoReplyHandler_CreateUnknownInstance(t *testing.T) {
	svc := newStubRuleService()
	svc.createErr = domain.ErrNotFound
	r := newRuleRouter(svc)

	body := `{"instance_id":"inst-missing","trigger_message":"x","reply_message":"y"}`
	req := httptest.NewRequest(http.MethodPost, "/autoreplies", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAutoReplyHandler_UpdatePassesOnlyProvidedFields(t *testing.T) {
	svc := newStubRuleService()
	svc.rules["ar_1"] = &domain.AutoReplyRule{ID: "ar_1", TriggerMessage: "hi", ReplyMessage: "yo", Enabled: true}
	r := newRuleRouter(svc)

	body := `{"enabled":false}`
	req := httptest.NewRequest(http.MethodPut, "/autoreplies/ar_1", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastPatch.Enabled)
	assert.False(t, *svc.lastPatch.Enabled)
	assert.Nil(t, svc.lastPatch.TriggerMessage)
	assert.Nil(t, svc.lastPatch.MatchType)
}

func TestAutoReplyHandler_Delete(t *testing.T) {
	svc := newStubRuleService()
	svc.rules["ar_1"] = &domain.AutoReplyRule{ID: "ar_1"}
	r := newRuleRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/autoreplies/ar_1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/autoreplies/ar_1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
