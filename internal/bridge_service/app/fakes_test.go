package app

import (
	"context"
	"sync"
	"time"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// fakeInstanceRepo is an in-memory InstanceRepository for app-level tests.
type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances map[string]*domain.Instance
	statusLog []domain.ConnectionStatus
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[string]*domain.Instance)}
}

func (r *fakeInstanceRepo) Create(ctx context.Context, inst *domain.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inst
	r.instances[inst.ID] = &cp
	return nil
}

func (r *fakeInstanceRepo) GetByID(ctx context.Context, id string) (*domain.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (r *fakeInstanceRepo) List(ctx context.Context) ([]*domain.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		cp := *inst
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeInstanceRepo) UpdateStatus(ctx context.Context, id string, status domain.ConnectionStatus, phoneNumber *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusLog = append(r.statusLog, status)
	inst, ok := r.instances[id]
	if !ok {
		return domain.ErrNotFound
	}
	inst.Status = status
	if phoneNumber != nil {
		inst.PhoneNumber = phoneNumber
	}
	inst.LastActive = time.Now().UTC()
	return nil
}

func (r *fakeInstanceRepo) IncrementMessagesSent(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return domain.ErrNotFound
	}
	inst.MessagesSent++
	return nil
}

func (r *fakeInstanceRepo) DeleteCascade(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.instances, id)
	return nil
}

func (r *fakeInstanceRepo) get(id string) *domain.Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil
	}
	cp := *inst
	return &cp
}

// fakeRuleRepo is an in-memory AutoReplyRuleRepository preserving
// insertion order.
type fakeRuleRepo struct {
	mu    sync.Mutex
	rules []*domain.AutoReplyRule
	err   error
}

func (r *fakeRuleRepo) Create(ctx context.Context, rule *domain.AutoReplyRule) (*domain.AutoReplyRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	cp := *rule
	if cp.ID == "" {
		cp.ID = "ar_test"
	}
	r.rules = append(r.rules, &cp)
	out := cp
	return &out, nil
}

func (r *fakeRuleRepo) Update(ctx context.Context, id string, patch domain.AutoReplyRulePatch) (*domain.AutoReplyRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range r.rules {
		if rule.ID != id {
			continue
		}
		if patch.FromNumber != nil {
			rule.FromNumber = *patch.FromNumber
		}
		if patch.TriggerMessage != nil {
			rule.TriggerMessage = *patch.TriggerMessage
		}
		if patch.ReplyMessage != nil {
			rule.ReplyMessage = *patch.ReplyMessage
		}
		if patch.CaseSensitive != nil {
			rule.CaseSensitive = *patch.CaseSensitive
		}
		if patch.MatchType != nil {
			rule.MatchType = *patch.MatchType
		}
		if patch.Enabled != nil {
			rule.Enabled = *patch.Enabled
		}
		cp := *rule
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRuleRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rule := range r.rules {
		if rule.ID == id {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *fakeRuleRepo) GetByID(ctx context.Context, id string) (*domain.AutoReplyRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range r.rules {
		if rule.ID == id {
			cp := *rule
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRuleRepo) List(ctx context.Context) ([]*domain.AutoReplyRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.AutoReplyRule, 0, len(r.rules))
	for _, rule := range r.rules {
		cp := *rule
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRuleRepo) ListEnabledByInstance(ctx context.Context, instanceID string) ([]*domain.AutoReplyRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []*domain.AutoReplyRule
	for _, rule := range r.rules {
		if rule.InstanceID == instanceID && rule.Enabled {
			cp := *rule
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeKeyRepo is an in-memory APIKeyRepository.
type fakeKeyRepo struct {
	mu   sync.Mutex
	keys map[string]*domain.APIKey
}

func newFakeKeyRepo() *fakeKeyRepo {
	return &fakeKeyRepo{keys: make(map[string]*domain.APIKey)}
}

func (r *fakeKeyRepo) Add(ctx context.Context, key *domain.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *key
	r.keys[key.Key] = &cp
	return nil
}

func (r *fakeKeyRepo) Exists(ctx context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.keys[key]
	return ok, nil
}

func (r *fakeKeyRepo) List(ctx context.Context) ([]*domain.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.APIKey, 0, len(r.keys))
	for _, key := range r.keys {
		cp := *key
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeKeyRepo) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[key]; !ok {
		return domain.ErrNotFound
	}
	delete(r.keys, key)
	return nil
}
