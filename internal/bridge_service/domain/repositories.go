package domain

import "context"

// InstanceRepository is the durable store for instance metadata.
// Implementations must acknowledge writes only after they are durable and
// serialize concurrent mutations of the same instance id without blocking
// mutations of other ids.
type InstanceRepository interface {
	Create(ctx context.Context, inst *Instance) error
	GetByID(ctx context.Context, id string) (*Instance, error)
	List(ctx context.Context) ([]*Instance, error)
	// UpdateStatus moves the instance to the given status, optionally
	// binding a phone number, and refreshes last_active.
	UpdateStatus(ctx context.Context, id string, status ConnectionStatus, phoneNumber *string) error
	// IncrementMessagesSent bumps the monotonic sent counter and
	// refreshes last_active.
	IncrementMessagesSent(ctx context.Context, id string) error
	// DeleteCascade removes the instance and every auto-reply rule owned
	// by it within a single transaction.
	DeleteCascade(ctx context.Context, id string) error
}

// AutoReplyRulePatch carries the mutable fields of a rule; nil fields are
// left untouched by Update.
type AutoReplyRulePatch struct {
	FromNumber     *string
	TriggerMessage *string
	ReplyMessage   *string
	CaseSensitive  *bool
	MatchType      *MatchType
	Enabled        *bool
}

// AutoReplyRuleRepository is the durable store for auto-reply rules.
// Listing preserves insertion order; that order is the tie-break for
// rule evaluation.
type AutoReplyRuleRepository interface {
	Create(ctx context.Context, rule *AutoReplyRule) (*AutoReplyRule, error)
	Update(ctx context.Context, id string, patch AutoReplyRulePatch) (*AutoReplyRule, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*AutoReplyRule, error)
	List(ctx context.Context) ([]*AutoReplyRule, error)
	// ListEnabledByInstance returns only enabled rules for the instance,
	// in insertion order.
	ListEnabledByInstance(ctx context.Context, instanceID string) ([]*AutoReplyRule, error)
}

// APIKeyRepository persists the set of valid bearer tokens.
type APIKeyRepository interface {
	Add(ctx context.Context, key *APIKey) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]*APIKey, error)
	Remove(ctx context.Context, key string) error
}
