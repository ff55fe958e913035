package domain

import "time"

// APIKey is an opaque bearer token admitted by the access gate.
// Membership in the key set is the only semantic; quotas and expiry are
// out of scope.
type APIKey struct {
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
