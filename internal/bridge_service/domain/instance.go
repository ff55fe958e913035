package domain

import "time"

// InstanceType defines the delivery path an instance uses.
type InstanceType string

const (
	// InstanceTypeBridge is a long-lived bridged session driven by an
	// external bridge daemon (QR pairing, lifecycle events).
	InstanceTypeBridge InstanceType = "web_bridge"
	// InstanceTypeCloud delivers through the WhatsApp Cloud (Graph) API.
	InstanceTypeCloud InstanceType = "cloud_api"
)

// ConnectionStatus defines the lifecycle state of an instance's session.
type ConnectionStatus string

const (
	StatusProvisioning    ConnectionStatus = "provisioning"
	StatusConnecting      ConnectionStatus = "connecting"
	StatusAwaitingPairing ConnectionStatus = "awaiting_pairing"
	StatusConnected       ConnectionStatus = "connected"
	StatusDisconnected    ConnectionStatus = "disconnected" // terminal: unrecoverable or explicit
	StatusRemoved         ConnectionStatus = "removed"      // terminal: instance deleted
)

// Terminal reports whether the status permits no further transitions
// other than removal.
func (s ConnectionStatus) Terminal() bool {
	return s == StatusDisconnected || s == StatusRemoved
}

// validTransitions encodes the session lifecycle state machine. Any state
// may additionally move to disconnected (unrecoverable) or removed
// (explicit delete); those are handled in CanTransition.
var validTransitions = map[ConnectionStatus][]ConnectionStatus{
	StatusProvisioning:    {StatusConnecting},
	StatusConnecting:      {StatusAwaitingPairing, StatusConnected},
	StatusAwaitingPairing: {StatusConnecting, StatusConnected},
	StatusConnected:       {StatusConnecting},
}

// CanTransition reports whether the lifecycle state machine allows moving
// from one status to another.
func CanTransition(from, to ConnectionStatus) bool {
	if to == StatusDisconnected || to == StatusRemoved {
		return !from.Terminal() || (from == StatusDisconnected && to == StatusRemoved)
	}
	if from.Terminal() {
		return false
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InstanceConfig holds the transport-specific configuration blob.
// For bridge instances only BackendURL is meaningful; for cloud instances
// the Graph credentials are required.
type InstanceConfig struct {
	BackendURL    string `json:"backend_url,omitempty"`
	PhoneNumberID string `json:"phone_number_id,omitempty"`
	WabaID        string `json:"waba_id,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
}

// Instance represents one logical WhatsApp endpoint managed by the system.
type Instance struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Type         InstanceType     `json:"type"`
	PhoneNumber  *string          `json:"phone_number"` // nil until the transport binds a number
	Status       ConnectionStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActive   time.Time        `json:"last_active"`
	MessagesSent int64            `json:"messages_sent"`
	Config       InstanceConfig   `json:"config"`
}
