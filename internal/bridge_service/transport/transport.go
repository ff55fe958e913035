// Package transport abstracts the external messaging connection an
// instance is bound to. The session supervisor consumes it as an opaque
// event source plus a send method; protocol internals (pairing handshake,
// wire encoding, encryption) live behind this boundary.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// EventType enumerates the lifecycle and message events a transport emits.
type EventType string

const (
	EventConnecting       EventType = "connecting"
	EventPairingChallenge EventType = "pairing_challenge"
	EventConnected        EventType = "connected"
	EventDisconnected     EventType = "disconnected"
	EventMessage          EventType = "message"
)

// Event is one occurrence on a transport connection. Only the fields
// relevant to the Type are populated.
type Event struct {
	Type        EventType `json:"type"`
	Challenge   string    `json:"challenge,omitempty"`    // pairing_challenge
	PhoneNumber string    `json:"phone_number,omitempty"` // connected
	Recoverable bool      `json:"recoverable,omitempty"`  // disconnected
	Sender      string    `json:"sender,omitempty"`       // message
	Text        string    `json:"text,omitempty"`         // message
}

// Transport is a long-lived connection to an external messaging system.
// Connect may be called again after a recoverable disconnect; Logout
// discards the durable credentials held for the instance on the far side.
type Transport interface {
	Name() string
	Connect(ctx context.Context) error
	Send(ctx context.Context, address, text string) error
	Events() <-chan Event
	Logout(ctx context.Context) error
	Close() error
}

// Factory builds the transport matching an instance's type and config.
type Factory interface {
	New(inst *domain.Instance) (Transport, error)
}

// ClientFactory is the production Factory: cloud instances get a Graph
// API client, bridge instances an SSE client to their bridge daemon.
type ClientFactory struct {
	Logger       *slog.Logger
	HTTPClient   *http.Client
	GraphBaseURL string
	GraphVersion string
}

func NewClientFactory(logger *slog.Logger, graphBaseURL, graphVersion string) *ClientFactory {
	return &ClientFactory{
		Logger:       logger,
		HTTPClient:   &http.Client{Timeout: 15 * time.Second},
		GraphBaseURL: graphBaseURL,
		GraphVersion: graphVersion,
	}
}

func (f *ClientFactory) New(inst *domain.Instance) (Transport, error) {
	switch inst.Type {
	case domain.InstanceTypeCloud:
		if inst.Config.PhoneNumberID == "" || inst.Config.AccessToken == "" {
			return nil, fmt.Errorf("%w: cloud instance requires phone_number_id and access_token", domain.ErrValidation)
		}
		return NewCloudTransport(f.Logger, f.GraphBaseURL, f.GraphVersion, inst.Config, f.HTTPClient), nil
	case domain.InstanceTypeBridge:
		if inst.Config.BackendURL == "" {
			return nil, fmt.Errorf("%w: bridge instance requires backend_url", domain.ErrValidation)
		}
		return NewBridgeTransport(f.Logger, inst.ID, inst.Config.BackendURL, nil), nil
	default:
		return nil, fmt.Errorf("%w: unsupported instance type %q", domain.ErrValidation, inst.Type)
	}
}
