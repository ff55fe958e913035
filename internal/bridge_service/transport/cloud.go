package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// CloudTransport delivers through the WhatsApp Cloud (Graph) API. There is
// no pairing handshake: Connect verifies the credentials with a metadata
// lookup and reports the session established.
type CloudTransport struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	version    string
	config     domain.InstanceConfig

	events    chan Event
	closeOnce sync.Once
}

func NewCloudTransport(logger *slog.Logger, baseURL, version string, config domain.InstanceConfig, httpClient *http.Client) *CloudTransport {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &CloudTransport{
		logger:     logger.With("transport", "cloud_api"),
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		version:    version,
		config:     config,
		events:     make(chan Event, 8),
	}
}

func (t *CloudTransport) Name() string { return "cloud_api" }

// phoneNumberMetadata is the subset of the Graph phone-number object the
// transport cares about.
type phoneNumberMetadata struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
}

func (t *CloudTransport) Connect(ctx context.Context) error {
	if err := t.emit(ctx, Event{Type: EventConnecting}); err != nil {
		return err
	}

	meta, err := fetchPhoneNumberMetadata(ctx, t.httpClient, t.baseURL, t.version, t.config.PhoneNumberID, t.config.AccessToken)
	if err != nil {
		return err
	}

	t.logger.InfoContext(ctx, "cloud API credentials verified",
		"phone_number_id", t.config.PhoneNumberID, "display_phone_number", meta.DisplayPhoneNumber)
	return t.emit(ctx, Event{Type: EventConnected, PhoneNumber: meta.DisplayPhoneNumber})
}

// emit delivers an event unless the caller gives up first. Connect runs in
// a retry loop whose owner only drains events after a successful connect,
// so a blocking send here would make the loop uncancellable once the
// buffer fills.
func (t *CloudTransport) emit(ctx context.Context, ev Event) error {
	select {
	case t.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// graphSendRequest is the Cloud API text-message payload.
type graphSendRequest struct {
	MessagingProduct string    `json:"messaging_product"`
	RecipientType    string    `json:"recipient_type"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             graphText `json:"text"`
}

type graphText struct {
	Body string `json:"body"`
}

type graphErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (t *CloudTransport) Send(ctx context.Context, address, text string) error {
	body := graphSendRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               digitsOnly(address),
		Type:             "text",
		Text:             graphText{Body: text},
	}
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal cloud API request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", t.baseURL, t.version, t.config.PhoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return fmt.Errorf("failed to create cloud API request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.config.AccessToken)

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return &domain.TransportError{Provider: t.Name(), Err: err}
	}
	defer httpResp.Body.Close()

	respBody, _ := io.ReadAll(httpResp.Body)
	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		t.logger.DebugContext(ctx, "cloud API send accepted", "status_code", httpResp.StatusCode)
		return nil
	}

	status := fmt.Sprintf("HTTP_%d", httpResp.StatusCode)
	var graphErr graphErrorResponse
	if err := json.Unmarshal(respBody, &graphErr); err == nil && graphErr.Error.Message != "" {
		return &domain.TransportError{
			Provider: t.Name(),
			Status:   status,
			Err:      fmt.Errorf("%s (code %d)", graphErr.Error.Message, graphErr.Error.Code),
		}
	}
	return &domain.TransportError{
		Provider: t.Name(),
		Status:   status,
		Err:      fmt.Errorf("unexpected response: %s", truncate(string(respBody), 200)),
	}
}

func (t *CloudTransport) Events() <-chan Event { return t.events }

// Logout is a no-op: the Cloud API holds no pairing credentials to discard.
func (t *CloudTransport) Logout(ctx context.Context) error { return nil }

func (t *CloudTransport) Close() error {
	t.closeOnce.Do(func() { close(t.events) })
	return nil
}

// VerifyCloudCredentials checks a phone-number-id/access-token pair
// against the Graph API and returns the phone number metadata.
func VerifyCloudCredentials(ctx context.Context, httpClient *http.Client, baseURL, version, phoneNumberID, accessToken string) (json.RawMessage, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	url := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(baseURL, "/"), version, phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	httpResp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Provider: "cloud_api", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read verification response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &domain.TransportError{
			Provider: "cloud_api",
			Status:   fmt.Sprintf("HTTP_%d", httpResp.StatusCode),
			Err:      fmt.Errorf("credential verification rejected: %s", truncate(string(respBody), 200)),
		}
	}
	return json.RawMessage(respBody), nil
}

func fetchPhoneNumberMetadata(ctx context.Context, httpClient *http.Client, baseURL, version, phoneNumberID, accessToken string) (*phoneNumberMetadata, error) {
	raw, err := VerifyCloudCredentials(ctx, httpClient, baseURL, version, phoneNumberID, accessToken)
	if err != nil {
		return nil, err
	}
	var meta phoneNumberMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode phone number metadata: %w", err)
	}
	return &meta, nil
}

func digitsOnly(address string) string {
	var b strings.Builder
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
