package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// BridgeTransport is an HTTP+SSE client to the external bridge daemon that
// owns the actual protocol session for a bridged instance. The daemon
// streams lifecycle and inbound-message events over
// GET {backend}/instances/{id}/events and accepts sends on
// POST {backend}/instances/{id}/send.
type BridgeTransport struct {
	logger     *slog.Logger
	httpClient *http.Client
	instanceID string
	baseURL    string

	events chan Event

	mu         sync.Mutex
	cancelRead context.CancelFunc
	readerDone chan struct{}
	closeOnce  sync.Once
}

func NewBridgeTransport(logger *slog.Logger, instanceID, backendURL string, httpClient *http.Client) *BridgeTransport {
	if httpClient == nil {
		// No global timeout: the event stream is long-lived.
		httpClient = &http.Client{}
	}
	return &BridgeTransport{
		logger:     logger.With("transport", "web_bridge", "instance_id", instanceID),
		httpClient: httpClient,
		instanceID: instanceID,
		baseURL:    strings.TrimSuffix(backendURL, "/"),
		events:     make(chan Event, 16),
	}
}

func (t *BridgeTransport) Name() string { return "web_bridge" }

// Connect opens the daemon's event stream. A previous stream, if any, is
// torn down first; the daemon re-establishes the protocol session from
// its durable credentials and replays the current lifecycle state.
func (t *BridgeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.cancelRead != nil {
		t.cancelRead()
		done := t.readerDone
		t.mu.Unlock()
		<-done
		t.mu.Lock()
	}

	streamCtx, cancel := context.WithCancel(ctx)
	url := fmt.Sprintf("%s/instances/%s/events", t.baseURL, t.instanceID)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		t.mu.Unlock()
		return fmt.Errorf("failed to create event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		cancel()
		t.mu.Unlock()
		return &domain.TransportError{Provider: t.Name(), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		t.mu.Unlock()
		return &domain.TransportError{
			Provider: t.Name(),
			Status:   fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Err:      fmt.Errorf("event stream rejected"),
		}
	}

	done := make(chan struct{})
	t.cancelRead = cancel
	t.readerDone = done
	t.mu.Unlock()

	t.emit(streamCtx, Event{Type: EventConnecting})
	go t.readEvents(streamCtx, resp.Body, done)
	return nil
}

// readEvents consumes the SSE stream line by line. Each `data:` line
// carries one JSON-encoded Event; comment lines (heartbeats) are skipped.
func (t *BridgeTransport) readEvents(ctx context.Context, body io.ReadCloser, done chan struct{}) {
	defer close(done)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), 256*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
			t.logger.Warn("dropping malformed bridge event", "error", err)
			continue
		}
		t.emit(ctx, ev)
	}

	if ctx.Err() != nil {
		// Deliberate teardown, not a connection loss.
		return
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn("bridge event stream failed", "error", err)
	}
	t.emit(ctx, Event{Type: EventDisconnected, Recoverable: true})
}

func (t *BridgeTransport) emit(ctx context.Context, ev Event) {
	select {
	case t.events <- ev:
	case <-ctx.Done():
	}
}

func (t *BridgeTransport) Send(ctx context.Context, address, text string) error {
	payload, err := json.Marshal(map[string]string{"to": address, "text": text})
	if err != nil {
		return fmt.Errorf("failed to marshal bridge send request: %w", err)
	}

	url := fmt.Sprintf("%s/instances/%s/send", t.baseURL, t.instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create bridge send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Provider: t.Name(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &domain.TransportError{
			Provider: t.Name(),
			Status:   fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Err:      fmt.Errorf("send rejected: %s", strings.TrimSpace(string(respBody))),
		}
	}
	return nil
}

func (t *BridgeTransport) Events() <-chan Event { return t.events }

// Logout asks the daemon to discard the instance's durable credentials.
func (t *BridgeTransport) Logout(ctx context.Context) error {
	url := fmt.Sprintf("%s/instances/%s/logout", t.baseURL, t.instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create bridge logout request: %w", err)
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return &domain.TransportError{Provider: t.Name(), Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return &domain.TransportError{
			Provider: t.Name(),
			Status:   fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Err:      fmt.Errorf("logout rejected"),
		}
	}
	return nil
}

func (t *BridgeTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		cancel := t.cancelRead
		done := t.readerDone
		t.mu.Unlock()
		if cancel != nil {
			cancel()
			<-done
		}
		close(t.events)
	})
	return nil
}
