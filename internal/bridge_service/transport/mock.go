package transport

import (
	"context"
	"fmt"
	"sync"
)

// MockTransport is a channel-driven test double. Tests push events with
// the Emit* helpers and inspect sends through SentMessages; FailSend
// simulates transport-level send failures.
type MockTransport struct {
	mu           sync.Mutex
	connectCalls int
	logoutCalls  int
	closed       bool
	sent         []MockSentMessage

	FailSend    bool
	FailConnect bool
	ConnectErr  error // returned verbatim when set, overriding FailConnect

	events chan Event
}

// MockSentMessage records one Send call.
type MockSentMessage struct {
	Address string
	Text    string
}

func NewMockTransport() *MockTransport {
	return &MockTransport{events: make(chan Event, 64)}
}

func (m *MockTransport) Name() string { return "mock" }

func (m *MockTransport) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	if m.FailConnect {
		return fmt.Errorf("mock transport simulated connect failure")
	}
	return nil
}

func (m *MockTransport) Send(ctx context.Context, address, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return fmt.Errorf("mock transport simulated send failure")
	}
	m.sent = append(m.sent, MockSentMessage{Address: address, Text: text})
	return nil
}

func (m *MockTransport) Events() <-chan Event { return m.events }

func (m *MockTransport) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logoutCalls++
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

// SetFailConnect flips the connect failure flag while the transport may
// be in use by another goroutine.
func (m *MockTransport) SetFailConnect(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailConnect = fail
}

// SetFailSend flips the send failure flag.
func (m *MockTransport) SetFailSend(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailSend = fail
}

func (m *MockTransport) EmitConnecting() { m.events <- Event{Type: EventConnecting} }

func (m *MockTransport) EmitPairingChallenge(challenge string) {
	m.events <- Event{Type: EventPairingChallenge, Challenge: challenge}
}

func (m *MockTransport) EmitConnected(phoneNumber string) {
	m.events <- Event{Type: EventConnected, PhoneNumber: phoneNumber}
}

func (m *MockTransport) EmitDisconnected(recoverable bool) {
	m.events <- Event{Type: EventDisconnected, Recoverable: recoverable}
}

func (m *MockTransport) EmitMessage(sender, text string) {
	m.events <- Event{Type: EventMessage, Sender: sender, Text: text}
}

func (m *MockTransport) SentMessages() []MockSentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockSentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockTransport) ConnectCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectCalls
}

func (m *MockTransport) LogoutCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.logoutCalls
}

func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
