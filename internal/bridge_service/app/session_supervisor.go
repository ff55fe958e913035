package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/transport"
)

// SupervisorConfig tunes the per-session lifecycle loop.
type SupervisorConfig struct {
	PairingChallengeTTL time.Duration
	ReconnectMinBackoff time.Duration
	ReconnectMaxBackoff time.Duration
}

// SessionSupervisor owns the live session of a single instance: it drives
// the transport connection, applies lifecycle transitions, records
// messages in the log, and fires auto-replies on inbound messages. One
// goroutine per supervisor; all mutable state is behind mu.
type SessionSupervisor struct {
	logger       *slog.Logger
	instanceID   string
	transport    transport.Transport
	instanceRepo domain.InstanceRepository
	ruleRepo     domain.AutoReplyRuleRepository
	messageLog   *MessageLog
	cfg          SupervisorConfig

	mu              sync.RWMutex
	status          domain.ConnectionStatus
	challenge       string
	challengeExpiry time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSessionSupervisor(
	logger *slog.Logger,
	inst *domain.Instance,
	tr transport.Transport,
	instanceRepo domain.InstanceRepository,
	ruleRepo domain.AutoReplyRuleRepository,
	messageLog *MessageLog,
	cfg SupervisorConfig,
) *SessionSupervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionSupervisor{
		logger:       logger.With("component", "session_supervisor", "instance_id", inst.ID),
		instanceID:   inst.ID,
		transport:    tr,
		instanceRepo: instanceRepo,
		ruleRepo:     ruleRepo,
		messageLog:   messageLog,
		cfg:          cfg,
		status:       inst.Status,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
}

// Start launches the supervision loop. It returns immediately; the loop
// runs until the session reaches a terminal state or Shutdown is called.
func (s *SessionSupervisor) Start() {
	go s.run()
}

func (s *SessionSupervisor) run() {
	defer close(s.done)
	defer s.transport.Close()

	s.transitionTo(domain.StatusConnecting, nil)
	if err := s.connectWithRetry(); err != nil {
		return
	}

	for {
		var timer *time.Timer
		var expiryCh <-chan time.Time
		s.mu.RLock()
		if s.status == domain.StatusAwaitingPairing && !s.challengeExpiry.IsZero() {
			timer = time.NewTimer(time.Until(s.challengeExpiry))
			expiryCh = timer.C
		}
		s.mu.RUnlock()

		stop := false
		select {
		case <-s.ctx.Done():
			stop = true
		case <-expiryCh:
			s.expirePairingChallenge()
		case ev, ok := <-s.transport.Events():
			if !ok {
				stop = true
			} else {
				stop = s.handleEvent(ev)
			}
		}
		if timer != nil {
			timer.Stop()
		}
		if stop {
			return
		}
	}
}

// connectWithRetry calls Connect until it succeeds, backing off
// exponentially between attempts. An unrecoverable failure (rejected
// credentials, invalid config) moves the session to disconnected and
// stops retrying.
func (s *SessionSupervisor) connectWithRetry() error {
	backoff := s.cfg.ReconnectMinBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := s.cfg.ReconnectMaxBackoff
	if maxBackoff < backoff {
		maxBackoff = backoff
	}

	for {
		err := s.transport.Connect(s.ctx)
		if err == nil {
			return nil
		}
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		if isUnrecoverable(err) {
			s.logger.Error("session connect failed permanently", "error", err)
			s.enterDisconnected()
			return err
		}

		s.logger.Warn("session connect failed, retrying", "error", err, "backoff", backoff.String())
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// handleEvent applies one transport event to the session. It returns true
// when the session has reached a terminal state and the loop must stop.
func (s *SessionSupervisor) handleEvent(ev transport.Event) bool {
	switch ev.Type {
	case transport.EventConnecting:
		s.transitionTo(domain.StatusConnecting, nil)

	case transport.EventPairingChallenge:
		s.mu.Lock()
		s.challenge = ev.Challenge
		s.challengeExpiry = time.Now().Add(s.cfg.PairingChallengeTTL)
		s.mu.Unlock()
		s.transitionTo(domain.StatusAwaitingPairing, nil)

	case transport.EventConnected:
		s.mu.Lock()
		s.challenge = ""
		s.challengeExpiry = time.Time{}
		s.mu.Unlock()
		var phone *string
		if ev.PhoneNumber != "" {
			normalized := domain.NormalizePhoneNumber(ev.PhoneNumber)
			phone = &normalized
		}
		s.transitionTo(domain.StatusConnected, phone)

	case transport.EventDisconnected:
		if !ev.Recoverable {
			s.logger.Warn("session disconnected permanently")
			s.enterDisconnected()
			return true
		}
		s.logger.Warn("session lost, reconnecting")
		s.transitionTo(domain.StatusConnecting, nil)
		if err := s.connectWithRetry(); err != nil {
			return true
		}

	case transport.EventMessage:
		s.handleInboundMessage(ev)

	default:
		s.logger.Warn("ignoring unknown transport event", "event_type", string(ev.Type))
	}
	return false
}

// handleInboundMessage records the message and evaluates auto-reply rules
// in insertion order, firing at most the first matching rule. A failed
// reply send never removes the recorded inbound entry.
func (s *SessionSupervisor) handleInboundMessage(ev transport.Event) {
	entry := domain.NewMessageLogEntry(domain.DirectionReceived, ev.Sender, ev.Text)
	s.messageLog.Append(s.ctx, s.instanceID, entry)
	messagesReceivedCounter.WithLabelValues(s.transport.Name()).Inc()

	rules, err := s.ruleRepo.ListEnabledByInstance(s.ctx, s.instanceID)
	if err != nil {
		s.logger.Error("failed to load auto-reply rules", "error", err)
		return
	}

	for _, rule := range rules {
		if !rule.Matches(ev.Sender, ev.Text) {
			continue
		}
		s.logger.Info("auto-reply rule matched", "rule_id", rule.ID, "sender", ev.Sender)
		if err := s.transport.Send(s.ctx, ev.Sender, rule.ReplyMessage); err != nil {
			s.logger.Error("failed to send auto-reply", "rule_id", rule.ID, "error", err)
			return
		}
		reply := domain.NewMessageLogEntry(domain.DirectionSent, ev.Sender, rule.ReplyMessage)
		s.messageLog.Append(s.ctx, s.instanceID, reply)
		messagesSentCounter.WithLabelValues(s.transport.Name()).Inc()
		autoRepliesFiredCounter.Inc()
		if err := s.instanceRepo.IncrementMessagesSent(s.ctx, s.instanceID); err != nil {
			s.logger.Error("failed to increment sent counter", "error", err)
		}
		return
	}
}

// Send delivers an outbound message through the session. It fails with
// domain.ErrNotReady unless the session is connected; nothing is recorded
// in the message log when the transport rejects the send.
func (s *SessionSupervisor) Send(ctx context.Context, to, text string) (domain.MessageLogEntry, error) {
	s.mu.RLock()
	status := s.status
	s.mu.RUnlock()
	if status != domain.StatusConnected {
		return domain.MessageLogEntry{}, domain.ErrNotReady
	}

	start := time.Now()
	err := s.transport.Send(ctx, to, text)
	transportSendDurationHist.WithLabelValues(s.transport.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return domain.MessageLogEntry{}, err
	}

	entry := domain.NewMessageLogEntry(domain.DirectionSent, to, text)
	s.messageLog.Append(ctx, s.instanceID, entry)
	messagesSentCounter.WithLabelValues(s.transport.Name()).Inc()
	if err := s.instanceRepo.IncrementMessagesSent(ctx, s.instanceID); err != nil {
		s.logger.ErrorContext(ctx, "failed to increment sent counter", "error", err)
	}
	return entry, nil
}

// Status returns the session's current lifecycle state.
func (s *SessionSupervisor) Status() domain.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// PairingChallenge returns the live pairing challenge, its expiry, and
// whether one is currently pending.
func (s *SessionSupervisor) PairingChallenge() (string, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != domain.StatusAwaitingPairing || s.challenge == "" {
		return "", time.Time{}, false
	}
	return s.challenge, s.challengeExpiry, true
}

// Shutdown stops the supervision loop and closes the transport. With
// logout set, the transport's durable pairing credentials are discarded
// first so the next session must pair again.
func (s *SessionSupervisor) Shutdown(ctx context.Context, logout bool) {
	if logout {
		if err := s.transport.Logout(ctx); err != nil {
			s.logger.WarnContext(ctx, "transport logout failed", "error", err)
		}
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "timed out waiting for supervision loop to stop")
	}
}

// expirePairingChallenge discards a challenge that was never answered and
// moves the session back to connecting; the transport is expected to
// issue a fresh challenge.
func (s *SessionSupervisor) expirePairingChallenge() {
	s.mu.Lock()
	if s.status != domain.StatusAwaitingPairing || time.Now().Before(s.challengeExpiry) {
		s.mu.Unlock()
		return
	}
	s.challenge = ""
	s.challengeExpiry = time.Time{}
	s.mu.Unlock()

	s.logger.Info("pairing challenge expired")
	s.transitionTo(domain.StatusConnecting, nil)
}

// enterDisconnected moves the session to its terminal disconnected state
// and discards the transport's credentials.
func (s *SessionSupervisor) enterDisconnected() {
	s.transitionTo(domain.StatusDisconnected, nil)
	logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.transport.Logout(logoutCtx); err != nil {
		s.logger.Warn("transport logout failed", "error", err)
	}
}

// transitionTo applies a lifecycle transition if the state machine allows
// it, persisting the new status (and phone number, when bound).
func (s *SessionSupervisor) transitionTo(to domain.ConnectionStatus, phoneNumber *string) {
	s.mu.Lock()
	from := s.status
	if from == to {
		s.mu.Unlock()
		return
	}
	if !domain.CanTransition(from, to) {
		s.mu.Unlock()
		s.logger.Warn("rejected lifecycle transition", "from", string(from), "to", string(to))
		return
	}
	s.status = to
	s.mu.Unlock()

	s.logger.Info("session transition", "from", string(from), "to", string(to))
	sessionTransitionsCounter.WithLabelValues(string(to)).Inc()

	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.instanceRepo.UpdateStatus(persistCtx, s.instanceID, to, phoneNumber); err != nil {
		s.logger.Error("failed to persist session status", "status", string(to), "error", err)
	}
}

// isUnrecoverable reports whether a connect failure is permanent: the
// provider rejected the request outright rather than being unreachable.
func isUnrecoverable(err error) bool {
	if errors.Is(err, domain.ErrValidation) {
		return true
	}
	var transportErr *domain.TransportError
	if errors.As(err, &transportErr) {
		return strings.HasPrefix(transportErr.Status, "HTTP_4")
	}
	return false
}
