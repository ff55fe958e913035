package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/transport"
)

// SessionManager provisions instances and owns the registry of live
// session supervisors. The registry lock only guards the map; lifecycle
// work for one instance never blocks commands against another.
type SessionManager struct {
	logger       *slog.Logger
	baseLogger   *slog.Logger
	instanceRepo domain.InstanceRepository
	ruleRepo     domain.AutoReplyRuleRepository
	messageLog   *MessageLog
	factory      transport.Factory
	cfg          SupervisorConfig

	mu       sync.Mutex
	sessions map[string]*SessionSupervisor
}

func NewSessionManager(
	logger *slog.Logger,
	instanceRepo domain.InstanceRepository,
	ruleRepo domain.AutoReplyRuleRepository,
	messageLog *MessageLog,
	factory transport.Factory,
	cfg SupervisorConfig,
) *SessionManager {
	return &SessionManager{
		logger:       logger.With("component", "session_manager"),
		baseLogger:   logger,
		instanceRepo: instanceRepo,
		ruleRepo:     ruleRepo,
		messageLog:   messageLog,
		factory:      factory,
		cfg:          cfg,
		sessions:     make(map[string]*SessionSupervisor),
	}
}

// CreateInstance provisions a new instance and immediately starts its
// session supervisor. The transport configuration is validated before
// anything is persisted.
func (m *SessionManager) CreateInstance(ctx context.Context, name string, instType domain.InstanceType, config domain.InstanceConfig) (*domain.Instance, error) {
	now := time.Now().UTC()
	inst := &domain.Instance{
		ID:         "inst_" + uuid.NewString(),
		Name:       name,
		Type:       instType,
		Status:     domain.StatusProvisioning,
		CreatedAt:  now,
		LastActive: now,
		Config:     config,
	}

	tr, err := m.factory.New(inst)
	if err != nil {
		return nil, err
	}

	if err := m.instanceRepo.Create(ctx, inst); err != nil {
		tr.Close()
		return nil, fmt.Errorf("failed to persist instance: %w", err)
	}

	if _, err := m.startSupervisor(inst, tr); err != nil {
		tr.Close()
		return nil, err
	}

	m.logger.InfoContext(ctx, "instance provisioned", "instance_id", inst.ID, "type", string(instType))
	return inst, nil
}

// StartSession begins supervising an existing instance. It fails with
// domain.ErrConflict while a live (non-terminal) session already holds
// the id.
func (m *SessionManager) StartSession(ctx context.Context, id string) (*SessionSupervisor, error) {
	inst, err := m.instanceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Explicitly restarting a terminated instance begins a fresh lifecycle.
	if inst.Status.Terminal() {
		inst.Status = domain.StatusProvisioning
	}

	tr, err := m.factory.New(inst)
	if err != nil {
		return nil, err
	}

	sup, err := m.startSupervisor(inst, tr)
	if err != nil {
		tr.Close()
		return nil, err
	}
	return sup, nil
}

// startSupervisor registers and launches a supervisor for the instance,
// refusing to displace a live session.
func (m *SessionManager) startSupervisor(inst *domain.Instance, tr transport.Transport) (*SessionSupervisor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[inst.ID]; ok {
		if !existing.Status().Terminal() {
			return nil, fmt.Errorf("%w: %s", domain.ErrConflict, inst.ID)
		}
		delete(m.sessions, inst.ID)
		activeSessionsGauge.Dec()
	}

	// Supervisors get the undecorated logger; they attach their own
	// component attr.
	sup := NewSessionSupervisor(m.baseLogger, inst, tr, m.instanceRepo, m.ruleRepo, m.messageLog, m.cfg)
	m.sessions[inst.ID] = sup
	activeSessionsGauge.Inc()
	sup.Start()
	return sup, nil
}

// EnsureSession returns the instance's live supervisor, starting a new
// session if the previous one reached a terminal state.
func (m *SessionManager) EnsureSession(ctx context.Context, id string) (*SessionSupervisor, error) {
	m.mu.Lock()
	sup, ok := m.sessions[id]
	m.mu.Unlock()
	if ok && !sup.Status().Terminal() {
		return sup, nil
	}
	return m.StartSession(ctx, id)
}

// Supervisor returns the registered supervisor for the instance, if any.
func (m *SessionManager) Supervisor(id string) (*SessionSupervisor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sup, ok := m.sessions[id]
	return sup, ok
}

// PairingInfo is the live pairing state of an instance's session.
type PairingInfo struct {
	Status    domain.ConnectionStatus
	Challenge string
	ExpiresAt time.Time
}

// PairingInfo ensures the instance has a live session and returns its
// pairing state. The challenge is empty unless the session is waiting to
// be paired.
func (m *SessionManager) PairingInfo(ctx context.Context, id string) (PairingInfo, error) {
	sup, err := m.EnsureSession(ctx, id)
	if err != nil {
		return PairingInfo{}, err
	}
	info := PairingInfo{Status: sup.Status()}
	if challenge, expiry, ok := sup.PairingChallenge(); ok {
		info.Challenge = challenge
		info.ExpiresAt = expiry
	}
	return info, nil
}

// PairingPending reports whether the instance's session currently holds
// an unanswered pairing challenge.
func (m *SessionManager) PairingPending(id string) bool {
	sup, ok := m.Supervisor(id)
	if !ok {
		return false
	}
	_, _, pending := sup.PairingChallenge()
	return pending
}

// GetInstance returns the instance with its live session status overlaid
// on the persisted record.
func (m *SessionManager) GetInstance(ctx context.Context, id string) (*domain.Instance, error) {
	inst, err := m.instanceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sup, ok := m.Supervisor(id); ok {
		inst.Status = sup.Status()
	}
	return inst, nil
}

// ListInstances returns all instances with live session status overlaid.
func (m *SessionManager) ListInstances(ctx context.Context) ([]*domain.Instance, error) {
	instances, err := m.instanceRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, inst := range instances {
		if sup, ok := m.Supervisor(inst.ID); ok {
			inst.Status = sup.Status()
		}
	}
	return instances, nil
}

// DeleteInstance stops the session, discards its pairing credentials,
// and removes the instance with its rules and in-memory message log.
func (m *SessionManager) DeleteInstance(ctx context.Context, id string) error {
	m.mu.Lock()
	sup, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		activeSessionsGauge.Dec()
	}
	m.mu.Unlock()

	if ok {
		sup.Shutdown(ctx, true)
	}

	if err := m.instanceRepo.DeleteCascade(ctx, id); err != nil {
		return err
	}
	m.messageLog.Drop(id)
	sessionTransitionsCounter.WithLabelValues(string(domain.StatusRemoved)).Inc()
	m.logger.InfoContext(ctx, "instance removed", "instance_id", id)
	return nil
}

// Send delivers an outbound message through the instance's live session.
// An instance without a live session is not ready; an unknown instance is
// not found.
func (m *SessionManager) Send(ctx context.Context, id, to, text string) (domain.MessageLogEntry, error) {
	if sup, ok := m.Supervisor(id); ok {
		return sup.Send(ctx, to, text)
	}
	if _, err := m.instanceRepo.GetByID(ctx, id); err != nil {
		return domain.MessageLogEntry{}, err
	}
	return domain.MessageLogEntry{}, domain.ErrNotReady
}

// Restore re-supervises every persisted instance that was not in a
// terminal state when the service last stopped. Called once at startup.
func (m *SessionManager) Restore(ctx context.Context) error {
	instances, err := m.instanceRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list instances for restore: %w", err)
	}

	var restored int
	for _, inst := range instances {
		if inst.Status.Terminal() {
			continue
		}
		if _, err := m.StartSession(ctx, inst.ID); err != nil {
			m.logger.ErrorContext(ctx, "failed to restore session", "instance_id", inst.ID, "error", err)
			continue
		}
		restored++
	}
	m.logger.InfoContext(ctx, "session restore complete", "restored", restored, "total", len(instances))
	return nil
}

// Shutdown stops every live supervisor without discarding credentials, so
// sessions resume on the next start.
func (m *SessionManager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sups := make([]*SessionSupervisor, 0, len(m.sessions))
	for id, sup := range m.sessions {
		sups = append(sups, sup)
		delete(m.sessions, id)
		activeSessionsGauge.Dec()
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, sup := range sups {
		wg.Add(1)
		go func(s *SessionSupervisor) {
			defer wg.Done()
			s.Shutdown(ctx, false)
		}(sup)
	}
	wg.Wait()
}
