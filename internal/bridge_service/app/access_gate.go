package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// apiKeyPrefix marks keys issued by this service.
const apiKeyPrefix = "wa_live_"

// AccessGate validates, issues and revokes the API keys that guard the
// command surface.
type AccessGate struct {
	logger  *slog.Logger
	keyRepo domain.APIKeyRepository
}

func NewAccessGate(logger *slog.Logger, keyRepo domain.APIKeyRepository) *AccessGate {
	return &AccessGate{
		logger:  logger.With("component", "access_gate"),
		keyRepo: keyRepo,
	}
}

// IsValid reports whether the presented key grants access. Lookup
// failures deny access rather than failing open.
func (g *AccessGate) IsValid(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	ok, err := g.keyRepo.Exists(ctx, key)
	if err != nil {
		g.logger.ErrorContext(ctx, "API key lookup failed", "error", err)
		return false
	}
	return ok
}

// Issue generates and persists a fresh API key.
func (g *AccessGate) Issue(ctx context.Context, name string) (*domain.APIKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}
	key := &domain.APIKey{
		Key:       apiKeyPrefix + hex.EncodeToString(buf),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.keyRepo.Add(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to persist API key: %w", err)
	}
	g.logger.InfoContext(ctx, "API key issued", "name", name)
	return key, nil
}

// Revoke removes a key; a revoked key is rejected immediately.
func (g *AccessGate) Revoke(ctx context.Context, key string) error {
	if err := g.keyRepo.Remove(ctx, key); err != nil {
		return err
	}
	g.logger.InfoContext(ctx, "API key revoked")
	return nil
}

func (g *AccessGate) List(ctx context.Context) ([]*domain.APIKey, error) {
	return g.keyRepo.List(ctx)
}
