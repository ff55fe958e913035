package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

type PgAPIKeyRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgAPIKeyRepository(db DB, logger *slog.Logger) domain.APIKeyRepository {
	return &PgAPIKeyRepository{db: db, logger: logger.With("component", "api_key_repository_pg")}
}

func (r *PgAPIKeyRepository) Add(ctx context.Context, key *domain.APIKey) error {
	query := `INSERT INTO api_keys (key, name, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, key.Key, key.Name, key.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert API key: %w", err)
	}
	return nil
}

func (r *PgAPIKeyRepository) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM api_keys WHERE key = $1)`
	if err := r.db.QueryRow(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check API key: %w", err)
	}
	return exists, nil
}

func (r *PgAPIKeyRepository) List(ctx context.Context) ([]*domain.APIKey, error) {
	rows, err := r.db.Query(ctx, `SELECT key, name, created_at FROM api_keys ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list API keys: %w", err)
	}
	defer rows.Close()

	var keys []*domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		if err := rows.Scan(&k.Key, &k.Name, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan API key row: %w", err)
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating API key rows: %w", err)
	}
	return keys, nil
}

func (r *PgAPIKeyRepository) Remove(ctx context.Context, key string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM api_keys WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
