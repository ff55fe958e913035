package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

type PgInstanceRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgInstanceRepository(db DB, logger *slog.Logger) domain.InstanceRepository {
	return &PgInstanceRepository{db: db, logger: logger.With("component", "instance_repository_pg")}
}

// scanInstance scans a single instance row, decoding the config blob.
func scanInstance(row pgx.Row) (*domain.Instance, error) {
	var inst domain.Instance
	var configJSON []byte

	err := row.Scan(
		&inst.ID,
		&inst.Name,
		&inst.Type,
		&inst.PhoneNumber,
		&inst.Status,
		&inst.CreatedAt,
		&inst.LastActive,
		&inst.MessagesSent,
		&configJSON,
	)
	if err != nil {
		return nil, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &inst.Config); err != nil {
			return nil, fmt.Errorf("failed to decode instance config: %w", err)
		}
	}
	return &inst, nil
}

func (r *PgInstanceRepository) Create(ctx context.Context, inst *domain.Instance) error {
	configJSON, err := json.Marshal(inst.Config)
	if err != nil {
		return fmt.Errorf("failed to encode instance config: %w", err)
	}

	query := `
		INSERT INTO instances (id, name, type, phone_number, status, created_at, last_active, messages_sent, config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Exec(ctx, query,
		inst.ID, inst.Name, inst.Type, inst.PhoneNumber, inst.Status,
		inst.CreatedAt, inst.LastActive, inst.MessagesSent, configJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert instance %s: %w", inst.ID, err)
	}
	return nil
}

func (r *PgInstanceRepository) GetByID(ctx context.Context, id string) (*domain.Instance, error) {
	query := `
		SELECT id, name, type, phone_number, status, created_at, last_active, messages_sent, config
		FROM instances WHERE id = $1
	`
	inst, err := scanInstance(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get instance %s: %w", id, err)
	}
	return inst, nil
}

func (r *PgInstanceRepository) List(ctx context.Context) ([]*domain.Instance, error) {
	query := `
		SELECT id, name, type, phone_number, status, created_at, last_active, messages_sent, config
		FROM instances ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*domain.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance row: %w", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating instance rows: %w", err)
	}
	return instances, nil
}

func (r *PgInstanceRepository) UpdateStatus(ctx context.Context, id string, status domain.ConnectionStatus, phoneNumber *string) error {
	query := `
		UPDATE instances
		SET status = $2, phone_number = COALESCE($3, phone_number), last_active = $4
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, status, phoneNumber, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update status for instance %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgInstanceRepository) IncrementMessagesSent(ctx context.Context, id string) error {
	query := `
		UPDATE instances
		SET messages_sent = messages_sent + 1, last_active = $2
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to increment sent counter for instance %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteCascade removes the instance and its auto-reply rules in one
// transaction so an observer never sees rules outliving their instance.
func (r *PgInstanceRepository) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction for instance %s: %w", id, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM auto_reply_rules WHERE instance_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete rules for instance %s: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete transaction for instance %s: %w", id, err)
	}
	return nil
}
