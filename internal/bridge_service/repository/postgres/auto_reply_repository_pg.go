package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

type PgAutoReplyRepository struct {
	db     DB
	logger *slog.Logger
}

func NewPgAutoReplyRepository(db DB, logger *slog.Logger) domain.AutoReplyRuleRepository {
	return &PgAutoReplyRepository{db: db, logger: logger.With("component", "auto_reply_repository_pg")}
}

const autoReplyColumns = `id, instance_id, from_number, trigger_message, reply_message, case_sensitive, match_type, enabled, created_at, updated_at`

func scanAutoReplyRule(row pgx.Row) (*domain.AutoReplyRule, error) {
	var rule domain.AutoReplyRule
	err := row.Scan(
		&rule.ID,
		&rule.InstanceID,
		&rule.FromNumber,
		&rule.TriggerMessage,
		&rule.ReplyMessage,
		&rule.CaseSensitive,
		&rule.MatchType,
		&rule.Enabled,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *PgAutoReplyRepository) Create(ctx context.Context, rule *domain.AutoReplyRule) (*domain.AutoReplyRule, error) {
	if rule.ID == "" {
		rule.ID = "ar_" + uuid.NewString()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
		INSERT INTO auto_reply_rules (` + autoReplyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		rule.ID, rule.InstanceID, rule.FromNumber, rule.TriggerMessage, rule.ReplyMessage,
		rule.CaseSensitive, rule.MatchType, rule.Enabled, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert auto-reply rule: %w", err)
	}
	return rule, nil
}

func (r *PgAutoReplyRepository) Update(ctx context.Context, id string, patch domain.AutoReplyRulePatch) (*domain.AutoReplyRule, error) {
	query := `
		UPDATE auto_reply_rules
		SET from_number = COALESCE($2, from_number),
		    trigger_message = COALESCE($3, trigger_message),
		    reply_message = COALESCE($4, reply_message),
		    case_sensitive = COALESCE($5, case_sensitive),
		    match_type = COALESCE($6, match_type),
		    enabled = COALESCE($7, enabled),
		    updated_at = $8
		WHERE id = $1
		RETURNING ` + autoReplyColumns + `
	`
	rule, err := scanAutoReplyRule(r.db.QueryRow(ctx, query,
		id, patch.FromNumber, patch.TriggerMessage, patch.ReplyMessage,
		patch.CaseSensitive, patch.MatchType, patch.Enabled, time.Now().UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update auto-reply rule %s: %w", id, err)
	}
	return rule, nil
}

func (r *PgAutoReplyRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM auto_reply_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete auto-reply rule %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PgAutoReplyRepository) GetByID(ctx context.Context, id string) (*domain.AutoReplyRule, error) {
	query := `SELECT ` + autoReplyColumns + ` FROM auto_reply_rules WHERE id = $1`
	rule, err := scanAutoReplyRule(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get auto-reply rule %s: %w", id, err)
	}
	return rule, nil
}

func (r *PgAutoReplyRepository) List(ctx context.Context) ([]*domain.AutoReplyRule, error) {
	query := `SELECT ` + autoReplyColumns + ` FROM auto_reply_rules ORDER BY seq ASC`
	return r.queryRules(ctx, query)
}

func (r *PgAutoReplyRepository) ListEnabledByInstance(ctx context.Context, instanceID string) ([]*domain.AutoReplyRule, error) {
	// seq is a bigserial; ordering by it preserves insertion order, the
	// tie-break the matcher relies on.
	query := `SELECT ` + autoReplyColumns + ` FROM auto_reply_rules WHERE instance_id = $1 AND enabled = TRUE ORDER BY seq ASC`
	return r.queryRules(ctx, query, instanceID)
}

func (r *PgAutoReplyRepository) queryRules(ctx context.Context, query string, args ...any) ([]*domain.AutoReplyRule, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-reply rules: %w", err)
	}
	defer rows.Close()

	var rules []*domain.AutoReplyRule
	for rows.Next() {
		rule, err := scanAutoReplyRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auto-reply rule row: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating auto-reply rule rows: %w", err)
	}
	return rules, nil
}
