package postgres

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

func setupInstanceTest(t *testing.T) (domain.InstanceRepository, pgxmock.PgxPoolIface) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewPgInstanceRepository(mockPool, logger)
	return repo, mockPool
}

func TestPgInstanceRepository_Create(t *testing.T) {
	repo, mockPool := setupInstanceTest(t)
	defer mockPool.Close()

	inst := &domain.Instance{
		ID:         "inst-1",
		Name:       "Support line",
		Type:       domain.InstanceTypeBridge,
		Status:     domain.StatusProvisioning,
		CreatedAt:  time.Now().UTC(),
		LastActive: time.Now().UTC(),
	}

	mockPool.ExpectExec(`INSERT INTO instances`).
		WithArgs(inst.ID, inst.Name, inst.Type, inst.PhoneNumber, inst.Status,
			inst.CreatedAt, inst.LastActive, inst.MessagesSent, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), inst)
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgInstanceRepository_GetByID(t *testing.T) {
	repo, mockPool := setupInstanceTest(t)
	defer mockPool.Close()

	now := time.Now().UTC()

	t.Run("Found", func(t *testing.T) {
		rows := mockPool.NewRows([]string{"id", "name", "type", "phone_number", "status", "created_at", "last_active", "messages_sent", "config"}).
			AddRow("inst-1", "Support line", domain.InstanceTypeCloud, (*string)(nil), domain.StatusConnected, now, now, int64(3), []byte(`{"phone_number_id":"123"}`))

		mockPool.ExpectQuery(`SELECT id, name, type, phone_number, status, created_at, last_active, messages_sent, config\s+FROM instances WHERE id = \$1`).
			WithArgs("inst-1").
			WillReturnRows(rows)

		inst, err := repo.GetByID(context.Background(), "inst-1")
		require.NoError(t, err)
		assert.Equal(t, "inst-1", inst.ID)
		assert.Equal(t, int64(3), inst.MessagesSent)
		assert.Equal(t, "123", inst.Config.PhoneNumberID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		mockPool.ExpectQuery(`SELECT id, name, type, phone_number, status, created_at, last_active, messages_sent, config\s+FROM instances WHERE id = \$1`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetByID(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgInstanceRepository_UpdateStatus(t *testing.T) {
	repo, mockPool := setupInstanceTest(t)
	defer mockPool.Close()

	phone := "+15551234567"
	mockPool.ExpectExec(`UPDATE instances`).
		WithArgs("inst-1", domain.StatusConnected, &phone, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.UpdateStatus(context.Background(), "inst-1", domain.StatusConnected, &phone)
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())

	t.Run("NotFound", func(t *testing.T) {
		mockPool.ExpectExec(`UPDATE instances`).
			WithArgs("missing", domain.StatusConnecting, (*string)(nil), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateStatus(context.Background(), "missing", domain.StatusConnecting, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgInstanceRepository_IncrementMessagesSent(t *testing.T) {
	repo, mockPool := setupInstanceTest(t)
	defer mockPool.Close()

	mockPool.ExpectExec(`UPDATE instances`).
		WithArgs("inst-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.IncrementMessagesSent(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgInstanceRepository_DeleteCascade(t *testing.T) {
	repo, mockPool := setupInstanceTest(t)
	defer mockPool.Close()

	t.Run("DeletesRulesAndInstanceInOneTransaction", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectExec(`DELETE FROM auto_reply_rules WHERE instance_id = \$1`).
			WithArgs("inst-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 2))
		mockPool.ExpectExec(`DELETE FROM instances WHERE id = \$1`).
			WithArgs("inst-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockPool.ExpectCommit()

		err := repo.DeleteCascade(context.Background(), "inst-1")
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFoundRollsBack", func(t *testing.T) {
		mockPool.ExpectBegin()
		mockPool.ExpectExec(`DELETE FROM auto_reply_rules WHERE instance_id = \$1`).
			WithArgs("missing").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectExec(`DELETE FROM instances WHERE id = \$1`).
			WithArgs("missing").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mockPool.ExpectRollback()

		err := repo.DeleteCascade(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
