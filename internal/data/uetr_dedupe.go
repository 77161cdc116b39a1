package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/paymenthub/payment-engine-backend/internal/db"
)

// UETRDedupe rows back the duplicate-UETR rejection rule: one live row per
// (tenant, UETR). terminal_at is set when the payment reaches a terminal
// status and the retention job deletes rows past the window, which frees the
// UETR for reuse.
type UETRDedupe struct {
	TenantID   string     `db:"tenant_id"`
	UETR       string     `db:"uetr"`
	PaymentID  string     `db:"payment_id"`
	TerminalAt *time.Time `db:"terminal_at"`
	CreatedAt  time.Time  `db:"created_at"`
}

type UETRDedupeModel struct {
	dbConnectionPool db.DBConnectionPool
}

// Reserve claims the UETR for the tenant. A second reservation of the same
// UETR returns ErrDuplicateUETR.
func (m *UETRDedupeModel) Reserve(ctx context.Context, sqlExec db.SQLExecuter, tenantID, uetr, paymentID string) error {
	query := `
		INSERT INTO uetr_dedupe
			(tenant_id, uetr, payment_id)
		VALUES
			($1, $2, $3)
	`

	_, err := sqlExec.ExecContext(ctx, query, tenantID, uetr, paymentID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateUETR
		}
		return fmt.Errorf("reserving UETR %s: %w", uetr, err)
	}

	return nil
}

// MarkTerminal stamps the retention clock for the payment's UETR row.
func (m *UETRDedupeModel) MarkTerminal(ctx context.Context, sqlExec db.SQLExecuter, paymentID string) error {
	query := `
		UPDATE uetr_dedupe
		SET terminal_at = NOW()
		WHERE payment_id = $1 AND terminal_at IS NULL
	`

	if _, err := sqlExec.ExecContext(ctx, query, paymentID); err != nil {
		return fmt.Errorf("marking UETR terminal for payment %s: %w", paymentID, err)
	}

	return nil
}

// DeleteExpired removes rows whose payment went terminal before the cutoff.
// Returns the number of rows deleted.
func (m *UETRDedupeModel) DeleteExpired(ctx context.Context, sqlExec db.SQLExecuter, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM uetr_dedupe
		WHERE terminal_at IS NOT NULL AND terminal_at < $1
	`

	result, err := sqlExec.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting expired UETR dedupe rows: %w", err)
	}

	numRowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting number of rows affected: %w", err)
	}

	return numRowsAffected, nil
}

// Get returns the dedupe row for a UETR, if any.
func (m *UETRDedupeModel) Get(ctx context.Context, sqlExec db.SQLExecuter, tenantID, uetr string) (*UETRDedupe, error) {
	row := UETRDedupe{}

	query := `
		SELECT
			tenant_id, uetr, payment_id, terminal_at, created_at
		FROM
			uetr_dedupe
		WHERE
			tenant_id = $1 AND uetr = $2
	`

	err := sqlExec.GetContext(ctx, &row, query, tenantID, uetr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying UETR dedupe row: %w", err)
	}

	return &row, nil
}
