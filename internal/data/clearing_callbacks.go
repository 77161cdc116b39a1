package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/paymenthub/payment-engine-backend/internal/db"
)

// ClearingCallback is a raw asynchronous notification received from a rail.
// Rows are immutable once stored; the (rail, external_ref) unique constraint
// absorbs redelivery by the network.
type ClearingCallback struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id,omitempty" db:"tenant_id"`
	PaymentID   string    `json:"payment_id,omitempty" db:"payment_id"`
	Rail        Rail      `json:"rail" db:"rail"`
	ExternalRef string    `json:"external_ref" db:"external_ref"`
	StatusCode  string    `json:"status_code,omitempty" db:"status_code"`
	ReasonCode  string    `json:"reason_code,omitempty" db:"reason_code"`
	RawPayload  []byte    `json:"raw_payload" db:"raw_payload"`
	Processed   bool      `json:"processed" db:"processed"`
	ReceivedAt  time.Time `json:"received_at" db:"received_at"`
}

type ClearingCallbackModel struct {
	dbConnectionPool db.DBConnectionPool
}

type ClearingCallbackInsert struct {
	TenantID    *string `db:"tenant_id"`
	PaymentID   *string `db:"payment_id"`
	Rail        Rail    `db:"rail"`
	ExternalRef string  `db:"external_ref"`
	StatusCode  string  `db:"status_code"`
	ReasonCode  string  `db:"reason_code"`
	RawPayload  []byte  `db:"raw_payload"`
}

func (i *ClearingCallbackInsert) Validate() error {
	if err := i.Rail.Validate(); err != nil {
		return fmt.Errorf("validating rail: %w", err)
	}
	if strings.TrimSpace(i.ExternalRef) == "" {
		return fmt.Errorf("external_ref is required")
	}
	if len(i.RawPayload) == 0 {
		return fmt.Errorf("raw_payload is required")
	}
	return nil
}

func ClearingCallbackColumnNames(tableReference, resultAlias string) string {
	columns := GenerateColumnNames(SQLColumnConfig{
		TableReference: tableReference,
		ResultAlias:    resultAlias,
		Columns: []string{
			"id",
			"rail",
			"external_ref",
			"raw_payload",
			"processed",
			"received_at",
		},
	})

	columns = append(columns, GenerateColumnNames(SQLColumnConfig{
		TableReference:        tableReference,
		ResultAlias:           resultAlias,
		CoalesceToEmptyString: true,
		Columns: []string{
			"tenant_id",
			"payment_id",
			"status_code",
			"reason_code",
		},
	})...)

	return strings.Join(columns, ",\n")
}

// Insert stores the callback. A redelivered notification returns
// ErrRecordAlreadyExists so the handler can acknowledge without reprocessing.
func (m *ClearingCallbackModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert ClearingCallbackInsert) (*ClearingCallback, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating clearing callback insert: %w", err)
	}

	query := `
		INSERT INTO clearing_callbacks
			(tenant_id, payment_id, rail, external_ref, status_code, reason_code, raw_payload)
		VALUES
			($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
		RETURNING id
	`

	var id string
	err := sqlExec.GetContext(ctx, &id, query,
		insert.TenantID,
		insert.PaymentID,
		insert.Rail,
		insert.ExternalRef,
		insert.StatusCode,
		insert.ReasonCode,
		insert.RawPayload,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "clearing_callbacks_rail_external_ref_unq" {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting clearing callback: %w", err)
	}

	return m.Get(ctx, sqlExec, id)
}

func (m *ClearingCallbackModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*ClearingCallback, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			clearing_callbacks cc
		WHERE
			cc.id = $1
	`, ClearingCallbackColumnNames("cc", ""))

	var callback ClearingCallback
	err := sqlExec.GetContext(ctx, &callback, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting clearing callback %s: %w", id, err)
	}

	return &callback, nil
}

func (m *ClearingCallbackModel) GetByRailRef(ctx context.Context, sqlExec db.SQLExecuter, rail Rail, externalRef string) (*ClearingCallback, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			clearing_callbacks cc
		WHERE
			cc.rail = $1
			AND cc.external_ref = $2
	`, ClearingCallbackColumnNames("cc", ""))

	var callback ClearingCallback
	err := sqlExec.GetContext(ctx, &callback, query, rail, externalRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting clearing callback for %s/%s: %w", rail, externalRef, err)
	}

	return &callback, nil
}

// GetUnprocessedForPayment returns pending callbacks oldest first, so a saga
// resuming after a park consumes results in arrival order.
func (m *ClearingCallbackModel) GetUnprocessedForPayment(ctx context.Context, sqlExec db.SQLExecuter, paymentID string) ([]ClearingCallback, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			clearing_callbacks cc
		WHERE
			cc.payment_id = $1
			AND cc.processed IS FALSE
		ORDER BY
			cc.received_at ASC
	`, ClearingCallbackColumnNames("cc", ""))

	callbacks := []ClearingCallback{}
	err := sqlExec.SelectContext(ctx, &callbacks, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("querying unprocessed callbacks for payment %s: %w", paymentID, err)
	}

	return callbacks, nil
}

func (m *ClearingCallbackModel) MarkProcessed(ctx context.Context, sqlExec db.SQLExecuter, id string) error {
	query := `UPDATE clearing_callbacks SET processed = TRUE WHERE id = $1`

	result, err := sqlExec.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("marking clearing callback %s processed: %w", id, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// AttachPayment links a callback that arrived before the payment row had a
// clearing reference, then records the association for the audit trail.
func (m *ClearingCallbackModel) AttachPayment(ctx context.Context, sqlExec db.SQLExecuter, id, tenantID, paymentID string) error {
	query := `UPDATE clearing_callbacks SET tenant_id = $1, payment_id = $2 WHERE id = $3`

	result, err := sqlExec.ExecContext(ctx, query, tenantID, paymentID, id)
	if err != nil {
		return fmt.Errorf("attaching payment to clearing callback %s: %w", id, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
