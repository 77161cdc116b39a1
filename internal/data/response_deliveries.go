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

type ResponseDeliveryStatus string

const (
	PendingResponseDeliveryStatus   ResponseDeliveryStatus = "PENDING"
	DeliveredResponseDeliveryStatus ResponseDeliveryStatus = "DELIVERED"
	FailedResponseDeliveryStatus    ResponseDeliveryStatus = "FAILED"
	DeadResponseDeliveryStatus      ResponseDeliveryStatus = "DEAD"
)

// ResponseDelivery tracks one attempt stream at handing a pain.002 back to an
// originator over an asynchronous channel. Synchronous responses are recorded
// too so operators can replay what a caller was shown.
type ResponseDelivery struct {
	ID          string                 `json:"id" db:"id"`
	TenantID    string                 `json:"tenant_id" db:"tenant_id"`
	PaymentID   string                 `json:"payment_id" db:"payment_id"`
	Mode        ResponseMode           `json:"mode" db:"mode"`
	Target      string                 `json:"target,omitempty" db:"target"`
	Payload     []byte                 `json:"payload" db:"payload"`
	Status      ResponseDeliveryStatus `json:"status" db:"status"`
	Attempts    int                    `json:"attempts" db:"attempts"`
	LastError   string                 `json:"last_error,omitempty" db:"last_error"`
	NextRetryAt *time.Time             `json:"next_retry_at,omitempty" db:"next_retry_at"`
	DeliveredAt *time.Time             `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" db:"updated_at"`
}

type ResponseDeliveryModel struct {
	dbConnectionPool db.DBConnectionPool
}

type ResponseDeliveryInsert struct {
	TenantID  string       `db:"tenant_id"`
	PaymentID string       `db:"payment_id"`
	Mode      ResponseMode `db:"mode"`
	Target    string       `db:"target"`
	Payload   []byte       `db:"payload"`
}

func (i *ResponseDeliveryInsert) Validate() error {
	if i.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if i.PaymentID == "" {
		return fmt.Errorf("payment_id is required")
	}
	if _, err := ParseResponseMode(string(i.Mode)); err != nil {
		return err
	}
	if len(i.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}

func ResponseDeliveryColumnNames(tableReference, resultAlias string) string {
	columns := GenerateColumnNames(SQLColumnConfig{
		TableReference: tableReference,
		ResultAlias:    resultAlias,
		Columns: []string{
			"id",
			"tenant_id",
			"payment_id",
			"mode",
			"payload",
			"status",
			"attempts",
			"next_retry_at",
			"delivered_at",
			"created_at",
			"updated_at",
		},
	})

	columns = append(columns, GenerateColumnNames(SQLColumnConfig{
		TableReference:        tableReference,
		ResultAlias:           resultAlias,
		CoalesceToEmptyString: true,
		Columns: []string{
			"target",
			"last_error",
		},
	})...)

	return strings.Join(columns, ",\n")
}

func (m *ResponseDeliveryModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert ResponseDeliveryInsert) (*ResponseDelivery, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating response delivery insert: %w", err)
	}

	query := `
		INSERT INTO response_deliveries
			(tenant_id, payment_id, mode, target, payload)
		VALUES
			($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id
	`

	var id string
	err := sqlExec.GetContext(ctx, &id, query, insert.TenantID, insert.PaymentID, insert.Mode, insert.Target, insert.Payload)
	if err != nil {
		return nil, fmt.Errorf("inserting response delivery: %w", err)
	}

	return m.Get(ctx, sqlExec, id)
}

func (m *ResponseDeliveryModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*ResponseDelivery, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			response_deliveries rd
		WHERE
			rd.id = $1
	`, ResponseDeliveryColumnNames("rd", ""))

	var delivery ResponseDelivery
	err := sqlExec.GetContext(ctx, &delivery, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting response delivery %s: %w", id, err)
	}

	return &delivery, nil
}

func (m *ResponseDeliveryModel) GetByPaymentID(ctx context.Context, sqlExec db.SQLExecuter, tenantID, paymentID string) ([]ResponseDelivery, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			response_deliveries rd
		WHERE
			rd.tenant_id = $1
			AND rd.payment_id = $2
		ORDER BY
			rd.created_at ASC
	`, ResponseDeliveryColumnNames("rd", ""))

	deliveries := []ResponseDelivery{}
	err := sqlExec.SelectContext(ctx, &deliveries, query, tenantID, paymentID)
	if err != nil {
		return nil, fmt.Errorf("querying response deliveries for payment %s: %w", paymentID, err)
	}

	return deliveries, nil
}

// ClaimRetryBatch locks deliveries due for another attempt. Must run inside
// the retry job's transaction.
func (m *ResponseDeliveryModel) ClaimRetryBatch(ctx context.Context, sqlExec db.SQLExecuter, batchSize int) ([]ResponseDelivery, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}

	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			response_deliveries rd
		WHERE
			rd.status = ANY($1)
			AND (rd.next_retry_at IS NULL OR rd.next_retry_at <= NOW())
		ORDER BY rd.created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, ResponseDeliveryColumnNames("rd", ""))

	retryable := []ResponseDeliveryStatus{PendingResponseDeliveryStatus, FailedResponseDeliveryStatus}
	deliveries := []ResponseDelivery{}
	err := sqlExec.SelectContext(ctx, &deliveries, query, pq.Array(retryable), batchSize)
	if err != nil {
		return nil, fmt.Errorf("claiming response deliveries: %w", err)
	}

	return deliveries, nil
}

func (m *ResponseDeliveryModel) MarkDelivered(ctx context.Context, sqlExec db.SQLExecuter, id string) error {
	query := `
		UPDATE response_deliveries
		SET status = $1, attempts = attempts + 1, delivered_at = NOW(), next_retry_at = NULL, last_error = NULL
		WHERE id = $2
	`

	result, err := sqlExec.ExecContext(ctx, query, DeliveredResponseDeliveryStatus, id)
	if err != nil {
		return fmt.Errorf("marking response delivery %s delivered: %w", id, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (m *ResponseDeliveryModel) MarkFailed(ctx context.Context, sqlExec db.SQLExecuter, id string, lastError string, nextRetryAt time.Time) error {
	query := `
		UPDATE response_deliveries
		SET status = $1, attempts = attempts + 1, last_error = $2, next_retry_at = $3
		WHERE id = $4
	`

	result, err := sqlExec.ExecContext(ctx, query, FailedResponseDeliveryStatus, lastError, nextRetryAt, id)
	if err != nil {
		return fmt.Errorf("marking response delivery %s failed: %w", id, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkDead stops retrying after the attempt budget is spent.
func (m *ResponseDeliveryModel) MarkDead(ctx context.Context, sqlExec db.SQLExecuter, id string, lastError string) error {
	query := `
		UPDATE response_deliveries
		SET status = $1, attempts = attempts + 1, last_error = $2, next_retry_at = NULL
		WHERE id = $3
	`

	result, err := sqlExec.ExecContext(ctx, query, DeadResponseDeliveryStatus, lastError, id)
	if err != nil {
		return fmt.Errorf("marking response delivery %s dead: %w", id, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
