package data

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/log"
)

// Saga is the durable execution record for one payment. Workers claim sagas
// with a lock token + lease; every write from a worker is compare-and-swap on
// the token so a stale worker loses silently.
type Saga struct {
	ID               string            `json:"id" db:"id"`
	PaymentID        string            `json:"payment_id" db:"payment_id"`
	TenantID         string            `json:"tenant_id" db:"tenant_id"`
	Status           SagaStatus        `json:"status" db:"status"`
	CurrentStepIndex int               `json:"current_step_index" db:"current_step_index"`
	CancelRequested  bool              `json:"cancel_requested" db:"cancel_requested"`
	DeadLettered     bool              `json:"dead_lettered" db:"dead_lettered"`
	DeadLetterReason string            `json:"dead_letter_reason,omitempty" db:"dead_letter_reason"`
	LockToken        string            `json:"-" db:"lock_token"`
	LeaseDeadline    *time.Time        `json:"-" db:"lease_deadline"`
	WakeAt           *time.Time        `json:"wake_at,omitempty" db:"wake_at"`
	ConfigVersion    int               `json:"config_version" db:"config_version"`
	DeadlineAt       *time.Time        `json:"deadline_at,omitempty" db:"deadline_at"`
	StatusHistory    SagaStatusHistory `json:"status_history,omitempty" db:"status_history"`
	StartedAt        *time.Time        `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at"`
}

type SagaStatusHistoryEntry struct {
	Status       SagaStatus `json:"status"`
	StatusReason string     `json:"status_reason"`
	Timestamp    time.Time  `json:"timestamp"`
}

type SagaStatusHistory []SagaStatusHistoryEntry

// Value implements the driver.Valuer interface.
func (ssh SagaStatusHistory) Value() (driver.Value, error) {
	var statusHistoryJSON []string
	for _, sh := range ssh {
		shJSONBytes, err := json.Marshal(sh)
		if err != nil {
			return nil, fmt.Errorf("converting status history to json: %w", err)
		}
		statusHistoryJSON = append(statusHistoryJSON, string(shJSONBytes))
	}

	return pq.Array(statusHistoryJSON).Value()
}

var _ driver.Valuer = (*SagaStatusHistory)(nil)

// Scan implements the sql.Scanner interface.
func (ssh *SagaStatusHistory) Scan(src interface{}) error {
	var statusHistoryJSON []string
	if err := pq.Array(&statusHistoryJSON).Scan(src); err != nil {
		return fmt.Errorf("scanning status history value: %w", err)
	}

	for _, sh := range statusHistoryJSON {
		var shEntry SagaStatusHistoryEntry
		err := json.Unmarshal([]byte(sh), &shEntry)
		if err != nil {
			return fmt.Errorf("unmarshaling status_history column: %w", err)
		}
		*ssh = append(*ssh, shEntry)
	}

	return nil
}

var _ sql.Scanner = (*SagaStatusHistory)(nil)

type SagaModel struct {
	dbConnectionPool db.DBConnectionPool
}

type SagaInsert struct {
	PaymentID     string     `db:"payment_id"`
	TenantID      string     `db:"tenant_id"`
	ConfigVersion int        `db:"config_version"`
	DeadlineAt    *time.Time `db:"deadline_at"`
}

func (s *SagaInsert) Validate() error {
	if strings.TrimSpace(s.PaymentID) == "" {
		return fmt.Errorf("payment_id is required")
	}
	if strings.TrimSpace(s.TenantID) == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if s.ConfigVersion <= 0 {
		return fmt.Errorf("config_version is required")
	}
	return nil
}

// SagaColumnNames returns the SELECT list used everywhere a full saga row is
// scanned.
func SagaColumnNames(tableReference, resultAlias string) string {
	columns := GenerateColumnNames(SQLColumnConfig{
		TableReference: tableReference,
		ResultAlias:    resultAlias,
		Columns: []string{
			"id",
			"payment_id",
			"tenant_id",
			"status",
			"current_step_index",
			"cancel_requested",
			"dead_lettered",
			"lease_deadline",
			"wake_at",
			"config_version",
			"deadline_at",
			"status_history",
			"started_at",
			"completed_at",
			"created_at",
			"updated_at",
		},
	})

	columns = append(columns, GenerateColumnNames(SQLColumnConfig{
		TableReference:        tableReference,
		ResultAlias:           resultAlias,
		CoalesceToEmptyString: true,
		Columns: []string{
			"dead_letter_reason",
			"lock_token",
		},
	})...)

	return strings.Join(columns, ",\n")
}

// Insert creates a RUNNING saga for the payment. One saga per payment.
func (m *SagaModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert SagaInsert) (*Saga, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating saga insert: %w", err)
	}

	query := `
		INSERT INTO sagas
			(payment_id, tenant_id, config_version, deadline_at)
		VALUES
			($1, $2, $3, $4)
		RETURNING id
	`

	var sagaID string
	err := sqlExec.GetContext(ctx, &sagaID, query, insert.PaymentID, insert.TenantID, insert.ConfigVersion, insert.DeadlineAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "sagas_payment_id_unq" {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting saga: %w", err)
	}

	return m.Get(ctx, sqlExec, sagaID)
}

func (m *SagaModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*Saga, error) {
	saga := Saga{}

	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			sagas s
		WHERE
			s.id = $1
		`, SagaColumnNames("s", ""))

	err := sqlExec.GetContext(ctx, &saga, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying saga ID %s: %w", id, err)
	}

	return &saga, nil
}

func (m *SagaModel) GetByPaymentID(ctx context.Context, sqlExec db.SQLExecuter, paymentID string) (*Saga, error) {
	saga := Saga{}

	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			sagas s
		WHERE
			s.payment_id = $1
		`, SagaColumnNames("s", ""))

	err := sqlExec.GetContext(ctx, &saga, query, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying saga for payment %s: %w", paymentID, err)
	}

	return &saga, nil
}

// ClaimBatch leases up to batchSize runnable sagas to this worker process.
// Parked sagas (wake_at set) are invisible until a callback or the poll job
// wakes them. Each claimed saga gets its own fresh lock token.
func (m *SagaModel) ClaimBatch(ctx context.Context, sqlExec db.SQLExecuter, batchSize int, leaseDuration time.Duration) ([]*Saga, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}

	query := fmt.Sprintf(`
		UPDATE sagas
		SET lock_token = uuid_generate_v4(),
			lease_deadline = NOW() + make_interval(secs => $1),
			started_at = COALESCE(started_at, NOW())
		WHERE id IN (
			SELECT id
			FROM sagas
			WHERE status = ANY($2)
				AND dead_lettered IS FALSE
				AND (lease_deadline IS NULL OR lease_deadline < NOW())
				AND wake_at IS NULL
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING
			%s
		`, SagaColumnNames("", ""))

	claimable := pq.Array([]SagaStatus{RunningSagaStatus, CompensatingSagaStatus})

	var sagas []*Saga
	err := sqlExec.SelectContext(ctx, &sagas, query, leaseDuration.Seconds(), claimable, batchSize)
	if err != nil {
		return nil, fmt.Errorf("claiming sagas: %w", err)
	}

	return sagas, nil
}

// ClaimByID leases one specific saga, for synchronous-mode requests that
// drive the saga on the accepting goroutine instead of waiting for the claim
// loop. Returns ErrRecordNotFound when the saga is already leased, parked,
// dead-lettered or terminal.
func (m *SagaModel) ClaimByID(ctx context.Context, sqlExec db.SQLExecuter, sagaID string, leaseDuration time.Duration) (*Saga, error) {
	query := fmt.Sprintf(`
		UPDATE sagas
		SET lock_token = uuid_generate_v4(),
			lease_deadline = NOW() + make_interval(secs => $1),
			started_at = COALESCE(started_at, NOW())
		WHERE id = $2
			AND status = ANY($3)
			AND dead_lettered IS FALSE
			AND (lease_deadline IS NULL OR lease_deadline < NOW())
			AND wake_at IS NULL
		RETURNING
			%s
		`, SagaColumnNames("", ""))

	claimable := pq.Array([]SagaStatus{RunningSagaStatus, CompensatingSagaStatus})

	var saga Saga
	err := sqlExec.GetContext(ctx, &saga, query, leaseDuration.Seconds(), sagaID, claimable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("claiming saga %s: %w", sagaID, err)
	}

	return &saga, nil
}

// ExtendLease heartbeats the worker's claim between steps.
func (m *SagaModel) ExtendLease(ctx context.Context, sqlExec db.SQLExecuter, sagaID, lockToken string, leaseDuration time.Duration) error {
	query := `
		UPDATE sagas
		SET lease_deadline = NOW() + make_interval(secs => $1)
		WHERE id = $2 AND lock_token = $3
	`

	result, err := sqlExec.ExecContext(ctx, query, leaseDuration.Seconds(), sagaID, lockToken)
	if err != nil {
		return fmt.Errorf("extending lease for saga %s: %w", sagaID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrStaleLock
	}
	return nil
}

// ReleaseLease hands the saga back to the claim loop.
func (m *SagaModel) ReleaseLease(ctx context.Context, sqlExec db.SQLExecuter, sagaID, lockToken string) error {
	query := `
		UPDATE sagas
		SET lock_token = NULL, lease_deadline = NULL
		WHERE id = $1 AND lock_token = $2
	`

	result, err := sqlExec.ExecContext(ctx, query, sagaID, lockToken)
	if err != nil {
		return fmt.Errorf("releasing lease for saga %s: %w", sagaID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrStaleLock
	}
	return nil
}

// Park releases the lease and hides the saga from the claim loop until
// wakeAt. Used by AwaitClearingResult while an async rail result is pending.
func (m *SagaModel) Park(ctx context.Context, sqlExec db.SQLExecuter, sagaID, lockToken string, wakeAt time.Time) error {
	query := `
		UPDATE sagas
		SET lock_token = NULL, lease_deadline = NULL, wake_at = $1
		WHERE id = $2 AND lock_token = $3
	`

	result, err := sqlExec.ExecContext(ctx, query, wakeAt, sagaID, lockToken)
	if err != nil {
		return fmt.Errorf("parking saga %s: %w", sagaID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrStaleLock
	}
	return nil
}

// Wake makes a parked saga claimable immediately. Called when a clearing
// result lands via callback or consumer.
func (m *SagaModel) Wake(ctx context.Context, sqlExec db.SQLExecuter, sagaID string) error {
	query := `
		UPDATE sagas
		SET wake_at = NULL
		WHERE id = $1 AND wake_at IS NOT NULL
	`

	if _, err := sqlExec.ExecContext(ctx, query, sagaID); err != nil {
		return fmt.Errorf("waking saga %s: %w", sagaID, err)
	}
	return nil
}

// WakeDue clears wake_at on every parked saga whose timer has expired, making
// them claimable again. Returns the number of sagas woken.
func (m *SagaModel) WakeDue(ctx context.Context, sqlExec db.SQLExecuter) (int64, error) {
	query := `
		UPDATE sagas
		SET wake_at = NULL
		WHERE wake_at IS NOT NULL AND wake_at <= NOW()
	`

	result, err := sqlExec.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("waking due sagas: %w", err)
	}

	numRowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting number of rows affected: %w", err)
	}
	return numRowsAffected, nil
}

// AdvanceStep moves the cursor to the given step index.
func (m *SagaModel) AdvanceStep(ctx context.Context, sqlExec db.SQLExecuter, sagaID, lockToken string, stepIndex int) error {
	query := `
		UPDATE sagas
		SET current_step_index = $1
		WHERE id = $2 AND lock_token = $3
	`

	result, err := sqlExec.ExecContext(ctx, query, stepIndex, sagaID, lockToken)
	if err != nil {
		return fmt.Errorf("advancing saga %s to step %d: %w", sagaID, stepIndex, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrStaleLock
	}
	return nil
}

// UpdateStatus transitions the saga and appends to its status history. The
// write is compare-and-swap on the lock token.
func (m *SagaModel) UpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, saga *Saga, targetStatus SagaStatus, statusReason string) error {
	if err := saga.Status.TransitionTo(targetStatus); err != nil {
		return fmt.Errorf("cannot transition from %s to %s for saga %s: %w", saga.Status, targetStatus, saga.ID, err)
	}

	query := `
		UPDATE sagas
		SET status = $1,
			status_history = array_append(status_history, create_saga_status_history(NOW(), $1, NULLIF($2, ''))),
			completed_at = CASE WHEN $3 THEN NOW() ELSE completed_at END
		WHERE id = $4 AND lock_token = $5
	`

	result, err := sqlExec.ExecContext(ctx, query, targetStatus, statusReason, targetStatus.IsTerminal(), saga.ID, saga.LockToken)
	if err != nil {
		return fmt.Errorf("updating saga %s status: %w", saga.ID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrStaleLock
	}

	log.Ctx(ctx).Infof("Set saga %s status from %s to %s", saga.ID, saga.Status, targetStatus)
	saga.Status = targetStatus

	return nil
}

// RequestCancel flags a running saga for cancellation. The flag is honored at
// the next step boundary; the call itself never interrupts a step.
func (m *SagaModel) RequestCancel(ctx context.Context, sqlExec db.SQLExecuter, tenantID, paymentID string) error {
	query := `
		UPDATE sagas
		SET cancel_requested = TRUE
		WHERE payment_id = $1 AND tenant_id = $2 AND status = $3
	`

	result, err := sqlExec.ExecContext(ctx, query, paymentID, tenantID, RunningSagaStatus)
	if err != nil {
		return fmt.Errorf("requesting cancel for payment %s: %w", paymentID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkDeadLettered parks the saga permanently for operator intervention.
func (m *SagaModel) MarkDeadLettered(ctx context.Context, sqlExec db.SQLExecuter, saga *Saga, reason string) error {
	if err := saga.Status.TransitionTo(FailedSagaStatus); err != nil {
		return fmt.Errorf("cannot dead-letter saga %s in status %s: %w", saga.ID, saga.Status, err)
	}

	query := `
		UPDATE sagas
		SET status = $1,
			dead_lettered = TRUE,
			dead_letter_reason = $2,
			status_history = array_append(status_history, create_saga_status_history(NOW(), $1, $2)),
			completed_at = NOW(),
			lock_token = NULL,
			lease_deadline = NULL
		WHERE id = $3 AND lock_token = $4
	`

	result, err := sqlExec.ExecContext(ctx, query, FailedSagaStatus, reason, saga.ID, saga.LockToken)
	if err != nil {
		return fmt.Errorf("dead-lettering saga %s: %w", saga.ID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrStaleLock
	}

	saga.Status = FailedSagaStatus
	saga.DeadLettered = true
	saga.DeadLetterReason = reason

	return nil
}

// GetDeadLettered lists dead-lettered sagas, optionally scoped to a tenant.
func (m *SagaModel) GetDeadLettered(ctx context.Context, sqlExec db.SQLExecuter, tenantID string) ([]Saga, error) {
	sagas := []Saga{}

	baseQuery := fmt.Sprintf(`
		SELECT
			%s
		FROM
			sagas s
		`, SagaColumnNames("s", ""))

	qb := NewQueryBuilder(baseQuery)
	qb.AddCondition("s.dead_lettered IS TRUE")
	if tenantID != "" {
		qb.AddCondition("s.tenant_id = ?", tenantID)
	}
	qb.AddSorting(SortFieldUpdatedAt, SortOrderDESC, "s")
	query, params := qb.BuildAndRebind(sqlExec)

	err := sqlExec.SelectContext(ctx, &sagas, query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying dead-lettered sagas: %w", err)
	}

	return sagas, nil
}

// ReapExpiredLeases frees sagas whose worker died mid-lease so the claim loop
// can pick them up again. Returns the number of leases cleared.
func (m *SagaModel) ReapExpiredLeases(ctx context.Context, sqlExec db.SQLExecuter) (int64, error) {
	query := `
		UPDATE sagas
		SET lock_token = NULL, lease_deadline = NULL
		WHERE lease_deadline IS NOT NULL
			AND lease_deadline < NOW()
			AND status = ANY($1)
	`

	result, err := sqlExec.ExecContext(ctx, query, pq.Array([]SagaStatus{RunningSagaStatus, CompensatingSagaStatus}))
	if err != nil {
		return 0, fmt.Errorf("reaping expired saga leases: %w", err)
	}

	numRowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting number of rows affected: %w", err)
	}
	return numRowsAffected, nil
}

// GetExpiredDeadlines returns runnable sagas past their wall-clock deadline.
// The engine moves them to COMPENSATING with reason saga_timeout.
func (m *SagaModel) GetExpiredDeadlines(ctx context.Context, sqlExec db.SQLExecuter, limit int) ([]*Saga, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			sagas s
		WHERE
			s.status = $1
			AND s.dead_lettered IS FALSE
			AND s.deadline_at IS NOT NULL
			AND s.deadline_at < NOW()
		ORDER BY s.deadline_at ASC
		LIMIT $2
		`, SagaColumnNames("s", ""))

	var sagas []*Saga
	err := sqlExec.SelectContext(ctx, &sagas, query, RunningSagaStatus, limit)
	if err != nil {
		return nil, fmt.Errorf("querying expired saga deadlines: %w", err)
	}

	return sagas, nil
}
