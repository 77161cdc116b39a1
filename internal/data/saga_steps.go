package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/db"
)

// SagaStep is one unit of work inside a saga. Attempt counting, retry timing
// and compensation state all live on the row so a saga can resume on any
// worker after a crash.
type SagaStep struct {
	ID                 string             `json:"id" db:"id"`
	SagaID             string             `json:"saga_id" db:"saga_id"`
	TenantID           string             `json:"tenant_id" db:"tenant_id"`
	Name               string             `json:"name" db:"name"`
	StepIndex          int                `json:"step_index" db:"step_index"`
	Status             SagaStepStatus     `json:"status" db:"status"`
	Attempt            int                `json:"attempt" db:"attempt"`
	NextRetryAt        *time.Time         `json:"next_retry_at,omitempty" db:"next_retry_at"`
	LastError          string             `json:"last_error,omitempty" db:"last_error"`
	CompensationStatus CompensationStatus `json:"compensation_status,omitempty" db:"compensation_status"`
	Output             []byte             `json:"output,omitempty" db:"output"`
	StartedAt          *time.Time         `json:"started_at,omitempty" db:"started_at"`
	FinishedAt         *time.Time         `json:"finished_at,omitempty" db:"finished_at"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

type SagaStepModel struct {
	dbConnectionPool db.DBConnectionPool
}

// SagaStepColumnNames returns the SELECT list used everywhere a full step row
// is scanned.
func SagaStepColumnNames(tableReference, resultAlias string) string {
	columns := GenerateColumnNames(SQLColumnConfig{
		TableReference: tableReference,
		ResultAlias:    resultAlias,
		Columns: []string{
			"id",
			"saga_id",
			"tenant_id",
			"name",
			"step_index",
			"status",
			"attempt",
			"next_retry_at",
			"output",
			"started_at",
			"finished_at",
			"created_at",
			"updated_at",
		},
	})

	columns = append(columns, GenerateColumnNames(SQLColumnConfig{
		TableReference:        tableReference,
		ResultAlias:           resultAlias,
		CoalesceToEmptyString: true,
		Columns: []string{
			"last_error",
			"compensation_status",
		},
	})...)

	return strings.Join(columns, ",\n")
}

// InsertAll creates the PENDING step rows for a new saga, in execution order.
func (m *SagaStepModel) InsertAll(ctx context.Context, sqlExec db.SQLExecuter, sagaID, tenantID string, names []string) ([]SagaStep, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("step names are required: %w", ErrMissingInput)
	}

	query := `
		INSERT INTO saga_steps
			(saga_id, tenant_id, name, step_index)
		VALUES
			($1, $2, $3, $4)
	`

	for i, name := range names {
		if _, err := sqlExec.ExecContext(ctx, query, sagaID, tenantID, name, i); err != nil {
			return nil, fmt.Errorf("inserting saga step %s: %w", name, err)
		}
	}

	return m.GetBySagaID(ctx, sqlExec, sagaID)
}

// GetBySagaID returns the saga's steps in execution order.
func (m *SagaStepModel) GetBySagaID(ctx context.Context, sqlExec db.SQLExecuter, sagaID string) ([]SagaStep, error) {
	steps := []SagaStep{}

	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			saga_steps st
		WHERE
			st.saga_id = $1
		ORDER BY st.step_index ASC
		`, SagaStepColumnNames("st", ""))

	err := sqlExec.SelectContext(ctx, &steps, query, sagaID)
	if err != nil {
		return nil, fmt.Errorf("querying steps for saga %s: %w", sagaID, err)
	}

	return steps, nil
}

// GetBySagaAndIndex returns one step row.
func (m *SagaStepModel) GetBySagaAndIndex(ctx context.Context, sqlExec db.SQLExecuter, sagaID string, stepIndex int) (*SagaStep, error) {
	step := SagaStep{}

	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			saga_steps st
		WHERE
			st.saga_id = $1 AND st.step_index = $2
		`, SagaStepColumnNames("st", ""))

	err := sqlExec.GetContext(ctx, &step, query, sagaID, stepIndex)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying step %d for saga %s: %w", stepIndex, sagaID, err)
	}

	return &step, nil
}

// MarkRunning opens a new attempt on the step.
func (m *SagaStepModel) MarkRunning(ctx context.Context, sqlExec db.SQLExecuter, stepID string) error {
	query := `
		UPDATE saga_steps
		SET status = $1,
			attempt = attempt + 1,
			next_retry_at = NULL,
			started_at = COALESCE(started_at, NOW())
		WHERE id = $2
	`

	result, err := sqlExec.ExecContext(ctx, query, RunningSagaStepStatus, stepID)
	if err != nil {
		return fmt.Errorf("marking step %s running: %w", stepID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkSucceeded finishes the step, storing its output for later steps and for
// compensation.
func (m *SagaStepModel) MarkSucceeded(ctx context.Context, sqlExec db.SQLExecuter, stepID string, output []byte) error {
	return m.finish(ctx, sqlExec, stepID, SucceededSagaStepStatus, output, "")
}

// MarkSkipped records that the step's toggle (e.g. fraud scoring) was off.
func (m *SagaStepModel) MarkSkipped(ctx context.Context, sqlExec db.SQLExecuter, stepID, reason string) error {
	return m.finish(ctx, sqlExec, stepID, SkippedSagaStepStatus, nil, reason)
}

// MarkFailed finishes the step terminally. The saga moves to compensation.
func (m *SagaStepModel) MarkFailed(ctx context.Context, sqlExec db.SQLExecuter, stepID, lastError string) error {
	return m.finish(ctx, sqlExec, stepID, FailedSagaStepStatus, nil, lastError)
}

func (m *SagaStepModel) finish(ctx context.Context, sqlExec db.SQLExecuter, stepID string, status SagaStepStatus, output []byte, lastError string) error {
	query := `
		UPDATE saga_steps
		SET status = $1,
			output = COALESCE($2, output),
			last_error = NULLIF($3, ''),
			finished_at = NOW()
		WHERE id = $4
	`

	result, err := sqlExec.ExecContext(ctx, query, status, output, lastError, stepID)
	if err != nil {
		return fmt.Errorf("marking step %s %s: %w", stepID, status, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// MarkParked returns the step to PENDING while the saga waits on an external
// result. Unlike ScheduleRetry this resets the attempt counter: a park is a
// wait, not a failure, and the next wake gets a fresh retry budget.
func (m *SagaStepModel) MarkParked(ctx context.Context, sqlExec db.SQLExecuter, stepID string, wakeAt time.Time) error {
	query := `
		UPDATE saga_steps
		SET status = $1,
			attempt = 0,
			next_retry_at = $2
		WHERE id = $3
	`

	result, err := sqlExec.ExecContext(ctx, query, PendingSagaStepStatus, wakeAt, stepID)
	if err != nil {
		return fmt.Errorf("parking step %s: %w", stepID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ScheduleRetry puts the step back to PENDING with a wake time. The attempt
// counter keeps its value; MarkRunning increments on the next try.
func (m *SagaStepModel) ScheduleRetry(ctx context.Context, sqlExec db.SQLExecuter, stepID string, nextRetryAt time.Time, lastError string) error {
	query := `
		UPDATE saga_steps
		SET status = $1,
			next_retry_at = $2,
			last_error = NULLIF($3, '')
		WHERE id = $4
	`

	result, err := sqlExec.ExecContext(ctx, query, PendingSagaStepStatus, nextRetryAt, lastError, stepID)
	if err != nil {
		return fmt.Errorf("scheduling retry for step %s: %w", stepID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SetCompensationStatus tracks the undo of a succeeded step.
func (m *SagaStepModel) SetCompensationStatus(ctx context.Context, sqlExec db.SQLExecuter, stepID string, status CompensationStatus, lastError string) error {
	query := `
		UPDATE saga_steps
		SET compensation_status = $1,
			last_error = COALESCE(NULLIF($2, ''), last_error)
		WHERE id = $3
	`

	result, err := sqlExec.ExecContext(ctx, query, status, lastError, stepID)
	if err != nil {
		return fmt.Errorf("setting compensation status for step %s: %w", stepID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}
