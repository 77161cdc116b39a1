package data

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/paymenthub/payment-engine-backend/internal/db"
)

type OutboxStatus string

const (
	PendingOutboxStatus   OutboxStatus = "PENDING"
	PublishedOutboxStatus OutboxStatus = "PUBLISHED"
	FailedOutboxStatus    OutboxStatus = "FAILED"
)

// OutboxMessage is an event staged in the same transaction as the domain
// write that produced it. The BIGSERIAL id preserves insert order, which the
// publisher turns into per-aggregate Kafka ordering via the partition key.
type OutboxMessage struct {
	ID          int64        `json:"id" db:"id"`
	TenantID    string       `json:"tenant_id" db:"tenant_id"`
	Topic       string       `json:"topic" db:"topic"`
	Key         string       `json:"key" db:"key"`
	EventType   string       `json:"event_type" db:"event_type"`
	Payload     []byte       `json:"payload" db:"payload"`
	Status      OutboxStatus `json:"status" db:"status"`
	Attempts    int          `json:"attempts" db:"attempts"`
	LastError   string       `json:"last_error,omitempty" db:"last_error"`
	PublishedAt *time.Time   `json:"published_at,omitempty" db:"published_at"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

type OutboxModel struct {
	dbConnectionPool db.DBConnectionPool
}

type OutboxInsert struct {
	TenantID  string `db:"tenant_id"`
	Topic     string `db:"topic"`
	Key       string `db:"key"`
	EventType string `db:"event_type"`
	Payload   []byte `db:"payload"`
}

func (o *OutboxInsert) Validate() error {
	if strings.TrimSpace(o.TenantID) == "" {
		return fmt.Errorf("tenant_id is required")
	}
	if strings.TrimSpace(o.Topic) == "" {
		return fmt.Errorf("topic is required")
	}
	if strings.TrimSpace(o.Key) == "" {
		return fmt.Errorf("key is required")
	}
	if strings.TrimSpace(o.EventType) == "" {
		return fmt.Errorf("event_type is required")
	}
	if len(o.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}

// Insert stages a message. Callers run this inside the transaction that
// performs the domain write the message reports.
func (m *OutboxModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert OutboxInsert) (int64, error) {
	if err := insert.Validate(); err != nil {
		return 0, fmt.Errorf("validating outbox insert: %w", err)
	}

	query := `
		INSERT INTO outbox_messages
			(tenant_id, topic, key, event_type, payload)
		VALUES
			($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := sqlExec.GetContext(ctx, &id, query, insert.TenantID, insert.Topic, insert.Key, insert.EventType, insert.Payload)
	if err != nil {
		return 0, fmt.Errorf("inserting outbox message: %w", err)
	}

	return id, nil
}

// ClaimBatch locks up to batchSize publishable messages in insert order. Must
// run inside the publisher's transaction; the row locks hold until commit.
// FAILED rows come back after an exponential delay capped at five minutes, and
// while one sits in backoff no later message with the same key is claimable,
// so a retry never lands behind a newer message of its aggregate.
func (m *OutboxModel) ClaimBatch(ctx context.Context, sqlExec db.SQLExecuter, batchSize int) ([]OutboxMessage, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be greater than 0")
	}

	query := `
		SELECT
			om.id, om.tenant_id, om.topic, om.key, om.event_type, om.payload, om.status, om.attempts,
			COALESCE(om.last_error, '') AS last_error, om.published_at, om.created_at, om.updated_at
		FROM
			outbox_messages om
		WHERE
			(
				om.status = $1
				OR (om.status = $2 AND om.updated_at < NOW() - make_interval(secs => LEAST(power(2, om.attempts), 300)))
			)
			AND NOT EXISTS (
				SELECT 1
				FROM outbox_messages prior
				WHERE
					prior.key = om.key
					AND prior.id < om.id
					AND prior.status = $2
					AND prior.updated_at >= NOW() - make_interval(secs => LEAST(power(2, prior.attempts), 300))
			)
		ORDER BY om.id ASC
		LIMIT $3
		FOR UPDATE OF om SKIP LOCKED
	`

	messages := []OutboxMessage{}
	err := sqlExec.SelectContext(ctx, &messages, query, PendingOutboxStatus, FailedOutboxStatus, batchSize)
	if err != nil {
		return nil, fmt.Errorf("claiming outbox messages: %w", err)
	}

	return messages, nil
}

// MarkPublished finalizes successfully published messages.
func (m *OutboxModel) MarkPublished(ctx context.Context, sqlExec db.SQLExecuter, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := `
		UPDATE outbox_messages
		SET status = $1, published_at = NOW(), last_error = NULL
		WHERE id = ANY($2)
	`

	result, err := sqlExec.ExecContext(ctx, query, PublishedOutboxStatus, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("marking outbox messages published: %w", err)
	}
	numRowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting number of rows affected: %w", err)
	}
	if numRowsAffected != int64(len(ids)) {
		return ErrMismatchNumRowsAffected
	}

	return nil
}

// MarkFailed leaves the message for a later re-claim with backoff.
func (m *OutboxModel) MarkFailed(ctx context.Context, sqlExec db.SQLExecuter, id int64, lastError string) error {
	query := `
		UPDATE outbox_messages
		SET status = $1, attempts = attempts + 1, last_error = $2
		WHERE id = $3
	`

	result, err := sqlExec.ExecContext(ctx, query, FailedOutboxStatus, lastError, id)
	if err != nil {
		return fmt.Errorf("marking outbox message %d failed: %w", id, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// CountPending reports the publishing backlog, used by health checks.
func (m *OutboxModel) CountPending(ctx context.Context, sqlExec db.SQLExecuter) (int, error) {
	var count int
	query := `SELECT count(*) FROM outbox_messages WHERE status != $1`

	err := sqlExec.GetContext(ctx, &count, query, PublishedOutboxStatus)
	if err != nil {
		return 0, fmt.Errorf("counting pending outbox messages: %w", err)
	}
	return count, nil
}
