package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/log"
)

const (
	outboxPublisherJobName            = "outbox_publisher_job"
	outboxPublisherJobIntervalSeconds = 2
	outboxPublisherBatchSize          = 100
)

// outboxPublisherJob drains staged outbox messages to the event broker. The
// claim holds row locks until the surrounding transaction commits, so two
// publisher processes never double-send the same batch.
type outboxPublisherJob struct {
	models   *data.Models
	producer events.Producer
}

func NewOutboxPublisherJob(models *data.Models, producer events.Producer) Job {
	return &outboxPublisherJob{
		models:   models,
		producer: producer,
	}
}

func (j outboxPublisherJob) Execute(ctx context.Context) error {
	return db.RunInTransaction(ctx, j.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) error {
		claimed, err := j.models.Outbox.ClaimBatch(ctx, dbTx, outboxPublisherBatchSize)
		if err != nil {
			return fmt.Errorf("claiming outbox batch: %w", err)
		}
		if len(claimed) == 0 {
			return nil
		}

		publishedIDs := make([]int64, 0, len(claimed))
		failedKeys := map[string]bool{}
		for _, outboxMsg := range claimed {
			// Once a message fails, the rest of its aggregate stays put for
			// this batch: publishing a later message now would overtake the
			// failed one when it retries.
			if failedKeys[outboxMsg.Key] {
				continue
			}

			msg := events.Message{
				Topic:    outboxMsg.Topic,
				Key:      outboxMsg.Key,
				TenantID: outboxMsg.TenantID,
				Type:     outboxMsg.EventType,
				Data:     json.RawMessage(outboxMsg.Payload),
			}

			// One message per write keeps per-aggregate insert order intact
			// even when a later message in the batch fails.
			if writeErr := j.producer.WriteMessages(ctx, msg); writeErr != nil {
				log.Ctx(ctx).Warnf("Publishing outbox message %d to %s failed: %v", outboxMsg.ID, outboxMsg.Topic, writeErr)
				if markErr := j.models.Outbox.MarkFailed(ctx, dbTx, outboxMsg.ID, writeErr.Error()); markErr != nil {
					return fmt.Errorf("marking outbox message %d failed: %w", outboxMsg.ID, markErr)
				}
				failedKeys[outboxMsg.Key] = true
				continue
			}
			publishedIDs = append(publishedIDs, outboxMsg.ID)
		}

		if len(publishedIDs) > 0 {
			if err = j.models.Outbox.MarkPublished(ctx, dbTx, publishedIDs); err != nil {
				return fmt.Errorf("marking %d outbox messages published: %w", len(publishedIDs), err)
			}
		}
		return nil
	})
}

func (j outboxPublisherJob) GetInterval() time.Duration {
	return time.Second * outboxPublisherJobIntervalSeconds
}

func (j outboxPublisherJob) GetName() string {
	return outboxPublisherJobName
}

func (j outboxPublisherJob) IsJobMultiTenant() bool {
	return false
}

var _ Job = (*outboxPublisherJob)(nil)
