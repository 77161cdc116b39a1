package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/dispatch"
	"github.com/paymenthub/payment-engine-backend/internal/log"
)

const (
	responseRetryJobName            = "response_retry_job"
	responseRetryJobIntervalSeconds = 60
	responseRetryBatchSize          = 50
)

// responseRetryJob re-drives response deliveries whose earlier attempts
// failed. Claims hold row locks for the transaction so concurrent retry
// processes skip each other's batches; the dispatcher settles each delivery's
// status itself.
type responseRetryJob struct {
	models     *data.Models
	dispatcher dispatch.DispatcherInterface
}

func NewResponseRetryJob(models *data.Models, dispatcher dispatch.DispatcherInterface) Job {
	return &responseRetryJob{
		models:     models,
		dispatcher: dispatcher,
	}
}

func (j responseRetryJob) Execute(ctx context.Context) error {
	deliveries, err := db.RunInTransactionWithResult(ctx, j.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) ([]data.ResponseDelivery, error) {
		return j.models.ResponseDeliveries.ClaimRetryBatch(ctx, dbTx, responseRetryBatchSize)
	})
	if err != nil {
		return fmt.Errorf("claiming response deliveries for retry: %w", err)
	}

	for _, delivery := range deliveries {
		if err = j.dispatcher.Redeliver(ctx, delivery); err != nil {
			log.Ctx(ctx).Warnf("Redelivering response %s for payment %s failed: %v", delivery.ID, delivery.PaymentID, err)
		}
	}
	return nil
}

func (j responseRetryJob) GetInterval() time.Duration {
	return time.Second * responseRetryJobIntervalSeconds
}

func (j responseRetryJob) GetName() string {
	return responseRetryJobName
}

func (j responseRetryJob) IsJobMultiTenant() bool {
	return false
}

var _ Job = (*responseRetryJob)(nil)
