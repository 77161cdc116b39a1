package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/log"
)

const (
	sagaLeaseReaperJobName            = "saga_lease_reaper_job"
	sagaLeaseReaperJobIntervalSeconds = 30
	sagaLeaseReaperDeadlineBatchSize  = 100
)

// sagaLeaseReaperJob frees leases abandoned by crashed workers and nudges
// sagas past their wall-clock deadline back into the claim queue, where the
// worker turns them around with a timeout failure.
type sagaLeaseReaperJob struct {
	models *data.Models
}

func NewSagaLeaseReaperJob(models *data.Models) Job {
	return &sagaLeaseReaperJob{models: models}
}

func (j sagaLeaseReaperJob) Execute(ctx context.Context) error {
	reaped, err := j.models.Sagas.ReapExpiredLeases(ctx, j.models.DBConnectionPool)
	if err != nil {
		return fmt.Errorf("reaping expired saga leases: %w", err)
	}
	if reaped > 0 {
		log.Ctx(ctx).Warnf("Reaped %d expired saga leases", reaped)
	}

	expired, err := j.models.Sagas.GetExpiredDeadlines(ctx, j.models.DBConnectionPool, sagaLeaseReaperDeadlineBatchSize)
	if err != nil {
		return fmt.Errorf("querying expired saga deadlines: %w", err)
	}
	for _, saga := range expired {
		// Clearing wake_at makes a parked saga claimable again; the worker
		// notices the blown deadline and begins compensation.
		if err = j.models.Sagas.Wake(ctx, j.models.DBConnectionPool, saga.ID); err != nil {
			return fmt.Errorf("waking saga %s past its deadline: %w", saga.ID, err)
		}
		log.Ctx(ctx).Warnf("Saga %s blew its deadline %s, queued for compensation", saga.ID, saga.DeadlineAt.Format(time.RFC3339))
	}
	return nil
}

func (j sagaLeaseReaperJob) GetInterval() time.Duration {
	return time.Second * sagaLeaseReaperJobIntervalSeconds
}

func (j sagaLeaseReaperJob) GetName() string {
	return sagaLeaseReaperJobName
}

func (j sagaLeaseReaperJob) IsJobMultiTenant() bool {
	return false
}

var _ Job = (*sagaLeaseReaperJob)(nil)
