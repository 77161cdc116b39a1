package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/log"
)

const (
	uetrRetentionJobName     = "uetr_retention_job"
	uetrRetentionJobInterval = time.Hour

	// UETRRetentionWindow is how long a dedupe entry outlives its payment's
	// terminal state. Replays inside the window still collide.
	UETRRetentionWindow = 24 * time.Hour
)

type uetrRetentionJob struct {
	models *data.Models
}

func NewUETRRetentionJob(models *data.Models) Job {
	return &uetrRetentionJob{models: models}
}

func (j uetrRetentionJob) Execute(ctx context.Context) error {
	cutoff := time.Now().Add(-UETRRetentionWindow)
	deleted, err := j.models.UETRDedupe.DeleteExpired(ctx, j.models.DBConnectionPool, cutoff)
	if err != nil {
		return fmt.Errorf("deleting expired uetr dedupe entries: %w", err)
	}
	if deleted > 0 {
		log.Ctx(ctx).Infof("Purged %d uetr dedupe entries terminal before %s", deleted, cutoff.Format(time.RFC3339))
	}
	return nil
}

func (j uetrRetentionJob) GetInterval() time.Duration {
	return uetrRetentionJobInterval
}

func (j uetrRetentionJob) GetName() string {
	return uetrRetentionJobName
}

func (j uetrRetentionJob) IsJobMultiTenant() bool {
	return false
}

var _ Job = (*uetrRetentionJob)(nil)
