package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/log"
)

const (
	clearingPollJobName            = "clearing_poll_job"
	clearingPollJobIntervalSeconds = 30
)

// clearingPollJob wakes sagas parked on an async rail whose wake timer has
// expired. The claim loop then re-runs AwaitClearingResult, which drains
// stored callbacks or polls the rail directly.
type clearingPollJob struct {
	models *data.Models
}

func NewClearingPollJob(models *data.Models) Job {
	return &clearingPollJob{models: models}
}

func (j clearingPollJob) Execute(ctx context.Context) error {
	woken, err := j.models.Sagas.WakeDue(ctx, j.models.DBConnectionPool)
	if err != nil {
		return fmt.Errorf("waking due sagas: %w", err)
	}
	if woken > 0 {
		log.Ctx(ctx).Debugf("Woke %d parked sagas for clearing result polling", woken)
	}
	return nil
}

func (j clearingPollJob) GetInterval() time.Duration {
	return time.Second * clearingPollJobIntervalSeconds
}

func (j clearingPollJob) GetName() string {
	return clearingPollJobName
}

func (j clearingPollJob) IsJobMultiTenant() bool {
	return false
}

var _ Job = (*clearingPollJob)(nil)
