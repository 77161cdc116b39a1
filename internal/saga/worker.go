package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/paymenthub/payment-engine-backend/internal/crashtracker"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/events/schemas"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
	"github.com/paymenthub/payment-engine-backend/internal/utils"
	"github.com/paymenthub/payment-engine-backend/pkg/schema"
)

// stepPaymentTransitions maps a step's success to the payment status it
// proves. Steps without an entry leave the payment where it is; SETTLED is
// written when the whole saga completes.
var stepPaymentTransitions = map[string]data.PaymentStatus{
	StepValidate:            data.ValidatedPaymentStatus,
	StepReserveFunds:        data.FundsReservedPaymentStatus,
	StepRoute:               data.RoutedPaymentStatus,
	StepSubmitToClearing:    data.ClearingSubmittedPaymentStatus,
	StepAwaitClearingResult: data.ClearingAcceptedPaymentStatus,
}

// SagaWorker drives one claimed saga until it completes, parks, or loses its
// lease. A stale worker stops silently: every durable write goes through the
// claim's lock token, so the new claimant resumes from the persisted cursor.
type SagaWorker struct {
	models             *data.Models
	steps              []Step
	configStore        tenant.ConfigStoreInterface
	crashTrackerClient crashtracker.CrashTrackerClient
	monitorService     monitor.MonitorServiceInterface
	leaseDuration      time.Duration
	jobUUID            string
}

func NewSagaWorker(
	models *data.Models,
	steps []Step,
	configStore tenant.ConfigStoreInterface,
	crashTrackerClient crashtracker.CrashTrackerClient,
	monitorService monitor.MonitorServiceInterface,
	leaseDuration time.Duration,
) (SagaWorker, error) {
	if models == nil {
		return SagaWorker{}, fmt.Errorf("models cannot be nil")
	}

	if len(steps) == 0 {
		return SagaWorker{}, fmt.Errorf("steps cannot be empty")
	}

	if configStore == nil {
		return SagaWorker{}, fmt.Errorf("configStore cannot be nil")
	}

	if crashTrackerClient == nil {
		return SagaWorker{}, fmt.Errorf("crashTrackerClient cannot be nil")
	}

	if monitorService == nil {
		return SagaWorker{}, fmt.Errorf("monitorService cannot be nil")
	}

	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}

	return SagaWorker{
		jobUUID:            uuid.NewString(),
		models:             models,
		steps:              steps,
		configStore:        configStore,
		crashTrackerClient: crashTrackerClient,
		monitorService:     monitorService,
		leaseDuration:      leaseDuration,
	}, nil
}

// updateContextLogger will update the context logger with the saga job details.
func (w *SagaWorker) updateContextLogger(ctx context.Context, job *Job) context.Context {
	labels := log.F{
		"event_id":   w.jobUUID,
		"saga_id":    job.Saga.ID,
		"payment_id": job.Payment.ID,
		"tenant_id":  job.Saga.TenantID,
		"uetr":       job.Payment.UETR,
	}
	return log.Set(ctx, log.Ctx(ctx).WithFields(labels))
}

// Run drives a claimed saga. It never returns an error: failures are reported
// to the crash tracker and the lease is released so another claim can retry.
func (w *SagaWorker) Run(ctx context.Context, saga *data.Saga) {
	ctx = tenantctx.SetTenantContext(ctx, schema.TenantContext{TenantID: saga.TenantID})

	job, err := w.loadJob(ctx, saga)
	if err != nil {
		w.crashTrackerClient.LogAndReportErrors(ctx, err, "loading saga job")
		w.releaseLease(ctx, saga)
		return
	}
	ctx = w.updateContextLogger(ctx, job)

	if err = w.runJob(ctx, job); err != nil {
		if errors.Is(err, data.ErrStaleLock) {
			log.Ctx(ctx).Warnf("Lost the lease on saga %s, another worker owns it now", job.Saga.ID)
			return
		}
		w.crashTrackerClient.LogAndReportErrors(ctx, err, "unexpected saga engine error")
		w.releaseLease(ctx, job.Saga)
	}
}

// RunInline claims one specific saga and drives it on the caller's goroutine.
// Synchronous-mode requests use this to run the saga inside the response
// budget; when the budget's context expires mid-run the lease is released and
// the claim loop finishes the saga in the background.
func (w *SagaWorker) RunInline(ctx context.Context, sagaID string) error {
	saga, err := w.models.Sagas.ClaimByID(ctx, w.models.DBConnectionPool, sagaID, w.leaseDuration)
	if err != nil {
		return fmt.Errorf("claiming saga %s: %w", sagaID, err)
	}

	w.Run(ctx, saga)
	return nil
}

func (w *SagaWorker) loadJob(ctx context.Context, saga *data.Saga) (*Job, error) {
	payment, err := w.models.Payment.Get(ctx, w.models.DBConnectionPool, saga.TenantID, saga.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("getting payment %s for saga %s: %w", saga.PaymentID, saga.ID, err)
	}

	stepRows, err := w.models.SagaSteps.GetBySagaID(ctx, w.models.DBConnectionPool, saga.ID)
	if err != nil {
		return nil, fmt.Errorf("getting steps for saga %s: %w", saga.ID, err)
	}

	config, err := w.configStore.GetConfig(ctx, saga.TenantID, saga.ConfigVersion)
	if err != nil {
		return nil, fmt.Errorf("getting tenant config version %d for saga %s: %w", saga.ConfigVersion, saga.ID, err)
	}

	return &Job{Saga: saga, Steps: stepRows, Payment: payment, Config: config}, nil
}

// validateJob will check if the job is claimable and consistent with the
// engine's step sequence.
func (w *SagaWorker) validateJob(job *Job) error {
	if job == nil || job.Saga == nil {
		return fmt.Errorf("saga job cannot be nil")
	}

	allowedStatuses := []data.SagaStatus{data.RunningSagaStatus, data.CompensatingSagaStatus}
	if !slices.Contains(allowedStatuses, job.Saga.Status) {
		return fmt.Errorf("invalid saga status: %v", job.Saga.Status)
	}

	if job.Saga.LockToken == "" {
		return fmt.Errorf("saga %s is not claimed", job.Saga.ID)
	}

	if len(job.Steps) != len(w.steps) {
		return fmt.Errorf("saga %s has %d step rows, the engine runs %d steps", job.Saga.ID, len(job.Steps), len(w.steps))
	}
	for i := range w.steps {
		if job.Steps[i].Name != w.steps[i].Name() {
			return fmt.Errorf("saga %s step %d is %q, the engine expects %q", job.Saga.ID, i, job.Steps[i].Name, w.steps[i].Name())
		}
	}

	return nil
}

func (w *SagaWorker) runJob(ctx context.Context, job *Job) error {
	if err := w.validateJob(job); err != nil {
		return fmt.Errorf("validating job: %w", err)
	}

	if job.Saga.Status == data.CompensatingSagaStatus {
		// Re-claimed mid-compensation after a crash or reaped lease.
		job.Failure = w.inferFailure(job)
		return w.runCompensation(ctx, job)
	}

	return w.runForward(ctx, job)
}

func (w *SagaWorker) runForward(ctx context.Context, job *Job) error {
	log.Ctx(ctx).Infof("🚧 Processing saga job %s...", job)

	for {
		if ctx.Err() != nil {
			// Shutting down: hand the saga back right away instead of letting
			// the lease run out.
			w.releaseLease(ctx, job.Saga)
			return nil
		}

		if job.Saga.CurrentStepIndex >= len(w.steps) {
			return w.complete(ctx, job)
		}

		if err := w.refreshSaga(ctx, job); err != nil {
			return err
		}

		if job.Saga.CancelRequested {
			failure := NewEngineError(FailureCancelled, iso20022.ReasonCustomerRequest, fmt.Errorf("cancellation requested by the tenant"))
			return w.beginCompensation(ctx, job, failure)
		}
		if job.Saga.DeadlineAt != nil && time.Now().After(*job.Saga.DeadlineAt) {
			failure := NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem,
				fmt.Errorf("saga_timeout: wall-clock deadline %s exceeded", job.Saga.DeadlineAt.Format(time.RFC3339)))
			return w.beginCompensation(ctx, job, failure)
		}

		row := &job.Steps[job.Saga.CurrentStepIndex]
		step := w.steps[job.Saga.CurrentStepIndex]

		// A finished row behind the cursor can only come from manual repair;
		// move past it rather than re-executing a committed step.
		if row.Status == data.SucceededSagaStepStatus || row.Status == data.SkippedSagaStepStatus {
			if err := w.models.Sagas.AdvanceStep(ctx, w.models.DBConnectionPool, job.Saga.ID, job.Saga.LockToken, job.Saga.CurrentStepIndex+1); err != nil {
				return err
			}
			job.Saga.CurrentStepIndex++
			continue
		}

		// A scheduled retry that is not due yet: wait in process when the gap
		// is small, otherwise park and let the wake job revive the saga.
		if row.NextRetryAt != nil {
			if wait := time.Until(*row.NextRetryAt); wait > 0 {
				if wait > w.leaseDuration/2 {
					return w.park(ctx, job, *row.NextRetryAt)
				}
				if sleepCtx(ctx, wait) != nil {
					continue // the loop top releases the lease
				}
			}
		}

		if err := w.models.Sagas.ExtendLease(ctx, w.models.DBConnectionPool, job.Saga.ID, job.Saga.LockToken, w.leaseDuration); err != nil {
			return err
		}
		if err := w.models.SagaSteps.MarkRunning(ctx, w.models.DBConnectionPool, row.ID); err != nil {
			return fmt.Errorf("marking step %s running: %w", row.Name, err)
		}
		row.Status = data.RunningSagaStepStatus
		row.Attempt++
		row.NextRetryAt = nil

		startedAt := time.Now()
		outcome := step.Execute(ctx, job)
		w.monitorStep(ctx, step.Name(), outcome.Kind, time.Since(startedAt))

		switch outcome.Kind {
		case OutcomeSucceeded, OutcomeSkipped:
			if err := w.finishStep(ctx, job, row, outcome); err != nil {
				return err
			}

		case OutcomeParked:
			if err := w.models.SagaSteps.MarkParked(ctx, w.models.DBConnectionPool, row.ID, outcome.WakeAt); err != nil {
				return fmt.Errorf("parking step %s: %w", row.Name, err)
			}
			row.Status = data.PendingSagaStepStatus
			row.Attempt = 0
			return w.park(ctx, job, outcome.WakeAt)

		case OutcomeRetryable:
			log.Ctx(ctx).Warnf("Step %s attempt %d/%d failed: %v", row.Name, row.Attempt, step.MaxAttempts(), outcome.Err)
			if row.Attempt >= step.MaxAttempts() {
				exhausted := NewEngineError(outcome.Err.Category, outcome.Err.Reason,
					fmt.Errorf("step %s exhausted its %d attempts: %w", row.Name, step.MaxAttempts(), outcome.Err.Err))
				return w.failStep(ctx, job, row, exhausted)
			}
			if err := w.scheduleRetry(ctx, job, row, outcome.Err); err != nil {
				return err
			}

		case OutcomeTerminal:
			return w.failStep(ctx, job, row, outcome.Err)

		default:
			return fmt.Errorf("step %s returned unknown outcome kind %q", row.Name, outcome.Kind)
		}
	}
}

// scheduleRetry persists the step's next attempt time first, so the retry
// survives a crash, then either waits in process or parks the saga when the
// backoff would eat most of the lease.
func (w *SagaWorker) scheduleRetry(ctx context.Context, job *Job, row *data.SagaStep, stepErr *EngineError) error {
	backoff := utils.FullJitterBackoff(row.Attempt, backoffBase, backoffLimit)
	nextRetryAt := time.Now().Add(backoff)

	if err := w.models.SagaSteps.ScheduleRetry(ctx, w.models.DBConnectionPool, row.ID, nextRetryAt, stepErr.Error()); err != nil {
		return fmt.Errorf("scheduling retry for step %s: %w", row.Name, err)
	}
	row.Status = data.PendingSagaStepStatus
	row.NextRetryAt = &nextRetryAt
	row.LastError = stepErr.Error()

	if backoff > w.leaseDuration/2 {
		return w.park(ctx, job, nextRetryAt)
	}
	// The in-process wait keeps the claim warm for short backoffs. If the
	// context dies mid-sleep the loop top releases the lease.
	_ = sleepCtx(ctx, backoff)
	return nil
}

// finishStep commits the step result, the cursor move and the payment status
// it proves in one transaction, so a crash can never leave them disagreeing.
func (w *SagaWorker) finishStep(ctx context.Context, job *Job, row *data.SagaStep, outcome Outcome) error {
	nextIndex := job.Saga.CurrentStepIndex + 1

	err := db.RunInTransaction(ctx, w.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) error {
		if outcome.Kind == OutcomeSkipped {
			if err := w.models.SagaSteps.MarkSkipped(ctx, dbTx, row.ID, outcome.SkipReason); err != nil {
				return err
			}
		} else {
			if err := w.models.SagaSteps.MarkSucceeded(ctx, dbTx, row.ID, outcome.Output); err != nil {
				return err
			}
		}

		if err := w.models.Sagas.AdvanceStep(ctx, dbTx, job.Saga.ID, job.Saga.LockToken, nextIndex); err != nil {
			return err
		}

		return w.advancePayment(ctx, dbTx, job, row.Name)
	})
	if err != nil {
		if errors.Is(err, data.ErrStaleLock) {
			return err
		}
		return fmt.Errorf("finishing step %s for saga %s: %w", row.Name, job.Saga.ID, err)
	}

	if outcome.Kind == OutcomeSkipped {
		row.Status = data.SkippedSagaStepStatus
		log.Ctx(ctx).Infof("Skipped step %s: %s", row.Name, outcome.SkipReason)
	} else {
		row.Status = data.SucceededSagaStepStatus
		row.Output = outcome.Output
	}
	job.Saga.CurrentStepIndex = nextIndex

	return nil
}

func (w *SagaWorker) advancePayment(ctx context.Context, dbTx db.DBTransaction, job *Job, stepName string) error {
	target, ok := stepPaymentTransitions[stepName]
	if !ok || job.Payment.Status == target {
		return nil
	}

	if err := w.models.Payment.UpdateStatus(ctx, dbTx, job.Payment, target, ""); err != nil {
		return fmt.Errorf("advancing payment %s to %s: %w", job.Payment.ID, target, err)
	}

	switch target {
	case data.ValidatedPaymentStatus:
		return w.stagePaymentEvent(ctx, dbTx, job, events.PaymentValidatedTopic, "")
	case data.ClearingSubmittedPaymentStatus:
		// The rail-side transaction exists once submit succeeds.
		return w.stageTransactionEvent(ctx, dbTx, job, events.TransactionCreatedTopic)
	}
	return nil
}

// failStep records the terminal failure on the step row and turns the saga
// around.
func (w *SagaWorker) failStep(ctx context.Context, job *Job, row *data.SagaStep, failure *EngineError) error {
	log.Ctx(ctx).Errorf("🔴 Step %s failed terminally for saga %s: %v", row.Name, job.Saga.ID, failure)

	if err := w.models.SagaSteps.MarkFailed(ctx, w.models.DBConnectionPool, row.ID, failure.Error()); err != nil {
		return fmt.Errorf("marking step %s failed: %w", row.Name, err)
	}
	row.Status = data.FailedSagaStepStatus
	row.LastError = failure.Error()

	return w.beginCompensation(ctx, job, failure)
}

func (w *SagaWorker) beginCompensation(ctx context.Context, job *Job, failure *EngineError) error {
	job.Failure = failure

	if err := w.models.Sagas.UpdateStatus(ctx, w.models.DBConnectionPool, job.Saga, data.CompensatingSagaStatus, failure.Error()); err != nil {
		return err
	}

	return w.runCompensation(ctx, job)
}

// runCompensation undoes committed side effects in reverse step order. Rows
// that never ran (PENDING) or never committed anything (SKIPPED) are passed
// over; FAILED and RUNNING rows are compensated too because a crashed attempt
// may have committed before the row was finished, and every Compensate is
// guarded by its step's recorded output.
func (w *SagaWorker) runCompensation(ctx context.Context, job *Job) error {
	log.Ctx(ctx).Infof("Compensating saga %s from step index %d...", job.Saga.ID, job.Saga.CurrentStepIndex)

	start := min(job.Saga.CurrentStepIndex, len(w.steps)-1)
	for i := start; i >= 0; i-- {
		row := &job.Steps[i]
		step := w.steps[i]

		switch row.Status {
		case data.SucceededSagaStepStatus, data.FailedSagaStepStatus, data.RunningSagaStepStatus:
		default:
			continue
		}
		if row.CompensationStatus == data.CompensatedCompensationStatus {
			continue
		}

		if err := w.models.Sagas.ExtendLease(ctx, w.models.DBConnectionPool, job.Saga.ID, job.Saga.LockToken, w.leaseDuration); err != nil {
			return err
		}
		if err := w.models.SagaSteps.SetCompensationStatus(ctx, w.models.DBConnectionPool, row.ID, data.CompensatingCompensationStatus, ""); err != nil {
			return fmt.Errorf("marking step %s compensating: %w", row.Name, err)
		}

		compErr := retry.Do(
			func() error { return step.Compensate(ctx, job) },
			retry.Attempts(compensationAttempts),
			retry.Context(ctx),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if compErr != nil {
			compErr = fmt.Errorf("compensating step %s for saga %s: %w", row.Name, job.Saga.ID, compErr)
			if setErr := w.models.SagaSteps.SetCompensationStatus(ctx, w.models.DBConnectionPool, row.ID, data.FailedCompensationStatus, compErr.Error()); setErr != nil {
				log.Ctx(ctx).Errorf("Error marking step %s compensation failed: %v", row.Name, setErr)
			}
			return w.deadLetter(ctx, job, row.Name, compErr)
		}

		if err := w.models.SagaSteps.SetCompensationStatus(ctx, w.models.DBConnectionPool, row.ID, data.CompensatedCompensationStatus, ""); err != nil {
			return fmt.Errorf("marking step %s compensated: %w", row.Name, err)
		}
		row.CompensationStatus = data.CompensatedCompensationStatus
	}

	return w.concludeCompensated(ctx, job)
}

// deadLetter parks the saga permanently for an operator: compensation could
// not restore consistency, so no automatic retry is safe.
func (w *SagaWorker) deadLetter(ctx context.Context, job *Job, stepName string, cause error) error {
	w.crashTrackerClient.LogAndReportErrors(ctx, cause, "saga compensation failed, dead-lettering")

	payload, err := json.Marshal(schemas.EventSagaStatusChangedData{
		SagaID:      job.Saga.ID,
		PaymentID:   job.Payment.ID,
		Status:      string(data.FailedSagaStatus),
		CurrentStep: stepName,
		FailureCode: failureCode(job.Failure),
	})
	if err != nil {
		return fmt.Errorf("marshalling dead-letter event for saga %s: %w", job.Saga.ID, err)
	}

	err = db.RunInTransaction(ctx, w.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) error {
		if err := w.models.Sagas.MarkDeadLettered(ctx, dbTx, job.Saga, cause.Error()); err != nil {
			return err
		}

		_, err := w.models.Outbox.Insert(ctx, dbTx, data.OutboxInsert{
			TenantID:  job.Saga.TenantID,
			Topic:     events.DeadLetterTopic,
			Key:       job.Payment.ID,
			EventType: events.SagaDeadLetteredType,
			Payload:   payload,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, data.ErrStaleLock) {
			return err
		}
		return fmt.Errorf("dead-lettering saga %s: %w", job.Saga.ID, err)
	}

	labels := map[string]string{
		"step":        stepName,
		"tenant_name": tenantctx.MustGetTenantNameFromContext(ctx),
	}
	if monitorErr := w.monitorService.MonitorCounters(monitor.SagaDeadLettersCounterTag, labels); monitorErr != nil {
		log.Ctx(ctx).Errorf("Error monitoring dead-letter counter: %v", monitorErr)
	}

	log.Ctx(ctx).Errorf("🔴 Dead-lettered saga %s at step %s: %v", job.Saga.ID, stepName, cause)

	return nil
}

// concludeCompensated commits the saga's terminal state: the payment's final
// status, the UETR release, the saga status and the events reporting them,
// all in one transaction.
func (w *SagaWorker) concludeCompensated(ctx context.Context, job *Job) error {
	sagaReason, clientReason := "", ""
	if job.Failure != nil {
		// The saga's history is an operator surface and keeps the wrapped
		// error. The payment row's reason reaches originators through the
		// pain.002 and the outcome notification, so it gets the client-safe
		// form.
		sagaReason = job.Failure.Error()
		clientReason = job.Failure.ClientError()
	}

	err := db.RunInTransaction(ctx, w.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) error {
		if err := w.terminalPayment(ctx, dbTx, job, clientReason); err != nil {
			return err
		}
		if err := w.models.UETRDedupe.MarkTerminal(ctx, dbTx, job.Payment.ID); err != nil {
			return err
		}
		if err := w.models.Sagas.UpdateStatus(ctx, dbTx, job.Saga, data.CompensatedSagaStatus, sagaReason); err != nil {
			return err
		}

		if err := w.stagePaymentEvent(ctx, dbTx, job, events.PaymentFailedTopic, clientReason); err != nil {
			return err
		}
		return w.stageSagaEvent(ctx, dbTx, job)
	})
	if err != nil {
		if errors.Is(err, data.ErrStaleLock) {
			return err
		}
		return fmt.Errorf("concluding compensation for saga %s: %w", job.Saga.ID, err)
	}

	w.releaseLease(ctx, job.Saga)
	log.Ctx(ctx).Infof("Compensated saga %s; payment %s is %s", job.Saga.ID, job.Payment.ID, job.Payment.Status)

	return nil
}

// terminalPayment moves the payment to the terminal status the compensation
// walk earned: REVERSED when booked funds were pulled back, CLEARING_REJECTED
// when the rail said no, CANCELLED when the tenant stopped it in time, FAILED
// otherwise.
func (w *SagaWorker) terminalPayment(ctx context.Context, dbTx db.DBTransaction, job *Job, statusReason string) error {
	if row, ok := job.StepRow(StepPostLedger); ok && row.Status == data.SucceededSagaStepStatus {
		return w.models.Payment.UpdateStatus(ctx, dbTx, job.Payment, data.ReversedPaymentStatus, statusReason)
	}

	if job.Failure != nil {
		switch job.Failure.Category {
		case FailureClearingRejected:
			if job.Payment.Status == data.RoutedPaymentStatus {
				// The rejection arrived on the submit response itself, before
				// the submit step could finish.
				if err := w.models.Payment.UpdateStatus(ctx, dbTx, job.Payment, data.ClearingSubmittedPaymentStatus, ""); err != nil {
					return err
				}
			}
			if job.Payment.Status == data.ClearingSubmittedPaymentStatus {
				return w.models.Payment.UpdateStatus(ctx, dbTx, job.Payment, data.ClearingRejectedPaymentStatus, statusReason)
			}
		case FailureCancelled:
			if job.Payment.Status.TransitionTo(data.CancelledPaymentStatus) == nil {
				return w.models.Payment.UpdateStatus(ctx, dbTx, job.Payment, data.CancelledPaymentStatus, statusReason)
			}
		}
	}

	return w.models.Payment.UpdateStatus(ctx, dbTx, job.Payment, data.FailedPaymentStatus, statusReason)
}

// complete settles the payment after the last step: payment SETTLED, saga
// COMPLETED, UETR released for archival, completion events staged.
func (w *SagaWorker) complete(ctx context.Context, job *Job) error {
	err := db.RunInTransaction(ctx, w.models.DBConnectionPool, nil, func(dbTx db.DBTransaction) error {
		if err := w.models.Payment.UpdateStatus(ctx, dbTx, job.Payment, data.SettledPaymentStatus, ""); err != nil {
			return err
		}
		if err := w.models.UETRDedupe.MarkTerminal(ctx, dbTx, job.Payment.ID); err != nil {
			return err
		}
		if err := w.models.Sagas.UpdateStatus(ctx, dbTx, job.Saga, data.CompletedSagaStatus, ""); err != nil {
			return err
		}

		if err := w.stageTransactionEvent(ctx, dbTx, job, events.TransactionCompletedTopic); err != nil {
			return err
		}
		if err := w.stagePaymentEvent(ctx, dbTx, job, events.PaymentCompletedTopic, ""); err != nil {
			return err
		}
		return w.stageSagaEvent(ctx, dbTx, job)
	})
	if err != nil {
		if errors.Is(err, data.ErrStaleLock) {
			return err
		}
		return fmt.Errorf("completing saga %s: %w", job.Saga.ID, err)
	}

	w.releaseLease(ctx, job.Saga)
	log.Ctx(ctx).Infof("🎉 Successfully settled payment %s (saga %s)", job.Payment.ID, job.Saga.ID)

	return nil
}

func (w *SagaWorker) stagePaymentEvent(ctx context.Context, dbTx db.DBTransaction, job *Job, topic, statusMessage string) error {
	payload, err := json.Marshal(schemas.EventPaymentStatusChangedData{
		PaymentID:       job.Payment.ID,
		UETR:            job.Payment.UETR,
		PaymentTypeCode: job.Payment.PaymentTypeCode,
		Status:          string(job.Payment.Status),
		StatusMessage:   statusMessage,
		Rail:            string(job.Payment.Rail),
	})
	if err != nil {
		return fmt.Errorf("marshalling payment event: %w", err)
	}

	_, err = w.models.Outbox.Insert(ctx, dbTx, data.OutboxInsert{
		TenantID:  job.Payment.TenantID,
		Topic:     topic,
		Key:       job.Payment.ID,
		EventType: events.PaymentStatusChangedType,
		Payload:   payload,
	})
	return err
}

// stageTransactionEvent reports the rail-side transaction on the
// transaction.*.v1 topics, keyed by the payment so it orders with the
// payment's own events.
func (w *SagaWorker) stageTransactionEvent(ctx context.Context, dbTx db.DBTransaction, job *Job, topic string) error {
	payload, err := json.Marshal(schemas.EventPaymentStatusChangedData{
		PaymentID:         job.Payment.ID,
		UETR:              job.Payment.UETR,
		PaymentTypeCode:   job.Payment.PaymentTypeCode,
		Status:            string(job.Payment.Status),
		Rail:              string(job.Payment.Rail),
		ClearingReference: job.Payment.ClearingReference,
	})
	if err != nil {
		return fmt.Errorf("marshalling transaction event: %w", err)
	}

	_, err = w.models.Outbox.Insert(ctx, dbTx, data.OutboxInsert{
		TenantID:  job.Payment.TenantID,
		Topic:     topic,
		Key:       job.Payment.ID,
		EventType: events.TransactionStatusChangedType,
		Payload:   payload,
	})
	return err
}

func (w *SagaWorker) stageSagaEvent(ctx context.Context, dbTx db.DBTransaction, job *Job) error {
	payload, err := json.Marshal(schemas.EventSagaStatusChangedData{
		SagaID:      job.Saga.ID,
		PaymentID:   job.Payment.ID,
		Status:      string(job.Saga.Status),
		CurrentStep: currentStepName(job),
		FailureCode: failureCode(job.Failure),
	})
	if err != nil {
		return fmt.Errorf("marshalling saga event: %w", err)
	}

	_, err = w.models.Outbox.Insert(ctx, dbTx, data.OutboxInsert{
		TenantID:  job.Saga.TenantID,
		Topic:     events.SagaCompletedTopic,
		Key:       job.Payment.ID,
		EventType: events.SagaStatusChangedType,
		Payload:   payload,
	})
	return err
}

// refreshSaga re-reads the saga row to pick up operator writes, cancel
// requests above all, and to notice a lost lease before the next step runs.
func (w *SagaWorker) refreshSaga(ctx context.Context, job *Job) error {
	fresh, err := w.models.Sagas.Get(ctx, w.models.DBConnectionPool, job.Saga.ID)
	if err != nil {
		return fmt.Errorf("refreshing saga %s: %w", job.Saga.ID, err)
	}
	if fresh.LockToken != job.Saga.LockToken {
		return data.ErrStaleLock
	}
	job.Saga.CancelRequested = fresh.CancelRequested
	return nil
}

func (w *SagaWorker) park(ctx context.Context, job *Job, wakeAt time.Time) error {
	if err := w.models.Sagas.Park(ctx, w.models.DBConnectionPool, job.Saga.ID, job.Saga.LockToken, wakeAt); err != nil {
		if errors.Is(err, data.ErrStaleLock) {
			return err
		}
		return fmt.Errorf("parking saga %s: %w", job.Saga.ID, err)
	}

	log.Ctx(ctx).Infof("Parked saga %s until %s", job.Saga.ID, wakeAt.Format(time.RFC3339))
	return nil
}

// releaseLease hands the saga back to the claim loop. It uses a detached
// context so the release still lands during shutdown.
func (w *SagaWorker) releaseLease(ctx context.Context, saga *data.Saga) {
	if saga.LockToken == "" {
		return
	}

	err := w.models.Sagas.ReleaseLease(context.WithoutCancel(ctx), w.models.DBConnectionPool, saga.ID, saga.LockToken)
	if err != nil && !errors.Is(err, data.ErrStaleLock) {
		log.Ctx(ctx).Errorf("Error releasing lease on saga %s: %v", saga.ID, err)
	}
}

// inferFailure reconstructs the terminal failure for a saga re-claimed midway
// through compensation, where the in-memory error from the original claim is
// gone. The failed step row and the status history both carry the failure in
// EngineError's string form.
func (w *SagaWorker) inferFailure(job *Job) *EngineError {
	for i := len(job.Steps) - 1; i >= 0; i-- {
		if job.Steps[i].Status == data.FailedSagaStepStatus && job.Steps[i].LastError != "" {
			return parseEngineError(job.Steps[i].LastError)
		}
	}

	if job.Saga.CancelRequested {
		return NewEngineError(FailureCancelled, iso20022.ReasonCustomerRequest, fmt.Errorf("cancellation requested by the tenant"))
	}

	for i := len(job.Saga.StatusHistory) - 1; i >= 0; i-- {
		entry := job.Saga.StatusHistory[i]
		if entry.Status == data.CompensatingSagaStatus && entry.StatusReason != "" {
			return parseEngineError(entry.StatusReason)
		}
	}

	return NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, fmt.Errorf("saga re-claimed mid-compensation with no recorded failure"))
}

// parseEngineError recovers category and reason code from EngineError's
// "CATEGORY (CODE): message" string form.
func parseEngineError(s string) *EngineError {
	catEnd := strings.Index(s, " (")
	codeEnd := strings.Index(s, "): ")
	if catEnd > 0 && codeEnd > catEnd+2 {
		return NewEngineError(FailureCategory(s[:catEnd]), iso20022.ReasonCode(s[catEnd+2:codeEnd]), errors.New(s[codeEnd+3:]))
	}
	return NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, errors.New(s))
}

func (w *SagaWorker) monitorStep(ctx context.Context, stepName string, kind OutcomeKind, duration time.Duration) {
	labels := monitor.SagaStepLabels{
		Step:    stepName,
		Outcome: strings.ToLower(string(kind)),
		CommonLabels: monitor.CommonLabels{
			TenantName: tenantctx.MustGetTenantNameFromContext(ctx),
		},
	}

	if err := w.monitorService.MonitorDuration(duration, monitor.SagaStepDurationTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("Error monitoring saga step duration: %v", err)
	}
	if err := w.monitorService.MonitorCounters(monitor.SagaStepsCounterTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("Error monitoring saga step counter: %v", err)
	}
}

func currentStepName(job *Job) string {
	if job.Saga.CurrentStepIndex < len(job.Steps) {
		return job.Steps[job.Saga.CurrentStepIndex].Name
	}
	return ""
}

func failureCode(failure *EngineError) string {
	if failure == nil {
		return ""
	}
	return string(failure.Reason)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
