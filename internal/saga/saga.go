// Package saga orchestrates one payment end to end: each payment gets a
// durable saga whose steps run in a fixed order, retry with jittered backoff,
// and compensate in reverse when a step fails terminally. Workers claim sagas
// with a lock token and lease; every database write is compare-and-swap on
// the token, so a worker whose lease was reaped loses silently instead of
// corrupting a saga another worker picked up.
package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

// Step names, in execution order.
const (
	StepValidate            = "Validate"
	StepFraudScore          = "FraudScore"
	StepReserveFunds        = "ReserveFunds"
	StepRoute               = "Route"
	StepSubmitToClearing    = "SubmitToClearing"
	StepAwaitClearingResult = "AwaitClearingResult"
	StepPostLedger          = "PostLedger"
	StepNotify              = "Notify"
)

// StepNames returns the step sequence in execution order. The acceptance API
// inserts saga_steps rows from this list, so the row order and the engine's
// step order can never drift apart.
func StepNames() []string {
	return []string{
		StepValidate,
		StepFraudScore,
		StepReserveFunds,
		StepRoute,
		StepSubmitToClearing,
		StepAwaitClearingResult,
		StepPostLedger,
		StepNotify,
	}
}

const (
	// DefaultLeaseDuration is how long a claim holds a saga before the reaper
	// may hand it to another worker. Workers heartbeat between steps.
	DefaultLeaseDuration = 30 * time.Second

	// internalStepMaxAttempts bounds retries of steps that only touch systems
	// we operate (ledger, fraud, database).
	internalStepMaxAttempts = 5
	// railStepMaxAttempts bounds rail-bound work: submission attempts and
	// poll rounds while waiting on an async clearing result.
	railStepMaxAttempts = 3

	// Retry backoff window, full jitter.
	backoffBase  = 500 * time.Millisecond
	backoffLimit = 60 * time.Second

	// pollParkInterval spaces poll rounds while a saga waits on an async rail
	// with no callback delivered yet.
	pollParkInterval = 30 * time.Second

	// compensationAttempts bounds each compensation call before the saga is
	// dead-lettered for an operator.
	compensationAttempts = 3
)

// FailureCategory classifies why a step gave up, driving the compensation
// walk's terminal payment status and the reason code on the outgoing pain.002.
type FailureCategory string

const (
	FailureValidation         FailureCategory = "VALIDATION"
	FailureFraud              FailureCategory = "FRAUD"
	FailureInsufficientFunds  FailureCategory = "INSUFFICIENT_FUNDS"
	FailureConfig             FailureCategory = "CONFIG"
	FailureClearingRejected   FailureCategory = "CLEARING_REJECTED"
	FailureAdapterUnavailable FailureCategory = "ADAPTER_UNAVAILABLE"
	FailureCancelled          FailureCategory = "CANCELLED"
	FailureInternal           FailureCategory = "INTERNAL"
)

// EngineError is the classified failure a step reports. Reason is the ISO
// 20022 status reason that ends up in the pain.002 when the failure turns
// out to be the saga's last word.
type EngineError struct {
	Category FailureCategory
	Reason   iso20022.ReasonCode
	Err      error
}

func NewEngineError(category FailureCategory, reason iso20022.ReasonCode, err error) *EngineError {
	return &EngineError{Category: category, Reason: reason, Err: err}
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Category, e.Reason, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// clientMessages is the originator-facing text per failure category. The
// payment's StatusReason, and from there the pain.002 AddtlInf and the
// outcome notification, carry these; the wrapped Err with its transport
// detail stays in logs, step rows and the saga history.
var clientMessages = map[FailureCategory]string{
	FailureValidation:         "the payment failed validation",
	FailureFraud:              "the payment was declined by fraud screening",
	FailureInsufficientFunds:  "insufficient funds on the debtor account",
	FailureConfig:             "the tenant configuration does not allow this payment",
	FailureClearingRejected:   "the payment was rejected by the clearing rail",
	FailureAdapterUnavailable: "a downstream system was unavailable",
	FailureCancelled:          "the payment was cancelled at the originator's request",
	FailureInternal:           "a technical problem",
}

// ClientError renders the failure in the same "CATEGORY (CODE): message"
// form as Error, with the category's canonical text in place of the wrapped
// error.
func (e *EngineError) ClientError() string {
	message, ok := clientMessages[e.Category]
	if !ok {
		message = clientMessages[FailureInternal]
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Reason, message)
}

// OutcomeKind is a step's verdict for one execution attempt.
type OutcomeKind string

const (
	// OutcomeSucceeded advances the saga to the next step.
	OutcomeSucceeded OutcomeKind = "SUCCEEDED"
	// OutcomeRetryable schedules another attempt with backoff; exhausting the
	// step's attempts escalates to terminal.
	OutcomeRetryable OutcomeKind = "RETRYABLE"
	// OutcomeTerminal turns the saga around into compensation.
	OutcomeTerminal OutcomeKind = "TERMINAL"
	// OutcomeSkipped advances without doing anything, e.g. fraud scoring
	// disabled for the payment's profile.
	OutcomeSkipped OutcomeKind = "SKIPPED"
	// OutcomeParked releases the lease and waits for an external signal: a
	// clearing callback, the consumer, or the poll job after WakeAt.
	OutcomeParked OutcomeKind = "PARKED"
)

// Outcome carries a step verdict plus its kind-specific payload.
type Outcome struct {
	Kind OutcomeKind
	// Output is persisted on the step row on success, for later steps and for
	// compensation to read.
	Output []byte
	// SkipReason is recorded on the step row when the step was skipped.
	SkipReason string
	// Err carries the classified failure for retryable and terminal outcomes.
	Err *EngineError
	// WakeAt bounds how long a parked saga waits before the poll job picks it
	// back up.
	WakeAt time.Time
}

func Succeeded(output []byte) Outcome { return Outcome{Kind: OutcomeSucceeded, Output: output} }

func Skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, SkipReason: reason} }

func Retryable(err *EngineError) Outcome { return Outcome{Kind: OutcomeRetryable, Err: err} }

func Terminal(err *EngineError) Outcome { return Outcome{Kind: OutcomeTerminal, Err: err} }

func Parked(wakeAt time.Time) Outcome { return Outcome{Kind: OutcomeParked, WakeAt: wakeAt} }

// Step is one unit of forward work in the payment saga. Implementations must
// be idempotent: a step can run again after a crash that lost its outcome, so
// side effects carry stable idempotency keys.
type Step interface {
	Name() string
	// MaxAttempts bounds retryable failures (and poll rounds for parked
	// steps) before the engine escalates to terminal.
	MaxAttempts() int
	Execute(ctx context.Context, job *Job) Outcome
	// Compensate undoes the step's committed side effects during the reverse
	// walk. Steps without side effects return nil; the engine retries errors
	// and dead-letters the saga when they persist.
	Compensate(ctx context.Context, job *Job) error
}

// NotifierInterface delivers tenant-facing payment outcome notifications.
// The Notify step treats delivery as best effort.
type NotifierInterface interface {
	NotifyPaymentOutcome(ctx context.Context, payment *data.Payment, notifCfg tenant.NotificationConfig) error
}

// Job bundles everything a worker loads for one claimed saga. Saga is set by
// the claimer; the worker fills the rest before running steps. Failure is set
// when the saga turns around, so compensation can shape the recall reason and
// the terminal payment status.
type Job struct {
	Saga    *data.Saga
	Steps   []data.SagaStep
	Payment *data.Payment
	Config  *tenant.TenantConfig
	Failure *EngineError
}

func (j *Job) String() string {
	if j == nil || j.Saga == nil {
		return "SagaJob{}"
	}
	return fmt.Sprintf("SagaJob{saga: %s, payment: %s, tenant: %s}", j.Saga.ID, j.Saga.PaymentID, j.Saga.TenantID)
}

// StepRow returns the persisted row for the named step.
func (j *Job) StepRow(name string) (*data.SagaStep, bool) {
	for i := range j.Steps {
		if j.Steps[i].Name == name {
			return &j.Steps[i], true
		}
	}
	return nil, false
}

// SucceededOutput unmarshals the stored output of a succeeded step into out.
// It errors when the step is missing, not succeeded, or stored no output, so
// callers can distinguish "nothing to do" from "do it with this input".
func (j *Job) SucceededOutput(name string, out any) error {
	row, ok := j.StepRow(name)
	if !ok {
		return fmt.Errorf("saga %s has no step %s", j.Saga.ID, name)
	}
	if row.Status != data.SucceededSagaStepStatus {
		return fmt.Errorf("step %s is %s, not %s", name, row.Status, data.SucceededSagaStepStatus)
	}
	if len(row.Output) == 0 {
		return fmt.Errorf("step %s recorded no output", name)
	}
	if err := json.Unmarshal(row.Output, out); err != nil {
		return fmt.Errorf("unmarshalling output of step %s: %w", name, err)
	}
	return nil
}
