package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/clearing"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/fraud"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/ledger"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/routing"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

// StepDeps carries the adapter clients the steps call out to. Notifier is
// optional; everything else is required.
type StepDeps struct {
	Models           *data.Models
	LedgerClient     ledger.AdapterInterface
	FraudScorer      fraud.ScorerInterface
	Resolver         routing.ResolverInterface
	ClearingRegistry clearing.RegistryInterface
	Notifier         NotifierInterface
}

func (d StepDeps) validate() error {
	if d.Models == nil {
		return fmt.Errorf("models cannot be nil")
	}
	if d.LedgerClient == nil {
		return fmt.Errorf("ledger client cannot be nil")
	}
	if d.FraudScorer == nil {
		return fmt.Errorf("fraud scorer cannot be nil")
	}
	if d.Resolver == nil {
		return fmt.Errorf("routing resolver cannot be nil")
	}
	if d.ClearingRegistry == nil {
		return fmt.Errorf("clearing registry cannot be nil")
	}
	return nil
}

// NewSteps wires the saga step sequence, in execution order.
func NewSteps(deps StepDeps) ([]Step, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("validating step dependencies: %w", err)
	}

	return []Step{
		&validateStep{deps: deps},
		&fraudScoreStep{deps: deps},
		&reserveFundsStep{deps: deps},
		&routeStep{deps: deps},
		&submitToClearingStep{deps: deps},
		&awaitClearingResultStep{deps: deps},
		&postLedgerStep{deps: deps},
		&notifyStep{deps: deps},
	}, nil
}

// Step outputs persisted on saga_steps.output.
type fraudScoreOutput struct {
	Score    float64 `json:"score"`
	Decision string  `json:"decision"`
}

type reserveFundsOutput struct {
	HoldID string `json:"hold_id"`
}

type routeOutput struct {
	Candidates []routing.Candidate `json:"candidates"`
}

type submitOutput struct {
	Rail           string `json:"rail"`
	RailRef        string `json:"rail_ref,omitempty"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
	Final          bool   `json:"final"`
}

type clearingResultOutput struct {
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	RailRef string `json:"rail_ref,omitempty"`
	// Source records where the result came from: submit-response, callback
	// or poll.
	Source string `json:"source"`
}

type postLedgerOutput struct {
	DebitOperationID  string `json:"debit_operation_id"`
	CreditOperationID string `json:"credit_operation_id"`
}

func marshalOutput(out any) Outcome {
	outputJSON, err := json.Marshal(out)
	if err != nil {
		return Retryable(NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, fmt.Errorf("marshalling step output: %w", err)))
	}
	return Succeeded(outputJSON)
}

// internalError wraps infrastructure failures (database, marshalling) that
// deserve another attempt.
func internalError(err error) Outcome {
	return Retryable(NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, err))
}

// classifyLedgerError maps a ledger client error onto the step outcome
// taxonomy: insufficient funds is a business answer, 5xx/timeouts are retried
// with the same idempotency key, anything else 4xx is a dead end.
func classifyLedgerError(err error) Outcome {
	var apiErr *ledger.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsInsufficientFunds() {
			return Terminal(NewEngineError(FailureInsufficientFunds, iso20022.ReasonInsufficientFunds, err))
		}
		if apiErr.IsRetryable() {
			return Retryable(NewEngineError(FailureAdapterUnavailable, iso20022.ReasonTechnicalProblem, err))
		}
		return Terminal(NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, err))
	}

	// Network errors, open breaker, request building: all transient from the
	// saga's point of view.
	return Retryable(NewEngineError(FailureAdapterUnavailable, iso20022.ReasonTechnicalProblem, err))
}

// validateStep re-checks tenant policy under the pinned config version and
// claims the payment's UETR.
type validateStep struct {
	deps StepDeps
}

func (s *validateStep) Name() string     { return StepValidate }
func (s *validateStep) MaxAttempts() int { return internalStepMaxAttempts }

func (s *validateStep) Execute(ctx context.Context, job *Job) Outcome {
	if err := tenant.ValidatePayment(job.Config, job.Payment); err != nil {
		var policyErr *tenant.PolicyError
		if errors.As(err, &policyErr) {
			return Terminal(NewEngineError(FailureValidation, policyReason(policyErr.Violation), err))
		}
		return internalError(err)
	}

	err := s.deps.Models.UETRDedupe.Reserve(ctx, s.deps.Models.DBConnectionPool, job.Payment.TenantID, job.Payment.UETR, job.Payment.ID)
	if errors.Is(err, data.ErrDuplicateUETR) {
		existing, getErr := s.deps.Models.UETRDedupe.Get(ctx, s.deps.Models.DBConnectionPool, job.Payment.TenantID, job.Payment.UETR)
		if getErr != nil {
			return internalError(getErr)
		}
		if existing.PaymentID != job.Payment.ID {
			return Terminal(NewEngineError(FailureValidation, iso20022.ReasonDuplicate,
				fmt.Errorf("UETR %s is already reserved by payment %s", job.Payment.UETR, existing.PaymentID)))
		}
		// Replay of our own reservation after a crash.
	} else if err != nil {
		return internalError(err)
	}

	return Succeeded(nil)
}

func (s *validateStep) Compensate(ctx context.Context, job *Job) error { return nil }

func policyReason(violation tenant.PolicyViolation) iso20022.ReasonCode {
	if violation == tenant.AmountLimitExceededViolation {
		return iso20022.ReasonNotAllowedAmount
	}
	return iso20022.ReasonTransactionForbidden
}

// fraudScoreStep scores the payment when the tenant's toggle matrix enables
// scoring for its profile. There is no manual review queue, so REVIEW fails
// closed alongside DECLINE.
type fraudScoreStep struct {
	deps StepDeps
}

func (s *fraudScoreStep) Name() string     { return StepFraudScore }
func (s *fraudScoreStep) MaxAttempts() int { return internalStepMaxAttempts }

func (s *fraudScoreStep) Execute(ctx context.Context, job *Job) Outcome {
	if !fraud.Enabled(job.Config.Payload.Fraud, job.Payment) {
		return Skipped("fraud scoring disabled for this payment profile")
	}

	result, err := s.deps.FraudScorer.Score(ctx, fraud.ScoreRequest{
		PaymentID:       job.Payment.ID,
		TenantID:        job.Payment.TenantID,
		UETR:            job.Payment.UETR,
		PaymentTypeCode: job.Payment.PaymentTypeCode,
		LocalInstrument: job.Payment.LocalInstrument,
		Amount:          job.Payment.Amount,
		Currency:        job.Payment.Currency,
		DebtorName:      job.Payment.DebtorName,
		DebtorAccount:   job.Payment.DebtorAccount,
		CreditorName:    job.Payment.CreditorName,
		CreditorAccount: job.Payment.CreditorAccount,
		CreditorAgent:   job.Payment.CreditorAgentBIC,
	})
	if err != nil {
		var apiErr *fraud.APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return Terminal(NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, err))
		}
		return Retryable(NewEngineError(FailureAdapterUnavailable, iso20022.ReasonTechnicalProblem, err))
	}

	switch result.Decision {
	case fraud.DecisionApprove:
		return marshalOutput(fraudScoreOutput{Score: result.Score, Decision: string(result.Decision)})
	case fraud.DecisionReview, fraud.DecisionDecline:
		return Terminal(NewEngineError(FailureFraud, iso20022.ReasonFraud,
			fmt.Errorf("fraud scorer returned %s (score %.0f): %s", result.Decision, result.Score, strings.Join(result.Reasons, "; "))))
	default:
		return internalError(fmt.Errorf("fraud scorer returned unknown decision %q", result.Decision))
	}
}

func (s *fraudScoreStep) Compensate(ctx context.Context, job *Job) error { return nil }

// reserveFundsStep places a hold on the debtor account. The idempotency key
// is derived from the payment id, so a retried attempt lands on the same hold.
type reserveFundsStep struct {
	deps StepDeps
}

func (s *reserveFundsStep) Name() string     { return StepReserveFunds }
func (s *reserveFundsStep) MaxAttempts() int { return internalStepMaxAttempts }

func (s *reserveFundsStep) Execute(ctx context.Context, job *Job) Outcome {
	holdResult, err := s.deps.LedgerClient.Hold(ctx, ledger.HoldRequest{
		IdempotencyKey: fmt.Sprintf("hold-%s", job.Payment.ID),
		TenantID:       job.Payment.TenantID,
		AccountRef:     job.Payment.DebtorAccount,
		Money:          paymentMoney(job.Payment),
	})
	if err != nil {
		return classifyLedgerError(err)
	}

	return marshalOutput(reserveFundsOutput{HoldID: holdResult.HoldID})
}

func (s *reserveFundsStep) Compensate(ctx context.Context, job *Job) error {
	var output reserveFundsOutput
	if err := job.SucceededOutput(StepReserveFunds, &output); err != nil {
		// No recorded hold means no funds were reserved.
		return nil
	}

	_, err := s.deps.LedgerClient.ReleaseHold(ctx, ledger.ReleaseRequest{
		IdempotencyKey: fmt.Sprintf("release-%s", job.Payment.ID),
		TenantID:       job.Payment.TenantID,
		HoldID:         output.HoldID,
	})
	if err != nil {
		var apiErr *ledger.APIError
		if errors.As(err, &apiErr) && apiErr.Code == ledger.ErrorCodeHoldNotFound {
			// Already released, or consumed by the debit that was reversed.
			return nil
		}
		return fmt.Errorf("releasing hold %s for payment %s: %w", output.HoldID, job.Payment.ID, err)
	}
	return nil
}

func paymentMoney(p *data.Payment) ledger.Money {
	return ledger.Money{Amount: p.Amount.String(), Currency: p.Currency}
}

// routeStep resolves the candidate rails under the pinned config and records
// the preferred one on the payment.
type routeStep struct {
	deps StepDeps
}

func (s *routeStep) Name() string     { return StepRoute }
func (s *routeStep) MaxAttempts() int { return internalStepMaxAttempts }

func (s *routeStep) Execute(ctx context.Context, job *Job) Outcome {
	candidates, err := s.deps.Resolver.Resolve(ctx, routing.Input{
		TenantID:        job.Payment.TenantID,
		PaymentTypeCode: job.Payment.PaymentTypeCode,
		LocalInstrument: job.Payment.LocalInstrument,
		Currency:        job.Payment.Currency,
		Amount:          job.Payment.Amount,
		Config:          job.Config.Payload,
	})
	if errors.Is(err, routing.ErrNoRoute) {
		return Terminal(NewEngineError(FailureConfig, iso20022.ReasonTransactionForbidden, err))
	}
	if err != nil {
		return internalError(err)
	}

	if err = s.deps.Models.Payment.SetRouting(ctx, s.deps.Models.DBConnectionPool, job.Payment.ID, candidates[0].Rail); err != nil {
		return internalError(err)
	}
	job.Payment.Rail = candidates[0].Rail

	return marshalOutput(routeOutput{Candidates: candidates})
}

func (s *routeStep) Compensate(ctx context.Context, job *Job) error { return nil }

// submitToClearingStep walks the candidate rails in preference order and
// submits to the first one that answers. Only transport-level failures fail
// over; a rejection is the rail's answer and ends the walk.
type submitToClearingStep struct {
	deps StepDeps
}

func (s *submitToClearingStep) Name() string     { return StepSubmitToClearing }
func (s *submitToClearingStep) MaxAttempts() int { return railStepMaxAttempts }

func (s *submitToClearingStep) Execute(ctx context.Context, job *Job) Outcome {
	var route routeOutput
	if err := job.SucceededOutput(StepRoute, &route); err != nil {
		return Terminal(NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, fmt.Errorf("reading route candidates: %w", err)))
	}

	var lastErr error
	for _, candidate := range route.Candidates {
		adapter, err := s.deps.ClearingRegistry.ForRail(ctx, job.Payment.TenantID, candidate.Rail)
		if errors.Is(err, data.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return internalError(err)
		}

		result, err := adapter.Submit(ctx, job.Payment)
		if clearing.IsUnavailable(err) {
			log.Ctx(ctx).Warnf("Rail %s unavailable for payment %s, failing over: %v", candidate.Rail, job.Payment.ID, err)
			lastErr = err
			continue
		}
		if err != nil {
			return Terminal(NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, err))
		}

		if result.Status == iso20022.StatusRejected {
			reason := result.Reason
			if reason == "" {
				reason = iso20022.ReasonNarrative
			}
			return Terminal(NewEngineError(FailureClearingRejected, reason,
				fmt.Errorf("rail %s rejected the payment: %s", candidate.Rail, result.AdditionalInfo)))
		}

		s.recordAcceptance(ctx, job, candidate.Rail, result)

		return marshalOutput(submitOutput{
			Rail:           string(candidate.Rail),
			RailRef:        result.RailRef,
			Status:         string(result.Status),
			Reason:         string(result.Reason),
			AdditionalInfo: result.AdditionalInfo,
			Final:          result.Final,
		})
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no enabled adapter for any of the %d candidate rails", len(route.Candidates))
	}
	return Retryable(NewEngineError(FailureAdapterUnavailable, iso20022.ReasonAbortedClearing, lastErr))
}

// recordAcceptance persists the rail that actually took the payment and its
// reference. The submit already happened, so bookkeeping failures are logged
// rather than turned into a re-submission; downstream correlation falls back
// to the UETR and the step output.
func (s *submitToClearingStep) recordAcceptance(ctx context.Context, job *Job, rail data.Rail, result *clearing.SubmitResult) {
	if rail != job.Payment.Rail {
		if err := s.deps.Models.Payment.SetRouting(ctx, s.deps.Models.DBConnectionPool, job.Payment.ID, rail); err != nil {
			log.Ctx(ctx).Errorf("Recording failover rail %s for payment %s: %v", rail, job.Payment.ID, err)
		} else {
			job.Payment.Rail = rail
		}
	}

	if result.RailRef != "" {
		if err := s.deps.Models.Payment.SetClearingReference(ctx, s.deps.Models.DBConnectionPool, job.Payment.ID, result.RailRef); err != nil {
			log.Ctx(ctx).Errorf("Recording clearing reference %s for payment %s: %v", result.RailRef, job.Payment.ID, err)
		} else {
			job.Payment.ClearingReference = result.RailRef
		}
	}
}

// Compensate recalls a payment that a rail already accepted. Rails without
// the cancel capability cannot recall, which is not a compensation failure:
// the money never moved, clearing just keeps an orphaned instruction.
func (s *submitToClearingStep) Compensate(ctx context.Context, job *Job) error {
	var output submitOutput
	if err := job.SucceededOutput(StepSubmitToClearing, &output); err != nil {
		// Never accepted by any rail, nothing to recall.
		return nil
	}

	adapter, err := s.deps.ClearingRegistry.ForRail(ctx, job.Payment.TenantID, data.Rail(output.Rail))
	if err != nil {
		return fmt.Errorf("resolving adapter for rail %s: %w", output.Rail, err)
	}

	result, err := adapter.Cancel(ctx, clearing.CancelRequest{
		Payment:    job.Payment,
		ReasonCode: cancelReasonFor(job),
	})
	if errors.Is(err, clearing.ErrCancelNotSupported) {
		log.Ctx(ctx).Warnf("Rail %s does not support cancellation, skipping recall for payment %s", output.Rail, job.Payment.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("recalling payment %s on rail %s: %w", job.Payment.ID, output.Rail, err)
	}

	switch result.Status {
	case iso20022.CancellationConfirmed, iso20022.CancellationPending:
		return nil
	default:
		return fmt.Errorf("rail %s rejected the recall of payment %s: %s", output.Rail, job.Payment.ID, result.Reason)
	}
}

// cancelReasonFor picks the camt.056 cancellation reason from why the saga
// turned around.
func cancelReasonFor(job *Job) string {
	if job.Failure != nil && job.Failure.Category == FailureFraud {
		return "FRAD"
	}
	if job.Saga.CancelRequested {
		return "CUST"
	}
	return "TECH"
}

// awaitClearingResultStep resolves the rail's final answer. Sync rails
// conclude on the submit response; async rails park the saga until a callback
// or the consumer stores a result, or the poll job wakes it to ask the rail.
type awaitClearingResultStep struct {
	deps StepDeps
}

func (s *awaitClearingResultStep) Name() string     { return StepAwaitClearingResult }
func (s *awaitClearingResultStep) MaxAttempts() int { return railStepMaxAttempts }

func (s *awaitClearingResultStep) Execute(ctx context.Context, job *Job) Outcome {
	var submitted submitOutput
	if err := job.SucceededOutput(StepSubmitToClearing, &submitted); err != nil {
		return Terminal(NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, fmt.Errorf("reading submit result: %w", err)))
	}

	if submitted.Final {
		return s.resolve(ctx, iso20022.TransactionStatus(submitted.Status), iso20022.ReasonCode(submitted.Reason), submitted.RailRef, "submit-response")
	}

	// A callback or the camt consumer may have stored a result while the saga
	// was parked.
	outcome, resolved := s.consumeCallbacks(ctx, job)
	if resolved {
		return outcome
	}

	return s.pollOrPark(ctx, job, submitted)
}

// consumeCallbacks drains stored rail results oldest first and resolves on
// the first conclusive one. Interim acknowledgements are consumed silently.
func (s *awaitClearingResultStep) consumeCallbacks(ctx context.Context, job *Job) (Outcome, bool) {
	callbacks, err := s.deps.Models.ClearingCallbacks.GetUnprocessedForPayment(ctx, s.deps.Models.DBConnectionPool, job.Payment.ID)
	if err != nil {
		return internalError(err), true
	}

	for _, callback := range callbacks {
		if err := s.deps.Models.ClearingCallbacks.MarkProcessed(ctx, s.deps.Models.DBConnectionPool, callback.ID); err != nil {
			return internalError(err), true
		}

		status := iso20022.TransactionStatus(callback.StatusCode)
		if status == iso20022.StatusRejected || status.IsAccepted() || status == iso20022.StatusCancelled {
			return s.resolve(ctx, status, iso20022.ReasonCode(callback.ReasonCode), callback.ExternalRef, "callback"), true
		}
		log.Ctx(ctx).Debugf("Consumed interim %s callback for payment %s", callback.StatusCode, job.Payment.ID)
	}

	return Outcome{}, false
}

// pollOrPark asks the rail directly when it supports polling, otherwise just
// parks until the next wake.
func (s *awaitClearingResultStep) pollOrPark(ctx context.Context, job *Job, submitted submitOutput) Outcome {
	adapter, err := s.deps.ClearingRegistry.ForRail(ctx, job.Payment.TenantID, data.Rail(submitted.Rail))
	if err != nil {
		return internalError(err)
	}

	if adapter.Capabilities().Has(data.PollCapability) {
		result, pollErr := adapter.Poll(ctx, job.Payment)
		if clearing.IsUnavailable(pollErr) {
			return Retryable(NewEngineError(FailureAdapterUnavailable, iso20022.ReasonAbortedClearing, pollErr))
		}
		if pollErr != nil {
			return internalError(pollErr)
		}
		if result.Final || result.Status.IsAccepted() {
			return s.resolve(ctx, result.Status, result.Reason, result.RailRef, "poll")
		}
	}

	return Parked(time.Now().Add(pollParkInterval))
}

func (s *awaitClearingResultStep) resolve(ctx context.Context, status iso20022.TransactionStatus, reason iso20022.ReasonCode, railRef, source string) Outcome {
	switch {
	case status == iso20022.StatusRejected:
		if reason == "" {
			reason = iso20022.ReasonNarrative
		}
		return Terminal(NewEngineError(FailureClearingRejected, reason, fmt.Errorf("clearing rejected the payment (via %s)", source)))
	case status == iso20022.StatusCancelled:
		return Terminal(NewEngineError(FailureClearingRejected, iso20022.ReasonCustomerRequest, fmt.Errorf("payment was cancelled at clearing (via %s)", source)))
	case status.IsAccepted():
		log.Ctx(ctx).Infof("Clearing accepted the payment with %s (via %s)", status, source)
		return marshalOutput(clearingResultOutput{Status: string(status), Reason: string(reason), RailRef: railRef, Source: source})
	default:
		return internalError(fmt.Errorf("conclusive clearing result carried unexpected status %q (via %s)", status, source))
	}
}

func (s *awaitClearingResultStep) Compensate(ctx context.Context, job *Job) error { return nil }

// postLedgerStep books the movement: debit the debtor against the hold, then
// credit the creditor. Both legs replay safely on their idempotency keys.
type postLedgerStep struct {
	deps StepDeps
}

func (s *postLedgerStep) Name() string     { return StepPostLedger }
func (s *postLedgerStep) MaxAttempts() int { return internalStepMaxAttempts }

func (s *postLedgerStep) Execute(ctx context.Context, job *Job) Outcome {
	var reserved reserveFundsOutput
	if err := job.SucceededOutput(StepReserveFunds, &reserved); err != nil {
		return Terminal(NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, fmt.Errorf("reading reserved hold: %w", err)))
	}

	money := paymentMoney(job.Payment)

	debitOp, err := s.deps.LedgerClient.Debit(ctx, ledger.DebitRequest{
		IdempotencyKey: fmt.Sprintf("debit-%s", job.Payment.ID),
		TenantID:       job.Payment.TenantID,
		AccountRef:     job.Payment.DebtorAccount,
		HoldID:         reserved.HoldID,
		Money:          money,
	})
	if err != nil {
		return classifyLedgerError(err)
	}

	creditOp, err := s.deps.LedgerClient.Credit(ctx, ledger.CreditRequest{
		IdempotencyKey: fmt.Sprintf("credit-%s", job.Payment.ID),
		TenantID:       job.Payment.TenantID,
		AccountRef:     job.Payment.CreditorAccount,
		Money:          money,
	})
	if err != nil {
		return classifyLedgerError(err)
	}

	return marshalOutput(postLedgerOutput{DebitOperationID: debitOp.ID, CreditOperationID: creditOp.ID})
}

// Compensate reverses the booking: pull the creditor leg back first, then
// restore the debtor.
func (s *postLedgerStep) Compensate(ctx context.Context, job *Job) error {
	var output postLedgerOutput
	if err := job.SucceededOutput(StepPostLedger, &output); err != nil {
		return nil
	}

	money := paymentMoney(job.Payment)

	if _, err := s.deps.LedgerClient.Debit(ctx, ledger.DebitRequest{
		IdempotencyKey: fmt.Sprintf("reversal-credit-%s", job.Payment.ID),
		TenantID:       job.Payment.TenantID,
		AccountRef:     job.Payment.CreditorAccount,
		Money:          money,
	}); err != nil {
		return fmt.Errorf("reversing creditor leg for payment %s: %w", job.Payment.ID, err)
	}

	if _, err := s.deps.LedgerClient.Credit(ctx, ledger.CreditRequest{
		IdempotencyKey: fmt.Sprintf("reversal-debit-%s", job.Payment.ID),
		TenantID:       job.Payment.TenantID,
		AccountRef:     job.Payment.DebtorAccount,
		Money:          money,
	}); err != nil {
		return fmt.Errorf("reversing debtor leg for payment %s: %w", job.Payment.ID, err)
	}

	return nil
}

// notifyStep tells the tenant's contact points about the settled payment.
// Delivery is best effort: a failed notification never unwinds a settlement.
type notifyStep struct {
	deps StepDeps
}

func (s *notifyStep) Name() string     { return StepNotify }
func (s *notifyStep) MaxAttempts() int { return internalStepMaxAttempts }

func (s *notifyStep) Execute(ctx context.Context, job *Job) Outcome {
	notifCfg := job.Config.Payload.Notifications
	if s.deps.Notifier == nil || (!notifCfg.EmailEnabled && !notifCfg.SMSEnabled) {
		return Skipped("tenant notifications disabled")
	}

	if err := s.deps.Notifier.NotifyPaymentOutcome(ctx, job.Payment, notifCfg); err != nil {
		log.Ctx(ctx).Errorf("Delivering payment outcome notification for %s: %v", job.Payment.ID, err)
	}
	return Succeeded(nil)
}

func (s *notifyStep) Compensate(ctx context.Context, job *Job) error { return nil }
