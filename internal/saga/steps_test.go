package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/clearing"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/fraud"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/ledger"
	"github.com/paymenthub/payment-engine-backend/internal/routing"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

// eftConfig builds a pinned tenant config that allows the fixture payment.
func eftConfig(tenantID string) *tenant.TenantConfig {
	return &tenant.TenantConfig{
		TenantID: tenantID,
		Version:  1,
		Payload: tenant.ConfigPayload{
			PaymentTypes: map[string]tenant.PaymentTypeConfig{
				"EFT": {Code: "EFT", Enabled: true},
			},
		},
	}
}

// createStepsJob builds a job from real payment, saga and step fixtures, the
// shape a worker hands to Step.Execute.
func createStepsJob(t *testing.T, ctx context.Context, models *data.Models, tenantID string, cfg *tenant.TenantConfig) *Job {
	t.Helper()

	dbConnectionPool := models.DBConnectionPool
	payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{TenantID: tenantID})
	sagaFixture := data.CreateSagaFixture(t, ctx, dbConnectionPool, &data.Saga{TenantID: tenantID, PaymentID: payment.ID})
	stepRows := data.CreateSagaStepFixtures(t, ctx, dbConnectionPool, sagaFixture.ID, tenantID, StepNames())

	return &Job{Saga: sagaFixture, Steps: stepRows, Payment: payment, Config: cfg}
}

// newMemoryJob builds a job without touching the database, for steps that only
// talk to adapter clients.
func newMemoryJob(cfg *tenant.TenantConfig) *Job {
	payment := &data.Payment{
		ID:              "0c2769f3-dba9-4e4e-b4f0-0f8a4f0a8f51",
		TenantID:        cfg.TenantID,
		UETR:            "b7e5a1c2-91f4-4f2a-9e3b-5d6c7a8b9c0d",
		PaymentTypeCode: "EFT",
		Amount:          decimal.RequireFromString("150.25"),
		Currency:        "ZAR",
		DebtorName:      "Thandi Mokoena",
		DebtorAccount:   "ZA6300123456789",
		CreditorName:    "Acme Supplies Ltd",
		CreditorAccount: "ZA6300987654321",
		Status:          data.InitiatedPaymentStatus,
	}

	stepRows := make([]data.SagaStep, 0, len(StepNames()))
	for i, name := range StepNames() {
		stepRows = append(stepRows, data.SagaStep{
			ID:        fmt.Sprintf("step-row-%d", i),
			Name:      name,
			StepIndex: i,
			Status:    data.PendingSagaStepStatus,
		})
	}

	return &Job{
		Saga:    &data.Saga{ID: "f3b2a1d0-4c5e-4f6a-8b9c-0d1e2f3a4b5c", TenantID: cfg.TenantID, PaymentID: payment.ID, Status: data.RunningSagaStatus},
		Steps:   stepRows,
		Payment: payment,
		Config:  cfg,
	}
}

// primeStepOutput stamps a succeeded result on the in-memory step row, the way
// the worker mirrors rows after committing them.
func primeStepOutput(t *testing.T, job *Job, name, output string) {
	t.Helper()

	row, ok := job.StepRow(name)
	require.True(t, ok)
	row.Status = data.SucceededSagaStepStatus
	row.Output = []byte(output)
}

func primeRouteOutput(t *testing.T, job *Job, rails ...data.Rail) {
	t.Helper()

	candidates := make([]routing.Candidate, 0, len(rails))
	for _, rail := range rails {
		candidates = append(candidates, routing.Candidate{Rail: rail, Source: routing.SourceHeuristic})
	}
	outputJSON, err := json.Marshal(routeOutput{Candidates: candidates})
	require.NoError(t, err)
	primeStepOutput(t, job, StepRoute, string(outputJSON))
}

func primeSubmitOutput(t *testing.T, job *Job, submitted submitOutput) {
	t.Helper()

	outputJSON, err := json.Marshal(submitted)
	require.NoError(t, err)
	primeStepOutput(t, job, StepSubmitToClearing, string(outputJSON))
}

func Test_NewSteps(t *testing.T) {
	deps := func() StepDeps {
		return StepDeps{
			Models:           &data.Models{},
			LedgerClient:     &ledger.MockClient{},
			FraudScorer:      &fraud.MockScorer{},
			Resolver:         &routing.MockResolver{},
			ClearingRegistry: &clearing.MockRegistry{},
		}
	}

	testCases := []struct {
		name            string
		mutateDeps      func(d *StepDeps)
		wantErrContains string
	}{
		{name: "returns an error when models is nil", mutateDeps: func(d *StepDeps) { d.Models = nil }, wantErrContains: "models cannot be nil"},
		{name: "returns an error when the ledger client is nil", mutateDeps: func(d *StepDeps) { d.LedgerClient = nil }, wantErrContains: "ledger client cannot be nil"},
		{name: "returns an error when the fraud scorer is nil", mutateDeps: func(d *StepDeps) { d.FraudScorer = nil }, wantErrContains: "fraud scorer cannot be nil"},
		{name: "returns an error when the resolver is nil", mutateDeps: func(d *StepDeps) { d.Resolver = nil }, wantErrContains: "routing resolver cannot be nil"},
		{name: "returns an error when the clearing registry is nil", mutateDeps: func(d *StepDeps) { d.ClearingRegistry = nil }, wantErrContains: "clearing registry cannot be nil"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := deps()
			tc.mutateDeps(&d)
			_, err := NewSteps(d)
			assert.ErrorContains(t, err, tc.wantErrContains)
		})
	}

	t.Run("🎉 successfully builds the steps in execution order", func(t *testing.T) {
		steps, err := NewSteps(deps())
		require.NoError(t, err)

		gotNames := make([]string, 0, len(steps))
		for _, s := range steps {
			gotNames = append(gotNames, s.Name())
		}
		assert.Equal(t, StepNames(), gotNames)
	})
}

func Test_validateStep_Execute(t *testing.T) {
	models := data.SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := data.CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")
	step := &validateStep{deps: StepDeps{Models: models}}

	t.Run("🎉 successfully validates the payment and reserves its UETR", func(t *testing.T) {
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))

		outcome := step.Execute(ctx, job)
		assert.Equal(t, OutcomeSucceeded, outcome.Kind)

		dedupe, err := models.UETRDedupe.Get(ctx, dbConnectionPool, tenantID, job.Payment.UETR)
		require.NoError(t, err)
		assert.Equal(t, job.Payment.ID, dedupe.PaymentID)
	})

	t.Run("🎉 successfully replays its own reservation after a crash", func(t *testing.T) {
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		data.CreateUETRDedupeFixture(t, ctx, dbConnectionPool, tenantID, job.Payment.UETR, job.Payment.ID)

		outcome := step.Execute(ctx, job)
		assert.Equal(t, OutcomeSucceeded, outcome.Kind)
	})

	t.Run("fails terminally when another payment holds the UETR", func(t *testing.T) {
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		otherJob := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		data.CreateUETRDedupeFixture(t, ctx, dbConnectionPool, tenantID, job.Payment.UETR, otherJob.Payment.ID)

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureValidation, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonDuplicate, outcome.Err.Reason)
		assert.ErrorContains(t, outcome.Err, "already reserved by payment")
	})

	t.Run("fails terminally when the payment type is not enabled", func(t *testing.T) {
		cfg := eftConfig(tenantID)
		cfg.Payload.PaymentTypes = map[string]tenant.PaymentTypeConfig{
			"EFT": {Code: "EFT", Enabled: false},
		}
		job := createStepsJob(t, ctx, models, tenantID, cfg)

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureValidation, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonTransactionForbidden, outcome.Err.Reason)
	})

	t.Run("fails terminally when the amount exceeds the tenant limit", func(t *testing.T) {
		cfg := eftConfig(tenantID)
		cfg.Payload.PaymentTypes = map[string]tenant.PaymentTypeConfig{
			"EFT": {Code: "EFT", Enabled: true, MaxAmount: decimal.RequireFromString("100.00")},
		}
		job := createStepsJob(t, ctx, models, tenantID, cfg)

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureValidation, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonNotAllowedAmount, outcome.Err.Reason)
	})
}

func Test_fraudScoreStep_Execute(t *testing.T) {
	ctx := context.Background()

	scoringConfig := func() *tenant.TenantConfig {
		cfg := eftConfig("bluebank-tenant")
		cfg.Payload.Fraud = tenant.FraudConfig{Enabled: true, Provider: "focus", ScoreThreshold: 80}
		return cfg
	}

	t.Run("skips scoring when the tenant profile disables it", func(t *testing.T) {
		step := &fraudScoreStep{deps: StepDeps{FraudScorer: fraud.NewMockScorer(t)}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))

		outcome := step.Execute(ctx, job)
		assert.Equal(t, OutcomeSkipped, outcome.Kind)
		assert.Equal(t, "fraud scoring disabled for this payment profile", outcome.SkipReason)
	})

	t.Run("🎉 successfully records an approved score", func(t *testing.T) {
		scorer := fraud.NewMockScorer(t)
		step := &fraudScoreStep{deps: StepDeps{FraudScorer: scorer}}
		job := newMemoryJob(scoringConfig())

		scorer.
			On("Score", ctx, mock.MatchedBy(func(req fraud.ScoreRequest) bool {
				return req.PaymentID == job.Payment.ID &&
					req.UETR == job.Payment.UETR &&
					req.Amount.Equal(job.Payment.Amount) &&
					req.DebtorAccount == job.Payment.DebtorAccount
			})).
			Return(&fraud.ScoreResult{Score: 12, Decision: fraud.DecisionApprove}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)
		assert.JSONEq(t, `{"score":12,"decision":"APPROVE"}`, string(outcome.Output))
	})

	t.Run("fails closed on REVIEW and DECLINE verdicts", func(t *testing.T) {
		for _, decision := range []fraud.Decision{fraud.DecisionReview, fraud.DecisionDecline} {
			scorer := fraud.NewMockScorer(t)
			step := &fraudScoreStep{deps: StepDeps{FraudScorer: scorer}}
			job := newMemoryJob(scoringConfig())

			scorer.
				On("Score", ctx, mock.AnythingOfType("fraud.ScoreRequest")).
				Return(&fraud.ScoreResult{Score: 97, Decision: decision, Reasons: []string{"velocity", "new creditor"}}, nil).
				Once()

			outcome := step.Execute(ctx, job)
			require.Equal(t, OutcomeTerminal, outcome.Kind, "decision %s", decision)
			assert.Equal(t, FailureFraud, outcome.Err.Category)
			assert.Equal(t, iso20022.ReasonFraud, outcome.Err.Reason)
			assert.ErrorContains(t, outcome.Err, "velocity; new creditor")
		}
	})

	t.Run("retries provider 5xx errors", func(t *testing.T) {
		scorer := fraud.NewMockScorer(t)
		step := &fraudScoreStep{deps: StepDeps{FraudScorer: scorer}}
		job := newMemoryJob(scoringConfig())

		scorer.
			On("Score", ctx, mock.AnythingOfType("fraud.ScoreRequest")).
			Return(nil, &fraud.APIError{Code: "internal_error", Message: "scorer melted", StatusCode: 503}).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeRetryable, outcome.Kind)
		assert.Equal(t, FailureAdapterUnavailable, outcome.Err.Category)
	})

	t.Run("fails terminally on provider 4xx errors", func(t *testing.T) {
		scorer := fraud.NewMockScorer(t)
		step := &fraudScoreStep{deps: StepDeps{FraudScorer: scorer}}
		job := newMemoryJob(scoringConfig())

		scorer.
			On("Score", ctx, mock.AnythingOfType("fraud.ScoreRequest")).
			Return(nil, &fraud.APIError{Code: "invalid_request", Message: "unknown currency", StatusCode: 422}).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureInternal, outcome.Err.Category)
	})

	t.Run("retries a verdict it does not understand", func(t *testing.T) {
		scorer := fraud.NewMockScorer(t)
		step := &fraudScoreStep{deps: StepDeps{FraudScorer: scorer}}
		job := newMemoryJob(scoringConfig())

		scorer.
			On("Score", ctx, mock.AnythingOfType("fraud.ScoreRequest")).
			Return(&fraud.ScoreResult{Score: 50, Decision: fraud.Decision("MAYBE")}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeRetryable, outcome.Kind)
		assert.Equal(t, FailureInternal, outcome.Err.Category)
		assert.ErrorContains(t, outcome.Err, `unknown decision "MAYBE"`)
	})
}

func Test_reserveFundsStep_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("🎉 successfully places the hold with a payment-scoped idempotency key", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &reserveFundsStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))

		ledgerClient.
			On("Hold", ctx, ledger.HoldRequest{
				IdempotencyKey: "hold-" + job.Payment.ID,
				TenantID:       job.Payment.TenantID,
				AccountRef:     job.Payment.DebtorAccount,
				Money:          ledger.Money{Amount: "150.25", Currency: "ZAR"},
			}).
			Return(&ledger.HoldResult{HoldID: "hold-123", Status: "ACTIVE"}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)
		assert.JSONEq(t, `{"hold_id":"hold-123"}`, string(outcome.Output))
	})

	t.Run("fails terminally when the ledger reports insufficient funds", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &reserveFundsStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))

		ledgerClient.
			On("Hold", ctx, mock.AnythingOfType("ledger.HoldRequest")).
			Return(nil, &ledger.APIError{Code: ledger.ErrorCodeInsufficientFunds, Message: "available balance too low", StatusCode: 422}).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureInsufficientFunds, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonInsufficientFunds, outcome.Err.Reason)
	})

	t.Run("retries when the ledger is unavailable", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &reserveFundsStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))

		ledgerClient.
			On("Hold", ctx, mock.AnythingOfType("ledger.HoldRequest")).
			Return(nil, errors.New("circuit breaker is open")).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeRetryable, outcome.Kind)
		assert.Equal(t, FailureAdapterUnavailable, outcome.Err.Category)
	})
}

func Test_reserveFundsStep_Compensate(t *testing.T) {
	ctx := context.Background()

	t.Run("does nothing when no hold was recorded", func(t *testing.T) {
		step := &reserveFundsStep{deps: StepDeps{LedgerClient: ledger.NewMockClient(t)}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))

		require.NoError(t, step.Compensate(ctx, job))
	})

	t.Run("🎉 successfully releases the recorded hold", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &reserveFundsStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeStepOutput(t, job, StepReserveFunds, `{"hold_id":"hold-123"}`)

		ledgerClient.
			On("ReleaseHold", ctx, ledger.ReleaseRequest{
				IdempotencyKey: "release-" + job.Payment.ID,
				TenantID:       job.Payment.TenantID,
				HoldID:         "hold-123",
			}).
			Return(&ledger.Operation{ID: "op-release"}, nil).
			Once()

		require.NoError(t, step.Compensate(ctx, job))
	})

	t.Run("tolerates a hold the ledger no longer knows", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &reserveFundsStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeStepOutput(t, job, StepReserveFunds, `{"hold_id":"hold-123"}`)

		ledgerClient.
			On("ReleaseHold", ctx, mock.AnythingOfType("ledger.ReleaseRequest")).
			Return(nil, &ledger.APIError{Code: ledger.ErrorCodeHoldNotFound, StatusCode: 404}).
			Once()

		require.NoError(t, step.Compensate(ctx, job))
	})

	t.Run("propagates other release failures", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &reserveFundsStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeStepOutput(t, job, StepReserveFunds, `{"hold_id":"hold-123"}`)

		ledgerClient.
			On("ReleaseHold", ctx, mock.AnythingOfType("ledger.ReleaseRequest")).
			Return(nil, &ledger.APIError{Code: "internal_error", StatusCode: 500}).
			Once()

		err := step.Compensate(ctx, job)
		assert.ErrorContains(t, err, "releasing hold hold-123")
	})
}

func Test_routeStep_Execute(t *testing.T) {
	models := data.SetupModels(t)
	ctx := context.Background()

	tenantID := data.CreateTenantFixture(t, ctx, models.DBConnectionPool, "bluebank")

	t.Run("🎉 successfully records the preferred rail on the payment", func(t *testing.T) {
		resolver := routing.NewMockResolver(t)
		step := &routeStep{deps: StepDeps{Models: models, Resolver: resolver}}
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))

		resolver.
			On("Resolve", ctx, mock.MatchedBy(func(in routing.Input) bool {
				return in.TenantID == tenantID && in.PaymentTypeCode == "EFT" && in.Amount.Equal(job.Payment.Amount)
			})).
			Return([]routing.Candidate{
				{Rail: data.RTCRail, Source: routing.SourceHeuristic},
				{Rail: data.PayShapRail, Source: routing.SourceHeuristic},
			}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)

		var output routeOutput
		require.NoError(t, json.Unmarshal(outcome.Output, &output))
		require.Len(t, output.Candidates, 2)
		assert.Equal(t, data.RTCRail, output.Candidates[0].Rail)

		assert.Equal(t, data.RTCRail, job.Payment.Rail)
		refreshed, err := models.Payment.Get(ctx, models.DBConnectionPool, tenantID, job.Payment.ID)
		require.NoError(t, err)
		assert.Equal(t, data.RTCRail, refreshed.Rail)
	})

	t.Run("fails terminally when no route exists", func(t *testing.T) {
		resolver := routing.NewMockResolver(t)
		step := &routeStep{deps: StepDeps{Models: models, Resolver: resolver}}
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))

		resolver.
			On("Resolve", ctx, mock.AnythingOfType("routing.Input")).
			Return(nil, fmt.Errorf("resolving: %w", routing.ErrNoRoute)).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureConfig, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonTransactionForbidden, outcome.Err.Reason)
	})

	t.Run("retries resolver infrastructure errors", func(t *testing.T) {
		resolver := routing.NewMockResolver(t)
		step := &routeStep{deps: StepDeps{Models: models, Resolver: resolver}}
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))

		resolver.
			On("Resolve", ctx, mock.AnythingOfType("routing.Input")).
			Return(nil, errors.New("pq: connection refused")).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeRetryable, outcome.Kind)
		assert.Equal(t, FailureInternal, outcome.Err.Category)
	})
}

func Test_submitToClearingStep_Execute(t *testing.T) {
	models := data.SetupModels(t)
	ctx := context.Background()

	tenantID := data.CreateTenantFixture(t, ctx, models.DBConnectionPool, "bluebank")

	t.Run("🎉 successfully submits to the preferred rail", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &submitToClearingStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		job.Payment.Rail = data.RTCRail
		primeRouteOutput(t, job, data.RTCRail, data.PayShapRail)

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.
			On("Submit", ctx, job.Payment).
			Return(&clearing.SubmitResult{RailRef: "RTC-REF-1", Status: iso20022.StatusAcceptedTechnical, Final: false}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)

		var output submitOutput
		require.NoError(t, json.Unmarshal(outcome.Output, &output))
		assert.Equal(t, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACTC", Final: false}, output)

		assert.Equal(t, "RTC-REF-1", job.Payment.ClearingReference)
		refreshed, err := models.Payment.Get(ctx, models.DBConnectionPool, tenantID, job.Payment.ID)
		require.NoError(t, err)
		assert.Equal(t, "RTC-REF-1", refreshed.ClearingReference)
	})

	t.Run("🎉 successfully fails over when the preferred rail is unavailable", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		rtcAdapter := clearing.NewMockAdapter(t)
		payShapAdapter := clearing.NewMockAdapter(t)
		step := &submitToClearingStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		job.Payment.Rail = data.RTCRail
		primeRouteOutput(t, job, data.RTCRail, data.PayShapRail)

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(rtcAdapter, nil).Once()
		registry.On("ForRail", ctx, tenantID, data.PayShapRail).Return(payShapAdapter, nil).Once()
		rtcAdapter.
			On("Submit", ctx, job.Payment).
			Return(nil, &clearing.UnavailableError{Rail: data.RTCRail, Err: errors.New("dial tcp: i/o timeout")}).
			Once()
		payShapAdapter.
			On("Submit", ctx, job.Payment).
			Return(&clearing.SubmitResult{RailRef: "PS-REF-9", Status: iso20022.StatusAcceptedTechnical, Final: false}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)

		var output submitOutput
		require.NoError(t, json.Unmarshal(outcome.Output, &output))
		assert.Equal(t, "PAYSHAP", output.Rail)

		assert.Equal(t, data.PayShapRail, job.Payment.Rail)
		refreshed, err := models.Payment.Get(ctx, models.DBConnectionPool, tenantID, job.Payment.ID)
		require.NoError(t, err)
		assert.Equal(t, data.PayShapRail, refreshed.Rail)
	})

	t.Run("skips candidates with no enabled adapter", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		payShapAdapter := clearing.NewMockAdapter(t)
		step := &submitToClearingStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		job.Payment.Rail = data.PayShapRail
		primeRouteOutput(t, job, data.RTCRail, data.PayShapRail)

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(nil, data.ErrRecordNotFound).Once()
		registry.On("ForRail", ctx, tenantID, data.PayShapRail).Return(payShapAdapter, nil).Once()
		payShapAdapter.
			On("Submit", ctx, job.Payment).
			Return(&clearing.SubmitResult{Status: iso20022.StatusAcceptedTechnical}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)
	})

	t.Run("ends the walk when the rail rejects the payment", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &submitToClearingStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		job.Payment.Rail = data.RTCRail
		primeRouteOutput(t, job, data.RTCRail, data.PayShapRail)

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.
			On("Submit", ctx, job.Payment).
			Return(&clearing.SubmitResult{Status: iso20022.StatusRejected, Reason: iso20022.ReasonCode("AC01"), AdditionalInfo: "account closed", Final: true}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureClearingRejected, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonCode("AC01"), outcome.Err.Reason)
		assert.ErrorContains(t, outcome.Err, "account closed")
	})

	t.Run("retries when every candidate rail is out of reach", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &submitToClearingStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		job.Payment.Rail = data.RTCRail
		primeRouteOutput(t, job, data.RTCRail)

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.
			On("Submit", ctx, job.Payment).
			Return(nil, &clearing.UnavailableError{Rail: data.RTCRail, Err: errors.New("dial tcp: connection refused")}).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeRetryable, outcome.Kind)
		assert.Equal(t, FailureAdapterUnavailable, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonAbortedClearing, outcome.Err.Reason)
	})

	t.Run("retries when no candidate has an adapter at all", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		step := &submitToClearingStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		primeRouteOutput(t, job, data.RTCRail, data.PayShapRail)

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(nil, data.ErrRecordNotFound).Once()
		registry.On("ForRail", ctx, tenantID, data.PayShapRail).Return(nil, data.ErrRecordNotFound).Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeRetryable, outcome.Kind)
		assert.ErrorContains(t, outcome.Err, "no enabled adapter for any of the 2 candidate rails")
	})

	t.Run("fails terminally without route candidates", func(t *testing.T) {
		step := &submitToClearingStep{deps: StepDeps{Models: models, ClearingRegistry: clearing.NewMockRegistry(t)}}
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureInternal, outcome.Err.Category)
		assert.ErrorContains(t, outcome.Err, "reading route candidates")
	})
}

func Test_submitToClearingStep_Compensate(t *testing.T) {
	ctx := context.Background()

	primeAccepted := func(t *testing.T, job *Job) {
		primeSubmitOutput(t, job, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACTC", Final: false})
	}

	t.Run("does nothing when no rail accepted the payment", func(t *testing.T) {
		step := &submitToClearingStep{deps: StepDeps{ClearingRegistry: clearing.NewMockRegistry(t)}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))

		require.NoError(t, step.Compensate(ctx, job))
	})

	t.Run("🎉 successfully recalls the payment on the accepted rail", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &submitToClearingStep{deps: StepDeps{ClearingRegistry: registry}}

		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeAccepted(t, job)
		job.Failure = NewEngineError(FailureInternal, iso20022.ReasonTechnicalProblem, errors.New("saga_timeout: wall-clock deadline exceeded"))

		registry.On("ForRail", ctx, job.Payment.TenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.
			On("Cancel", ctx, clearing.CancelRequest{Payment: job.Payment, ReasonCode: "TECH"}).
			Return(&clearing.CancelResult{Status: iso20022.CancellationConfirmed}, nil).
			Once()

		require.NoError(t, step.Compensate(ctx, job))
	})

	t.Run("🎉 successfully recalls with FRAD when fraud turned the saga around", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &submitToClearingStep{deps: StepDeps{ClearingRegistry: registry}}

		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeAccepted(t, job)
		job.Failure = NewEngineError(FailureFraud, iso20022.ReasonFraud, errors.New("fraud scorer returned DECLINE"))

		registry.On("ForRail", ctx, job.Payment.TenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.
			On("Cancel", ctx, clearing.CancelRequest{Payment: job.Payment, ReasonCode: "FRAD"}).
			Return(&clearing.CancelResult{Status: iso20022.CancellationPending}, nil).
			Once()

		require.NoError(t, step.Compensate(ctx, job))
	})

	t.Run("tolerates rails without recall support", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &submitToClearingStep{deps: StepDeps{ClearingRegistry: registry}}

		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeAccepted(t, job)

		registry.On("ForRail", ctx, job.Payment.TenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.
			On("Cancel", ctx, mock.AnythingOfType("clearing.CancelRequest")).
			Return(nil, clearing.ErrCancelNotSupported).
			Once()

		require.NoError(t, step.Compensate(ctx, job))
	})

	t.Run("fails when the rail rejects the recall", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &submitToClearingStep{deps: StepDeps{ClearingRegistry: registry}}

		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeAccepted(t, job)

		registry.On("ForRail", ctx, job.Payment.TenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.
			On("Cancel", ctx, mock.AnythingOfType("clearing.CancelRequest")).
			Return(&clearing.CancelResult{Status: iso20022.CancellationRejected, Reason: "already settled"}, nil).
			Once()

		err := step.Compensate(ctx, job)
		assert.ErrorContains(t, err, "rejected the recall")
	})
}

func Test_awaitClearingResultStep_Execute(t *testing.T) {
	models := data.SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := data.CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")

	insertCallback := func(t *testing.T, job *Job, statusCode, reasonCode string) *data.ClearingCallback {
		t.Helper()
		callback, err := models.ClearingCallbacks.Insert(ctx, dbConnectionPool, data.ClearingCallbackInsert{
			TenantID:    &job.Payment.TenantID,
			PaymentID:   &job.Payment.ID,
			Rail:        data.RTCRail,
			ExternalRef: "CB-" + job.Payment.ID + "-" + statusCode,
			StatusCode:  statusCode,
			ReasonCode:  reasonCode,
			RawPayload:  []byte(`{"transaction_status":"` + statusCode + `"}`),
		})
		require.NoError(t, err)
		return callback
	}

	t.Run("🎉 successfully resolves on a final submit response", func(t *testing.T) {
		step := &awaitClearingResultStep{deps: StepDeps{Models: models, ClearingRegistry: clearing.NewMockRegistry(t)}}
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		primeSubmitOutput(t, job, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACSC", Final: true})

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)

		var output clearingResultOutput
		require.NoError(t, json.Unmarshal(outcome.Output, &output))
		assert.Equal(t, clearingResultOutput{Status: "ACSC", RailRef: "RTC-REF-1", Source: "submit-response"}, output)
	})

	t.Run("🎉 successfully consumes a stored callback result", func(t *testing.T) {
		step := &awaitClearingResultStep{deps: StepDeps{Models: models, ClearingRegistry: clearing.NewMockRegistry(t)}}
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		primeSubmitOutput(t, job, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACTC", Final: false})
		callback := insertCallback(t, job, "ACSC", "")

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)

		var output clearingResultOutput
		require.NoError(t, json.Unmarshal(outcome.Output, &output))
		assert.Equal(t, "callback", output.Source)
		assert.Equal(t, "ACSC", output.Status)

		processed, err := models.ClearingCallbacks.Get(ctx, dbConnectionPool, callback.ID)
		require.NoError(t, err)
		assert.True(t, processed.Processed)
	})

	t.Run("turns around on a rejected callback", func(t *testing.T) {
		step := &awaitClearingResultStep{deps: StepDeps{Models: models, ClearingRegistry: clearing.NewMockRegistry(t)}}
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		primeSubmitOutput(t, job, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACTC", Final: false})
		insertCallback(t, job, "RJCT", "AM04")

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureClearingRejected, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonInsufficientFunds, outcome.Err.Reason)
	})

	t.Run("treats a cancellation at clearing as the customer's", func(t *testing.T) {
		step := &awaitClearingResultStep{deps: StepDeps{Models: models, ClearingRegistry: clearing.NewMockRegistry(t)}}
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		primeSubmitOutput(t, job, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACTC", Final: false})
		insertCallback(t, job, "CANC", "")

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureClearingRejected, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonCustomerRequest, outcome.Err.Reason)
	})

	t.Run("🎉 successfully consumes interim callbacks and polls the rail", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &awaitClearingResultStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		primeSubmitOutput(t, job, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACTC", Final: false})
		interim := insertCallback(t, job, "PDNG", "")

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.On("Capabilities").Return(data.Capabilities{data.PollCapability}).Once()
		adapter.
			On("Poll", ctx, job.Payment).
			Return(&clearing.PollResult{RailRef: "RTC-REF-1", Status: iso20022.StatusAcceptedSettled, Final: true}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)

		var output clearingResultOutput
		require.NoError(t, json.Unmarshal(outcome.Output, &output))
		assert.Equal(t, "poll", output.Source)

		processed, err := models.ClearingCallbacks.Get(ctx, dbConnectionPool, interim.ID)
		require.NoError(t, err)
		assert.True(t, processed.Processed)
	})

	t.Run("parks until the next wake when the rail cannot answer yet", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &awaitClearingResultStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		primeSubmitOutput(t, job, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACTC", Final: false})

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.On("Capabilities").Return(data.Capabilities{data.CancelCapability}).Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeParked, outcome.Kind)
		assert.WithinDuration(t, time.Now().Add(pollParkInterval), outcome.WakeAt, 2*time.Second)
	})

	t.Run("keeps waiting when the poll answer is interim", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &awaitClearingResultStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		primeSubmitOutput(t, job, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACTC", Final: false})

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.On("Capabilities").Return(data.Capabilities{data.PollCapability}).Once()
		adapter.
			On("Poll", ctx, job.Payment).
			Return(&clearing.PollResult{Status: iso20022.StatusPending, Final: false}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		assert.Equal(t, OutcomeParked, outcome.Kind)
	})

	t.Run("retries when polling hits an unavailable rail", func(t *testing.T) {
		registry := clearing.NewMockRegistry(t)
		adapter := clearing.NewMockAdapter(t)
		step := &awaitClearingResultStep{deps: StepDeps{Models: models, ClearingRegistry: registry}}

		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))
		primeSubmitOutput(t, job, submitOutput{Rail: "RTC", RailRef: "RTC-REF-1", Status: "ACTC", Final: false})

		registry.On("ForRail", ctx, tenantID, data.RTCRail).Return(adapter, nil).Once()
		adapter.On("Capabilities").Return(data.Capabilities{data.PollCapability}).Once()
		adapter.
			On("Poll", ctx, job.Payment).
			Return(nil, &clearing.UnavailableError{Rail: data.RTCRail, Err: errors.New("dial tcp: i/o timeout")}).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeRetryable, outcome.Kind)
		assert.Equal(t, FailureAdapterUnavailable, outcome.Err.Category)
		assert.Equal(t, iso20022.ReasonAbortedClearing, outcome.Err.Reason)
	})

	t.Run("fails terminally without a submit result", func(t *testing.T) {
		step := &awaitClearingResultStep{deps: StepDeps{Models: models, ClearingRegistry: clearing.NewMockRegistry(t)}}
		job := createStepsJob(t, ctx, models, tenantID, eftConfig(tenantID))

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.ErrorContains(t, outcome.Err, "reading submit result")
	})
}

func Test_postLedgerStep_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("🎉 successfully books both legs of the movement", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &postLedgerStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeStepOutput(t, job, StepReserveFunds, `{"hold_id":"hold-123"}`)

		money := ledger.Money{Amount: "150.25", Currency: "ZAR"}
		ledgerClient.
			On("Debit", ctx, ledger.DebitRequest{
				IdempotencyKey: "debit-" + job.Payment.ID,
				TenantID:       job.Payment.TenantID,
				AccountRef:     job.Payment.DebtorAccount,
				HoldID:         "hold-123",
				Money:          money,
			}).
			Return(&ledger.Operation{ID: "op-debit"}, nil).
			Once()
		ledgerClient.
			On("Credit", ctx, ledger.CreditRequest{
				IdempotencyKey: "credit-" + job.Payment.ID,
				TenantID:       job.Payment.TenantID,
				AccountRef:     job.Payment.CreditorAccount,
				Money:          money,
			}).
			Return(&ledger.Operation{ID: "op-credit"}, nil).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeSucceeded, outcome.Kind)
		assert.JSONEq(t, `{"debit_operation_id":"op-debit","credit_operation_id":"op-credit"}`, string(outcome.Output))
	})

	t.Run("fails terminally when the debit overdraws the hold", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &postLedgerStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeStepOutput(t, job, StepReserveFunds, `{"hold_id":"hold-123"}`)

		ledgerClient.
			On("Debit", ctx, mock.AnythingOfType("ledger.DebitRequest")).
			Return(nil, &ledger.APIError{Code: ledger.ErrorCodeInsufficientFunds, StatusCode: 422}).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.Equal(t, FailureInsufficientFunds, outcome.Err.Category)
	})

	t.Run("retries an unavailable ledger on the credit leg", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &postLedgerStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeStepOutput(t, job, StepReserveFunds, `{"hold_id":"hold-123"}`)

		ledgerClient.
			On("Debit", ctx, mock.AnythingOfType("ledger.DebitRequest")).
			Return(&ledger.Operation{ID: "op-debit"}, nil).
			Once()
		ledgerClient.
			On("Credit", ctx, mock.AnythingOfType("ledger.CreditRequest")).
			Return(nil, &ledger.APIError{Code: "internal_error", StatusCode: 503}).
			Once()

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeRetryable, outcome.Kind)
		assert.Equal(t, FailureAdapterUnavailable, outcome.Err.Category)
	})

	t.Run("fails terminally without a recorded hold", func(t *testing.T) {
		step := &postLedgerStep{deps: StepDeps{LedgerClient: ledger.NewMockClient(t)}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))

		outcome := step.Execute(ctx, job)
		require.Equal(t, OutcomeTerminal, outcome.Kind)
		assert.ErrorContains(t, outcome.Err, "reading reserved hold")
	})
}

func Test_postLedgerStep_Compensate(t *testing.T) {
	ctx := context.Background()

	t.Run("does nothing when the booking never happened", func(t *testing.T) {
		step := &postLedgerStep{deps: StepDeps{LedgerClient: ledger.NewMockClient(t)}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))

		require.NoError(t, step.Compensate(ctx, job))
	})

	t.Run("🎉 successfully reverses both legs", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &postLedgerStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeStepOutput(t, job, StepPostLedger, `{"debit_operation_id":"op-debit","credit_operation_id":"op-credit"}`)

		money := ledger.Money{Amount: "150.25", Currency: "ZAR"}
		ledgerClient.
			On("Debit", ctx, ledger.DebitRequest{
				IdempotencyKey: "reversal-credit-" + job.Payment.ID,
				TenantID:       job.Payment.TenantID,
				AccountRef:     job.Payment.CreditorAccount,
				Money:          money,
			}).
			Return(&ledger.Operation{ID: "op-reversal-credit"}, nil).
			Once()
		ledgerClient.
			On("Credit", ctx, ledger.CreditRequest{
				IdempotencyKey: "reversal-debit-" + job.Payment.ID,
				TenantID:       job.Payment.TenantID,
				AccountRef:     job.Payment.DebtorAccount,
				Money:          money,
			}).
			Return(&ledger.Operation{ID: "op-reversal-debit"}, nil).
			Once()

		require.NoError(t, step.Compensate(ctx, job))
	})

	t.Run("stops on the first reversal failure", func(t *testing.T) {
		ledgerClient := ledger.NewMockClient(t)
		step := &postLedgerStep{deps: StepDeps{LedgerClient: ledgerClient}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))
		primeStepOutput(t, job, StepPostLedger, `{"debit_operation_id":"op-debit","credit_operation_id":"op-credit"}`)

		ledgerClient.
			On("Debit", ctx, mock.AnythingOfType("ledger.DebitRequest")).
			Return(nil, &ledger.APIError{Code: "internal_error", StatusCode: 500}).
			Once()

		err := step.Compensate(ctx, job)
		assert.ErrorContains(t, err, "reversing creditor leg")
	})
}

func Test_notifyStep_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("skips when the tenant has no notification channels", func(t *testing.T) {
		step := &notifyStep{deps: StepDeps{Notifier: NewMockNotifier(t)}}
		job := newMemoryJob(eftConfig("bluebank-tenant"))

		outcome := step.Execute(ctx, job)
		assert.Equal(t, OutcomeSkipped, outcome.Kind)
		assert.Equal(t, "tenant notifications disabled", outcome.SkipReason)
	})

	t.Run("skips when no notifier is wired", func(t *testing.T) {
		step := &notifyStep{deps: StepDeps{}}
		cfg := eftConfig("bluebank-tenant")
		cfg.Payload.Notifications = tenant.NotificationConfig{EmailEnabled: true, EmailAddress: "ops@bluebank.example"}
		job := newMemoryJob(cfg)

		outcome := step.Execute(ctx, job)
		assert.Equal(t, OutcomeSkipped, outcome.Kind)
	})

	t.Run("🎉 successfully notifies the tenant contact points", func(t *testing.T) {
		notifier := NewMockNotifier(t)
		step := &notifyStep{deps: StepDeps{Notifier: notifier}}
		cfg := eftConfig("bluebank-tenant")
		cfg.Payload.Notifications = tenant.NotificationConfig{EmailEnabled: true, EmailAddress: "ops@bluebank.example"}
		job := newMemoryJob(cfg)

		notifier.
			On("NotifyPaymentOutcome", ctx, job.Payment, cfg.Payload.Notifications).
			Return(nil).
			Once()

		outcome := step.Execute(ctx, job)
		assert.Equal(t, OutcomeSucceeded, outcome.Kind)
	})

	t.Run("treats delivery failures as best effort", func(t *testing.T) {
		notifier := NewMockNotifier(t)
		step := &notifyStep{deps: StepDeps{Notifier: notifier}}
		cfg := eftConfig("bluebank-tenant")
		cfg.Payload.Notifications = tenant.NotificationConfig{SMSEnabled: true, PhoneNumber: "+27831234567"}
		job := newMemoryJob(cfg)

		notifier.
			On("NotifyPaymentOutcome", ctx, job.Payment, cfg.Payload.Notifications).
			Return(errors.New("twilio: unreachable")).
			Once()

		outcome := step.Execute(ctx, job)
		assert.Equal(t, OutcomeSucceeded, outcome.Kind)
	})
}
