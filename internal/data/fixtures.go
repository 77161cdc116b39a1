package data

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
)

func CreateTenantFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, name string) string {
	const query = `
		INSERT INTO tenants
			(name, code, status)
		VALUES
			($1, $1, 'TENANT_ACTIVATED')
		RETURNING
			id
	`

	var tenantID string
	err := sqlExec.GetContext(ctx, &tenantID, query, name)
	require.NoError(t, err)

	return tenantID
}

func CreateTenantConfigFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, tenantID string, version int, payload string) {
	const query = `
		INSERT INTO tenant_configs
			(tenant_id, version, payload)
		VALUES
			($1, $2, $3)
	`

	_, err := sqlExec.ExecContext(ctx, query, tenantID, version, payload)
	require.NoError(t, err)
}

// CreatePaymentFixture inserts a payment directly in the given status,
// bypassing the state machine. Zero-value fields get usable defaults.
func CreatePaymentFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, p *Payment) *Payment {
	if p == nil {
		p = &Payment{}
	}
	require.NotEmpty(t, p.TenantID, "TenantID must be set for payment fixtures")

	if p.IdempotencyKey == "" {
		p.IdempotencyKey = uuid.NewString()
	}
	if p.UETR == "" {
		p.UETR = iso20022.NewUETR().String()
	}
	if p.EndToEndID == "" {
		p.EndToEndID = "E2E-" + uuid.NewString()[:8]
	}
	if p.PaymentTypeCode == "" {
		p.PaymentTypeCode = "EFT"
	}
	if p.Amount.IsZero() {
		p.Amount = decimal.RequireFromString("150.25")
	}
	if p.Currency == "" {
		p.Currency = "ZAR"
	}
	if p.DebtorName == "" {
		p.DebtorName = "Thandi Mokoena"
	}
	if p.DebtorAccount == "" {
		p.DebtorAccount = "ZA6300123456789"
	}
	if p.CreditorName == "" {
		p.CreditorName = "Acme Supplies Ltd"
	}
	if p.CreditorAccount == "" {
		p.CreditorAccount = "ZA6300987654321"
	}
	if p.Status == "" {
		p.Status = InitiatedPaymentStatus
	}
	if p.ConfigVersion == 0 {
		p.ConfigVersion = 1
	}
	if p.ResponseMode == "" {
		p.ResponseMode = SynchronousResponseMode
	}

	const query = `
		INSERT INTO payments
			(tenant_id, business_unit_id, customer_id, idempotency_key, uetr, end_to_end_id,
			 payment_type_code, local_instrument, amount, currency,
			 debtor_name, debtor_account, creditor_name, creditor_account,
			 status, status_history, config_version, response_mode, rail, clearing_reference)
		VALUES
			($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6,
			 $7, NULLIF($8, ''), $9, $10,
			 $11, $12, $13, $14,
			 $15, ARRAY[create_payment_status_history(NOW(), $15, NULL)], $16, $17, NULLIF($18, ''), NULLIF($19, ''))
		RETURNING
			id
	`

	var newID string
	err := sqlExec.GetContext(ctx, &newID, query,
		p.TenantID,
		p.BusinessUnitID,
		p.CustomerID,
		p.IdempotencyKey,
		p.UETR,
		p.EndToEndID,
		p.PaymentTypeCode,
		p.LocalInstrument,
		p.Amount,
		p.Currency,
		p.DebtorName,
		p.DebtorAccount,
		p.CreditorName,
		p.CreditorAccount,
		p.Status,
		p.ConfigVersion,
		p.ResponseMode,
		p.Rail,
		p.ClearingReference,
	)
	require.NoError(t, err)

	payment, err := (&PaymentModel{}).Get(ctx, sqlExec, p.TenantID, newID)
	require.NoError(t, err)
	return payment
}

func DeleteAllPaymentsFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	const query = "DELETE FROM payments"
	_, err := sqlExec.ExecContext(ctx, query)
	require.NoError(t, err)
}

func CreateUETRDedupeFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, tenantID, uetr, paymentID string) {
	err := (&UETRDedupeModel{}).Reserve(ctx, sqlExec, tenantID, uetr, paymentID)
	require.NoError(t, err)
}

// CreateSagaFixture inserts a saga directly in the given status.
func CreateSagaFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, s *Saga) *Saga {
	if s == nil {
		s = &Saga{}
	}
	require.NotEmpty(t, s.TenantID, "TenantID must be set for saga fixtures")
	require.NotEmpty(t, s.PaymentID, "PaymentID must be set for saga fixtures")

	if s.Status == "" {
		s.Status = RunningSagaStatus
	}
	if s.ConfigVersion == 0 {
		s.ConfigVersion = 1
	}

	const query = `
		INSERT INTO sagas
			(payment_id, tenant_id, status, status_history, current_step_index,
			 cancel_requested, dead_lettered, dead_letter_reason, lock_token,
			 lease_deadline, wake_at, deadline_at, config_version)
		VALUES
			($1, $2, $3, ARRAY[create_saga_status_history(NOW(), $3, NULL)], $4,
			 $5, $6, NULLIF($7, ''), NULLIF($8, ''),
			 $9, $10, $11, $12)
		RETURNING
			id
	`

	var newID string
	err := sqlExec.GetContext(ctx, &newID, query,
		s.PaymentID,
		s.TenantID,
		s.Status,
		s.CurrentStepIndex,
		s.CancelRequested,
		s.DeadLettered,
		s.DeadLetterReason,
		s.LockToken,
		s.LeaseDeadline,
		s.WakeAt,
		s.DeadlineAt,
		s.ConfigVersion,
	)
	require.NoError(t, err)

	saga, err := (&SagaModel{}).Get(ctx, sqlExec, newID)
	require.NoError(t, err)
	return saga
}

func CreateSagaStepFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, sagaID, tenantID string, names []string) []SagaStep {
	steps, err := (&SagaStepModel{}).InsertAll(ctx, sqlExec, sagaID, tenantID, names)
	require.NoError(t, err)
	return steps
}

func DeleteAllSagasFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	_, err := sqlExec.ExecContext(ctx, "DELETE FROM saga_steps")
	require.NoError(t, err)
	_, err = sqlExec.ExecContext(ctx, "DELETE FROM sagas")
	require.NoError(t, err)
}

func CreateOutboxFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, tenantID, topic, key, eventType string) *OutboxMessage {
	model := &OutboxModel{}
	id, err := model.Insert(ctx, sqlExec, OutboxInsert{
		TenantID:  tenantID,
		Topic:     topic,
		Key:       key,
		EventType: eventType,
		Payload:   []byte(`{"fixture":true}`),
	})
	require.NoError(t, err)

	const query = `
		SELECT
			id, tenant_id, topic, key, event_type, payload, status, attempts,
			COALESCE(last_error, '') AS last_error, published_at, created_at, updated_at
		FROM
			outbox_messages
		WHERE
			id = $1
	`

	var message OutboxMessage
	err = sqlExec.GetContext(ctx, &message, query, id)
	require.NoError(t, err)
	return &message
}

func DeleteAllOutboxFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	const query = "DELETE FROM outbox_messages"
	_, err := sqlExec.ExecContext(ctx, query)
	require.NoError(t, err)
}

func CreateRoutingRuleFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, insert RoutingRuleInsert) *RoutingRule {
	rule, err := (&RoutingRuleModel{}).Insert(ctx, sqlExec, insert)
	require.NoError(t, err)
	return rule
}

func DeleteAllRoutingRulesFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	const query = "DELETE FROM routing_rules"
	_, err := sqlExec.ExecContext(ctx, query)
	require.NoError(t, err)
}

// CreateClearingAdapterFixture inserts an adapter with production-ish limits.
// Pass tenantID nil for a shared adapter.
func CreateClearingAdapterFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, tenantID *string, rail Rail, baseURL string) *ClearingAdapter {
	adapter, err := (&ClearingAdapterModel{}).Insert(ctx, sqlExec, ClearingAdapterInsert{
		TenantID:                tenantID,
		Rail:                    rail,
		BaseURL:                 baseURL,
		EndpointPath:            "/payments",
		HTTPMethod:              "POST",
		AuthType:                NoneAuthType,
		TimeoutMS:               30000,
		MaxRetries:              3,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeoutMS:    30000,
		Capabilities:            Capabilities{SubmitCapability, PollCapability},
		Status:                  ActiveClearingAdapterStatus,
	})
	require.NoError(t, err)
	return adapter
}

func DeleteAllClearingAdaptersFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	const query = "DELETE FROM clearing_adapters"
	_, err := sqlExec.ExecContext(ctx, query)
	require.NoError(t, err)
}

func CreatePayloadMappingFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, name string, direction MappingDirection, rules TransformationRules) *PayloadMapping {
	if rules == nil {
		rules = TransformationRules{
			{Kind: CopyRuleKind, Source: "uetr", Target: "reference"},
		}
	}

	mapping, err := (&PayloadMappingModel{}).Insert(ctx, sqlExec, PayloadMappingInsert{
		Name:      name,
		Direction: direction,
		Rules:     rules,
	})
	require.NoError(t, err)
	return mapping
}

func CreateResponseDeliveryFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, tenantID, paymentID string, mode ResponseMode) *ResponseDelivery {
	target := ""
	switch mode {
	case AsynchronousResponseMode:
		target = "https://originator.example.com/pain002"
	case KafkaTopicResponseMode:
		target = "payment-engine." + tenantID + ".responses.eft.pain002"
	}

	delivery, err := (&ResponseDeliveryModel{}).Insert(ctx, sqlExec, ResponseDeliveryInsert{
		TenantID:  tenantID,
		PaymentID: paymentID,
		Mode:      mode,
		Target:    target,
		Payload:   []byte(`{"transaction_status":"ACSC"}`),
	})
	require.NoError(t, err)
	return delivery
}

func DeleteAllResponseDeliveriesFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	const query = "DELETE FROM response_deliveries"
	_, err := sqlExec.ExecContext(ctx, query)
	require.NoError(t, err)
}

func CreateClearingCallbackFixture(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter, rail Rail, externalRef string) *ClearingCallback {
	callback, err := (&ClearingCallbackModel{}).Insert(ctx, sqlExec, ClearingCallbackInsert{
		Rail:        rail,
		ExternalRef: externalRef,
		StatusCode:  "ACSC",
		RawPayload:  []byte(`{"transaction_status":"ACSC"}`),
	})
	require.NoError(t, err)
	return callback
}

func DeleteAllClearingCallbacksFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	const query = "DELETE FROM clearing_callbacks"
	_, err := sqlExec.ExecContext(ctx, query)
	require.NoError(t, err)
}

// DeleteAllFixtures empties every table this package writes, children first.
func DeleteAllFixtures(t *testing.T, ctx context.Context, sqlExec db.SQLExecuter) {
	DeleteAllResponseDeliveriesFixtures(t, ctx, sqlExec)
	DeleteAllClearingCallbacksFixtures(t, ctx, sqlExec)
	DeleteAllSagasFixtures(t, ctx, sqlExec)
	DeleteAllOutboxFixtures(t, ctx, sqlExec)
	DeleteAllPaymentsFixtures(t, ctx, sqlExec)
	DeleteAllRoutingRulesFixtures(t, ctx, sqlExec)
	DeleteAllClearingAdaptersFixtures(t, ctx, sqlExec)

	_, err := sqlExec.ExecContext(ctx, "DELETE FROM payload_mappings")
	require.NoError(t, err)
	_, err = sqlExec.ExecContext(ctx, "DELETE FROM tenant_configs")
	require.NoError(t, err)
	_, err = sqlExec.ExecContext(ctx, "DELETE FROM tenants")
	require.NoError(t, err)
}
