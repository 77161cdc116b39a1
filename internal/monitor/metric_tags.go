package monitor

// DefaultNamespace prefixes every metric exported by the engine.
const DefaultNamespace = "payment_engine"

type Subservice string

const (
	HTTPSubservice     Subservice = "http"
	DBSubservice       Subservice = "db"
	BusinessSubservice Subservice = "business"
	SagaSubservice     Subservice = "saga"
	ClearingSubservice Subservice = "clearing"
	LedgerSubservice   Subservice = "ledger"
	FraudSubservice    Subservice = "fraud"
	OutboxSubservice   Subservice = "outbox"
	DispatchSubservice Subservice = "dispatch"
)

type MetricTag string

const (
	SuccessfulQueryDurationTag MetricTag = "successful_queries_duration"
	FailureQueryDurationTag    MetricTag = "failure_queries_duration"
	HTTPRequestDurationTag     MetricTag = "requests_duration_seconds"
	RecoveredPanicsCounterTag  MetricTag = "recovered_panics_counter"
	// Payments:
	PaymentsCounterTag MetricTag = "payments_counter"
	// Saga engine:
	SagaStepDurationTag       MetricTag = "saga_step_duration_seconds"
	SagaStepsCounterTag       MetricTag = "saga_steps_counter"
	SagaDeadLettersCounterTag MetricTag = "saga_dead_letters_counter"
	// Clearing adapters:
	ClearingRequestDurationTag   MetricTag = "clearing_request_duration_seconds"
	ClearingRequestsTotalTag     MetricTag = "clearing_requests_total"
	BreakerTransitionsCounterTag MetricTag = "clearing_breaker_transitions_counter"
	ClearingCallbacksCounterTag  MetricTag = "clearing_callbacks_counter"
	// Ledger adapter:
	LedgerRequestDurationTag MetricTag = "ledger_request_duration_seconds"
	LedgerRequestsTotalTag   MetricTag = "ledger_requests_total"
	// Fraud scoring:
	FraudChecksCounterTag   MetricTag = "fraud_checks_counter"
	FraudRequestDurationTag MetricTag = "fraud_request_duration_seconds"
	// Outbox:
	OutboxPublishedCounterTag MetricTag = "outbox_published_counter"
	OutboxFailedCounterTag    MetricTag = "outbox_failed_counter"
	// Response dispatch:
	ResponseDeliveriesCounterTag MetricTag = "response_deliveries_counter"
	ResponseDeliveryDurationTag  MetricTag = "response_delivery_duration_seconds"
)

// DB connection pool function metrics, registered per pool at startup. These
// are not part of ListAll because they carry their own collectors.
const (
	DBMaxOpenConnectionsTag       MetricTag = "max_open_connections"
	DBInUseConnectionsTag         MetricTag = "in_use_connections"
	DBIdleConnectionsTag          MetricTag = "idle_connections"
	DBWaitCountTotalTag           MetricTag = "wait_count_total"
	DBWaitDurationSecondsTotalTag MetricTag = "wait_duration_seconds_total"
	DBMaxIdleClosedTotalTag       MetricTag = "max_idle_closed_total"
	DBMaxIdleTimeClosedTotalTag   MetricTag = "max_idle_time_closed_total"
	DBMaxLifetimeClosedTotalTag   MetricTag = "max_lifetime_closed_total"
)

func (m MetricTag) ListAll() []MetricTag {
	return []MetricTag{
		SuccessfulQueryDurationTag,
		FailureQueryDurationTag,
		HTTPRequestDurationTag,
		RecoveredPanicsCounterTag,
		PaymentsCounterTag,
		SagaStepDurationTag,
		SagaStepsCounterTag,
		SagaDeadLettersCounterTag,
		ClearingRequestDurationTag,
		ClearingRequestsTotalTag,
		BreakerTransitionsCounterTag,
		ClearingCallbacksCounterTag,
		LedgerRequestDurationTag,
		LedgerRequestsTotalTag,
		FraudChecksCounterTag,
		FraudRequestDurationTag,
		OutboxPublishedCounterTag,
		OutboxFailedCounterTag,
		ResponseDeliveriesCounterTag,
		ResponseDeliveryDurationTag,
	}
}
