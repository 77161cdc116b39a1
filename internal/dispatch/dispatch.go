package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/events/schemas"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
)

const (
	// responseMessageType labels the envelope for originator-side routing.
	responseMessageType = "pain.002.001.03"

	// pain001MessageName is echoed as OrgnlMsgNmId in every status report.
	pain001MessageName = "pain.001.001.09"

	// maxDeliveryAttempts is the total budget across the first drive and
	// the retry job before a delivery is marked DEAD.
	maxDeliveryAttempts = 8

	// baseRetryDelay seeds the exponential backoff between redeliveries.
	baseRetryDelay = time.Minute
	maxRetryDelay  = time.Hour

	dlqSuffix = ".dlq"
)

// DispatcherInterface hands terminal pain.002 responses back to originators
// over the channel pinned on each payment row.
type DispatcherInterface interface {
	BuildEnvelope(ctx context.Context, payment *data.Payment) (*schemas.EventPain002ReadyData, error)
	DispatchTerminal(ctx context.Context, payment *data.Payment) error
	Redeliver(ctx context.Context, delivery data.ResponseDelivery) error
}

// Dispatcher resolves the response mode recorded at acceptance and delivers
// the pain.002 envelope over a webhook, a Kafka topic, or, for synchronous
// payments, records the response that already went back in-band.
type Dispatcher struct {
	models         *data.Models
	configStore    tenant.ConfigStoreInterface
	producer       events.Producer
	webhookSender  WebhookSenderInterface
	monitorService monitor.MonitorServiceInterface
}

type DispatcherOptions struct {
	Models         *data.Models
	ConfigStore    tenant.ConfigStoreInterface
	Producer       events.Producer
	WebhookSender  WebhookSenderInterface
	MonitorService monitor.MonitorServiceInterface
}

func (opts DispatcherOptions) validate() error {
	if opts.Models == nil {
		return fmt.Errorf("models cannot be nil")
	}
	if opts.ConfigStore == nil {
		return fmt.Errorf("config store cannot be nil")
	}
	if opts.WebhookSender == nil {
		return fmt.Errorf("webhook sender cannot be nil")
	}
	if opts.MonitorService == nil {
		return fmt.Errorf("monitor service cannot be nil")
	}
	return nil
}

// NewDispatcher creates a Dispatcher. Producer may be nil when the broker
// type is NONE; Kafka-mode deliveries are then logged and dropped by the
// events facade.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("validating options: %w", err)
	}

	return &Dispatcher{
		models:         opts.Models,
		configStore:    opts.ConfigStore,
		producer:       opts.Producer,
		webhookSender:  opts.WebhookSender,
		monitorService: opts.MonitorService,
	}, nil
}

var _ DispatcherInterface = (*Dispatcher)(nil)

// BuildEnvelope renders the payment's current state as a pain.002 document
// wrapped in the response envelope shared by every response mode. The accept
// handler uses it directly for synchronous response bodies.
func (d *Dispatcher) BuildEnvelope(ctx context.Context, payment *data.Payment) (*schemas.EventPain002ReadyData, error) {
	if payment == nil {
		return nil, fmt.Errorf("payment cannot be nil")
	}

	_, typeConfig, err := d.pinnedConfig(ctx, payment)
	if err != nil {
		return nil, err
	}
	return buildEnvelope(payment, typeConfig)
}

// DispatchTerminal delivers the payment's terminal pain.002. Redelivered
// events are absorbed: a payment that already has a delivery row is not
// dispatched twice, the row's state machine owns any remaining retries.
func (d *Dispatcher) DispatchTerminal(ctx context.Context, payment *data.Payment) error {
	if payment == nil {
		return fmt.Errorf("payment cannot be nil")
	}

	existing, err := d.models.ResponseDeliveries.GetByPaymentID(ctx, d.models.DBConnectionPool, payment.TenantID, payment.ID)
	if err != nil {
		return fmt.Errorf("checking existing deliveries for payment %s: %w", payment.ID, err)
	}
	if len(existing) > 0 {
		log.Ctx(ctx).Debugf("payment %s already has %d response deliveries, skipping dispatch", payment.ID, len(existing))
		return nil
	}

	cfgPayload, typeConfig, err := d.pinnedConfig(ctx, payment)
	if err != nil {
		return err
	}
	envelope, err := buildEnvelope(payment, typeConfig)
	if err != nil {
		return err
	}
	envelopeJSON, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshalling response envelope for payment %s: %w", payment.ID, err)
	}

	switch payment.ResponseMode {
	case data.SynchronousResponseMode:
		return d.recordSynchronous(ctx, payment, envelopeJSON)
	case data.AsynchronousResponseMode:
		if cfgPayload.CallbackURL == "" {
			return fmt.Errorf("tenant %s has no callback URL configured for asynchronous responses", payment.TenantID)
		}
		delivery, insertErr := d.insertDelivery(ctx, payment, cfgPayload.CallbackURL, envelopeJSON)
		if insertErr != nil {
			return insertErr
		}
		return d.drive(ctx, payment, *delivery, cfgPayload.CallbackSecret)
	case data.KafkaTopicResponseMode:
		delivery, insertErr := d.insertDelivery(ctx, payment, responseTopic(payment, typeConfig), envelopeJSON)
		if insertErr != nil {
			return insertErr
		}
		return d.drive(ctx, payment, *delivery, "")
	default:
		return fmt.Errorf("payment %s has unknown response mode %q", payment.ID, payment.ResponseMode)
	}
}

// Redeliver re-drives a delivery row claimed by the response retry job.
func (d *Dispatcher) Redeliver(ctx context.Context, delivery data.ResponseDelivery) error {
	payment, err := d.models.Payment.Get(ctx, d.models.DBConnectionPool, delivery.TenantID, delivery.PaymentID)
	if err != nil {
		return fmt.Errorf("loading payment %s for response delivery %s: %w", delivery.PaymentID, delivery.ID, err)
	}

	var callbackSecret string
	if delivery.Mode == data.AsynchronousResponseMode {
		cfgPayload, _, cfgErr := d.pinnedConfig(ctx, payment)
		if cfgErr != nil {
			return cfgErr
		}
		callbackSecret = cfgPayload.CallbackSecret
	}

	return d.drive(ctx, payment, delivery, callbackSecret)
}

// pinnedConfig loads the tenant config version captured at acceptance. The
// pinned version is authoritative: a config change mid-flight must not alter
// how an already accepted payment responds.
func (d *Dispatcher) pinnedConfig(ctx context.Context, payment *data.Payment) (*tenant.ConfigPayload, *tenant.PaymentTypeConfig, error) {
	cfg, err := d.configStore.GetConfig(ctx, payment.TenantID, payment.ConfigVersion)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config version %d for tenant %s: %w", payment.ConfigVersion, payment.TenantID, err)
	}

	typeConfig, ok := cfg.Payload.PaymentType(payment.PaymentTypeCode)
	if !ok {
		// No per-type entry in the pinned version; the envelope falls back to
		// the derived topic and carries no target-system routing hints.
		return &cfg.Payload, nil, nil
	}
	return &cfg.Payload, &typeConfig, nil
}

func (d *Dispatcher) insertDelivery(ctx context.Context, payment *data.Payment, target string, envelopeJSON []byte) (*data.ResponseDelivery, error) {
	delivery, err := d.models.ResponseDeliveries.Insert(ctx, d.models.DBConnectionPool, data.ResponseDeliveryInsert{
		TenantID:  payment.TenantID,
		PaymentID: payment.ID,
		Mode:      payment.ResponseMode,
		Target:    target,
		Payload:   envelopeJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("recording response delivery for payment %s: %w", payment.ID, err)
	}
	return delivery, nil
}

// recordSynchronous writes the audit row for a response that already went
// back in-band on the accept request, so operators can replay what the
// caller was shown.
func (d *Dispatcher) recordSynchronous(ctx context.Context, payment *data.Payment, envelopeJSON []byte) error {
	delivery, err := d.insertDelivery(ctx, payment, "", envelopeJSON)
	if err != nil {
		return err
	}
	if err = d.models.ResponseDeliveries.MarkDelivered(ctx, d.models.DBConnectionPool, delivery.ID); err != nil {
		return fmt.Errorf("marking synchronous response delivery %s delivered: %w", delivery.ID, err)
	}

	d.recordMetrics(ctx, payment.ResponseMode, nil, time.Time{})
	return nil
}

// drive performs one delivery attempt and settles the row from the outcome.
// A failed send is not an error for the caller once it is recorded: the row
// goes FAILED (or DEAD past the attempt budget) and the retry job owns it.
func (d *Dispatcher) drive(ctx context.Context, payment *data.Payment, delivery data.ResponseDelivery, callbackSecret string) error {
	startedAt := time.Now()

	var sendErr error
	switch delivery.Mode {
	case data.AsynchronousResponseMode:
		sendErr = d.webhookSender.Send(ctx, delivery.Target, callbackSecret, delivery.Payload)
	case data.KafkaTopicResponseMode:
		sendErr = events.ProduceEvents(ctx, d.producer, &events.Message{
			Topic:    delivery.Target,
			Key:      delivery.PaymentID,
			TenantID: delivery.TenantID,
			Type:     events.Pain002ReadyType,
			Data:     json.RawMessage(delivery.Payload),
		})
	default:
		return fmt.Errorf("response delivery %s has undeliverable mode %q", delivery.ID, delivery.Mode)
	}

	d.recordMetrics(ctx, delivery.Mode, sendErr, startedAt)

	if sendErr == nil {
		if err := d.models.ResponseDeliveries.MarkDelivered(ctx, d.models.DBConnectionPool, delivery.ID); err != nil {
			return fmt.Errorf("marking response delivery %s delivered: %w", delivery.ID, err)
		}
		return nil
	}

	log.Ctx(ctx).Warnf("response delivery %s attempt %d failed: %v", delivery.ID, delivery.Attempts+1, sendErr)
	return d.settleFailure(ctx, payment, delivery, sendErr)
}

// settleFailure records a failed drive and parks the envelope on the DLQ
// topic. Within the attempt budget the row goes FAILED with a backoff
// next_retry_at; past it the row goes DEAD and stays for the operator.
func (d *Dispatcher) settleFailure(ctx context.Context, payment *data.Payment, delivery data.ResponseDelivery, cause error) error {
	attempts := delivery.Attempts + 1

	if attempts >= maxDeliveryAttempts {
		if err := d.models.ResponseDeliveries.MarkDead(ctx, d.models.DBConnectionPool, delivery.ID, cause.Error()); err != nil {
			return fmt.Errorf("marking response delivery %s dead: %w", delivery.ID, err)
		}
		log.Ctx(ctx).Errorf("response delivery %s is dead after %d attempts: %v", delivery.ID, attempts, cause)
	} else {
		nextRetryAt := time.Now().Add(retryDelay(attempts))
		if err := d.models.ResponseDeliveries.MarkFailed(ctx, d.models.DBConnectionPool, delivery.ID, cause.Error(), nextRetryAt); err != nil {
			return fmt.Errorf("marking response delivery %s failed: %w", delivery.ID, err)
		}
	}

	d.publishDLQ(ctx, payment, delivery)
	return nil
}

// publishDLQ parks the envelope on the delivery's dead-letter topic for
// operator inspection and replay. Best effort: the row state is the source
// of truth for pending work.
func (d *Dispatcher) publishDLQ(ctx context.Context, payment *data.Payment, delivery data.ResponseDelivery) {
	topic := dlqTopic(payment, delivery)
	msg := &events.Message{
		Topic:    topic,
		Key:      delivery.PaymentID,
		TenantID: delivery.TenantID,
		Type:     events.Pain002ReadyType,
		Data:     json.RawMessage(delivery.Payload),
	}
	if err := events.ProduceEvents(ctx, d.producer, msg); err != nil {
		log.Ctx(ctx).Errorf("publishing response delivery %s to DLQ topic %s: %v", delivery.ID, topic, err)
	}
}

func (d *Dispatcher) recordMetrics(ctx context.Context, mode data.ResponseMode, sendErr error, startedAt time.Time) {
	result := "delivered"
	if sendErr != nil {
		result = "failed"
	}
	labels := monitor.DispatchLabels{
		Mode:   string(mode),
		Result: result,
		CommonLabels: monitor.CommonLabels{
			TenantName: tenantctx.MustGetTenantNameFromContext(ctx),
		},
	}

	if !startedAt.IsZero() {
		if err := d.monitorService.MonitorDuration(time.Since(startedAt), monitor.ResponseDeliveryDurationTag, labels.ToMap()); err != nil {
			log.Ctx(ctx).Errorf("Error monitoring response delivery duration: %v", err)
		}
	}
	if err := d.monitorService.MonitorCounters(monitor.ResponseDeliveriesCounterTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("Error monitoring response deliveries counter: %v", err)
	}
}

// responseTopic resolves the Kafka topic a pain.002 is published to. An
// explicit tenant override wins over the derived per-tenant name.
func responseTopic(payment *data.Payment, typeConfig *tenant.PaymentTypeConfig) string {
	if typeConfig != nil && typeConfig.KafkaResponseConfig != nil && typeConfig.KafkaResponseConfig.TopicOverride != "" {
		return typeConfig.KafkaResponseConfig.TopicOverride
	}
	return events.ResponseTopicName(payment.TenantID, payment.PaymentTypeCode)
}

func dlqTopic(payment *data.Payment, delivery data.ResponseDelivery) string {
	if delivery.Mode == data.KafkaTopicResponseMode {
		return delivery.Target + dlqSuffix
	}
	return events.ResponseTopicName(delivery.TenantID, payment.PaymentTypeCode) + dlqSuffix
}

// retryDelay backs off exponentially on the attempts already spent, capped
// at maxRetryDelay.
func retryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > 10 {
		attempts = 10
	}
	delay := baseRetryDelay << uint(attempts-1)
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// buildEnvelope wraps the payment's pain.002 in the response envelope. The
// document echoes the originating identifiers; payments initiated over the
// JSON API without an ISO message fall back to the payment id.
func buildEnvelope(payment *data.Payment, typeConfig *tenant.PaymentTypeConfig) (*schemas.EventPain002ReadyData, error) {
	status, reason, additionalInfo := statusForPayment(payment)

	originalMsgID := payment.OriginalMessageID
	if originalMsgID == "" {
		originalMsgID = payment.ID
	}
	instructionID := payment.InstructionID
	if instructionID == "" {
		instructionID = payment.ID
	}

	now := time.Now().UTC()
	responseMessageID := iso20022.NewMessageID()

	doc := iso20022.BuildPain002(iso20022.Pain002Params{
		MessageID:         responseMessageID,
		CreatedAt:         now,
		OriginalMsgID:     originalMsgID,
		OriginalMsgNameID: pain001MessageName,
		GroupStatus:       status,
		GroupReason:       reason,
		Transactions: []iso20022.Pain002Transaction{{
			OriginalPmtInfID:   instructionID,
			OriginalInstrID:    payment.InstructionID,
			OriginalEndToEndID: payment.EndToEndID,
			UETR:               iso20022.UETR(payment.UETR),
			Status:             status,
			Reason:             reason,
			AdditionalInfo:     additionalInfo,
			Amount:             &iso20022.Money{Amount: payment.Amount, Currency: payment.Currency},
		}},
	})
	xmlBytes, err := doc.Encode()
	if err != nil {
		return nil, fmt.Errorf("encoding pain.002 for payment %s: %w", payment.ID, err)
	}

	envelope := &schemas.EventPain002ReadyData{
		MessageType:       responseMessageType,
		TenantID:          payment.TenantID,
		PaymentTypeCode:   payment.PaymentTypeCode,
		OriginalMessageID: originalMsgID,
		ResponseMessageID: responseMessageID,
		Timestamp:         now,
		ResponseMode:      string(payment.ResponseMode),
		Pain002XML:        string(xmlBytes),
	}
	if typeConfig != nil && typeConfig.KafkaResponseConfig != nil {
		envelope.TargetSystems = typeConfig.KafkaResponseConfig.TargetSystems
		envelope.Priority = typeConfig.KafkaResponseConfig.Priority
	}
	return envelope, nil
}

// statusForPayment maps an engine payment status onto the ISO transaction
// status a pain.002 reports. Rejections carry the reason code recorded on
// the payment row in EngineError's "CATEGORY (CODE): message" string form.
func statusForPayment(payment *data.Payment) (iso20022.TransactionStatus, iso20022.ReasonCode, string) {
	switch payment.Status {
	case data.InitiatedPaymentStatus:
		return iso20022.StatusPending, "", ""
	case data.ValidatedPaymentStatus:
		return iso20022.StatusAcceptedTechnical, "", ""
	case data.FundsReservedPaymentStatus, data.RoutedPaymentStatus:
		return iso20022.StatusAccepted, "", ""
	case data.ClearingSubmittedPaymentStatus, data.ClearingAcceptedPaymentStatus:
		return iso20022.StatusAcceptedSettlementProcess, "", ""
	case data.SettledPaymentStatus:
		return iso20022.StatusAcceptedSettled, "", ""
	case data.CancelledPaymentStatus:
		reason, info := parseStatusReason(payment.StatusReason)
		if reason == "" {
			reason = iso20022.ReasonCustomerRequest
		}
		return iso20022.StatusCancelled, reason, info
	case data.ClearingRejectedPaymentStatus, data.FailedPaymentStatus, data.ReversedPaymentStatus:
		reason, info := parseStatusReason(payment.StatusReason)
		if reason == "" {
			reason = iso20022.ReasonTechnicalProblem
		}
		return iso20022.StatusRejected, reason, info
	default:
		return iso20022.StatusPending, "", ""
	}
}

// parseStatusReason recovers the ISO reason code and the human message from
// the "CATEGORY (CODE): message" form the saga engine records. Reasons in
// any other shape travel whole as additional info under NARR.
func parseStatusReason(statusReason string) (iso20022.ReasonCode, string) {
	if statusReason == "" {
		return "", ""
	}

	catEnd := strings.Index(statusReason, " (")
	codeEnd := strings.Index(statusReason, "): ")
	if catEnd > 0 && codeEnd > catEnd+2 {
		return iso20022.ReasonCode(statusReason[catEnd+2 : codeEnd]), statusReason[codeEnd+3:]
	}
	return iso20022.ReasonNarrative, statusReason
}
