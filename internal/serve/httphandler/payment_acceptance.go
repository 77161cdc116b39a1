package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/dispatch"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/events/schemas"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httperror"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
)

// defaultSyncResponseBudget bounds how long a synchronous-mode request drives
// its saga inline before the claim loop takes over in the background.
const defaultSyncResponseBudget = 25 * time.Second

// acceptedForProcessingStatus is the envelope status for async and
// kafka-topic acceptances, where the pain.002 arrives later.
const acceptedForProcessingStatus = "ACCEPTED_FOR_PROCESSING"

// SagaRunner claims one saga and drives it on the caller's goroutine. The
// saga engine's worker satisfies this for synchronous-mode intake.
type SagaRunner interface {
	RunInline(ctx context.Context, sagaID string) error
}

// PaymentAcceptanceResponse is the intake envelope returned by POST /payments
// and POST /iso20022/pain001 for each accepted instruction.
type PaymentAcceptanceResponse struct {
	PaymentID      string                         `json:"paymentId"`
	UETR           string                         `json:"uetr"`
	Status         string                         `json:"status"`
	KafkaTopicName string                         `json:"kafkaTopicName,omitempty"`
	Pain002        *schemas.EventPain002ReadyData `json:"pain002,omitempty"`
}

// PaymentAccepter runs the shared intake flow: idempotency replay, atomic
// payment+saga+outbox creation, then the response-mode specific tail.
type PaymentAccepter struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
	ConfigStore      tenant.ConfigStoreInterface
	SagaRunner       SagaRunner
	Dispatcher       dispatch.DispatcherInterface
	MonitorService   monitor.MonitorServiceInterface
}

type acceptedPayment struct {
	Payment  *data.Payment
	Replayed bool
	Response PaymentAcceptanceResponse
}

// Accept takes a structurally valid PaymentInsert, pins it to the tenant's
// latest config version and creates payment, saga and outbox row in one
// transaction. Synchronous payment types are driven inline so the response
// carries the pain.002; other modes return an acceptance envelope.
func (a PaymentAccepter) Accept(ctx context.Context, insert data.PaymentInsert) (*acceptedPayment, *httperror.HTTPError) {
	cfg, err := a.ConfigStore.GetLatestConfig(ctx, insert.TenantID)
	if err != nil {
		return nil, httperror.InternalError(ctx, "Cannot load the tenant configuration", err, nil).WithErrorCode(httperror.Code500_2)
	}

	ptc, ok := cfg.Payload.PaymentType(insert.PaymentTypeCode)
	if !ok || !ptc.Enabled {
		msg := fmt.Sprintf("Payment type %s is not enabled for this tenant", insert.PaymentTypeCode)
		return nil, httperror.UnprocessableEntity(msg, nil, nil).WithErrorCode(httperror.Code422_0)
	}

	responseMode, err := ptc.EffectiveResponseMode()
	if err != nil {
		return nil, httperror.InternalError(ctx, "Cannot resolve the response mode", err, nil).WithErrorCode(httperror.Code500_2)
	}

	insert.ConfigVersion = cfg.Version
	insert.ResponseMode = responseMode

	if existing, replayErr := a.Models.Payment.GetByIdempotencyKey(ctx, a.DBConnectionPool, insert.TenantID, insert.IdempotencyKey); replayErr == nil {
		return a.replay(ctx, existing), nil
	} else if !errors.Is(replayErr, data.ErrRecordNotFound) {
		return nil, httperror.InternalError(ctx, "Cannot verify the idempotency key", replayErr, nil)
	}

	if err = insert.Validate(); err != nil {
		return nil, httperror.BadRequest("", err, map[string]any{"validation_error": err.Error()}).WithErrorCode(httperror.Code400_1)
	}

	// Caller-supplied UETRs must be new. Anything slipping past this check in
	// a race is terminally rejected by the saga's reservation step.
	if _, err = a.Models.Payment.GetByUETR(ctx, a.DBConnectionPool, insert.TenantID, insert.UETR); err == nil {
		return nil, httperror.Conflict("A payment with this UETR already exists", nil, nil).WithErrorCode(httperror.Code409_0)
	} else if !errors.Is(err, data.ErrRecordNotFound) {
		return nil, httperror.InternalError(ctx, "Cannot verify the UETR", err, nil)
	}

	payment, saga, err := a.createPaymentWithSaga(ctx, insert, ptc)
	if err != nil {
		// A concurrent request with the same key committed first; hand back
		// its result instead of failing.
		if errors.Is(err, data.ErrDuplicateIdempotencyKey) {
			existing, replayErr := a.Models.Payment.GetByIdempotencyKey(ctx, a.DBConnectionPool, insert.TenantID, insert.IdempotencyKey)
			if replayErr != nil {
				return nil, httperror.InternalError(ctx, "Cannot replay the idempotent request", replayErr, nil)
			}
			return a.replay(ctx, existing), nil
		}
		return nil, httperror.InternalError(ctx, "Cannot create the payment", err, nil)
	}

	a.recordPaymentCounter(ctx, payment)

	response := PaymentAcceptanceResponse{
		PaymentID: payment.ID,
		UETR:      payment.UETR,
		Status:    acceptedForProcessingStatus,
	}
	if responseMode == data.KafkaTopicResponseMode {
		response.KafkaTopicName = responseTopicName(payment, ptc)
	}

	if responseMode != data.SynchronousResponseMode {
		return &acceptedPayment{Payment: payment, Response: response}, nil
	}

	payment, envelope := a.runInline(ctx, payment, saga, ptc)
	response.Status = string(payment.Status)
	response.Pain002 = envelope
	if payment.Status.IsTerminal() && envelope != nil {
		a.storeResponseSnapshot(ctx, payment, response)
	}
	return &acceptedPayment{Payment: payment, Response: response}, nil
}

// storeResponseSnapshot freezes the synchronous response body so a replay of
// the idempotency key serves the original bytes, even after the tenant's
// config or the payment row moved on. Failures only cost replay fidelity, so
// they are logged, not surfaced.
func (a PaymentAccepter) storeResponseSnapshot(ctx context.Context, payment *data.Payment, response PaymentAcceptanceResponse) {
	body, err := json.Marshal(response)
	if err != nil {
		log.Ctx(ctx).WithError(err).Errorf("Cannot marshal the response snapshot for payment %s", payment.ID)
		return
	}
	if err := a.Models.Payment.SetResponseSnapshot(ctx, a.DBConnectionPool, payment.ID, body, http.StatusCreated); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("Cannot store the response snapshot for payment %s", payment.ID)
	}
}

// replay reconstructs the original acceptance response for a repeated
// idempotency key. No side effects.
func (a PaymentAccepter) replay(ctx context.Context, payment *data.Payment) *acceptedPayment {
	response := PaymentAcceptanceResponse{
		PaymentID: payment.ID,
		UETR:      payment.UETR,
		Status:    string(payment.Status),
	}

	switch payment.ResponseMode {
	case data.SynchronousResponseMode:
		if len(payment.ResponseSnapshot) > 0 {
			var original PaymentAcceptanceResponse
			if err := json.Unmarshal(payment.ResponseSnapshot, &original); err != nil {
				log.Ctx(ctx).WithError(err).Errorf("Cannot decode the response snapshot for payment %s", payment.ID)
			} else {
				response = original
			}
		}
	case data.KafkaTopicResponseMode:
		response.Status = acceptedForProcessingStatus
		response.KafkaTopicName = events.ResponseTopicName(payment.TenantID, payment.PaymentTypeCode)
	default:
		response.Status = acceptedForProcessingStatus
	}

	return &acceptedPayment{Payment: payment, Replayed: true, Response: response}
}

// createPaymentWithSaga persists the payment in Initiated, its saga and the
// PaymentInitiated outbox row atomically.
func (a PaymentAccepter) createPaymentWithSaga(ctx context.Context, insert data.PaymentInsert, ptc tenant.PaymentTypeConfig) (*data.Payment, *data.Saga, error) {
	type createResult struct {
		payment *data.Payment
		saga    *data.Saga
	}

	result, err := db.RunInTransactionWithResult(ctx, a.DBConnectionPool, nil, func(dbTx db.DBTransaction) (createResult, error) {
		payment, txErr := a.Models.Payment.Insert(ctx, dbTx, insert)
		if txErr != nil {
			return createResult{}, fmt.Errorf("inserting payment: %w", txErr)
		}

		sagaInsert := data.SagaInsert{
			PaymentID:     payment.ID,
			TenantID:      payment.TenantID,
			ConfigVersion: payment.ConfigVersion,
		}
		if ptc.Timeouts.SagaDeadlineSeconds > 0 {
			deadline := time.Now().Add(time.Duration(ptc.Timeouts.SagaDeadlineSeconds) * time.Second)
			sagaInsert.DeadlineAt = &deadline
		}
		saga, txErr := a.Models.Sagas.Insert(ctx, dbTx, sagaInsert)
		if txErr != nil {
			return createResult{}, fmt.Errorf("inserting saga for payment %s: %w", payment.ID, txErr)
		}

		payload, txErr := json.Marshal(schemas.EventPaymentStatusChangedData{
			PaymentID:       payment.ID,
			UETR:            payment.UETR,
			PaymentTypeCode: payment.PaymentTypeCode,
			Status:          string(payment.Status),
		})
		if txErr != nil {
			return createResult{}, fmt.Errorf("marshalling payment initiated event: %w", txErr)
		}
		_, txErr = a.Models.Outbox.Insert(ctx, dbTx, data.OutboxInsert{
			TenantID:  payment.TenantID,
			Topic:     events.PaymentInitiatedTopic,
			Key:       payment.ID,
			EventType: events.PaymentStatusChangedType,
			Payload:   payload,
		})
		if txErr != nil {
			return createResult{}, fmt.Errorf("inserting outbox row for payment %s: %w", payment.ID, txErr)
		}

		sagaPayload, txErr := json.Marshal(schemas.EventSagaStatusChangedData{
			SagaID:    saga.ID,
			PaymentID: payment.ID,
			Status:    string(saga.Status),
		})
		if txErr != nil {
			return createResult{}, fmt.Errorf("marshalling saga started event: %w", txErr)
		}
		_, txErr = a.Models.Outbox.Insert(ctx, dbTx, data.OutboxInsert{
			TenantID:  payment.TenantID,
			Topic:     events.SagaStartedTopic,
			Key:       payment.ID,
			EventType: events.SagaStatusChangedType,
			Payload:   sagaPayload,
		})
		if txErr != nil {
			return createResult{}, fmt.Errorf("inserting saga started outbox row for payment %s: %w", payment.ID, txErr)
		}

		return createResult{payment: payment, saga: saga}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result.payment, result.saga, nil
}

// runInline drives the saga on the request goroutine under the payment type's
// sync response budget. Budget expiry is not an intake failure: the claim
// loop finishes the saga and the caller gets the acceptance envelope with the
// status committed so far.
func (a PaymentAccepter) runInline(ctx context.Context, payment *data.Payment, saga *data.Saga, ptc tenant.PaymentTypeConfig) (*data.Payment, *schemas.EventPain002ReadyData) {
	budget := defaultSyncResponseBudget
	if ptc.Timeouts.SyncResponseBudgetMS > 0 {
		budget = time.Duration(ptc.Timeouts.SyncResponseBudgetMS) * time.Millisecond
	}
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	if err := a.SagaRunner.RunInline(runCtx, saga.ID); err != nil {
		log.Ctx(ctx).WithError(err).Errorf("Cannot drive saga %s inline, leaving it to the claim loop", saga.ID)
	}

	refreshed, err := a.Models.Payment.Get(ctx, a.DBConnectionPool, payment.TenantID, payment.ID)
	if err != nil {
		log.Ctx(ctx).WithError(err).Errorf("Cannot reload payment %s after inline run", payment.ID)
		return payment, nil
	}

	if !refreshed.Status.IsTerminal() {
		return refreshed, nil
	}

	envelope, err := a.Dispatcher.BuildEnvelope(ctx, refreshed)
	if err != nil {
		log.Ctx(ctx).WithError(err).Errorf("Cannot build the pain.002 envelope for payment %s", refreshed.ID)
		return refreshed, nil
	}
	return refreshed, envelope
}

func (a PaymentAccepter) recordPaymentCounter(ctx context.Context, payment *data.Payment) {
	labels := monitor.PaymentLabels{
		PaymentType: payment.PaymentTypeCode,
		Scheme:      payment.LocalInstrument,
		Status:      string(payment.Status),
		CommonLabels: monitor.CommonLabels{
			TenantName: tenantctx.MustGetTenantNameFromContext(ctx),
		},
	}
	if err := a.MonitorService.MonitorCounters(monitor.PaymentsCounterTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("Error monitoring payments counter: %v", err)
	}
}

func responseTopicName(payment *data.Payment, ptc tenant.PaymentTypeConfig) string {
	if ptc.KafkaResponseConfig != nil && ptc.KafkaResponseConfig.TopicOverride != "" {
		return ptc.KafkaResponseConfig.TopicOverride
	}
	return events.ResponseTopicName(payment.TenantID, payment.PaymentTypeCode)
}
