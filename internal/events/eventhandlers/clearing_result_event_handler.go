package eventhandlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/events/schemas"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
	"github.com/paymenthub/payment-engine-backend/internal/utils"
)

type ClearingResultEventHandlerOptions struct {
	DBConnectionPool db.DBConnectionPool
}

// ClearingResultEventHandler consumes rail results published on
// clearing.result.v1, records them as clearing callbacks and wakes the saga
// parked on AwaitClearingResult so it does not sit out the poll timer.
type ClearingResultEventHandler struct {
	tenantManager tenant.ManagerInterface
	models        *data.Models
}

var _ events.EventHandler = new(ClearingResultEventHandler)

func NewClearingResultEventHandler(options ClearingResultEventHandlerOptions) *ClearingResultEventHandler {
	models, err := data.NewModels(options.DBConnectionPool)
	if err != nil {
		log.Fatalf("error getting models: %s", err.Error())
	}

	return &ClearingResultEventHandler{
		tenantManager: tenant.NewManager(tenant.WithDatabase(options.DBConnectionPool)),
		models:        models,
	}
}

func (h *ClearingResultEventHandler) Name() string {
	return "ClearingResultEventHandler"
}

func (h *ClearingResultEventHandler) CanHandleMessage(ctx context.Context, message *events.Message) bool {
	return message.Topic == events.ClearingResultTopic
}

func (h *ClearingResultEventHandler) Handle(ctx context.Context, message *events.Message) error {
	result, err := utils.ConvertType[any, schemas.EventClearingResultData](message.Data)
	if err != nil {
		return fmt.Errorf("converting message data to %T: %w", schemas.EventClearingResultData{}, err)
	}

	t, err := h.tenantManager.GetTenantByID(ctx, message.TenantID)
	if err != nil {
		return fmt.Errorf("getting tenant %s: %w", message.TenantID, err)
	}
	ctx = tenantctx.SetTenantInContext(ctx, t)

	rawPayload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshalling clearing result for UETR %s: %w", result.UETR, err)
	}

	insert := data.ClearingCallbackInsert{
		TenantID:    &message.TenantID,
		Rail:        data.Rail(result.Rail),
		ExternalRef: clearingResultRef(result),
		StatusCode:  result.Outcome,
		ReasonCode:  result.ReasonCode,
		RawPayload:  rawPayload,
	}

	payment, err := h.models.Payment.GetByUETR(ctx, h.models.DBConnectionPool, message.TenantID, result.UETR)
	if err != nil {
		if !errors.Is(err, data.ErrRecordNotFound) {
			return fmt.Errorf("looking up payment for UETR %s: %w", result.UETR, err)
		}

		// No payment to advance. Keep the callback so an operator can trace
		// what the rail sent us.
		if _, insertErr := h.models.ClearingCallbacks.Insert(ctx, h.models.DBConnectionPool, insert); insertErr != nil && !errors.Is(insertErr, data.ErrRecordAlreadyExists) {
			return fmt.Errorf("recording unmatched clearing callback for UETR %s: %w", result.UETR, insertErr)
		}
		log.Ctx(ctx).Warnf("No payment found for clearing result with UETR %s on rail %s", result.UETR, result.Rail)
		return nil
	}

	insert.PaymentID = &payment.ID
	if _, err = h.models.ClearingCallbacks.Insert(ctx, h.models.DBConnectionPool, insert); err != nil {
		if !errors.Is(err, data.ErrRecordAlreadyExists) {
			return fmt.Errorf("recording clearing callback for payment %s: %w", payment.ID, err)
		}
		if attachErr := h.attachIfUnmatched(ctx, insert.Rail, insert.ExternalRef, payment); attachErr != nil {
			return attachErr
		}
		log.Ctx(ctx).Debugf("Clearing result %s/%s was already recorded", insert.Rail, insert.ExternalRef)
	}

	saga, err := h.models.Sagas.GetByPaymentID(ctx, h.models.DBConnectionPool, payment.ID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			log.Ctx(ctx).Warnf("No saga found for payment %s; clearing callback stays unprocessed", payment.ID)
			return nil
		}
		return fmt.Errorf("loading saga for payment %s: %w", payment.ID, err)
	}

	if err = h.models.Sagas.Wake(ctx, h.models.DBConnectionPool, saga.ID); err != nil {
		return fmt.Errorf("waking saga %s: %w", saga.ID, err)
	}

	return nil
}

// attachIfUnmatched links a previously recorded callback to the payment. This
// covers the HTTP callback landing before the UETR could be matched, followed
// by the same result arriving on the event bus.
func (h *ClearingResultEventHandler) attachIfUnmatched(ctx context.Context, rail data.Rail, ref string, payment *data.Payment) error {
	existing, err := h.models.ClearingCallbacks.GetByRailRef(ctx, h.models.DBConnectionPool, rail, ref)
	if err != nil {
		return fmt.Errorf("loading existing clearing callback %s/%s: %w", rail, ref, err)
	}
	if existing.PaymentID != "" {
		return nil
	}

	if err = h.models.ClearingCallbacks.AttachPayment(ctx, h.models.DBConnectionPool, existing.ID, payment.TenantID, payment.ID); err != nil {
		return fmt.Errorf("attaching payment %s to clearing callback %s: %w", payment.ID, existing.ID, err)
	}
	return nil
}

// clearingResultRef picks the (rail, external_ref) dedupe key. Rails that do
// not assign a tracking reference fall back to the original message id, then
// to the UETR itself.
func clearingResultRef(result schemas.EventClearingResultData) string {
	if result.TrackingRef != "" {
		return result.TrackingRef
	}
	if result.OriginalMsgID != "" {
		return result.OriginalMsgID
	}
	return result.UETR
}
