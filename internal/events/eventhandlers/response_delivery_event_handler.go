package eventhandlers

import (
	"context"
	"fmt"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/dispatch"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/events/schemas"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
	"github.com/paymenthub/payment-engine-backend/internal/utils"
)

type ResponseDeliveryEventHandlerOptions struct {
	DBConnectionPool db.DBConnectionPool
	Dispatcher       dispatch.DispatcherInterface
}

// ResponseDeliveryEventHandler turns terminal payment events into pain.002
// deliveries. The dispatcher skips payments that already have a delivery row,
// so redeliveries of the same event are harmless.
type ResponseDeliveryEventHandler struct {
	tenantManager tenant.ManagerInterface
	models        *data.Models
	dispatcher    dispatch.DispatcherInterface
}

var _ events.EventHandler = new(ResponseDeliveryEventHandler)

func NewResponseDeliveryEventHandler(options ResponseDeliveryEventHandlerOptions) *ResponseDeliveryEventHandler {
	models, err := data.NewModels(options.DBConnectionPool)
	if err != nil {
		log.Fatalf("error getting models: %s", err.Error())
	}

	return &ResponseDeliveryEventHandler{
		tenantManager: tenant.NewManager(tenant.WithDatabase(options.DBConnectionPool)),
		models:        models,
		dispatcher:    options.Dispatcher,
	}
}

func (h *ResponseDeliveryEventHandler) Name() string {
	return "ResponseDeliveryEventHandler"
}

func (h *ResponseDeliveryEventHandler) CanHandleMessage(ctx context.Context, message *events.Message) bool {
	return message.Topic == events.PaymentCompletedTopic || message.Topic == events.PaymentFailedTopic
}

func (h *ResponseDeliveryEventHandler) Handle(ctx context.Context, message *events.Message) error {
	statusChange, err := utils.ConvertType[any, schemas.EventPaymentStatusChangedData](message.Data)
	if err != nil {
		return fmt.Errorf("converting message data to %T: %w", schemas.EventPaymentStatusChangedData{}, err)
	}

	t, err := h.tenantManager.GetTenantByID(ctx, message.TenantID)
	if err != nil {
		return fmt.Errorf("getting tenant %s: %w", message.TenantID, err)
	}
	ctx = tenantctx.SetTenantInContext(ctx, t)

	payment, err := h.models.Payment.Get(ctx, h.models.DBConnectionPool, message.TenantID, statusChange.PaymentID)
	if err != nil {
		return fmt.Errorf("loading payment %s: %w", statusChange.PaymentID, err)
	}

	// The event and the status update commit together through the outbox, but
	// an operator-driven replay can race a later transition. Only terminal
	// statuses get a pain.002.
	if !payment.Status.IsTerminal() {
		log.Ctx(ctx).Warnf("Payment %s is %s, not terminal; skipping response delivery", payment.ID, payment.Status)
		return nil
	}

	if err = h.dispatcher.DispatchTerminal(ctx, payment); err != nil {
		return fmt.Errorf("dispatching terminal response for payment %s: %w", payment.ID, err)
	}

	return nil
}
