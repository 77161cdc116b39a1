package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

// PaymentNotifier tells the tenant's configured recipients how a payment
// ended. Email is tried first since it carries the full wording; SMS is the
// fallback. Delivery is best effort, the saga never turns around on a
// notification failure.
type PaymentNotifier struct {
	dispatcher MessageDispatcherInterface
}

func NewPaymentNotifier(dispatcher MessageDispatcherInterface) (*PaymentNotifier, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("message dispatcher cannot be nil")
	}
	return &PaymentNotifier{dispatcher: dispatcher}, nil
}

func (n *PaymentNotifier) NotifyPaymentOutcome(ctx context.Context, payment *data.Payment, notifCfg tenant.NotificationConfig) error {
	if payment == nil {
		return fmt.Errorf("payment cannot be nil")
	}

	msg := Message{
		Title: outcomeTitle(payment),
		Body:  outcomeBody(payment),
	}

	channelPriority := make([]MessageChannel, 0, 2)
	if notifCfg.EmailEnabled && notifCfg.EmailAddress != "" {
		channelPriority = append(channelPriority, MessageChannelEmail)
		msg.ToEmail = notifCfg.EmailAddress
	}
	if notifCfg.SMSEnabled && notifCfg.PhoneNumber != "" {
		channelPriority = append(channelPriority, MessageChannelSMS)
		msg.ToPhoneNumber = notifCfg.PhoneNumber
	}

	if len(channelPriority) == 0 {
		log.Ctx(ctx).Debugf("Tenant has no notification recipients configured; skipping payment %s", payment.ID)
		return nil
	}

	messengerType, err := n.dispatcher.SendMessage(ctx, msg, channelPriority)
	if err != nil {
		return fmt.Errorf("sending payment outcome notification for payment %s: %w", payment.ID, err)
	}

	log.Ctx(ctx).Infof("Payment outcome notification for payment %s sent via %s", payment.ID, messengerType)
	return nil
}

func outcomeTitle(payment *data.Payment) string {
	switch payment.Status {
	case data.SettledPaymentStatus:
		return fmt.Sprintf("Payment %s settled", payment.EndToEndID)
	case data.CancelledPaymentStatus:
		return fmt.Sprintf("Payment %s cancelled", payment.EndToEndID)
	case data.ReversedPaymentStatus:
		return fmt.Sprintf("Payment %s reversed", payment.EndToEndID)
	case data.FailedPaymentStatus, data.ClearingRejectedPaymentStatus:
		return fmt.Sprintf("Payment %s failed", payment.EndToEndID)
	default:
		return fmt.Sprintf("Payment %s update", payment.EndToEndID)
	}
}

func outcomeBody(payment *data.Payment) string {
	amount := iso20022.Money{Amount: payment.Amount, Currency: payment.Currency}.WireAmount()
	summary := fmt.Sprintf("your %s payment of %s %s (reference %s) to %s",
		payment.PaymentTypeCode, payment.Currency, amount, payment.EndToEndID, payment.CreditorName)

	switch payment.Status {
	case data.SettledPaymentStatus:
		return fmt.Sprintf("Good news: %s has settled successfully.", summary)
	case data.CancelledPaymentStatus:
		return fmt.Sprintf("As requested, %s was cancelled before completion.", summary)
	case data.ReversedPaymentStatus:
		return fmt.Sprintf("Unfortunately %s was reversed and the funds returned. Reason: %s.", summary, failureDetail(payment))
	case data.FailedPaymentStatus, data.ClearingRejectedPaymentStatus:
		return fmt.Sprintf("Unfortunately %s could not be completed. Reason: %s.", summary, failureDetail(payment))
	default:
		return fmt.Sprintf("The status of %s is now %s.", summary, payment.Status)
	}
}

// failureDetail extracts the human part of an engine-shaped status reason
// ("CATEGORY (CODE): detail"). Anything else travels whole.
func failureDetail(payment *data.Payment) string {
	reason := strings.TrimSpace(payment.StatusReason)
	if reason == "" {
		return "a technical problem"
	}

	if idx := strings.Index(reason, "): "); idx >= 0 && strings.Contains(reason[:idx], " (") {
		return reason[idx+len("): "):]
	}
	return reason
}
