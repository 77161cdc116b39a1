package eventhandlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/events/schemas"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

func clearingResultMessage(tenantID string, resultData schemas.EventClearingResultData) *events.Message {
	return &events.Message{
		Topic:    events.ClearingResultTopic,
		Key:      resultData.UETR,
		TenantID: tenantID,
		Type:     events.ClearingResultReceivedType,
		Data:     resultData,
	}
}

func Test_ClearingResultEventHandler_CanHandleMessage(t *testing.T) {
	ctx := context.Background()
	handler := &ClearingResultEventHandler{}

	assert.True(t, handler.CanHandleMessage(ctx, &events.Message{Topic: events.ClearingResultTopic}))
	assert.False(t, handler.CanHandleMessage(ctx, &events.Message{Topic: events.PaymentCompletedTopic}))
	assert.False(t, handler.CanHandleMessage(ctx, &events.Message{Topic: events.SagaCompletedTopic}))
}

func Test_ClearingResultEventHandler_Handle(t *testing.T) {
	models := data.SetupModels(t)
	dbConnectionPool := models.DBConnectionPool

	ctx := context.Background()
	tenantID := data.CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")

	handler := &ClearingResultEventHandler{
		tenantManager: tenant.NewManager(tenant.WithDatabase(dbConnectionPool)),
		models:        models,
	}

	parkedSaga := func(t *testing.T, paymentID string) *data.Saga {
		wakeAt := time.Now().Add(30 * time.Second)
		return data.CreateSagaFixture(t, ctx, dbConnectionPool, &data.Saga{
			TenantID:         tenantID,
			PaymentID:        paymentID,
			CurrentStepIndex: 5,
			WakeAt:           &wakeAt,
		})
	}

	t.Run("returns error when message data is not convertible", func(t *testing.T) {
		err := handler.Handle(ctx, &events.Message{Topic: events.ClearingResultTopic, Data: "invalid"})
		assert.ErrorContains(t, err, "converting message data to schemas.EventClearingResultData")
	})

	t.Run("returns error when the tenant does not exist", func(t *testing.T) {
		msg := clearingResultMessage(uuid.NewString(), schemas.EventClearingResultData{
			UETR:    iso20022.NewUETR().String(),
			Rail:    string(data.RTCRail),
			Outcome: "ACSC",
		})

		err := handler.Handle(ctx, msg)
		assert.ErrorIs(t, err, tenant.ErrTenantDoesNotExist)
	})

	t.Run("🎉 successfully records the callback and wakes the parked saga", func(t *testing.T) {
		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			Status:   data.ClearingSubmittedPaymentStatus,
		})
		saga := parkedSaga(t, payment.ID)

		resultData := schemas.EventClearingResultData{
			UETR:        payment.UETR,
			Rail:        string(data.RTCRail),
			Outcome:     "ACSC",
			TrackingRef: "RTC-TRK-1001",
			ReceivedAt:  time.Now(),
		}

		err := handler.Handle(ctx, clearingResultMessage(tenantID, resultData))
		require.NoError(t, err)

		callback, err := models.ClearingCallbacks.GetByRailRef(ctx, dbConnectionPool, data.RTCRail, "RTC-TRK-1001")
		require.NoError(t, err)
		assert.Equal(t, payment.ID, callback.PaymentID)
		assert.Equal(t, tenantID, callback.TenantID)
		assert.Equal(t, "ACSC", callback.StatusCode)
		assert.False(t, callback.Processed)

		var stored schemas.EventClearingResultData
		require.NoError(t, json.Unmarshal(callback.RawPayload, &stored))
		assert.Equal(t, payment.UETR, stored.UETR)

		woken, err := models.Sagas.Get(ctx, dbConnectionPool, saga.ID)
		require.NoError(t, err)
		assert.Nil(t, woken.WakeAt)
	})

	t.Run("🎉 acknowledges a redelivered result without duplicating the callback", func(t *testing.T) {
		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			Status:   data.ClearingSubmittedPaymentStatus,
		})
		parkedSaga(t, payment.ID)

		msg := clearingResultMessage(tenantID, schemas.EventClearingResultData{
			UETR:        payment.UETR,
			Rail:        string(data.RTCRail),
			Outcome:     "RJCT",
			ReasonCode:  "AC01",
			TrackingRef: "RTC-TRK-2002",
			ReceivedAt:  time.Now(),
		})

		require.NoError(t, handler.Handle(ctx, msg))
		require.NoError(t, handler.Handle(ctx, msg))

		callbacks, err := models.ClearingCallbacks.GetUnprocessedForPayment(ctx, dbConnectionPool, payment.ID)
		require.NoError(t, err)
		require.Len(t, callbacks, 1)
		assert.Equal(t, "AC01", callbacks[0].ReasonCode)
	})

	t.Run("records the callback unmatched when no payment has the UETR", func(t *testing.T) {
		resultData := schemas.EventClearingResultData{
			UETR:        iso20022.NewUETR().String(),
			Rail:        string(data.SWIFTRail),
			Outcome:     "ACSC",
			TrackingRef: "SWIFT-TRK-3003",
			ReceivedAt:  time.Now(),
		}

		err := handler.Handle(ctx, clearingResultMessage(tenantID, resultData))
		require.NoError(t, err)

		callback, err := models.ClearingCallbacks.GetByRailRef(ctx, dbConnectionPool, data.SWIFTRail, "SWIFT-TRK-3003")
		require.NoError(t, err)
		assert.Empty(t, callback.PaymentID)
		assert.Equal(t, tenantID, callback.TenantID)
	})

	t.Run("attaches an earlier unmatched callback when the result is redelivered", func(t *testing.T) {
		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			Status:   data.ClearingSubmittedPaymentStatus,
		})
		saga := parkedSaga(t, payment.ID)

		orphan := data.CreateClearingCallbackFixture(t, ctx, dbConnectionPool, data.RTCRail, "RTC-TRK-4004")
		require.Empty(t, orphan.PaymentID)

		msg := clearingResultMessage(tenantID, schemas.EventClearingResultData{
			UETR:        payment.UETR,
			Rail:        string(data.RTCRail),
			Outcome:     "ACSC",
			TrackingRef: "RTC-TRK-4004",
			ReceivedAt:  time.Now(),
		})

		require.NoError(t, handler.Handle(ctx, msg))

		attached, err := models.ClearingCallbacks.Get(ctx, dbConnectionPool, orphan.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.ID, attached.PaymentID)
		assert.Equal(t, tenantID, attached.TenantID)

		woken, err := models.Sagas.Get(ctx, dbConnectionPool, saga.ID)
		require.NoError(t, err)
		assert.Nil(t, woken.WakeAt)
	})

	t.Run("records the callback even when the payment has no saga", func(t *testing.T) {
		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			Status:   data.ClearingSubmittedPaymentStatus,
		})

		resultData := schemas.EventClearingResultData{
			UETR:        payment.UETR,
			Rail:        string(data.BankservRail),
			Outcome:     "ACSC",
			TrackingRef: "BSV-TRK-5005",
			ReceivedAt:  time.Now(),
		}

		err := handler.Handle(ctx, clearingResultMessage(tenantID, resultData))
		require.NoError(t, err)

		callback, err := models.ClearingCallbacks.GetByRailRef(ctx, dbConnectionPool, data.BankservRail, "BSV-TRK-5005")
		require.NoError(t, err)
		assert.Equal(t, payment.ID, callback.PaymentID)
	})
}

func Test_clearingResultRef(t *testing.T) {
	testCases := []struct {
		name       string
		resultData schemas.EventClearingResultData
		wantRef    string
	}{
		{
			name:       "prefers the tracking reference",
			resultData: schemas.EventClearingResultData{UETR: "uetr-1", OriginalMsgID: "msg-1", TrackingRef: "trk-1"},
			wantRef:    "trk-1",
		},
		{
			name:       "falls back to the original message id",
			resultData: schemas.EventClearingResultData{UETR: "uetr-1", OriginalMsgID: "msg-1"},
			wantRef:    "msg-1",
		},
		{
			name:       "falls back to the UETR",
			resultData: schemas.EventClearingResultData{UETR: "uetr-1"},
			wantRef:    "uetr-1",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantRef, clearingResultRef(tc.resultData))
		})
	}
}
