package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ResponseDeliveryModel(t *testing.T) {
	models := SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")
	payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})

	t.Run("🎉 inserts a pending delivery", func(t *testing.T) {
		delivery := CreateResponseDeliveryFixture(t, ctx, dbConnectionPool, tenantID, payment.ID, AsynchronousResponseMode)

		assert.Equal(t, PendingResponseDeliveryStatus, delivery.Status)
		assert.Equal(t, AsynchronousResponseMode, delivery.Mode)
		assert.Equal(t, "https://originator.example.com/pain002", delivery.Target)
		assert.Equal(t, 0, delivery.Attempts)
		assert.Nil(t, delivery.DeliveredAt)
	})

	t.Run("rejects an unknown mode", func(t *testing.T) {
		_, err := models.ResponseDeliveries.Insert(ctx, dbConnectionPool, ResponseDeliveryInsert{
			TenantID:  tenantID,
			PaymentID: payment.ID,
			Mode:      "SEMAPHORE",
			Payload:   []byte(`{}`),
		})
		require.Error(t, err)
		assert.ErrorContains(t, err, "invalid response mode")
	})

	t.Run("lists deliveries per payment", func(t *testing.T) {
		deliveries, err := models.ResponseDeliveries.GetByPaymentID(ctx, dbConnectionPool, tenantID, payment.ID)
		require.NoError(t, err)
		assert.Len(t, deliveries, 1)
	})
}

func Test_ResponseDeliveryModelRetryFlow(t *testing.T) {
	models := SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")
	payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})

	delivery := CreateResponseDeliveryFixture(t, ctx, dbConnectionPool, tenantID, payment.ID, AsynchronousResponseMode)

	t.Run("🎉 fresh deliveries are claimable immediately", func(t *testing.T) {
		claimed, err := models.ResponseDeliveries.ClaimRetryBatch(ctx, dbConnectionPool, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, delivery.ID, claimed[0].ID)
	})

	t.Run("a failed delivery waits out its retry timer", func(t *testing.T) {
		err := models.ResponseDeliveries.MarkFailed(ctx, dbConnectionPool, delivery.ID, "webhook returned 503", time.Now().Add(time.Hour))
		require.NoError(t, err)

		claimed, err := models.ResponseDeliveries.ClaimRetryBatch(ctx, dbConnectionPool, 10)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})

	t.Run("🎉 a due retry is claimed with its error context", func(t *testing.T) {
		err := models.ResponseDeliveries.MarkFailed(ctx, dbConnectionPool, delivery.ID, "webhook returned 503", time.Now().Add(-time.Second))
		require.NoError(t, err)

		claimed, err := models.ResponseDeliveries.ClaimRetryBatch(ctx, dbConnectionPool, 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, FailedResponseDeliveryStatus, claimed[0].Status)
		assert.Equal(t, 2, claimed[0].Attempts)
		assert.Equal(t, "webhook returned 503", claimed[0].LastError)
	})

	t.Run("🎉 delivered rows leave the retry queue", func(t *testing.T) {
		err := models.ResponseDeliveries.MarkDelivered(ctx, dbConnectionPool, delivery.ID)
		require.NoError(t, err)

		refreshed, err := models.ResponseDeliveries.Get(ctx, dbConnectionPool, delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, DeliveredResponseDeliveryStatus, refreshed.Status)
		assert.NotNil(t, refreshed.DeliveredAt)
		assert.Empty(t, refreshed.LastError)

		claimed, err := models.ResponseDeliveries.ClaimRetryBatch(ctx, dbConnectionPool, 10)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})

	t.Run("dead rows stay dead", func(t *testing.T) {
		exhausted := CreateResponseDeliveryFixture(t, ctx, dbConnectionPool, tenantID, payment.ID, KafkaTopicResponseMode)

		err := models.ResponseDeliveries.MarkDead(ctx, dbConnectionPool, exhausted.ID, "4 attempts exhausted")
		require.NoError(t, err)

		claimed, err := models.ResponseDeliveries.ClaimRetryBatch(ctx, dbConnectionPool, 10)
		require.NoError(t, err)
		assert.Empty(t, claimed)

		refreshed, err := models.ResponseDeliveries.Get(ctx, dbConnectionPool, exhausted.ID)
		require.NoError(t, err)
		assert.Equal(t, DeadResponseDeliveryStatus, refreshed.Status)
		assert.Equal(t, "4 attempts exhausted", refreshed.LastError)
	})
}
