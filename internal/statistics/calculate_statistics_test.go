package statistics

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/db/dbtest"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
)

func Test_CalculateStatistics(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()

	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()

	tenantID := data.CreateTenantFixture(t, ctx, dbConnectionPool, "statistics-tenant")
	otherTenantID := data.CreateTenantFixture(t, ctx, dbConnectionPool, "other-tenant")

	t.Run("returns zero values when the tenant has no payments", func(t *testing.T) {
		stats, statsErr := CalculateStatistics(ctx, dbConnectionPool, tenantID)
		require.NoError(t, statsErr)

		assert.Equal(t, int64(0), stats.PaymentCounters.Total)
		assert.Empty(t, stats.PaymentAmountsByType)
		assert.Equal(t, "0", stats.SuccessRatio)
	})

	t.Run("🎉 aggregates payments by status and type for one tenant only", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
				TenantID:        tenantID,
				PaymentTypeCode: "RTP",
				Amount:          decimal.RequireFromString("100.0000"),
				Status:          data.SettledPaymentStatus,
			})
		}
		data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID:        tenantID,
			PaymentTypeCode: "RTP",
			Amount:          decimal.RequireFromString("50.0000"),
			Status:          data.FailedPaymentStatus,
		})
		data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID:        tenantID,
			PaymentTypeCode: "ACH_CREDIT",
			Amount:          decimal.RequireFromString("250.0000"),
			Status:          data.InitiatedPaymentStatus,
		})

		// Another tenant's payment must not leak into the aggregates.
		data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: otherTenantID,
			Status:   data.SettledPaymentStatus,
		})

		stats, statsErr := CalculateStatistics(ctx, dbConnectionPool, tenantID)
		require.NoError(t, statsErr)

		assert.Equal(t, int64(3), stats.PaymentCounters.Settled)
		assert.Equal(t, int64(1), stats.PaymentCounters.Failed)
		assert.Equal(t, int64(1), stats.PaymentCounters.Initiated)
		assert.Equal(t, int64(5), stats.PaymentCounters.Total)

		require.Len(t, stats.PaymentAmountsByType, 2)
		assert.Equal(t, "ACH_CREDIT", stats.PaymentAmountsByType[0].PaymentTypeCode)
		assert.Equal(t, "RTP", stats.PaymentAmountsByType[1].PaymentTypeCode)

		// 3 settled out of 4 terminal payments.
		assert.Equal(t, "0.7500000", stats.SuccessRatio)
	})
}
