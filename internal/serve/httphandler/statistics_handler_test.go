package httphandler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/statistics"
	"github.com/paymenthub/payment-engine-backend/internal/testutils"
)

func Test_StatisticsHandler_GetStatistics(t *testing.T) {
	dbConnectionPool := testutils.GetDBConnectionPool(t)

	tenantID := data.CreateTenantFixture(t, context.Background(), dbConnectionPool, "stats-handler-tenant")
	ctx := tenantRequestContext(context.Background(), tenantID, "stats-handler-tenant")

	handler := StatisticsHandler{DBConnectionPool: dbConnectionPool}

	t.Run("returns 500 when no tenant is resolved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/statistics", nil)
		rr := httptest.NewRecorder()
		handler.GetStatistics(rr, req)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("🎉 returns the tenant's aggregates", func(t *testing.T) {
		data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID:        tenantID,
			PaymentTypeCode: "RTP",
			Amount:          decimal.RequireFromString("100.0000"),
			Status:          data.SettledPaymentStatus,
		})
		data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID:        tenantID,
			PaymentTypeCode: "RTP",
			Amount:          decimal.RequireFromString("40.0000"),
			Status:          data.FailedPaymentStatus,
		})

		req := httptest.NewRequest(http.MethodGet, "/statistics", nil).WithContext(ctx)
		rr := httptest.NewRecorder()
		handler.GetStatistics(rr, req)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var respBody statistics.TenantStatistics
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.Equal(t, int64(1), respBody.PaymentCounters.Settled)
		assert.Equal(t, int64(1), respBody.PaymentCounters.Failed)
		assert.Equal(t, int64(2), respBody.PaymentCounters.Total)
		assert.Equal(t, "0.5000000", respBody.SuccessRatio)
		require.Len(t, respBody.PaymentAmountsByType, 1)
		assert.Equal(t, "RTP", respBody.PaymentAmountsByType[0].PaymentTypeCode)
	})
}
