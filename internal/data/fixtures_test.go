package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/db/dbtest"
)

func Test_CreatePaymentFixture(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()

	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "fnbank")

	// Create a payment with only the tenant filled in
	payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})
	require.Len(t, payment.ID, 36)
	require.Len(t, payment.UETR, 32)
	require.NotEmpty(t, payment.IdempotencyKey)
	require.NotEmpty(t, payment.EndToEndID)
	require.NotEmpty(t, payment.PaymentTypeCode)
	require.True(t, payment.Amount.IsPositive())
	require.Equal(t, "ZAR", payment.Currency)
	require.Equal(t, InitiatedPaymentStatus, payment.Status)
	require.Len(t, payment.StatusHistory, 1)
	require.NotEmpty(t, payment.CreatedAt)
	require.NotEmpty(t, payment.UpdatedAt)
}

func Test_CreateSagaFixture(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()

	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "fnbank")
	payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})

	saga := CreateSagaFixture(t, ctx, dbConnectionPool, &Saga{TenantID: tenantID, PaymentID: payment.ID})
	require.Len(t, saga.ID, 36)
	require.Equal(t, payment.ID, saga.PaymentID)
	require.Equal(t, RunningSagaStatus, saga.Status)
	require.Empty(t, saga.LockToken)
	require.Len(t, saga.StatusHistory, 1)
	require.NotEmpty(t, saga.StatusHistory[0].Timestamp)
	require.Equal(t, RunningSagaStatus, saga.StatusHistory[0].Status)
}

func Test_DeleteAllFixtures(t *testing.T) {
	dbt := dbtest.Open(t)
	defer dbt.Close()

	dbConnectionPool, err := db.OpenDBConnectionPool(dbt.DSN)
	require.NoError(t, err)
	defer dbConnectionPool.Close()

	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "fnbank")
	payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})
	CreateSagaFixture(t, ctx, dbConnectionPool, &Saga{TenantID: tenantID, PaymentID: payment.ID})
	CreateRoutingRuleFixture(t, ctx, dbConnectionPool, RoutingRuleInsert{TenantID: &tenantID, Rail: RTCRail, Priority: 10})

	DeleteAllFixtures(t, ctx, dbConnectionPool)

	var count int
	for _, table := range []string{"payments", "sagas", "routing_rules", "tenants"} {
		err = dbConnectionPool.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+table)
		require.NoError(t, err)
		require.Zerof(t, count, "table %s should be empty", table)
	}
}
