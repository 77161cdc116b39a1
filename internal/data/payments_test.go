package data

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
)

func Test_PaymentModelInsert(t *testing.T) {
	models := SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")

	validInsert := func() PaymentInsert {
		return PaymentInsert{
			TenantID:        tenantID,
			IdempotencyKey:  "idem-key-001",
			UETR:            iso20022.NewUETR().String(),
			EndToEndID:      "E2E-001",
			PaymentTypeCode: "EFT",
			Amount:          decimal.RequireFromString("250.00"),
			Currency:        "ZAR",
			DebtorName:      "Thandi Mokoena",
			DebtorAccount:   "ZA6300123456789",
			CreditorName:    "Acme Supplies Ltd",
			CreditorAccount: "ZA6300987654321",
			ConfigVersion:   1,
			ResponseMode:    SynchronousResponseMode,
		}
	}

	t.Run("🎉 successfully inserts a payment in INITIATED", func(t *testing.T) {
		insert := validInsert()
		payment, err := models.Payment.Insert(ctx, dbConnectionPool, insert)
		require.NoError(t, err)

		assert.NotEmpty(t, payment.ID)
		assert.Equal(t, tenantID, payment.TenantID)
		assert.Equal(t, InitiatedPaymentStatus, payment.Status)
		assert.Equal(t, insert.UETR, payment.UETR)
		assert.True(t, payment.Amount.Equal(insert.Amount))
		assert.Equal(t, SynchronousResponseMode, payment.ResponseMode)

		require.Len(t, payment.StatusHistory, 1)
		assert.Equal(t, InitiatedPaymentStatus, payment.StatusHistory[0].Status)
	})

	t.Run("returns ErrDuplicateIdempotencyKey on idempotency key reuse", func(t *testing.T) {
		insert := validInsert()
		insert.IdempotencyKey = "idem-key-reused"
		_, err := models.Payment.Insert(ctx, dbConnectionPool, insert)
		require.NoError(t, err)

		insert.UETR = iso20022.NewUETR().String()
		_, err = models.Payment.Insert(ctx, dbConnectionPool, insert)
		require.ErrorIs(t, err, ErrDuplicateIdempotencyKey)
	})

	t.Run("same idempotency key under another tenant is accepted", func(t *testing.T) {
		otherTenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "greenbank")

		insert := validInsert()
		insert.IdempotencyKey = "idem-key-shared"
		_, err := models.Payment.Insert(ctx, dbConnectionPool, insert)
		require.NoError(t, err)

		insert.TenantID = otherTenantID
		insert.UETR = iso20022.NewUETR().String()
		payment, err := models.Payment.Insert(ctx, dbConnectionPool, insert)
		require.NoError(t, err)
		assert.Equal(t, otherTenantID, payment.TenantID)
	})

	t.Run("rejects invalid inserts", func(t *testing.T) {
		testCases := []struct {
			name            string
			mutate          func(*PaymentInsert)
			wantErrContains string
		}{
			{
				name:            "missing tenant",
				mutate:          func(i *PaymentInsert) { i.TenantID = "" },
				wantErrContains: "tenant_id is required",
			},
			{
				name:            "malformed UETR",
				mutate:          func(i *PaymentInsert) { i.UETR = "not-a-uetr" },
				wantErrContains: "uetr is invalid",
			},
			{
				name:            "zero amount",
				mutate:          func(i *PaymentInsert) { i.Amount = decimal.Zero },
				wantErrContains: "amount",
			},
			{
				name:            "unknown response mode",
				mutate:          func(i *PaymentInsert) { i.ResponseMode = "CARRIER_PIGEON" },
				wantErrContains: "response_mode is invalid",
			},
			{
				name:            "missing config version",
				mutate:          func(i *PaymentInsert) { i.ConfigVersion = 0 },
				wantErrContains: "config_version is required",
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				insert := validInsert()
				tc.mutate(&insert)
				_, err := models.Payment.Insert(ctx, dbConnectionPool, insert)
				require.Error(t, err)
				assert.ErrorContains(t, err, tc.wantErrContains)
			})
		}
	})
}

func Test_PaymentModelGet(t *testing.T) {
	models := SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")
	otherTenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "greenbank")

	expected := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})

	t.Run("returns ErrRecordNotFound when payment does not exist", func(t *testing.T) {
		_, err := models.Payment.Get(ctx, dbConnectionPool, tenantID, "ffffffff-0000-0000-0000-000000000000")
		require.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("cross-tenant access looks like a missing record", func(t *testing.T) {
		_, err := models.Payment.Get(ctx, dbConnectionPool, otherTenantID, expected.ID)
		require.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("🎉 returns payment successfully", func(t *testing.T) {
		actual, err := models.Payment.Get(ctx, dbConnectionPool, tenantID, expected.ID)
		require.NoError(t, err)
		assert.Equal(t, *expected, *actual)
	})

	t.Run("🎉 returns payment by UETR", func(t *testing.T) {
		actual, err := models.Payment.GetByUETR(ctx, dbConnectionPool, tenantID, expected.UETR)
		require.NoError(t, err)
		assert.Equal(t, expected.ID, actual.ID)

		_, err = models.Payment.GetByUETR(ctx, dbConnectionPool, otherTenantID, expected.UETR)
		require.ErrorIs(t, err, ErrRecordNotFound)
	})
}

func Test_PaymentModelGetByIdempotencyKey(t *testing.T) {
	models := SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")
	payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})

	t.Run("returns ErrRecordNotFound for unknown key", func(t *testing.T) {
		_, err := models.Payment.GetByIdempotencyKey(ctx, dbConnectionPool, tenantID, "nope")
		require.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("🎉 replays the stored response snapshot", func(t *testing.T) {
		snapshot := []byte(`{"transaction_status":"ACSC"}`)
		err := models.Payment.SetResponseSnapshot(ctx, dbConnectionPool, payment.ID, snapshot, 200)
		require.NoError(t, err)

		replay, err := models.Payment.GetByIdempotencyKey(ctx, dbConnectionPool, tenantID, payment.IdempotencyKey)
		require.NoError(t, err)
		assert.Equal(t, payment.ID, replay.ID)
		assert.JSONEq(t, string(snapshot), string(replay.ResponseSnapshot))
		assert.Equal(t, 200, replay.ResponseHTTPStatus)
	})
}

func Test_PaymentModelUpdateStatus(t *testing.T) {
	models := SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")

	t.Run("rejects transitions the state machine forbids", func(t *testing.T) {
		payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})

		err := models.Payment.UpdateStatus(ctx, dbConnectionPool, payment, SettledPaymentStatus, "")
		require.Error(t, err)
		assert.ErrorContains(t, err, "cannot transition from INITIATED to SETTLED")
	})

	t.Run("🎉 appends status history on transition", func(t *testing.T) {
		payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})

		err := models.Payment.UpdateStatus(ctx, dbConnectionPool, payment, ValidatedPaymentStatus, "all checks passed")
		require.NoError(t, err)
		assert.Equal(t, ValidatedPaymentStatus, payment.Status)

		refreshed, err := models.Payment.Get(ctx, dbConnectionPool, tenantID, payment.ID)
		require.NoError(t, err)
		require.Len(t, refreshed.StatusHistory, 2)
		assert.Equal(t, ValidatedPaymentStatus, refreshed.StatusHistory[1].Status)
		assert.Equal(t, "all checks passed", refreshed.StatusHistory[1].StatusReason)
		assert.Nil(t, refreshed.CompletedAt)
	})

	t.Run("🎉 terminal status stamps completed_at", func(t *testing.T) {
		payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{
			TenantID: tenantID,
			Status:   ClearingAcceptedPaymentStatus,
		})

		err := models.Payment.UpdateStatus(ctx, dbConnectionPool, payment, SettledPaymentStatus, "")
		require.NoError(t, err)

		refreshed, err := models.Payment.Get(ctx, dbConnectionPool, tenantID, payment.ID)
		require.NoError(t, err)
		require.NotNil(t, refreshed.CompletedAt)
		assert.WithinDuration(t, time.Now(), *refreshed.CompletedAt, 10*time.Second)
	})
}

func Test_PaymentModelClearingReference(t *testing.T) {
	models := SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")
	payment := CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID})

	err := models.Payment.SetRouting(ctx, dbConnectionPool, payment.ID, RTCRail)
	require.NoError(t, err)

	err = models.Payment.SetClearingReference(ctx, dbConnectionPool, payment.ID, "RTC-REF-42")
	require.NoError(t, err)

	t.Run("🎉 resolves payments by rail reference across tenants", func(t *testing.T) {
		found, err := models.Payment.GetByClearingReference(ctx, dbConnectionPool, RTCRail, "RTC-REF-42")
		require.NoError(t, err)
		assert.Equal(t, payment.ID, found.ID)
		assert.Equal(t, RTCRail, found.Rail)
	})

	t.Run("wrong rail does not resolve", func(t *testing.T) {
		_, err := models.Payment.GetByClearingReference(ctx, dbConnectionPool, SWIFTRail, "RTC-REF-42")
		require.ErrorIs(t, err, ErrRecordNotFound)
	})
}

func Test_PaymentModelGetAll(t *testing.T) {
	models := SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")
	otherTenantID := CreateTenantFixture(t, ctx, dbConnectionPool, "greenbank")

	CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID, Status: InitiatedPaymentStatus})
	CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID, Status: SettledPaymentStatus})
	CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: tenantID, Status: SettledPaymentStatus, PaymentTypeCode: "RTGS"})
	CreatePaymentFixture(t, ctx, dbConnectionPool, &Payment{TenantID: otherTenantID, Status: SettledPaymentStatus})

	t.Run("🎉 returns only the tenant's payments", func(t *testing.T) {
		payments, err := models.Payment.GetAll(ctx, dbConnectionPool, tenantID, &QueryParams{
			SortBy:    DefaultPaymentSortField,
			SortOrder: DefaultPaymentSortOrder,
			Page:      1,
			PageLimit: 20,
		})
		require.NoError(t, err)
		assert.Len(t, payments, 3)
		for _, p := range payments {
			assert.Equal(t, tenantID, p.TenantID)
		}
	})

	t.Run("filters by status", func(t *testing.T) {
		payments, err := models.Payment.GetAll(ctx, dbConnectionPool, tenantID, &QueryParams{
			Filters: map[FilterKey]interface{}{
				FilterKeyStatus: SettledPaymentStatus,
			},
			SortBy:    DefaultPaymentSortField,
			SortOrder: DefaultPaymentSortOrder,
			Page:      1,
			PageLimit: 20,
		})
		require.NoError(t, err)
		assert.Len(t, payments, 2)
	})

	t.Run("filters by payment type", func(t *testing.T) {
		payments, err := models.Payment.GetAll(ctx, dbConnectionPool, tenantID, &QueryParams{
			Filters: map[FilterKey]interface{}{
				FilterKeyPaymentType: "RTGS",
			},
			SortBy:    DefaultPaymentSortField,
			SortOrder: DefaultPaymentSortOrder,
			Page:      1,
			PageLimit: 20,
		})
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})

	t.Run("count matches filters", func(t *testing.T) {
		count, err := models.Payment.Count(ctx, dbConnectionPool, tenantID, &QueryParams{
			Filters: map[FilterKey]interface{}{
				FilterKeyStatus: SettledPaymentStatus,
			},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("pagination caps the page size", func(t *testing.T) {
		payments, err := models.Payment.GetAll(ctx, dbConnectionPool, tenantID, &QueryParams{
			SortBy:    DefaultPaymentSortField,
			SortOrder: DefaultPaymentSortOrder,
			Page:      1,
			PageLimit: 2,
		})
		require.NoError(t, err)
		assert.Len(t, payments, 2)
	})
}
