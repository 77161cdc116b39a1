package routing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

func strPtr(s string) *string { return &s }

func resolverInput(tenantID string) Input {
	return Input{
		TenantID:        tenantID,
		PaymentTypeCode: "RTC_CREDIT",
		LocalInstrument: "INST",
		Currency:        "ZAR",
		Amount:          decimal.RequireFromString("500.00"),
	}
}

func Test_Resolver_Resolve(t *testing.T) {
	models := data.SetupModels(t)
	dbConnectionPool := models.DBConnectionPool
	ctx := context.Background()

	tenantID := data.CreateTenantFixture(t, ctx, dbConnectionPool, "bluebank")

	resolver, err := NewResolver(models, nil)
	require.NoError(t, err)

	t.Run("returns an error if the input is invalid", func(t *testing.T) {
		_, resolveErr := resolver.Resolve(ctx, Input{})
		assert.ErrorContains(t, resolveErr, "validating routing input")
	})

	t.Run("returns ErrNoRoute when no adapter backs any candidate", func(t *testing.T) {
		_, resolveErr := resolver.Resolve(ctx, resolverInput(tenantID))
		assert.ErrorIs(t, resolveErr, ErrNoRoute)
	})

	t.Run("heuristic routes immediate ZAR to RTC then PAYSHAP", func(t *testing.T) {
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.RTCRail, "https://clearing.example.com")
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.PayShapRail, "https://clearing.example.com")
		defer data.DeleteAllClearingAdaptersFixtures(t, ctx, dbConnectionPool)

		candidates, resolveErr := resolver.Resolve(ctx, resolverInput(tenantID))
		require.NoError(t, resolveErr)
		require.Len(t, candidates, 2)
		assert.Equal(t, data.RTCRail, candidates[0].Rail)
		assert.Equal(t, SourceHeuristic, candidates[0].Source)
		assert.Equal(t, data.PayShapRail, candidates[1].Rail)
	})

	t.Run("heuristic routes high-value ZAR to SAMOS and non-ZAR to SWIFT", func(t *testing.T) {
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.SAMOSRail, "https://clearing.example.com")
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.SWIFTRail, "https://clearing.example.com")
		defer data.DeleteAllClearingAdaptersFixtures(t, ctx, dbConnectionPool)

		input := resolverInput(tenantID)
		input.Amount = decimal.RequireFromString("2000000.00")
		candidates, resolveErr := resolver.Resolve(ctx, input)
		require.NoError(t, resolveErr)
		require.Len(t, candidates, 1)
		assert.Equal(t, data.SAMOSRail, candidates[0].Rail)

		input = resolverInput(tenantID)
		input.Currency = "USD"
		candidates, resolveErr = resolver.Resolve(ctx, input)
		require.NoError(t, resolveErr)
		require.Len(t, candidates, 1)
		assert.Equal(t, data.SWIFTRail, candidates[0].Rail)
	})

	t.Run("routing rules come before defaults and heuristics", func(t *testing.T) {
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.RTCRail, "https://clearing.example.com")
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.PayShapRail, "https://clearing.example.com")
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.BankservRail, "https://clearing.example.com")
		defer data.DeleteAllClearingAdaptersFixtures(t, ctx, dbConnectionPool)

		rule := data.CreateRoutingRuleFixture(t, ctx, dbConnectionPool, data.RoutingRuleInsert{
			TenantID: &tenantID,
			Currency: strPtr("ZAR"),
			Priority: 1,
			Rail:     data.BankservRail,
		})
		defer data.DeleteAllRoutingRulesFixtures(t, ctx, dbConnectionPool)

		input := resolverInput(tenantID)
		input.Config = tenant.ConfigPayload{
			PaymentTypes: map[string]tenant.PaymentTypeConfig{
				"RTC_CREDIT": {Code: "RTC_CREDIT", Enabled: true, DefaultAdapter: "PAYSHAP"},
			},
		}

		candidates, resolveErr := resolver.Resolve(ctx, input)
		require.NoError(t, resolveErr)
		require.Len(t, candidates, 3)

		assert.Equal(t, data.BankservRail, candidates[0].Rail)
		assert.Equal(t, SourceRoutingRule, candidates[0].Source)
		assert.Equal(t, rule.ID, candidates[0].RuleID)

		assert.Equal(t, data.PayShapRail, candidates[1].Rail)
		assert.Equal(t, SourcePaymentTypeDefault, candidates[1].Source)

		// PAYSHAP was claimed by tier 2, so the heuristic only adds RTC.
		assert.Equal(t, data.RTCRail, candidates[2].Rail)
		assert.Equal(t, SourceHeuristic, candidates[2].Source)
	})

	t.Run("tenant default adapter is the last resort", func(t *testing.T) {
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.BankservRail, "https://clearing.example.com")
		defer data.DeleteAllClearingAdaptersFixtures(t, ctx, dbConnectionPool)

		input := resolverInput(tenantID)
		input.Config = tenant.ConfigPayload{DefaultAdapter: "BANKSERV"}

		candidates, resolveErr := resolver.Resolve(ctx, input)
		require.NoError(t, resolveErr)
		require.Len(t, candidates, 1)
		assert.Equal(t, data.BankservRail, candidates[0].Rail)
		assert.Equal(t, SourceTenantDefault, candidates[0].Source)
	})

	t.Run("degraded adapter rows sort after healthy candidates", func(t *testing.T) {
		rtcAdapter := data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.RTCRail, "https://clearing.example.com")
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.PayShapRail, "https://clearing.example.com")
		defer data.DeleteAllClearingAdaptersFixtures(t, ctx, dbConnectionPool)

		err = models.ClearingAdapters.UpdateStatus(ctx, dbConnectionPool, rtcAdapter.ID, data.DegradedClearingAdapterStatus)
		require.NoError(t, err)

		candidates, resolveErr := resolver.Resolve(ctx, resolverInput(tenantID))
		require.NoError(t, resolveErr)
		require.Len(t, candidates, 2)
		assert.Equal(t, data.PayShapRail, candidates[0].Rail)
		assert.False(t, candidates[0].Degraded)
		assert.Equal(t, data.RTCRail, candidates[1].Rail)
		assert.True(t, candidates[1].Degraded)
		assert.Equal(t, "adapter marked degraded", candidates[1].DegradedReason)
	})

	t.Run("the breaker prober marks candidates degraded", func(t *testing.T) {
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.RTCRail, "https://clearing.example.com")
		data.CreateClearingAdapterFixture(t, ctx, dbConnectionPool, nil, data.PayShapRail, "https://clearing.example.com")
		defer data.DeleteAllClearingAdaptersFixtures(t, ctx, dbConnectionPool)

		proberMock := &MockBreakerProber{}
		proberMock.On("RailDegraded", ctx, tenantID, data.RTCRail).Return(true, "circuit breaker open")
		proberMock.On("RailDegraded", ctx, tenantID, data.PayShapRail).Return(false, "")

		probedResolver, newErr := NewResolver(models, proberMock)
		require.NoError(t, newErr)

		candidates, resolveErr := probedResolver.Resolve(ctx, resolverInput(tenantID))
		require.NoError(t, resolveErr)
		require.Len(t, candidates, 2)
		assert.Equal(t, data.PayShapRail, candidates[0].Rail)
		assert.Equal(t, data.RTCRail, candidates[1].Rail)
		assert.Equal(t, "circuit breaker open", candidates[1].DegradedReason)
		proberMock.AssertExpectations(t)
	})
}
