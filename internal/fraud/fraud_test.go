package fraud

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/clearing"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpclient"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

func validScoreRequest() ScoreRequest {
	return ScoreRequest{
		PaymentID:       "payment-123",
		TenantID:        "tenant-123",
		UETR:            "97ed4827d4ab4bbe871e8765a16c21ec",
		PaymentTypeCode: "RTC_CREDIT",
		Amount:          decimal.RequireFromString("150.00"),
		Currency:        "ZAR",
		DebtorAccount:   "ZA0001",
		CreditorAccount: "ZA0002",
		CreditorName:    "Bob Builder",
	}
}

func Test_Client_Score(t *testing.T) {
	ctx := context.Background()

	t.Run("returns an error if the request is invalid", func(t *testing.T) {
		client := NewClient("https://fraud.example.com", "api-key", "acme", nil)

		result, err := client.Score(ctx, ScoreRequest{})
		assert.Nil(t, result)
		assert.ErrorContains(t, err, "validating score request")
	})

	t.Run("decodes the provider verdict", func(t *testing.T) {
		client := NewClient("https://fraud.example.com", "api-key", "acme", nil)
		httpClientMock := httpclient.HttpClientMock{}
		client.httpClient = &httpClientMock

		httpClientMock.
			On("Do", mock.Anything).
			Run(func(args mock.Arguments) {
				req, ok := args.Get(0).(*http.Request)
				require.True(t, ok)
				assert.Equal(t, http.MethodPost, req.Method)
				assert.Equal(t, "https://fraud.example.com/v1/scores", req.URL.String())
				assert.Equal(t, "Bearer api-key", req.Header.Get("Authorization"))
				assert.Equal(t, "tenant-123", req.Header.Get(clearing.TenantIDHeader))
				assert.Equal(t, clearing.FraudServiceType, req.Header.Get(clearing.ServiceTypeHeader))
				assert.Equal(t, "tenant-123-fraud", req.Header.Get(clearing.RouteContextHeader))
				assert.Equal(t, "fraud-system", req.Header.Get(clearing.DownstreamRouteHeader))
				assert.Equal(t, "/fraud/tenant-123", req.Header.Get(clearing.BankRouteHeader))
			}).
			Return(&http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewBufferString(`{"score": 12.5, "decision": "approve"}`)),
			}, nil).
			Once()

		result, err := client.Score(ctx, validScoreRequest())
		require.NoError(t, err)
		assert.Equal(t, DecisionApprove, result.Decision)
		assert.Equal(t, 12.5, result.Score)
		httpClientMock.AssertExpectations(t)
	})

	t.Run("a decline is a successful call", func(t *testing.T) {
		client := NewClient("https://fraud.example.com", "api-key", "acme", nil)
		httpClientMock := httpclient.HttpClientMock{}
		client.httpClient = &httpClientMock

		httpClientMock.
			On("Do", mock.Anything).
			Return(&http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewBufferString(`{"score": 91, "decision": "DECLINE", "reasons": ["velocity"]}`)),
			}, nil).
			Once()

		result, err := client.Score(ctx, validScoreRequest())
		require.NoError(t, err)
		assert.Equal(t, DecisionDecline, result.Decision)
		assert.Equal(t, []string{"velocity"}, result.Reasons)
	})

	t.Run("returns the API error on a business rejection", func(t *testing.T) {
		client := NewClient("https://fraud.example.com", "api-key", "acme", nil)
		httpClientMock := httpclient.HttpClientMock{}
		client.httpClient = &httpClientMock

		httpClientMock.
			On("Do", mock.Anything).
			Return(&http.Response{
				StatusCode: http.StatusUnprocessableEntity,
				Body:       io.NopCloser(bytes.NewBufferString(`{"code": "unsupported_currency", "message": "XOF is not supported"}`)),
			}, nil).
			Once()

		result, err := client.Score(ctx, validScoreRequest())
		assert.Nil(t, result)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "unsupported_currency", apiErr.Code)
		assert.False(t, apiErr.IsRetryable())
	})

	t.Run("5xx responses count as breaker failures and are retryable", func(t *testing.T) {
		client := NewClient("https://fraud.example.com", "api-key", "acme", nil)
		httpClientMock := httpclient.HttpClientMock{}
		client.httpClient = &httpClientMock

		httpClientMock.
			On("Do", mock.Anything).
			Return(&http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(bytes.NewBufferString(`{"code": "internal", "message": "boom"}`)),
			}, nil).
			Once()

		result, err := client.Score(ctx, validScoreRequest())
		assert.Nil(t, result)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.IsRetryable())
	})

	t.Run("rejects an unknown decision", func(t *testing.T) {
		client := NewClient("https://fraud.example.com", "api-key", "acme", nil)
		httpClientMock := httpclient.HttpClientMock{}
		client.httpClient = &httpClientMock

		httpClientMock.
			On("Do", mock.Anything).
			Return(&http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewBufferString(`{"score": 1, "decision": "MAYBE"}`)),
			}, nil).
			Once()

		result, err := client.Score(ctx, validScoreRequest())
		assert.Nil(t, result)
		assert.ErrorContains(t, err, `invalid fraud decision "MAYBE"`)
	})
}

func Test_DryRunClient_Score(t *testing.T) {
	ctx := context.Background()
	client := NewDryRunClient()

	t.Run("approves by default with a stable score", func(t *testing.T) {
		first, err := client.Score(ctx, validScoreRequest())
		require.NoError(t, err)
		assert.Equal(t, DecisionApprove, first.Decision)
		assert.Less(t, first.Score, 50.0)

		second, err := client.Score(ctx, validScoreRequest())
		require.NoError(t, err)
		assert.Equal(t, first.Score, second.Score)
	})

	t.Run("markers force review and decline", func(t *testing.T) {
		scoreReq := validScoreRequest()
		scoreReq.CreditorName = "FRAUD-REVIEW Ltd"
		result, err := client.Score(ctx, scoreReq)
		require.NoError(t, err)
		assert.Equal(t, DecisionReview, result.Decision)

		scoreReq.CreditorName = "FRAUD-DECLINE Ltd"
		result, err = client.Score(ctx, scoreReq)
		require.NoError(t, err)
		assert.Equal(t, DecisionDecline, result.Decision)
	})
}

func Test_Enabled(t *testing.T) {
	payment := &data.Payment{
		PaymentTypeCode: "RTC_CREDIT",
		LocalInstrument: "INST",
		Rail:            data.RTCRail,
	}

	testCases := []struct {
		name        string
		cfg         tenant.FraudConfig
		wantEnabled bool
	}{
		{
			name:        "top-level flag decides with no toggles",
			cfg:         tenant.FraudConfig{Enabled: true},
			wantEnabled: true,
		},
		{
			name: "payment type toggle overrides the flag",
			cfg: tenant.FraudConfig{
				Enabled: true,
				Toggles: []tenant.FraudToggle{{PaymentType: "RTC_CREDIT", Enabled: false}},
			},
			wantEnabled: false,
		},
		{
			name: "most specific toggle wins",
			cfg: tenant.FraudConfig{
				Enabled: false,
				Toggles: []tenant.FraudToggle{
					{PaymentType: "RTC_CREDIT", Enabled: false},
					{PaymentType: "RTC_CREDIT", LocalInstrument: "INST", Enabled: true},
				},
			},
			wantEnabled: true,
		},
		{
			name: "non-matching toggles are ignored",
			cfg: tenant.FraudConfig{
				Enabled: true,
				Toggles: []tenant.FraudToggle{{PaymentType: "EFT_CREDIT", Enabled: false}},
			},
			wantEnabled: true,
		},
		{
			name: "clearing system toggle matches the routed rail",
			cfg: tenant.FraudConfig{
				Enabled: false,
				Toggles: []tenant.FraudToggle{{ClearingSystem: "RTC", Enabled: true}},
			},
			wantEnabled: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantEnabled, Enabled(tc.cfg, payment))
		})
	}
}
