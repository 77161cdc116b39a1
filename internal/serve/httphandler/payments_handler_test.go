package httphandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/clearing"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/dispatch"
	"github.com/paymenthub/payment-engine-backend/internal/events/schemas"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/serve/middleware"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
	"github.com/paymenthub/payment-engine-backend/internal/testutils"
	"github.com/paymenthub/payment-engine-backend/pkg/schema"
)

func paymentsRouter(handler PaymentsHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/payments", handler.PostPayment)
	r.Get("/payments", handler.GetPayments)
	r.Get("/payments/{id}", handler.GetPayment)
	r.Post("/payments/{id}/cancel", handler.CancelPayment)
	return r
}

func paymentRequestBody(paymentTypeCode string) string {
	return fmt.Sprintf(`{
		"payment_type_code": %q,
		"amount": "100.00",
		"currency": "ZAR",
		"debtor": {"name": "Thandi Mokoena", "account": "ZA6300123456789"},
		"creditor": {"name": "Acme Supplies Ltd", "account": "ZA6300987654321"},
		"remittance_info": "Invoice 42"
	}`, paymentTypeCode)
}

func Test_PaymentsHandler_PostPayment(t *testing.T) {
	dbConnectionPool := testutils.GetDBConnectionPool(t)
	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)

	tenantID := data.CreateTenantFixture(t, context.Background(), dbConnectionPool, "post-payment-tenant")
	ctx := tenantRequestContext(context.Background(), tenantID, "post-payment-tenant")

	configStoreMock := &tenant.ConfigStoreMock{}
	configStoreMock.On("GetLatestConfig", mock.Anything, tenantID).Return(acceptanceTenantConfig(1), nil)

	monitorServiceMock := &monitor.MockMonitorService{}
	monitorServiceMock.On("MonitorCounters", monitor.PaymentsCounterTag, mock.Anything).Return(nil).Maybe()

	runner := &mockSagaRunner{}
	dispatcherMock := &dispatch.MockDispatcher{}

	handler := PaymentsHandler{
		Models:           models,
		DBConnectionPool: dbConnectionPool,
		PaymentAccepter: PaymentAccepter{
			Models:           models,
			DBConnectionPool: dbConnectionPool,
			ConfigStore:      configStoreMock,
			SagaRunner:       runner,
			Dispatcher:       dispatcherMock,
			MonitorService:   monitorServiceMock,
		},
	}
	router := paymentsRouter(handler)

	post := func(t *testing.T, requestCtx context.Context, idempotencyKey, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body)).WithContext(requestCtx)
		req.Header.Set("Content-Type", "application/json")
		if idempotencyKey != "" {
			req.Header.Set(middleware.IdempotencyKeyHeaderKey, idempotencyKey)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("returns 400 when the idempotency key header is missing", func(t *testing.T) {
		rr := post(t, ctx, "", paymentRequestBody("ACH_CREDIT"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "X-Idempotency-Key")
	})

	t.Run("returns 422 when the tenant is suspended", func(t *testing.T) {
		suspendedCtx := tenantctx.SetTenantInContext(context.Background(), &schema.Tenant{
			ID:     tenantID,
			Name:   "post-payment-tenant",
			Code:   "post-payment-tenant",
			Status: schema.SuspendedTenantStatus,
		})
		rr := post(t, suspendedCtx, uuid.NewString(), paymentRequestBody("ACH_CREDIT"))
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("returns 400 when the body is not JSON", func(t *testing.T) {
		rr := post(t, ctx, uuid.NewString(), "{not-json")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("returns 400 when required fields are missing", func(t *testing.T) {
		rr := post(t, ctx, uuid.NewString(), `{"payment_type_code": "ACH_CREDIT", "amount": "-5", "currency": "ZAR"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var respBody map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.NotEmpty(t, respBody["extras"])
	})

	t.Run("🎉 asynchronous payment is accepted with 202", func(t *testing.T) {
		idempotencyKey := uuid.NewString()
		rr := post(t, ctx, idempotencyKey, paymentRequestBody("ACH_CREDIT"))
		require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

		var respBody PaymentAcceptanceResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.NotEmpty(t, respBody.PaymentID)
		assert.NotEmpty(t, respBody.UETR)
		assert.Equal(t, "ACCEPTED_FOR_PROCESSING", respBody.Status)

		payment, getErr := models.Payment.Get(ctx, dbConnectionPool, tenantID, respBody.PaymentID)
		require.NoError(t, getErr)
		assert.Equal(t, idempotencyKey, payment.IdempotencyKey)
		assert.Equal(t, "bu-treasury", payment.BusinessUnitID)
		assert.Equal(t, "cust-001", payment.CustomerID)
	})

	t.Run("🎉 repeating the request replays with 200", func(t *testing.T) {
		idempotencyKey := uuid.NewString()
		first := post(t, ctx, idempotencyKey, paymentRequestBody("ACH_CREDIT"))
		require.Equal(t, http.StatusAccepted, first.Code)

		second := post(t, ctx, idempotencyKey, paymentRequestBody("ACH_CREDIT"))
		require.Equal(t, http.StatusOK, second.Code)

		var firstBody, secondBody PaymentAcceptanceResponse
		require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstBody))
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondBody))
		assert.Equal(t, firstBody.PaymentID, secondBody.PaymentID)
		assert.Equal(t, firstBody.UETR, secondBody.UETR)
	})

	t.Run("🎉 synchronous payment returns 201 with the pain.002", func(t *testing.T) {
		idempotencyKey := uuid.NewString()
		runner.On("RunInline", mock.Anything, mock.AnythingOfType("string")).
			Run(func(args mock.Arguments) {
				_, execErr := dbConnectionPool.ExecContext(ctx,
					"UPDATE payments SET status = 'SETTLED' WHERE tenant_id = $1 AND idempotency_key = $2",
					tenantID, idempotencyKey)
				require.NoError(t, execErr)
			}).
			Return(nil).
			Once()
		dispatcherMock.On("BuildEnvelope", mock.Anything, mock.AnythingOfType("*data.Payment")).
			Return(&schemas.EventPain002ReadyData{ResponseMessageID: "RSP-1001", Pain002XML: "<Document/>"}, nil).
			Once()

		rr := post(t, ctx, idempotencyKey, paymentRequestBody("RTP"))
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var respBody PaymentAcceptanceResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.Equal(t, string(data.SettledPaymentStatus), respBody.Status)
		require.NotNil(t, respBody.Pain002)
		assert.Equal(t, "RSP-1001", respBody.Pain002.ResponseMessageID)
		runner.AssertExpectations(t)
		dispatcherMock.AssertExpectations(t)
	})
}

func Test_PaymentsHandler_GetPayment(t *testing.T) {
	dbConnectionPool := testutils.GetDBConnectionPool(t)
	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)

	tenantID := data.CreateTenantFixture(t, context.Background(), dbConnectionPool, "get-payment-tenant")
	otherTenantID := data.CreateTenantFixture(t, context.Background(), dbConnectionPool, "get-payment-other")
	ctx := tenantRequestContext(context.Background(), tenantID, "get-payment-tenant")

	handler := PaymentsHandler{Models: models, DBConnectionPool: dbConnectionPool}
	router := paymentsRouter(handler)

	payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{TenantID: tenantID})
	foreignPayment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{TenantID: otherTenantID})

	get := func(t *testing.T, paymentID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/payments/"+paymentID, nil).WithContext(ctx)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("🎉 returns the tenant's payment", func(t *testing.T) {
		rr := get(t, payment.ID)
		require.Equal(t, http.StatusOK, rr.Code)

		var respBody data.Payment
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.Equal(t, payment.ID, respBody.ID)
		assert.Equal(t, payment.UETR, respBody.UETR)
	})

	t.Run("returns 404 for an unknown payment", func(t *testing.T) {
		rr := get(t, uuid.NewString())
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("returns 404 for another tenant's payment", func(t *testing.T) {
		rr := get(t, foreignPayment.ID)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func Test_PaymentsHandler_GetPayments(t *testing.T) {
	dbConnectionPool := testutils.GetDBConnectionPool(t)
	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)

	tenantID := data.CreateTenantFixture(t, context.Background(), dbConnectionPool, "list-payments-tenant")
	ctx := tenantRequestContext(context.Background(), tenantID, "list-payments-tenant")

	handler := PaymentsHandler{Models: models, DBConnectionPool: dbConnectionPool}
	router := paymentsRouter(handler)

	list := func(t *testing.T, query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/payments"+query, nil).WithContext(ctx)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("returns an empty page when the tenant has no payments", func(t *testing.T) {
		rr := list(t, "")
		require.Equal(t, http.StatusOK, rr.Code)

		var respBody map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.Empty(t, respBody["data"])
	})

	t.Run("returns 400 for an invalid status filter", func(t *testing.T) {
		rr := list(t, "?status=NOT_A_STATUS")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("🎉 filters by status and paginates", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
				TenantID: tenantID,
				Status:   data.SettledPaymentStatus,
			})
		}
		data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			Status:   data.InitiatedPaymentStatus,
		})

		rr := list(t, "?status=settled&page=1&page_limit=2")
		require.Equal(t, http.StatusOK, rr.Code)

		var respBody struct {
			Pagination struct {
				Pages int `json:"pages"`
				Total int `json:"total"`
			} `json:"pagination"`
			Data []data.Payment `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.Equal(t, 3, respBody.Pagination.Total)
		assert.Equal(t, 2, respBody.Pagination.Pages)
		assert.Len(t, respBody.Data, 2)
		for _, p := range respBody.Data {
			assert.Equal(t, data.SettledPaymentStatus, p.Status)
		}
	})
}

func Test_PaymentsHandler_CancelPayment(t *testing.T) {
	dbConnectionPool := testutils.GetDBConnectionPool(t)
	models, err := data.NewModels(dbConnectionPool)
	require.NoError(t, err)

	tenantID := data.CreateTenantFixture(t, context.Background(), dbConnectionPool, "cancel-payment-tenant")
	ctx := tenantRequestContext(context.Background(), tenantID, "cancel-payment-tenant")

	cancel := func(t *testing.T, router *chi.Mux, paymentID, contentType string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/payments/"+paymentID+"/cancel", bytes.NewReader(body)).WithContext(ctx)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("returns 404 for an unknown payment", func(t *testing.T) {
		router := paymentsRouter(PaymentsHandler{Models: models, DBConnectionPool: dbConnectionPool})
		rr := cancel(t, router, uuid.NewString(), "", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("🎉 pre-submission cancellation flags the running saga", func(t *testing.T) {
		router := paymentsRouter(PaymentsHandler{Models: models, DBConnectionPool: dbConnectionPool})

		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{TenantID: tenantID})
		data.CreateSagaFixture(t, ctx, dbConnectionPool, &data.Saga{TenantID: tenantID, PaymentID: payment.ID})

		rr := cancel(t, router, payment.ID, "", nil)
		require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

		var respBody CancellationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.Equal(t, string(iso20022.CancellationPending), respBody.CancellationStatus)
		assert.Equal(t, string(iso20022.ReasonCustomerRequest), respBody.Reason)

		saga, sagaErr := models.Sagas.GetByPaymentID(ctx, dbConnectionPool, payment.ID)
		require.NoError(t, sagaErr)
		assert.True(t, saga.CancelRequested)
	})

	t.Run("returns 409 when no saga is still running", func(t *testing.T) {
		router := paymentsRouter(PaymentsHandler{Models: models, DBConnectionPool: dbConnectionPool})

		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{TenantID: tenantID})
		data.CreateSagaFixture(t, ctx, dbConnectionPool, &data.Saga{
			TenantID:  tenantID,
			PaymentID: payment.ID,
			Status:    data.CompletedSagaStatus,
		})

		rr := cancel(t, router, payment.ID, "", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("returns 409 for a terminal payment", func(t *testing.T) {
		router := paymentsRouter(PaymentsHandler{Models: models, DBConnectionPool: dbConnectionPool})

		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			Status:   data.SettledPaymentStatus,
		})

		rr := cancel(t, router, payment.ID, "", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("🎉 cancelling an already cancelled payment is a no-op 200", func(t *testing.T) {
		router := paymentsRouter(PaymentsHandler{Models: models, DBConnectionPool: dbConnectionPool})

		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			Status:   data.CancelledPaymentStatus,
		})

		rr := cancel(t, router, payment.ID, "", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var respBody CancellationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.Equal(t, string(iso20022.CancellationConfirmed), respBody.CancellationStatus)
	})

	t.Run("🎉 post-submission cancellation recalls at the rail", func(t *testing.T) {
		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			Status:   data.ClearingSubmittedPaymentStatus,
			Rail:     data.RTCRail,
		})

		adapterMock := clearing.NewMockAdapter(t)
		adapterMock.On("Cancel", mock.Anything, mock.MatchedBy(func(cancelReq clearing.CancelRequest) bool {
			return cancelReq.Payment.ID == payment.ID && cancelReq.ReasonCode == "FR01"
		})).Return(&clearing.CancelResult{Status: iso20022.CancellationConfirmed}, nil).Once()

		registryMock := clearing.NewMockRegistry(t)
		registryMock.On("ForRail", mock.Anything, tenantID, data.RTCRail).Return(adapterMock, nil).Once()

		dispatcherMock := dispatch.NewMockDispatcher(t)
		dispatcherMock.On("DispatchTerminal", mock.Anything, mock.AnythingOfType("*data.Payment")).Return(nil).Once()

		router := paymentsRouter(PaymentsHandler{
			Models:           models,
			DBConnectionPool: dbConnectionPool,
			ClearingRegistry: registryMock,
			Dispatcher:       dispatcherMock,
		})

		rr := cancel(t, router, payment.ID, "application/json", []byte(`{"reason_code": "FR01"}`))
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var respBody CancellationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.Equal(t, string(iso20022.CancellationConfirmed), respBody.CancellationStatus)

		refreshed, getErr := models.Payment.Get(ctx, dbConnectionPool, tenantID, payment.ID)
		require.NoError(t, getErr)
		assert.Equal(t, data.CancelledPaymentStatus, refreshed.Status)
	})

	t.Run("returns 422 when the rail does not support cancellation", func(t *testing.T) {
		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			Status:   data.ClearingSubmittedPaymentStatus,
			Rail:     data.BankservRail,
		})

		adapterMock := clearing.NewMockAdapter(t)
		adapterMock.On("Cancel", mock.Anything, mock.Anything).Return(nil, clearing.ErrCancelNotSupported).Once()

		registryMock := clearing.NewMockRegistry(t)
		registryMock.On("ForRail", mock.Anything, tenantID, data.BankservRail).Return(adapterMock, nil).Once()

		router := paymentsRouter(PaymentsHandler{
			Models:           models,
			DBConnectionPool: dbConnectionPool,
			ClearingRegistry: registryMock,
		})

		rr := cancel(t, router, payment.ID, "", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	})

	t.Run("🎉 camt.055 body cancels the payment it references", func(t *testing.T) {
		router := paymentsRouter(PaymentsHandler{Models: models, DBConnectionPool: dbConnectionPool})

		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{
			TenantID: tenantID,
			UETR:     "97ed4827e8a24528b45fd9e8a8a6a4e7",
		})
		data.CreateSagaFixture(t, ctx, dbConnectionPool, &data.Saga{TenantID: tenantID, PaymentID: payment.ID})

		camt055 := `<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.055.001.08">
  <CstmrPmtCxlReq>
    <Assgnmt><Id>CASE-1</Id><CreDtTm>2026-08-26T10:00:00Z</CreDtTm></Assgnmt>
    <Undrlyg>
      <OrgnlPmtInfAndCxl>
        <TxInf>
          <CxlId>CXL-1</CxlId>
          <OrgnlUETR>97ed4827-e8a2-4528-b45f-d9e8a8a6a4e7</OrgnlUETR>
          <CxlRsnInf><Rsn><Cd>FR01</Cd></Rsn></CxlRsnInf>
        </TxInf>
      </OrgnlPmtInfAndCxl>
    </Undrlyg>
  </CstmrPmtCxlReq>
</Document>`

		rr := cancel(t, router, payment.ID, "application/xml", []byte(camt055))
		require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

		var respBody CancellationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &respBody))
		assert.Equal(t, "FR01", respBody.Reason)
	})

	t.Run("returns 400 when the camt.055 references another payment", func(t *testing.T) {
		router := paymentsRouter(PaymentsHandler{Models: models, DBConnectionPool: dbConnectionPool})

		payment := data.CreatePaymentFixture(t, ctx, dbConnectionPool, &data.Payment{TenantID: tenantID})

		camt055 := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.055.001.08">
  <CstmrPmtCxlReq>
    <Assgnmt><Id>CASE-2</Id><CreDtTm>2026-08-26T10:00:00Z</CreDtTm></Assgnmt>
    <Undrlyg>
      <OrgnlPmtInfAndCxl>
        <TxInf>
          <CxlId>CXL-2</CxlId>
          <OrgnlUETR>%s</OrgnlUETR>
        </TxInf>
      </OrgnlPmtInfAndCxl>
    </Undrlyg>
  </CstmrPmtCxlReq>
</Document>`, iso20022.NewUETR().Hyphenated())

		rr := cancel(t, router, payment.ID, "text/xml", []byte(camt055))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
