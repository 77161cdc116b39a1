package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
	"github.com/paymenthub/payment-engine-backend/pkg/schema"
)

func Test_RecoverHandler(t *testing.T) {
	getEntries := log.DefaultLogger.StartTest(log.ErrorLevel)

	r := chi.NewRouter()
	r.Use(RecoverHandler)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error": "An internal error occurred while processing this request."}`, rr.Body.String())

	entries := getEntries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "panic: test panic", entries[0].Message)
}

func Test_RecoverHandler_doesNotRecoverFromErrAbortHandler(t *testing.T) {
	r := chi.NewRouter()
	r.Use(RecoverHandler)
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	})

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		r.ServeHTTP(rr, req)
	})
}

func Test_MetricsRequestHandler(t *testing.T) {
	mMonitorService := monitor.MockMonitorService{}

	mLabels := monitor.HTTPRequestLabels{
		Status: "200",
		Route:  "/mock",
		Method: "GET",
		CommonLabels: monitor.CommonLabels{
			TenantName: tenantctx.NoTenantName,
		},
	}
	mMonitorService.On("MonitorHttpRequestDuration", mock.AnythingOfType("time.Duration"), mLabels).Return(nil).Once()

	r := chi.NewRouter()
	r.Use(MetricsRequestHandler(&mMonitorService))
	r.Get("/mock", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("ok"))
		require.NoError(t, err)
	})

	req, err := http.NewRequest(http.MethodGet, "/mock", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	mMonitorService.AssertExpectations(t)
}

func Test_CorrelationIDMiddleware(t *testing.T) {
	t.Run("mints an ID when the caller does not send one", func(t *testing.T) {
		r := chi.NewRouter()
		r.Use(CorrelationIDMiddleware)
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			correlationID, err := tenantctx.GetCorrelationIDFromContext(req.Context())
			require.NoError(t, err)
			assert.NotEmpty(t, correlationID)
			w.WriteHeader(http.StatusOK)
		})

		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		assert.NotEmpty(t, rr.Header().Get(CorrelationIDHeaderKey))
	})

	t.Run("echoes the caller's ID", func(t *testing.T) {
		r := chi.NewRouter()
		r.Use(CorrelationIDMiddleware)
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		req.Header.Set(CorrelationIDHeaderKey, "corr-123")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		assert.Equal(t, "corr-123", rr.Header().Get(CorrelationIDHeaderKey))
	})
}

func Test_ResolveTenantMiddleware(t *testing.T) {
	validTenant := &schema.Tenant{
		ID:     "95e788b6-c80e-4975-9d12-141001fe6e44",
		Name:   "Blue Bank",
		Code:   "bluebank",
		Status: schema.ActivatedTenantStatus,
	}

	testCases := []struct {
		name               string
		tenantHeaderValue  string
		prepareMocksFn     func(m *tenant.TenantManagerMock)
		expectedStatusCode int
		assertTenantFn     func(t *testing.T, req *http.Request)
	}{
		{
			name:               "passes through when the header is absent",
			tenantHeaderValue:  "",
			expectedStatusCode: http.StatusOK,
			assertTenantFn: func(t *testing.T, req *http.Request) {
				_, err := tenantctx.GetTenantFromContext(req.Context())
				assert.Error(t, err)
			},
		},
		{
			name:              "returns 400 when the tenant does not exist",
			tenantHeaderValue: "ghostbank",
			prepareMocksFn: func(m *tenant.TenantManagerMock) {
				m.On("GetTenantByIDOrCode", mock.Anything, "ghostbank").
					Return(nil, tenant.ErrTenantDoesNotExist).
					Once()
			},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name:              "returns 500 when the tenant store fails",
			tenantHeaderValue: "bluebank",
			prepareMocksFn: func(m *tenant.TenantManagerMock) {
				m.On("GetTenantByIDOrCode", mock.Anything, "bluebank").
					Return(nil, fmt.Errorf("connection refused")).
					Once()
			},
			expectedStatusCode: http.StatusInternalServerError,
		},
		{
			name:              "🎉 resolves the tenant and saves it in the context",
			tenantHeaderValue: "bluebank",
			prepareMocksFn: func(m *tenant.TenantManagerMock) {
				m.On("GetTenantByIDOrCode", mock.Anything, "bluebank").
					Return(validTenant, nil).
					Once()
			},
			expectedStatusCode: http.StatusOK,
			assertTenantFn: func(t *testing.T, req *http.Request) {
				ctxTenant, err := tenantctx.GetTenantFromContext(req.Context())
				require.NoError(t, err)
				assert.Equal(t, validTenant, ctxTenant)

				tc, err := tenantctx.GetTenantContext(req.Context())
				require.NoError(t, err)
				assert.Equal(t, validTenant.ID, tc.TenantID)
				assert.Equal(t, "bu-001", tc.BusinessUnitID)
				assert.Equal(t, "cust-042", tc.CustomerID)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tenantManagerMock := &tenant.TenantManagerMock{}
			if tc.prepareMocksFn != nil {
				tc.prepareMocksFn(tenantManagerMock)
			}

			r := chi.NewRouter()
			r.Use(ResolveTenantMiddleware(tenantManagerMock))
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				if tc.assertTenantFn != nil {
					tc.assertTenantFn(t, req)
				}
				w.WriteHeader(http.StatusOK)
			})

			req, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			if tc.tenantHeaderValue != "" {
				req.Header.Set(TenantHeaderKey, tc.tenantHeaderValue)
				req.Header.Set(BusinessUnitHeaderKey, "bu-001")
				req.Header.Set(CustomerHeaderKey, "cust-042")
			}

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
			tenantManagerMock.AssertExpectations(t)
		})
	}
}

func Test_EnsureTenantMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(EnsureTenantMiddleware)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("returns 400 when there's no tenant in the context", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("🎉 passes through when the tenant is in the context", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		ctx := tenantctx.SetTenantInContext(req.Context(), &schema.Tenant{ID: "tenant-id", Name: "Blue Bank"})
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req.WithContext(ctx))

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func Test_APIAuthMiddleware(t *testing.T) {
	newRouter := func(secret string) *chi.Mux {
		r := chi.NewRouter()
		r.Use(APIAuthMiddleware(secret))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		return r
	}

	testCases := []struct {
		name               string
		secret             string
		authHeader         string
		expectedStatusCode int
	}{
		{
			name:               "returns 401 when the Authorization header is missing",
			authHeader:         "",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "returns 401 when the Authorization header is malformed",
			authHeader:         "InvalidToken",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "returns 401 when the scheme is not Bearer",
			authHeader:         "Basic dXNlcjpwYXNz",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "🎉 accepts any bearer token when no shared secret is configured",
			authHeader:         "Bearer some-gateway-token",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "returns 401 when the shared secret does not match",
			secret:             "expected-secret",
			authHeader:         "Bearer wrong-secret",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "🎉 accepts the configured shared secret",
			secret:             "expected-secret",
			authHeader:         "Bearer expected-secret",
			expectedStatusCode: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}

			rr := httptest.NewRecorder()
			newRouter(tc.secret).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
		})
	}
}

func Test_AdminAuthMiddleware(t *testing.T) {
	newRouter := func(account, apiKey string) *chi.Mux {
		r := chi.NewRouter()
		r.Use(AdminAuthMiddleware(account, apiKey))
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		return r
	}

	t.Run("returns 500 when the admin credentials are not configured", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		rr := httptest.NewRecorder()
		newRouter("", "").ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("returns 401 without basic auth", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		rr := httptest.NewRecorder()
		newRouter("admin", "api-key").ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("returns 401 with the wrong API key", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		req.SetBasicAuth("admin", "wrong-key")
		rr := httptest.NewRecorder()
		newRouter("admin", "api-key").ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("🎉 authenticates with the right credentials", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/", nil)
		require.NoError(t, err)
		req.SetBasicAuth("admin", "api-key")
		rr := httptest.NewRecorder()
		newRouter("admin", "api-key").ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func Test_LoggingMiddleware(t *testing.T) {
	getEntries := log.DefaultLogger.StartTest(log.InfoLevel)

	r := chi.NewRouter()
	r.Use(LoggingMiddleware)
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req, err := http.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, err)
	rr := httptest.NewRecorder()

	start := time.Now()
	r.ServeHTTP(rr, req)
	require.LessOrEqual(t, time.Since(start), time.Second)

	messages := make([]string, 0)
	for _, entry := range getEntries() {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "starting request")
	assert.Contains(t, messages, "finished request")
}
