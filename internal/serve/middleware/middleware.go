package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httperror"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
	"github.com/paymenthub/payment-engine-backend/internal/utils"
	"github.com/paymenthub/payment-engine-backend/pkg/schema"
)

// Intake headers. The gateway terminates authentication and forwards the
// resolved tenant; the engine trusts these headers plus the optional shared
// secret check in APIAuthMiddleware.
const (
	TenantHeaderKey         = "X-Tenant-ID"
	BusinessUnitHeaderKey   = "X-Business-Unit-ID"
	CustomerHeaderKey       = "X-Customer-ID"
	IdempotencyKeyHeaderKey = "X-Idempotency-Key"
	CorrelationIDHeaderKey  = "X-Correlation-ID"
)

// RecoverHandler is a middleware that recovers from panics and logs the error.
func RecoverHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			err, ok := r.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", r)
			}

			// No need to recover when the client has disconnected:
			if errors.Is(err, http.ErrAbortHandler) {
				panic(err)
			}

			ctx := req.Context()
			log.Ctx(ctx).WithError(err).Error(err)
			httperror.InternalError(ctx, "", err, nil).Render(rw)
		}()

		next.ServeHTTP(rw, req)
	})
}

// MetricsRequestHandler is a middleware that monitors http requests, and export the data
// to the metrics server
func MetricsRequestHandler(monitorService monitor.MonitorServiceInterface) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			mw := chimiddleware.NewWrapResponseWriter(rw, req.ProtoMajor)
			then := time.Now()
			next.ServeHTTP(mw, req)

			duration := time.Since(then)

			labels := monitor.HTTPRequestLabels{
				Status: fmt.Sprintf("%d", mw.Status()),
				Route:  utils.GetRoutePattern(req),
				Method: req.Method,
				CommonLabels: monitor.CommonLabels{
					TenantName: tenantctx.MustGetTenantNameFromContext(req.Context()),
				},
			}

			err := monitorService.MonitorHttpRequestDuration(duration, labels)
			if err != nil {
				log.Ctx(req.Context()).Errorf("Error trying to monitor request time: %s", err)
			}
		})
	}
}

func CorsMiddleware(corsAllowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		cors := cors.New(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedHeaders: []string{"*"},
			AllowedMethods: []string{"GET", "PUT", "POST", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		})

		return cors.Handler(next)
	}
}

// LoggingMiddleware is a middleware that logs requests to the logger.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		mw := chimiddleware.NewWrapResponseWriter(rw, req.ProtoMajor)

		reqCtx := req.Context()
		logFields := log.F{
			"method": req.Method,
			"path":   req.URL.String(),
			"req":    chimiddleware.GetReqID(reqCtx),
		}
		logCtx := log.Set(reqCtx, log.Ctx(reqCtx).WithFields(logFields))

		ctxTenant, err := tenantctx.GetTenantFromContext(reqCtx)
		if err != nil {
			// Tenant-unaware endpoints (health, metrics) legitimately hit
			// this path; keep it at debug for auditing.
			log.Ctx(logCtx).Debug("tenant cannot be derived from context")
		}
		if ctxTenant != nil {
			logFields["tenant_name"] = ctxTenant.Name
			logFields["tenant_id"] = ctxTenant.ID
			logCtx = log.Set(reqCtx, log.Ctx(reqCtx).WithFields(logFields))
		}

		req = req.WithContext(logCtx)

		logRequestStart(req)
		started := time.Now()

		next.ServeHTTP(mw, req)
		ended := time.Since(started)
		logRequestEnd(req, mw, ended)
	})
}

func logRequestStart(req *http.Request) {
	l := log.Ctx(req.Context()).WithFields(
		log.F{
			"subsys":    "http",
			"ip":        req.RemoteAddr,
			"host":      req.Host,
			"useragent": req.Header.Get("User-Agent"),
		},
	)

	l.Info("starting request")
}

func logRequestEnd(req *http.Request, mw chimiddleware.WrapResponseWriter, duration time.Duration) {
	l := log.Ctx(req.Context()).WithFields(log.F{
		"subsys":   "http",
		"status":   mw.Status(),
		"bytes":    mw.BytesWritten(),
		"duration": duration,
	})
	if routeContext := chi.RouteContext(req.Context()); routeContext != nil {
		l = l.WithField("route", routeContext.RoutePattern())
	}

	l.Info("finished request")
}

// CorrelationIDMiddleware accepts the caller's correlation ID or mints one,
// stores it in the context and echoes it back on the response so pain.002
// deliveries can be traced to the intake request.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		correlationID := req.Header.Get(CorrelationIDHeaderKey)
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		ctx := tenantctx.SetCorrelationIDInContext(req.Context(), correlationID)
		rw.Header().Set(CorrelationIDHeaderKey, correlationID)
		next.ServeHTTP(rw, req.WithContext(ctx))
	})
}

// ResolveTenantMiddleware resolves the X-Tenant-ID header (tenant UUID or
// short code) against the tenant store and saves both the tenant and the
// tenant/business-unit/customer triple in the request context. Requests
// without the header pass through; EnsureTenantMiddleware rejects them on
// tenant-scoped routes.
func ResolveTenantMiddleware(tenantManager tenant.ManagerInterface) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			ctx := req.Context()

			tenantArg := strings.TrimSpace(req.Header.Get(TenantHeaderKey))
			if tenantArg == "" {
				next.ServeHTTP(rw, req)
				return
			}

			currentTenant, err := tenantManager.GetTenantByIDOrCode(ctx, tenantArg)
			if err != nil {
				if errors.Is(err, tenant.ErrTenantDoesNotExist) {
					httperror.BadRequest("The tenant specified in the request headers could not be found.", err, nil).Render(rw)
					return
				}
				httperror.InternalError(ctx, "Cannot resolve tenant", err, nil).Render(rw)
				return
			}

			ctx = tenantctx.SetTenantInContext(ctx, currentTenant)
			ctx = tenantctx.SetTenantContext(ctx, schema.TenantContext{
				TenantID:       currentTenant.ID,
				BusinessUnitID: strings.TrimSpace(req.Header.Get(BusinessUnitHeaderKey)),
				CustomerID:     strings.TrimSpace(req.Header.Get(CustomerHeaderKey)),
			})
			next.ServeHTTP(rw, req.WithContext(ctx))
		})
	}
}

// EnsureTenantMiddleware is a middleware that ensures the tenant is in the request context.
func EnsureTenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ctx := req.Context()

		if _, err := tenantctx.GetTenantFromContext(ctx); err != nil {
			httperror.BadRequest("Tenant not found in context", err, nil).Render(rw)
			return
		}

		next.ServeHTTP(rw, req)
	})
}

// APIAuthMiddleware checks for a bearer token on the Authorization header.
// Token validation happens at the API gateway; when apiAuthSecret is set the
// engine additionally requires the gateway's shared secret as the token.
func APIAuthMiddleware(apiAuthSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			authHeader := req.Header.Get("Authorization")
			if authHeader == "" {
				httperror.Unauthorized("", nil, nil).Render(rw)
				return
			}

			authHeaderParts := strings.Split(authHeader, " ")
			if len(authHeaderParts) != 2 || !strings.EqualFold(authHeaderParts[0], "Bearer") {
				httperror.Unauthorized("", nil, nil).Render(rw)
				return
			}

			if apiAuthSecret != "" {
				// Constant time comparison to avoid timing attacks.
				if subtle.ConstantTimeCompare([]byte(authHeaderParts[1]), []byte(apiAuthSecret)) != 1 {
					httperror.Unauthorized("", nil, nil).Render(rw)
					return
				}
			}

			next.ServeHTTP(rw, req)
		})
	}
}

// AdminAuthMiddleware protects the operator surface (dead letters, tenant
// admin) with HTTP basic auth.
func AdminAuthMiddleware(adminAccount, adminAPIKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
			ctx := req.Context()

			if adminAccount == "" || adminAPIKey == "" {
				httperror.InternalError(ctx, "Admin account and API key are not set", nil, nil).Render(rw)
				return
			}

			accountUserName, apiKey, ok := req.BasicAuth()
			if !ok {
				httperror.Unauthorized("", nil, nil).Render(rw)
				return
			}

			// Using constant time comparison to avoid timing attacks
			if accountUserName != adminAccount || subtle.ConstantTimeCompare([]byte(apiKey), []byte(adminAPIKey)) != 1 {
				httperror.Unauthorized("", nil, nil).Render(rw)
				return
			}

			log.Ctx(ctx).Infof("[AdminAuth] - Admin authenticated with account %s", adminAccount)
			next.ServeHTTP(rw, req)
		})
	}
}
