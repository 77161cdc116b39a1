package httphandler

import (
	"net/http"

	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httperror"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpresponse"
	"github.com/paymenthub/payment-engine-backend/internal/statistics"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
)

type StatisticsHandler struct {
	DBConnectionPool db.DBConnectionPool
}

// GetStatistics returns the requesting tenant's payment aggregates. There is
// no cross-tenant variant.
func (h StatisticsHandler) GetStatistics(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	currentTenant, err := tenantctx.GetTenantFromContext(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve the tenant from the context", err, nil).WithErrorCode(httperror.Code500_1).Render(rw)
		return
	}

	stats, err := statistics.CalculateStatistics(ctx, h.DBConnectionPool, currentTenant.ID)
	if err != nil {
		httperror.InternalError(ctx, "Cannot calculate statistics", err, nil).Render(rw)
		return
	}

	httpresponse.RenderStatus(rw, http.StatusOK, stats)
}
