package httphandler

import (
	"net/http"
	"strings"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httperror"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpresponse"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

// DeadLettersHandler is the operator surface for sagas parked permanently
// after exhausting retries and compensation.
type DeadLettersHandler struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
	TenantManager    tenant.ManagerInterface
}

type DeadLettersResponse struct {
	TenantID string      `json:"tenant_id"`
	Sagas    []data.Saga `json:"sagas"`
}

// GetDeadLetters lists dead-lettered sagas for the tenant named in the
// tenant_id query parameter (UUID or code).
func (h DeadLettersHandler) GetDeadLetters(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	tenantArg := strings.TrimSpace(req.URL.Query().Get("tenant_id"))
	if tenantArg == "" {
		httperror.BadRequest("The tenant_id query parameter is required", nil, nil).Render(rw)
		return
	}

	currentTenant, err := h.TenantManager.GetTenantByIDOrCode(ctx, tenantArg)
	if err != nil {
		httperror.NotFound("The tenant could not be found", err, nil).Render(rw)
		return
	}

	sagas, err := h.Models.Sagas.GetDeadLettered(ctx, h.DBConnectionPool, currentTenant.ID)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve dead-lettered sagas", err, nil).Render(rw)
		return
	}

	httpresponse.RenderStatus(rw, http.StatusOK, DeadLettersResponse{
		TenantID: currentTenant.ID,
		Sagas:    sagas,
	})
}
