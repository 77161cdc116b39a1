package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paymenthub/payment-engine-backend/internal/clearing"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/dispatch"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httperror"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpresponse"
	"github.com/paymenthub/payment-engine-backend/internal/serve/middleware"
	"github.com/paymenthub/payment-engine-backend/internal/serve/validators"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
	"github.com/paymenthub/payment-engine-backend/internal/utils"
)

type PaymentsHandler struct {
	Models           *data.Models
	DBConnectionPool db.DBConnectionPool
	PaymentAccepter  PaymentAccepter
	ClearingRegistry clearing.RegistryInterface
	Dispatcher       dispatch.DispatcherInterface
}

// PostPayment accepts a canonical JSON payment initiation. The instruction is
// persisted in Initiated together with its saga and outbox row; synchronous
// payment types carry the pain.002 in the response body.
func (h PaymentsHandler) PostPayment(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	currentTenant, err := tenantctx.GetTenantFromContext(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve the tenant from the context", err, nil).WithErrorCode(httperror.Code500_1).Render(rw)
		return
	}
	if !currentTenant.Status.CanAcceptPayments() {
		msg := fmt.Sprintf("Tenant %s cannot accept payments in status %s", currentTenant.Code, currentTenant.Status)
		httperror.UnprocessableEntity(msg, nil, nil).WithErrorCode(httperror.Code422_0).Render(rw)
		return
	}

	idempotencyKey := strings.TrimSpace(req.Header.Get(middleware.IdempotencyKeyHeaderKey))
	if idempotencyKey == "" {
		httperror.BadRequest("The X-Idempotency-Key header is required", nil, nil).Render(rw)
		return
	}

	var reqBody validators.PaymentRequest
	if err = json.NewDecoder(req.Body).Decode(&reqBody); err != nil {
		httperror.BadRequest("The request was invalid in some way.", err, nil).WithErrorCode(httperror.Code400_0).Render(rw)
		return
	}

	validator := validators.NewPaymentRequestValidator()
	amount := validator.ValidateAndGetAmount(&reqBody)
	if validator.HasErrors() {
		httperror.BadRequest("Request invalid", nil, validator.Errors).WithErrorCode(httperror.Code400_1).Render(rw)
		return
	}

	tc, err := tenantctx.GetTenantContext(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve the tenant from the context", err, nil).WithErrorCode(httperror.Code500_1).Render(rw)
		return
	}

	insert := data.PaymentInsert{
		TenantID:         currentTenant.ID,
		BusinessUnitID:   tc.BusinessUnitID,
		CustomerID:       tc.CustomerID,
		IdempotencyKey:   idempotencyKey,
		UETR:             iso20022.NewUETR().String(),
		EndToEndID:       reqBody.EndToEndID,
		InstructionID:    reqBody.InstructionID,
		PaymentTypeCode:  strings.ToUpper(strings.TrimSpace(reqBody.PaymentTypeCode)),
		LocalInstrument:  strings.TrimSpace(reqBody.LocalInstrument),
		Amount:           amount,
		Currency:         strings.ToUpper(strings.TrimSpace(reqBody.Currency)),
		DebtorName:       reqBody.Debtor.Name,
		DebtorAccount:    reqBody.Debtor.Account,
		DebtorAgentBIC:   reqBody.Debtor.AgentBIC,
		CreditorName:     reqBody.Creditor.Name,
		CreditorAccount:  reqBody.Creditor.Account,
		CreditorAgentBIC: reqBody.Creditor.AgentBIC,
		RemittanceInfo:   reqBody.RemittanceInfo,
	}
	if insert.EndToEndID == "" {
		insert.EndToEndID = iso20022.NewMessageID()
	}
	if reqBody.RequestedExecutionDate != "" {
		// Format was validated above.
		execDate, _ := time.Parse("2006-01-02", reqBody.RequestedExecutionDate)
		insert.RequestedExecutionDate = &execDate
	}

	accepted, httpErr := h.PaymentAccepter.Accept(ctx, insert)
	if httpErr != nil {
		httpErr.Render(rw)
		return
	}

	httpresponse.RenderStatus(rw, acceptanceStatusCode(accepted), accepted.Response)
}

// acceptanceStatusCode maps the intake outcome to its HTTP status: replays
// are 200, new synchronous payments 201, everything else 202.
func acceptanceStatusCode(accepted *acceptedPayment) int {
	switch {
	case accepted.Replayed:
		return http.StatusOK
	case accepted.Payment.ResponseMode == data.SynchronousResponseMode:
		return http.StatusCreated
	default:
		return http.StatusAccepted
	}
}

// GetPayment is tenant-scoped: a payment belonging to another tenant renders
// the same 404 as a missing one.
func (h PaymentsHandler) GetPayment(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	paymentID := chi.URLParam(req, "id")

	currentTenant, err := tenantctx.GetTenantFromContext(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve the tenant from the context", err, nil).WithErrorCode(httperror.Code500_1).Render(rw)
		return
	}

	payment, err := h.Models.Payment.Get(ctx, h.DBConnectionPool, currentTenant.ID, paymentID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			errorResponse := fmt.Sprintf("Cannot retrieve payment with ID: %s", paymentID)
			httperror.NotFound(errorResponse, err, nil).WithErrorCode(httperror.Code404_0).Render(rw)
			return
		}
		msg := fmt.Sprintf("Cannot retrieve payment with id %s", paymentID)
		httperror.InternalError(ctx, msg, err, nil).Render(rw)
		return
	}

	httpresponse.RenderStatus(rw, http.StatusOK, payment)
}

func (h PaymentsHandler) GetPayments(rw http.ResponseWriter, req *http.Request) {
	validator := validators.NewPaymentQueryValidator()
	queryParams := validator.ParseParametersFromRequest(req)
	if validator.HasErrors() {
		httperror.BadRequest("Request invalid", nil, validator.Errors).Render(rw)
		return
	}

	queryParams.Filters = validator.ValidateAndGetPaymentFilters(queryParams.Filters)
	if validator.HasErrors() {
		httperror.BadRequest("Request invalid", nil, validator.Errors).Render(rw)
		return
	}

	ctx := req.Context()
	currentTenant, err := tenantctx.GetTenantFromContext(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve the tenant from the context", err, nil).WithErrorCode(httperror.Code500_1).Render(rw)
		return
	}

	response, err := h.getPaymentsWithCount(ctx, currentTenant.ID, queryParams)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve payments", err, nil).Render(rw)
		return
	}
	if response.Total == 0 {
		httpresponse.RenderStatus(rw, http.StatusOK, httpresponse.NewEmptyPaginatedResponse())
		return
	}

	paginatedResponse, err := httpresponse.NewPaginatedResponse(req, response.Result, queryParams.Page, queryParams.PageLimit, response.Total)
	if err != nil {
		httperror.InternalError(ctx, "Cannot create paginated payments response", err, nil).Render(rw)
		return
	}
	httpresponse.RenderStatus(rw, http.StatusOK, paginatedResponse)
}

func (h PaymentsHandler) getPaymentsWithCount(ctx context.Context, tenantID string, queryParams *data.QueryParams) (utils.ResultWithTotal, error) {
	return db.RunInTransactionWithResult(ctx, h.DBConnectionPool, nil, func(dbTx db.DBTransaction) (utils.ResultWithTotal, error) {
		totalPayments, err := h.Models.Payment.Count(ctx, dbTx, tenantID, queryParams)
		if err != nil {
			return utils.ResultWithTotal{}, fmt.Errorf("counting payments: %w", err)
		}

		var payments []data.Payment
		if totalPayments != 0 {
			payments, err = h.Models.Payment.GetAll(ctx, dbTx, tenantID, queryParams)
			if err != nil {
				return utils.ResultWithTotal{}, fmt.Errorf("querying payments: %w", err)
			}
		}

		return *utils.NewResultWithTotal(totalPayments, payments), nil
	})
}

// CancelPaymentRequest is the JSON alternative to a camt.055 body.
type CancelPaymentRequest struct {
	ReasonCode string `json:"reason_code,omitempty"`
}

// CancellationResponse mirrors a camt.029 resolution: CNCL when the payment
// was cancelled, RJCR when the rail or the state machine refused.
type CancellationResponse struct {
	PaymentID          string `json:"paymentId"`
	UETR               string `json:"uetr"`
	CancellationStatus string `json:"cancellationStatus"`
	Reason             string `json:"reason,omitempty"`
	PaymentStatus      string `json:"paymentStatus"`
}

// CancelPayment handles POST /payments/{id}/cancel. Pre-submission the saga
// is flagged and compensates at the next step boundary; after submission the
// rail is asked through a camt.056 recall and its camt.029 outcome is mapped
// back. Repeating the call on an already cancelled payment is a no-op 200.
func (h PaymentsHandler) CancelPayment(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	paymentID := chi.URLParam(req, "id")

	currentTenant, err := tenantctx.GetTenantFromContext(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve the tenant from the context", err, nil).WithErrorCode(httperror.Code500_1).Render(rw)
		return
	}

	payment, err := h.Models.Payment.Get(ctx, h.DBConnectionPool, currentTenant.ID, paymentID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			httperror.NotFound(fmt.Sprintf("Cannot retrieve payment with ID: %s", paymentID), err, nil).WithErrorCode(httperror.Code404_0).Render(rw)
			return
		}
		httperror.InternalError(ctx, "Cannot retrieve the payment", err, nil).Render(rw)
		return
	}

	reasonCode, httpErr := h.parseCancellationReason(req, payment)
	if httpErr != nil {
		httpErr.Render(rw)
		return
	}

	switch {
	case payment.Status == data.CancelledPaymentStatus:
		// Idempotent repeat.
		httpresponse.RenderStatus(rw, http.StatusOK, CancellationResponse{
			PaymentID:          payment.ID,
			UETR:               payment.UETR,
			CancellationStatus: string(iso20022.CancellationConfirmed),
			PaymentStatus:      string(payment.Status),
		})
	case payment.Status.IsTerminal():
		msg := fmt.Sprintf("Payment %s cannot be cancelled in status %s", payment.ID, payment.Status)
		httperror.Conflict(msg, nil, nil).Render(rw)
	case payment.Status == data.ClearingSubmittedPaymentStatus || payment.Status == data.ClearingAcceptedPaymentStatus:
		h.cancelAtRail(ctx, rw, payment, reasonCode)
	default:
		h.cancelPreSubmission(ctx, rw, payment, reasonCode)
	}
}

// parseCancellationReason accepts either a camt.055 XML body naming this
// payment or a small JSON envelope. An empty body defaults to a
// customer-requested cancellation.
func (h PaymentsHandler) parseCancellationReason(req *http.Request, payment *data.Payment) (string, *httperror.HTTPError) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return "", httperror.BadRequest("Cannot read the request body", err, nil)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return string(iso20022.ReasonCustomerRequest), nil
	}

	if utils.HasContentType(req.Header.Get("Content-Type"), "application/xml") || utils.HasContentType(req.Header.Get("Content-Type"), "text/xml") {
		doc, decodeErr := iso20022.DecodeCamt055(body)
		if decodeErr != nil {
			return "", httperror.BadRequest("The camt.055 document could not be parsed", decodeErr, nil).WithErrorCode(httperror.Code400_2)
		}
		for _, target := range doc.Targets() {
			if target.UETR.String() == payment.UETR || (target.OriginalEndToEndID != "" && target.OriginalEndToEndID == payment.EndToEndID) {
				if target.Reason != "" {
					return target.Reason, nil
				}
				return string(iso20022.ReasonCustomerRequest), nil
			}
		}
		return "", httperror.BadRequest("The camt.055 document does not reference this payment", nil, nil)
	}

	var reqBody CancelPaymentRequest
	if err = json.Unmarshal(body, &reqBody); err != nil {
		return "", httperror.BadRequest("The request was invalid in some way.", err, nil).WithErrorCode(httperror.Code400_0)
	}
	if reqBody.ReasonCode == "" {
		return string(iso20022.ReasonCustomerRequest), nil
	}
	return reqBody.ReasonCode, nil
}

// cancelPreSubmission flags the running saga. The flag is honored at the next
// step boundary, where executed steps compensate in reverse order.
func (h PaymentsHandler) cancelPreSubmission(ctx context.Context, rw http.ResponseWriter, payment *data.Payment, reasonCode string) {
	err := h.Models.Sagas.RequestCancel(ctx, h.DBConnectionPool, payment.TenantID, payment.ID)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			msg := fmt.Sprintf("Payment %s has no running saga to cancel", payment.ID)
			httperror.Conflict(msg, err, nil).Render(rw)
			return
		}
		httperror.InternalError(ctx, "Cannot request the cancellation", err, nil).Render(rw)
		return
	}

	httpresponse.RenderStatus(rw, http.StatusAccepted, CancellationResponse{
		PaymentID:          payment.ID,
		UETR:               payment.UETR,
		CancellationStatus: string(iso20022.CancellationPending),
		Reason:             reasonCode,
		PaymentStatus:      string(payment.Status),
	})
}

// cancelAtRail sends a camt.056 recall through the payment's clearing adapter
// and maps the camt.029 resolution.
func (h PaymentsHandler) cancelAtRail(ctx context.Context, rw http.ResponseWriter, payment *data.Payment, reasonCode string) {
	adapter, err := h.ClearingRegistry.ForRail(ctx, payment.TenantID, payment.Rail)
	if err != nil {
		httperror.InternalError(ctx, fmt.Sprintf("Cannot resolve the %s clearing adapter", payment.Rail), err, nil).Render(rw)
		return
	}

	result, err := adapter.Cancel(ctx, clearing.CancelRequest{Payment: payment, ReasonCode: reasonCode})
	if err != nil {
		if errors.Is(err, clearing.ErrCancelNotSupported) {
			msg := fmt.Sprintf("Rail %s does not support cancellation", payment.Rail)
			httperror.UnprocessableEntity(msg, err, nil).Render(rw)
			return
		}
		if clearing.IsUnavailable(err) {
			httperror.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("Rail %s is unavailable", payment.Rail), err, nil).Render(rw)
			return
		}
		httperror.InternalError(ctx, "Cannot send the cancellation to the rail", err, nil).Render(rw)
		return
	}

	if result.Status == iso20022.CancellationConfirmed {
		if err = h.Models.Payment.UpdateStatus(ctx, h.DBConnectionPool, payment, data.CancelledPaymentStatus, reasonCode); err != nil {
			httperror.InternalError(ctx, "Cannot record the cancellation", err, nil).Render(rw)
			return
		}
		if err = h.Dispatcher.DispatchTerminal(ctx, payment); err != nil {
			log.Ctx(ctx).WithError(err).Errorf("Cannot dispatch the cancellation response for payment %s", payment.ID)
		}
	}

	httpresponse.RenderStatus(rw, http.StatusOK, CancellationResponse{
		PaymentID:          payment.ID,
		UETR:               payment.UETR,
		CancellationStatus: string(result.Status),
		Reason:             result.Reason,
		PaymentStatus:      string(payment.Status),
	})
}
