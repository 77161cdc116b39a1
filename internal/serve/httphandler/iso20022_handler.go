package httphandler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httperror"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpresponse"
	"github.com/paymenthub/payment-engine-backend/internal/serve/middleware"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
)

// ISO20022Handler is the XML intake: a pain.001 document explodes into one
// payment per credit transfer instruction, each running the same acceptance
// flow as POST /payments.
type ISO20022Handler struct {
	PaymentAccepter PaymentAccepter
}

// Pain001AcceptanceResponse is the batch envelope for a pain.001 intake.
type Pain001AcceptanceResponse struct {
	OriginalMessageID string                      `json:"originalMessageId"`
	Payments          []PaymentAcceptanceResponse `json:"payments"`
}

func (h ISO20022Handler) PostPain001(rw http.ResponseWriter, req *http.Request) {
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

	body, err := io.ReadAll(req.Body)
	if err != nil {
		httperror.BadRequest("Cannot read the request body", err, nil).Render(rw)
		return
	}

	doc, err := iso20022.DecodePain001(body)
	if err != nil {
		httperror.BadRequest("The pain.001 document could not be parsed", err, nil).WithErrorCode(httperror.Code400_2).Render(rw)
		return
	}
	if err = doc.Validate(); err != nil {
		httperror.BadRequest("The pain.001 document is invalid", err, map[string]any{"validation_error": err.Error()}).WithErrorCode(httperror.Code400_1).Render(rw)
		return
	}

	instructions, err := iso20022.ExtractInstructions(doc)
	if err != nil {
		httperror.BadRequest("The pain.001 document is invalid", err, map[string]any{"validation_error": err.Error()}).WithErrorCode(httperror.Code400_1).Render(rw)
		return
	}

	tc, err := tenantctx.GetTenantContext(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve the tenant from the context", err, nil).WithErrorCode(httperror.Code500_1).Render(rw)
		return
	}

	response := Pain001AcceptanceResponse{
		Payments: make([]PaymentAcceptanceResponse, 0, len(instructions)),
	}
	allReplayed, allSynchronous := true, true
	for _, instruction := range instructions {
		insert := instructionToInsert(instruction, currentTenant.ID, tc.BusinessUnitID, tc.CustomerID, idempotencyKey)
		response.OriginalMessageID = instruction.MsgID

		accepted, httpErr := h.PaymentAccepter.Accept(ctx, insert)
		if httpErr != nil {
			// Instructions accepted so far keep their sagas; the batch
			// answer reports the failure so the caller can resubmit the
			// remainder under the same idempotency key.
			httpErr.Render(rw)
			return
		}

		allReplayed = allReplayed && accepted.Replayed
		allSynchronous = allSynchronous && accepted.Payment.ResponseMode == data.SynchronousResponseMode
		response.Payments = append(response.Payments, accepted.Response)
	}

	statusCode := http.StatusAccepted
	if allReplayed {
		statusCode = http.StatusOK
	} else if allSynchronous {
		statusCode = http.StatusCreated
	}
	httpresponse.RenderStatus(rw, statusCode, response)
}

// instructionToInsert maps one extracted credit transfer to the persistence
// shape. Multi-instruction batches key idempotency per instruction under the
// caller's header key so a resubmitted batch replays instead of duplicating.
func instructionToInsert(instruction iso20022.Instruction, tenantID, businessUnitID, customerID, idempotencyKey string) data.PaymentInsert {
	uetr := instruction.UETR.String()
	if instruction.UETR.IsEmpty() {
		uetr = iso20022.NewUETR().String()
	}

	insert := data.PaymentInsert{
		TenantID:          tenantID,
		BusinessUnitID:    businessUnitID,
		CustomerID:        customerID,
		IdempotencyKey:    fmt.Sprintf("%s:%s", idempotencyKey, instruction.EndToEndID),
		UETR:              uetr,
		EndToEndID:        instruction.EndToEndID,
		InstructionID:     instruction.InstructionID,
		OriginalMessageID: instruction.MsgID,
		PaymentTypeCode:   paymentTypeForInstruction(instruction),
		LocalInstrument:   instruction.LocalInstrument,
		Amount:            instruction.Amount.Amount,
		Currency:          instruction.Amount.Currency,
		DebtorName:        instruction.DebtorName,
		DebtorAccount:     instruction.DebtorAccount,
		DebtorAgentBIC:    instruction.DebtorAgentBIC,
		CreditorName:      instruction.CreditorName,
		CreditorAccount:   instruction.CreditorAccount,
		CreditorAgentBIC:  instruction.CreditorAgentBIC,
		RemittanceInfo:    instruction.RemittanceInfo,
	}
	if instruction.RequestedExecutionDate != "" {
		if execDate, err := time.Parse("2006-01-02", instruction.RequestedExecutionDate); err == nil {
			insert.RequestedExecutionDate = &execDate
		}
	}
	return insert
}

// paymentTypeForInstruction derives the payment type code from the pain.001
// category purpose, falling back to the service level.
func paymentTypeForInstruction(instruction iso20022.Instruction) string {
	if instruction.CategoryPurpose != "" {
		return strings.ToUpper(instruction.CategoryPurpose)
	}
	return strings.ToUpper(instruction.ServiceLevel)
}
