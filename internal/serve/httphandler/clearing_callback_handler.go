package httphandler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paymenthub/payment-engine-backend/internal/clearing"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/events/schemas"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httperror"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpresponse"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
	"github.com/paymenthub/payment-engine-backend/internal/utils"
)

// ClearingCallbackHandler receives asynchronous rail results on
// POST /clearing/{rail}/callback: pacs.002 status reports, camt.054
// settlement notifications, or the JSON shape non-ISO rails post. Results are
// published to the clearing result topic; with the NONE broker they are
// applied inline so parked sagas still wake.
type ClearingCallbackHandler struct {
	Producer       events.Producer
	ResultIngester events.EventHandler
	MonitorService monitor.MonitorServiceInterface
}

// railCallbackRequest is the JSON body posted by adapters whose rails do not
// speak ISO 20022 on the callback leg.
type railCallbackRequest struct {
	UETR           string `json:"uetr"`
	Status         string `json:"status"`
	ReasonCode     string `json:"reason_code,omitempty"`
	TrackingRef    string `json:"tracking_ref,omitempty"`
	OriginalMsgID  string `json:"original_msg_id,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

// ClearingCallbackResponse acknowledges how many results were taken from the
// callback body.
type ClearingCallbackResponse struct {
	Status   string `json:"status"`
	Received int    `json:"received"`
}

func (h ClearingCallbackHandler) PostCallback(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()

	rail := data.Rail(strings.ToUpper(chi.URLParam(req, "rail")))
	if err := rail.Validate(); err != nil {
		httperror.BadRequest(fmt.Sprintf("Unknown rail %q", chi.URLParam(req, "rail")), err, nil).Render(rw)
		return
	}

	currentTenant, err := tenantctx.GetTenantFromContext(ctx)
	if err != nil {
		httperror.InternalError(ctx, "Cannot retrieve the tenant from the context", err, nil).WithErrorCode(httperror.Code500_1).Render(rw)
		return
	}

	// The shared ingress stamps the demux headers on the way in; a mismatch
	// means the callback was routed to the wrong endpoint.
	if serviceType := req.Header.Get(clearing.ServiceTypeHeader); serviceType != "" {
		if !strings.EqualFold(serviceType, clearing.ClearingServiceType) {
			msg := fmt.Sprintf("The %s header %q is not a clearing callback", clearing.ServiceTypeHeader, serviceType)
			httperror.BadRequest(msg, nil, nil).Render(rw)
			return
		}
	}
	if bankRoute := req.Header.Get(clearing.BankRouteHeader); bankRoute != "" {
		expected := clearing.DemuxHeaders(currentTenant.ID, clearing.ClearingServiceType, rail).Get(clearing.BankRouteHeader)
		if !strings.EqualFold(bankRoute, expected) {
			msg := fmt.Sprintf("The %s header %q does not match rail %s", clearing.BankRouteHeader, bankRoute, rail)
			httperror.BadRequest(msg, nil, nil).Render(rw)
			return
		}
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		httperror.BadRequest("Cannot read the request body", err, nil).Render(rw)
		return
	}

	results, httpErr := decodeCallbackResults(req.Header.Get("Content-Type"), rail, body)
	if httpErr != nil {
		httpErr.Render(rw)
		return
	}
	if len(results) == 0 {
		httperror.BadRequest("The callback body carries no transaction results", nil, nil).Render(rw)
		return
	}

	for _, result := range results {
		if err = h.ingest(ctx, result); err != nil {
			httperror.InternalError(ctx, "Cannot process the clearing result", err, nil).Render(rw)
			return
		}
		h.recordCallbackCounter(ctx, result)
	}

	httpresponse.RenderStatus(rw, http.StatusOK, ClearingCallbackResponse{
		Status:   "RECEIVED",
		Received: len(results),
	})
}

// decodeCallbackResults normalizes the three callback shapes into clearing
// result events.
func decodeCallbackResults(contentType string, rail data.Rail, body []byte) ([]schemas.EventClearingResultData, *httperror.HTTPError) {
	receivedAt := time.Now().UTC()

	if utils.HasContentType(contentType, "application/xml") || utils.HasContentType(contentType, "text/xml") {
		if strings.Contains(string(body), "FIToFIPmtStsRpt") {
			doc, err := iso20022.DecodePacs002(body)
			if err != nil {
				return nil, httperror.BadRequest("The pacs.002 document could not be parsed", err, nil).WithErrorCode(httperror.Code400_2)
			}
			originalMsgID := ""
			if doc.FIToFIPmtStsRpt.OrgnlGrpInfAndSts != nil {
				originalMsgID = doc.FIToFIPmtStsRpt.OrgnlGrpInfAndSts.OrgnlMsgID
			}
			return fromClearingResults(doc.Results(), rail, originalMsgID, receivedAt), nil
		}

		doc, err := iso20022.DecodeCamt054(body)
		if err != nil {
			return nil, httperror.BadRequest("The camt.054 document could not be parsed", err, nil).WithErrorCode(httperror.Code400_2)
		}
		return fromClearingResults(doc.Results(), rail, "", receivedAt), nil
	}

	var reqBody railCallbackRequest
	if err := json.Unmarshal(body, &reqBody); err != nil {
		return nil, httperror.BadRequest("The request was invalid in some way.", err, nil).WithErrorCode(httperror.Code400_0)
	}
	if _, err := iso20022.ParseUETR(reqBody.UETR); err != nil {
		return nil, httperror.BadRequest("The callback carries an invalid UETR", err, nil)
	}
	if reqBody.Status == "" {
		return nil, httperror.BadRequest("The callback carries no status", nil, nil)
	}

	return []schemas.EventClearingResultData{{
		UETR:          strings.ToLower(reqBody.UETR),
		Rail:          string(rail),
		Outcome:       strings.ToUpper(reqBody.Status),
		ReasonCode:    reqBody.ReasonCode,
		TrackingRef:   reqBody.TrackingRef,
		ReceivedAt:    receivedAt,
		OriginalMsgID: reqBody.OriginalMsgID,
	}}, nil
}

func fromClearingResults(results []iso20022.ClearingResult, rail data.Rail, originalMsgID string, receivedAt time.Time) []schemas.EventClearingResultData {
	out := make([]schemas.EventClearingResultData, 0, len(results))
	for _, result := range results {
		if result.UETR.IsEmpty() {
			continue
		}
		out = append(out, schemas.EventClearingResultData{
			UETR:          result.UETR.String(),
			Rail:          string(rail),
			Outcome:       string(result.Status),
			ReasonCode:    string(result.Reason),
			TrackingRef:   result.ClearingRef,
			ReceivedAt:    receivedAt,
			OriginalMsgID: originalMsgID,
		})
	}
	return out
}

// ingest hands the result to the event bus, or applies it inline when no
// broker is configured.
func (h ClearingCallbackHandler) ingest(ctx context.Context, result schemas.EventClearingResultData) error {
	msg, err := events.NewMessage(ctx, events.ClearingResultTopic, result.UETR, events.ClearingResultReceivedType, result)
	if err != nil {
		return fmt.Errorf("building clearing result message for UETR %s: %w", result.UETR, err)
	}

	if h.Producer != nil && h.Producer.BrokerType() == events.KafkaEventBrokerType {
		return events.ProduceEvents(ctx, h.Producer, msg)
	}
	return h.ResultIngester.Handle(ctx, msg)
}

func (h ClearingCallbackHandler) recordCallbackCounter(ctx context.Context, result schemas.EventClearingResultData) {
	labels := map[string]string{
		"rail":        result.Rail,
		"result":      result.Outcome,
		"tenant_name": tenantctx.MustGetTenantNameFromContext(ctx),
	}
	if err := h.MonitorService.MonitorCounters(monitor.ClearingCallbacksCounterTag, labels); err != nil {
		log.Ctx(ctx).Errorf("Error monitoring clearing callbacks counter: %v", err)
	}
}
