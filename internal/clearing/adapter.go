package clearing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpclient"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
)

// ErrCancelNotSupported is returned when a rail has no cancel capability, so
// the saga reports the recall as rejected instead of retrying it.
var ErrCancelNotSupported = errors.New("rail does not support cancellation")

// railAdapter talks to one rail endpoint using its stored configuration. The
// five rails share this implementation: what differs between them, payload
// dialect, demux headers, auth, retries, timeouts, all comes from the
// clearing_adapters row and the payload mappings it references.
type railAdapter struct {
	config         *data.ClearingAdapter
	tenantID       string
	mappingEngine  *MappingEngine
	httpClient     httpclient.HttpClientInterface
	breaker        *gobreaker.CircuitBreaker[*http.Response]
	limiter        *rate.Limiter
	monitorService monitor.MonitorServiceInterface
}

var _ AdapterInterface = (*railAdapter)(nil)

func (a *railAdapter) Rail() data.Rail { return a.config.Rail }

func (a *railAdapter) Capabilities() data.Capabilities { return a.config.Capabilities }

// usesISOMessages reports whether the rail takes pacs/camt XML. The retail
// rails take the adapter's JSON dialect assembled by the payload mapping.
func (a *railAdapter) usesISOMessages() bool {
	return a.config.Rail == data.SAMOSRail || a.config.Rail == data.SWIFTRail
}

// receivesAsync reports whether the final result arrives out of band, via
// callback or poll, rather than in the submit response.
func (a *railAdapter) receivesAsync() bool {
	return a.config.Capabilities.Has(data.ReceiveAsyncCapability)
}

// Submit sends the payment to the rail. A business rejection comes back as a
// RJCT result; only transport-level failures return an UnavailableError.
func (a *railAdapter) Submit(ctx context.Context, payment *data.Payment) (result *SubmitResult, err error) {
	startedAt := time.Now()
	defer func() { a.recordMetrics(ctx, "submit", startedAt, result, err) }()

	mapped, err := a.mappingEngine.ApplyToPayment(ctx, a.config.RequestMappingID, payment)
	if err != nil {
		return nil, fmt.Errorf("mapping payment %s for %s: %w", payment.ID, a.config.Rail, err)
	}

	var body []byte
	var contentType string
	if a.usesISOMessages() {
		if body, err = a.buildPacs008(payment, mapped); err != nil {
			return nil, fmt.Errorf("building pacs.008 for payment %s: %w", payment.ID, err)
		}
		contentType = "application/xml"
	} else {
		if body, err = json.Marshal(mapped); err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", a.config.Rail, err)
		}
		contentType = "application/json"
	}

	endpointURL, err := a.config.EndpointURL()
	if err != nil {
		return nil, err
	}

	statusCode, respBody, header, err := a.call(ctx, a.config.HTTPMethod, endpointURL, contentType, body)
	if err != nil {
		return nil, err
	}

	return a.parseSubmitResponse(ctx, statusCode, respBody, header)
}

// Cancel sends a recall for a previously submitted payment.
func (a *railAdapter) Cancel(ctx context.Context, cancelReq CancelRequest) (result *CancelResult, err error) {
	startedAt := time.Now()
	defer func() { a.recordMetrics(ctx, "cancel", startedAt, nil, err) }()

	if !a.config.Capabilities.Has(data.CancelCapability) {
		return nil, ErrCancelNotSupported
	}

	payment := cancelReq.Payment
	var body []byte
	var contentType string
	if a.usesISOMessages() {
		if body, err = a.buildCamt056(cancelReq); err != nil {
			return nil, fmt.Errorf("building camt.056 for payment %s: %w", payment.ID, err)
		}
		contentType = "application/xml"
	} else {
		cancelBody := map[string]string{
			"uetr":               payment.UETR,
			"clearing_reference": payment.ClearingReference,
			"end_to_end_id":      payment.EndToEndID,
			"reason_code":        cancelReq.ReasonCode,
		}
		if body, err = json.Marshal(cancelBody); err != nil {
			return nil, fmt.Errorf("marshalling %s cancel payload: %w", a.config.Rail, err)
		}
		contentType = "application/json"
	}

	cancelURL, err := a.operationURL("cancellations")
	if err != nil {
		return nil, err
	}

	statusCode, respBody, _, err := a.call(ctx, http.MethodPost, cancelURL, contentType, body)
	if err != nil {
		return nil, err
	}

	return a.parseCancelResponse(statusCode, respBody)
}

// Poll asks the rail for the current status of a previously submitted
// payment, correlated by the clearing reference it assigned.
func (a *railAdapter) Poll(ctx context.Context, payment *data.Payment) (result *PollResult, err error) {
	startedAt := time.Now()
	defer func() { a.recordMetrics(ctx, "poll", startedAt, nil, err) }()

	if !a.config.Capabilities.Has(data.PollCapability) {
		return nil, fmt.Errorf("rail %s does not support polling", a.config.Rail)
	}

	ref := payment.ClearingReference
	if ref == "" {
		ref = payment.UETR
	}
	pollURL, err := a.operationURL(url.PathEscape(ref), "status")
	if err != nil {
		return nil, err
	}

	statusCode, respBody, header, err := a.call(ctx, http.MethodGet, pollURL, "", nil)
	if err != nil {
		return nil, err
	}

	submitResult, err := a.parseSubmitResponse(ctx, statusCode, respBody, header)
	if err != nil {
		return nil, err
	}
	return &PollResult{
		RailRef:        submitResult.RailRef,
		Status:         submitResult.Status,
		Reason:         submitResult.Reason,
		AdditionalInfo: submitResult.AdditionalInfo,
		Final:          submitResult.Status.IsFinal(),
		RawResponse:    submitResult.RawResponse,
	}, nil
}

// call performs the HTTP round trip with the adapter's retry budget. Each
// attempt passes the rate limiter and the circuit breaker; an open breaker
// aborts the remaining attempts immediately.
func (a *railAdapter) call(ctx context.Context, method, callURL, contentType string, body []byte) (int, []byte, http.Header, error) {
	attempts := uint(a.config.MaxRetries)
	if attempts == 0 {
		attempts = 1
	}

	var resp *http.Response
	err := retry.Do(
		func() error {
			if a.limiter != nil && !a.limiter.Allow() {
				return &UnavailableError{Rail: a.config.Rail, Err: fmt.Errorf("rate limit of %d rps exceeded", a.config.MaxRPS)}
			}

			reqCtx, cancel := context.WithTimeout(ctx, a.config.Timeout())
			defer cancel()

			req, reqErr := http.NewRequestWithContext(reqCtx, method, callURL, bytes.NewReader(body))
			if reqErr != nil {
				return retry.Unrecoverable(reqErr)
			}
			a.setHeaders(req, contentType)

			var execErr error
			resp, execErr = a.breaker.Execute(func() (*http.Response, error) {
				r, doErr := a.httpClient.Do(req)
				if doErr != nil {
					return nil, doErr
				}
				if isTransportFailure(r.StatusCode) {
					drainBody(r)
					return nil, fmt.Errorf("rail returned status %d", r.StatusCode)
				}
				return r, nil
			})
			if execErr != nil {
				unavailableErr := &UnavailableError{Rail: a.config.Rail, Err: execErr}
				if errors.Is(execErr, gobreaker.ErrOpenState) || errors.Is(execErr, gobreaker.ErrTooManyRequests) {
					return retry.Unrecoverable(unavailableErr)
				}
				return unavailableErr
			}
			return nil
		},
		retry.Attempts(attempts),
		retry.Context(ctx),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if !IsUnavailable(err) {
			err = &UnavailableError{Rail: a.config.Rail, Err: err}
		}
		return 0, nil, nil, err
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, &UnavailableError{Rail: a.config.Rail, Err: fmt.Errorf("reading response body: %w", err)}
	}
	return resp.StatusCode, respBody, resp.Header, nil
}

// setHeaders attaches the demux routing headers, the adapter's static
// headers, and its auth material.
func (a *railAdapter) setHeaders(req *http.Request, contentType string) {
	for name, values := range DemuxHeaders(a.tenantID, ClearingServiceType, a.config.Rail) {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}
	for name, value := range a.config.Headers {
		req.Header.Set(name, value)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	switch a.config.AuthType {
	case data.ApiKeyAuthType:
		headerName := a.config.AuthConfig.HeaderName
		if headerName == "" {
			headerName = "X-API-Key"
		}
		req.Header.Set(headerName, a.config.AuthConfig.APIKey)
	case data.BearerAuthType, data.OAuth2AuthType:
		// OAuth2 tokens are provisioned out of band and stored alongside the
		// adapter; both flavors travel as bearer credentials.
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.config.AuthConfig.Token))
	}
}

func (a *railAdapter) buildPacs008(payment *data.Payment, mapped FieldMap) ([]byte, error) {
	uetr, err := iso20022.ParseUETR(mapped["uetr"])
	if err != nil {
		return nil, fmt.Errorf("parsing UETR: %w", err)
	}
	money, err := iso20022.NewMoney(mapped["amount"], mapped["currency"])
	if err != nil {
		return nil, fmt.Errorf("parsing amount: %w", err)
	}

	messageID := mapped["message_id"]
	if messageID == "" {
		messageID = iso20022.NewMessageID()
	}

	doc := iso20022.BuildPacs008(iso20022.Pacs008Params{
		MessageID:        messageID,
		CreatedAt:        time.Now().UTC(),
		SettlementMethod: mapped["settlement_method"],
		ClearingSystem:   mapped["clearing_system"],
		InstructionID:    mapped["instruction_id"],
		EndToEndID:       mapped["end_to_end_id"],
		TransactionID:    payment.ID,
		UETR:             uetr,
		Amount:           money,
		ChargeBearer:     mapped["charge_bearer"],
		ServiceLevel:     mapped["service_level"],
		LocalInstrument:  mapped["local_instrument"],
		DebtorName:       mapped["debtor_name"],
		DebtorAccount:    mapped["debtor_account"],
		DebtorAgentBIC:   mapped["debtor_agent_bic"],
		CreditorName:     mapped["creditor_name"],
		CreditorAccount:  mapped["creditor_account"],
		CreditorAgentBIC: mapped["creditor_agent_bic"],
		RemittanceInfo:   mapped["remittance_info"],
	})
	return doc.Encode()
}

func (a *railAdapter) buildCamt056(cancelReq CancelRequest) ([]byte, error) {
	payment := cancelReq.Payment
	uetr, err := iso20022.ParseUETR(payment.UETR)
	if err != nil {
		return nil, fmt.Errorf("parsing UETR: %w", err)
	}
	money, err := iso20022.NewMoneyFromDecimal(payment.Amount, payment.Currency)
	if err != nil {
		return nil, fmt.Errorf("parsing amount: %w", err)
	}

	doc := iso20022.BuildCamt056(iso20022.Camt056Params{
		AssignmentID:    iso20022.NewMessageID(),
		Assigner:        payment.DebtorAgentBIC,
		Assignee:        payment.CreditorAgentBIC,
		CreatedAt:       time.Now().UTC(),
		CancellationID:  iso20022.NewMessageID(),
		OriginalMsgID:   payment.OriginalMessageID,
		OriginalMsgNmID: "pacs.008.001.08",
		InstructionID:   payment.InstructionID,
		EndToEndID:      payment.EndToEndID,
		UETR:            uetr,
		Amount:          money,
		ReasonCode:      cancelReq.ReasonCode,
	})
	return doc.Encode()
}

// parseSubmitResponse interprets the rail's answer. 2xx carries an
// acknowledgement or a final report; 4xx carries a business rejection. Both
// dialects normalize to the ISO status vocabulary.
func (a *railAdapter) parseSubmitResponse(ctx context.Context, statusCode int, respBody []byte, header http.Header) (*SubmitResult, error) {
	result := &SubmitResult{RawResponse: respBody}

	switch {
	case statusCode == http.StatusAccepted && len(bytes.TrimSpace(respBody)) == 0:
		// Bare acknowledgement: the result arrives through the async path.
		result.Status = iso20022.StatusAcceptedTechnical
		result.RailRef = header.Get(trackingReferenceHeader)

	case a.usesISOMessages():
		doc, err := iso20022.DecodePacs002(respBody)
		if err != nil || len(doc.Results()) == 0 {
			if statusCode >= http.StatusBadRequest {
				// Rejection without a status report body.
				result.Status = iso20022.StatusRejected
				break
			}
			if err == nil {
				err = errors.New("rail response carries no transaction status")
			}
			return nil, &UnavailableError{Rail: a.config.Rail, Err: fmt.Errorf("undecodable rail response: %w", err)}
		}
		first := doc.Results()[0]
		result.RailRef = first.ClearingRef
		result.Status = first.Status
		result.Reason = first.Reason
		result.AdditionalInfo = first.AdditionalInfo

	default:
		fields, err := a.mapJSONResponse(ctx, respBody)
		if err != nil {
			if statusCode >= http.StatusBadRequest {
				result.Status = iso20022.StatusRejected
				break
			}
			return nil, err
		}
		result.RailRef = firstNonEmpty(fields["clearing_reference"], fields["tracking_reference"], fields["reference"])
		result.Reason = iso20022.ReasonCode(fields["reason_code"])
		result.AdditionalInfo = firstNonEmpty(fields["additional_info"], fields["message"])

		if status, ok := mapRailStatus(fields["status"]); ok {
			result.Status = status
		} else if statusCode >= http.StatusBadRequest {
			result.Status = iso20022.StatusRejected
		} else {
			result.Status = iso20022.StatusPending
		}
	}

	// A 4xx is always a rejection, whatever the body says.
	if statusCode >= http.StatusBadRequest {
		result.Status = iso20022.StatusRejected
		if result.Reason == "" {
			result.Reason = iso20022.ReasonNarrative
		}
	}

	if result.Status == iso20022.StatusRejected {
		result.Final = true
	} else if a.receivesAsync() {
		result.Final = result.Status.IsFinal()
	} else {
		// Sync rails conclude on the submit response unless they explicitly
		// answer pending.
		result.Final = result.Status != iso20022.StatusPending && result.Status != iso20022.StatusAcceptedTechnical
	}

	return result, nil
}

func (a *railAdapter) parseCancelResponse(statusCode int, respBody []byte) (*CancelResult, error) {
	result := &CancelResult{RawResponse: respBody}

	if a.usesISOMessages() {
		doc, err := iso20022.DecodeCamt029(respBody)
		if err != nil {
			return nil, &UnavailableError{Rail: a.config.Rail, Err: fmt.Errorf("undecodable cancellation outcome: %w", err)}
		}
		status, reason := doc.Outcome()
		result.Status = status
		result.Reason = reason
	} else {
		var ack struct {
			Status string `json:"status"`
			Reason string `json:"reason,omitempty"`
		}
		if err := json.Unmarshal(respBody, &ack); err != nil {
			return nil, &UnavailableError{Rail: a.config.Rail, Err: fmt.Errorf("undecodable cancellation outcome: %w", err)}
		}
		result.Status = mapCancellationStatus(ack.Status)
		result.Reason = ack.Reason
	}

	if statusCode >= http.StatusBadRequest && result.Status == "" {
		result.Status = iso20022.CancellationRejected
	}
	return result, nil
}

// mapJSONResponse flattens the rail's JSON answer and runs the adapter's
// response mapping over it, normalizing rail dialect to canonical fields.
func (a *railAdapter) mapJSONResponse(ctx context.Context, respBody []byte) (FieldMap, error) {
	fields := FieldMap{}
	if len(bytes.TrimSpace(respBody)) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(respBody, &raw); err != nil {
			return nil, &UnavailableError{Rail: a.config.Rail, Err: fmt.Errorf("undecodable rail response: %w", err)}
		}
		for k, v := range raw {
			switch value := v.(type) {
			case string:
				fields[k] = value
			case float64:
				fields[k] = fmt.Sprintf("%v", value)
			case bool:
				fields[k] = fmt.Sprintf("%t", value)
			}
		}
	}

	if a.config.ResponseMappingID == "" {
		return fields, nil
	}

	mapping, err := a.mappingEngine.Load(ctx, a.config.ResponseMappingID)
	if err != nil {
		return nil, err
	}
	mapped, err := ApplyRules(mapping.Rules, fields)
	if err != nil {
		return nil, fmt.Errorf("mapping %s response: %w", a.config.Rail, err)
	}
	return mapped, nil
}

func (a *railAdapter) operationURL(segments ...string) (string, error) {
	base, err := a.config.EndpointURL()
	if err != nil {
		return "", err
	}
	return url.JoinPath(base, segments...)
}

func (a *railAdapter) recordMetrics(ctx context.Context, operation string, startedAt time.Time, result *SubmitResult, resultErr error) {
	if a.monitorService == nil {
		return
	}

	status := "success"
	statusCode := ""
	switch {
	case resultErr != nil:
		status = "error"
	case result != nil:
		status = strings.ToLower(string(result.Status))
	}

	labels := monitor.ClearingLabels{
		Rail:         string(a.config.Rail),
		Operation:    operation,
		Status:       status,
		StatusCode:   statusCode,
		CommonLabels: monitor.CommonLabels{TenantName: tenantctx.MustGetTenantNameFromContext(ctx)},
	}

	if err := a.monitorService.MonitorHistogram(time.Since(startedAt).Seconds(), monitor.ClearingRequestDurationTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("monitoring clearing request duration: %v", err)
	}
	if err := a.monitorService.MonitorCounters(monitor.ClearingRequestsTotalTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("monitoring clearing request counter: %v", err)
	}
}

// isTransportFailure reports whether the HTTP status reflects rail-side
// unavailability rather than a business answer.
func isTransportFailure(statusCode int) bool {
	return statusCode >= http.StatusInternalServerError ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

// mapRailStatus normalizes a rail-dialect status word to the ISO set. The
// response mapping usually rewrites statuses already; this catches the common
// English words rails answer with when no mapping is configured.
func mapRailStatus(s string) (iso20022.TransactionStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return "", false
	case "ACTC", "ACCP", "ACSP", "ACSC", "PDNG", "RJCT", "CANC":
		return iso20022.TransactionStatus(strings.ToUpper(strings.TrimSpace(s))), true
	case "ACCEPTED", "OK", "SUCCESS":
		return iso20022.StatusAcceptedSettlementProcess, true
	case "SETTLED", "COMPLETE", "COMPLETED":
		return iso20022.StatusAcceptedSettled, true
	case "PENDING", "PROCESSING", "QUEUED", "RECEIVED":
		return iso20022.StatusPending, true
	case "REJECTED", "FAILED", "DECLINED":
		return iso20022.StatusRejected, true
	case "CANCELLED", "CANCELED":
		return iso20022.StatusCancelled, true
	default:
		return "", false
	}
}

func mapCancellationStatus(s string) iso20022.CancellationStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CNCL", "CANCELLED", "CANCELED", "CONFIRMED":
		return iso20022.CancellationConfirmed
	case "PDCR", "PENDING":
		return iso20022.CancellationPending
	default:
		return iso20022.CancellationRejected
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
