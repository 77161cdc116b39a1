package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/paymenthub/payment-engine-backend/internal/clearing"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpclient"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
	"github.com/paymenthub/payment-engine-backend/internal/utils"
)

const (
	pingPath       = "/ping"
	holdsPath      = "/v1/holds"
	debitsPath     = "/v1/debits"
	creditsPath    = "/v1/credits"
	operationsPath = "/v1/operations"
)

// AdapterInterface defines the interface for interacting with the ledger
// service.
type AdapterInterface interface {
	Ping(ctx context.Context) (bool, error)
	Hold(ctx context.Context, holdReq HoldRequest) (*HoldResult, error)
	Debit(ctx context.Context, debitReq DebitRequest) (*Operation, error)
	Credit(ctx context.Context, creditReq CreditRequest) (*Operation, error)
	ReleaseHold(ctx context.Context, releaseReq ReleaseRequest) (*Operation, error)
	GetOperation(ctx context.Context, idempotencyKey string) (*Operation, error)
}

// Client provides methods to interact with the ledger service. Every call is
// wrapped by a circuit breaker, and a 409 on a replayed idempotency key
// resolves to the original operation.
type Client struct {
	BasePath       string
	APIKey         string
	httpClient     httpclient.HttpClientInterface
	breaker        *gobreaker.CircuitBreaker[*http.Response]
	monitorService monitor.MonitorServiceInterface
}

// NewClient creates a new instance of the ledger Client.
func NewClient(basePath, apiKey string, monitorService monitor.MonitorServiceInterface) *Client {
	client := &Client{
		BasePath:       basePath,
		APIKey:         apiKey,
		httpClient:     httpclient.DefaultClient(),
		monitorService: monitorService,
	}
	client.breaker = gobreaker.NewCircuitBreaker[*http.Response](utils.NewBreakerSettings("ledger", client.onBreakerStateChange))
	return client
}

// Ping checks that the ledger service is running.
func (client *Client) Ping(ctx context.Context) (bool, error) {
	u, err := url.JoinPath(client.BasePath, pingPath)
	if err != nil {
		return false, fmt.Errorf("building path: %w", err)
	}

	resp, err := client.request(ctx, u, http.MethodGet, false, "", "", nil)
	if err != nil {
		return false, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var pingResp struct {
		Message string `json:"message"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&pingResp); err != nil {
		return false, err
	}

	if pingResp.Message == "pong" {
		return true, nil
	}

	return false, fmt.Errorf("unexpected response message: %s", pingResp.Message)
}

// Hold reserves funds on an account.
func (client *Client) Hold(ctx context.Context, holdReq HoldRequest) (result *HoldResult, err error) {
	if err = holdReq.validate(); err != nil {
		return nil, fmt.Errorf("validating hold request: %w", err)
	}

	startedAt := time.Now()
	defer func() { client.recordMetrics(ctx, "hold", startedAt, err) }()

	op, err := client.post(ctx, holdsPath, holdReq.TenantID, holdReq.IdempotencyKey, holdReq)
	if err != nil {
		return nil, err
	}
	return holdResultFromOperation(op), nil
}

// Debit books a debit, consuming the hold when the request carries one.
func (client *Client) Debit(ctx context.Context, debitReq DebitRequest) (op *Operation, err error) {
	if err = debitReq.validate(); err != nil {
		return nil, fmt.Errorf("validating debit request: %w", err)
	}

	startedAt := time.Now()
	defer func() { client.recordMetrics(ctx, "debit", startedAt, err) }()

	return client.post(ctx, debitsPath, debitReq.TenantID, debitReq.IdempotencyKey, debitReq)
}

// Credit books a credit.
func (client *Client) Credit(ctx context.Context, creditReq CreditRequest) (op *Operation, err error) {
	if err = creditReq.validate(); err != nil {
		return nil, fmt.Errorf("validating credit request: %w", err)
	}

	startedAt := time.Now()
	defer func() { client.recordMetrics(ctx, "credit", startedAt, err) }()

	return client.post(ctx, creditsPath, creditReq.TenantID, creditReq.IdempotencyKey, creditReq)
}

// ReleaseHold releases a previously reserved hold.
func (client *Client) ReleaseHold(ctx context.Context, releaseReq ReleaseRequest) (op *Operation, err error) {
	if err = releaseReq.validate(); err != nil {
		return nil, fmt.Errorf("validating release request: %w", err)
	}

	startedAt := time.Now()
	defer func() { client.recordMetrics(ctx, "release_hold", startedAt, err) }()

	releasePath, err := url.JoinPath(holdsPath, releaseReq.HoldID, "release")
	if err != nil {
		return nil, fmt.Errorf("building path: %w", err)
	}
	return client.post(ctx, releasePath, releaseReq.TenantID, releaseReq.IdempotencyKey, releaseReq)
}

// GetOperation retrieves the operation booked under an idempotency key, used
// to verify replays.
func (client *Client) GetOperation(ctx context.Context, idempotencyKey string) (*Operation, error) {
	tc, _ := tenantctx.GetTenantContext(ctx)
	return client.getOperation(ctx, tc.TenantID, idempotencyKey)
}

func (client *Client) getOperation(ctx context.Context, tenantID, idempotencyKey string) (*Operation, error) {
	u, err := url.JoinPath(client.BasePath, operationsPath, idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("building path: %w", err)
	}

	resp, err := client.request(ctx, u, http.MethodGet, true, tenantID, "", nil)
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrOperationNotFound
	}
	if resp.StatusCode != http.StatusOK {
		apiError, parseErr := parseAPIError(resp)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing API error: %w", parseErr)
		}
		return nil, fmt.Errorf("API error: %w", apiError)
	}

	return parseOperationResponse(resp)
}

// post submits a mutating operation and resolves 409s on replayed idempotency
// keys to the original operation.
func (client *Client) post(ctx context.Context, path, tenantID, idempotencyKey string, reqBody any) (*Operation, error) {
	u, err := url.JoinPath(client.BasePath, path)
	if err != nil {
		return nil, fmt.Errorf("building path: %w", err)
	}

	reqData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	resp, err := client.request(ctx, u, http.MethodPost, true, tenantID, idempotencyKey, bytes.NewBuffer(reqData))
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		return parseOperationResponse(resp)
	case http.StatusConflict:
		// The idempotency key was replayed: the original operation is the result.
		resp.Body.Close()
		op, opErr := client.getOperation(ctx, tenantID, idempotencyKey)
		if opErr != nil {
			return nil, fmt.Errorf("fetching original operation for idempotency key %s: %w", idempotencyKey, opErr)
		}
		return op, nil
	default:
		apiError, parseErr := parseAPIError(resp)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing API error: %w", parseErr)
		}
		return nil, fmt.Errorf("API error: %w", apiError)
	}
}

// request makes an HTTP request to the ledger service through the circuit
// breaker.
func (client *Client) request(ctx context.Context, u string, method string, isAuthed bool, tenantID, idempotencyKey string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}

	if tenantID != "" {
		for name, values := range clearing.DemuxHeaders(tenantID, clearing.LedgerServiceType, "") {
			for _, v := range values {
				req.Header.Set(name, v)
			}
		}
	}
	if isAuthed {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", client.APIKey))
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return client.breaker.Execute(func() (*http.Response, error) {
		resp, doErr := client.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		// A 5xx counts as a breaker failure; 4xx responses are business
		// rejections and pass through to the caller.
		if resp.StatusCode >= http.StatusInternalServerError {
			apiError, parseErr := parseAPIError(resp)
			if parseErr != nil {
				return nil, fmt.Errorf("ledger returned status %d", resp.StatusCode)
			}
			return nil, apiError
		}
		return resp, nil
	})
}

func (client *Client) onBreakerStateChange(name string, from, to gobreaker.State) {
	log.Warnf("Ledger circuit breaker %q transitioned from %s to %s", name, from, to)
	if client.monitorService == nil {
		return
	}

	labels := map[string]string{"rail": "ledger", "from_state": from.String(), "to_state": to.String()}
	if err := client.monitorService.MonitorCounters(monitor.BreakerTransitionsCounterTag, labels); err != nil {
		log.Errorf("monitoring ledger breaker transition: %v", err)
	}
}

func (client *Client) recordMetrics(ctx context.Context, operation string, startedAt time.Time, resultErr error) {
	if client.monitorService == nil {
		return
	}

	result := "success"
	if resultErr != nil {
		result = "error"
	}
	labels := monitor.LedgerLabels{
		Operation:    operation,
		Result:       result,
		CommonLabels: monitor.CommonLabels{TenantName: tenantctx.MustGetTenantNameFromContext(ctx)},
	}

	if err := client.monitorService.MonitorHistogram(time.Since(startedAt).Seconds(), monitor.LedgerRequestDurationTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("monitoring ledger request duration: %v", err)
	}
	if err := client.monitorService.MonitorCounters(monitor.LedgerRequestsTotalTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("monitoring ledger request counter: %v", err)
	}
}

var _ AdapterInterface = (*Client)(nil)
