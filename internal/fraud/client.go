package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

const scoresPath = "/v1/scores"

// Client calls an external fraud scoring provider over HTTP. Calls go
// through a circuit breaker so a struggling provider degrades to fast
// failures instead of holding saga workers on timeouts.
type Client struct {
	BasePath       string
	APIKey         string
	ProviderName   string
	httpClient     httpclient.HttpClientInterface
	breaker        *gobreaker.CircuitBreaker[*http.Response]
	monitorService monitor.MonitorServiceInterface
}

// NewClient creates a new instance of the fraud Client.
func NewClient(basePath, apiKey, providerName string, monitorService monitor.MonitorServiceInterface) *Client {
	if providerName == "" {
		providerName = "default"
	}
	client := &Client{
		BasePath:       basePath,
		APIKey:         apiKey,
		ProviderName:   providerName,
		httpClient:     httpclient.DefaultClient(),
		monitorService: monitorService,
	}
	client.breaker = gobreaker.NewCircuitBreaker[*http.Response](utils.NewBreakerSettings("fraud", client.onBreakerStateChange))
	return client
}

// Score submits the payment for scoring and returns the provider's verdict.
// A DECLINE is a successful call: the caller decides what a decline means.
func (client *Client) Score(ctx context.Context, scoreReq ScoreRequest) (result *ScoreResult, err error) {
	if err = scoreReq.validate(); err != nil {
		return nil, fmt.Errorf("validating score request: %w", err)
	}

	startedAt := time.Now()
	defer func() { client.recordMetrics(ctx, result, startedAt) }()

	u, err := url.JoinPath(client.BasePath, scoresPath)
	if err != nil {
		return nil, fmt.Errorf("building path: %w", err)
	}

	reqData, err := json.Marshal(scoreReq)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewBuffer(reqData))
	if err != nil {
		return nil, err
	}
	for name, values := range clearing.DemuxHeaders(scoreReq.TenantID, clearing.FraudServiceType, "") {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", client.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.breaker.Execute(func() (*http.Response, error) {
		resp, doErr := client.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		// A 5xx counts as a breaker failure; 4xx responses are business
		// rejections and pass through to the caller.
		if resp.StatusCode >= http.StatusInternalServerError {
			apiError, parseErr := parseAPIError(resp)
			if parseErr != nil {
				return nil, fmt.Errorf("fraud provider returned status %d", resp.StatusCode)
			}
			return nil, apiError
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiError, parseErr := parseAPIError(resp)
		if parseErr != nil {
			return nil, fmt.Errorf("parsing API error: %w", parseErr)
		}
		return nil, fmt.Errorf("API error: %w", apiError)
	}

	var scoreResult ScoreResult
	if err = json.NewDecoder(resp.Body).Decode(&scoreResult); err != nil {
		return nil, fmt.Errorf("decoding score response: %w", err)
	}
	if scoreResult.Decision, err = ParseDecision(string(scoreResult.Decision)); err != nil {
		return nil, fmt.Errorf("parsing score response: %w", err)
	}

	return &scoreResult, nil
}

func (client *Client) onBreakerStateChange(name string, from, to gobreaker.State) {
	log.Warnf("Fraud circuit breaker %q transitioned from %s to %s", name, from, to)
	if client.monitorService == nil {
		return
	}

	labels := map[string]string{"rail": "fraud", "from_state": from.String(), "to_state": to.String()}
	if err := client.monitorService.MonitorCounters(monitor.BreakerTransitionsCounterTag, labels); err != nil {
		log.Errorf("monitoring fraud breaker transition: %v", err)
	}
}

func (client *Client) recordMetrics(ctx context.Context, result *ScoreResult, startedAt time.Time) {
	if client.monitorService == nil {
		return
	}

	decision := "error"
	if result != nil {
		decision = string(result.Decision)
	}
	labels := monitor.FraudLabels{
		Provider:     client.ProviderName,
		Decision:     decision,
		CommonLabels: monitor.CommonLabels{TenantName: tenantctx.MustGetTenantNameFromContext(ctx)},
	}

	if err := client.monitorService.MonitorHistogram(time.Since(startedAt).Seconds(), monitor.FraudRequestDurationTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("monitoring fraud request duration: %v", err)
	}
	if err := client.monitorService.MonitorCounters(monitor.FraudChecksCounterTag, labels.ToMap()); err != nil {
		log.Ctx(ctx).Errorf("monitoring fraud check counter: %v", err)
	}
}

var _ ScorerInterface = (*Client)(nil)
