package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/paymenthub/payment-engine-backend/internal/serve/httpclient"
)

const (
	// webhookAttempts is the in-line retry budget for one delivery drive.
	// Exhaustion hands the row to the response retry job.
	webhookAttempts = 4

	// SignatureHeader carries the hex HMAC-SHA256 of "<timestamp>.<body>"
	// under the tenant's callback secret.
	SignatureHeader = "X-Payment-Engine-Signature"
	// TimestampHeader carries the unix seconds the signature was computed
	// at, so receivers can reject stale replays.
	TimestampHeader = "X-Payment-Engine-Timestamp"
)

// WebhookSenderInterface posts a pain.002 envelope to a tenant callback URL.
type WebhookSenderInterface interface {
	Send(ctx context.Context, callbackURL, secret string, payload []byte) error
}

// WebhookSender delivers response envelopes over HTTPS with an HMAC
// signature the receiver can verify against the shared callback secret.
type WebhookSender struct {
	HttpClient httpclient.HttpClientInterface
}

func NewWebhookSender(httpClient httpclient.HttpClientInterface) (*WebhookSender, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("http client cannot be nil")
	}
	return &WebhookSender{HttpClient: httpClient}, nil
}

var _ WebhookSenderInterface = (*WebhookSender)(nil)

// Send posts the payload to the callback URL, retrying transient failures
// with backoff. A 4xx other than 408/429 is not retried: the receiver saw
// the request and rejected it.
func (s *WebhookSender) Send(ctx context.Context, callbackURL, secret string, payload []byte) error {
	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("creating callback request: %w", err))
			}
			req.Header.Set("Content-Type", "application/json")

			timestamp := strconv.FormatInt(time.Now().Unix(), 10)
			req.Header.Set(TimestampHeader, timestamp)
			if secret != "" {
				req.Header.Set(SignatureHeader, SignPayload(secret, timestamp, payload))
			}

			resp, err := s.HttpClient.Do(req)
			if err != nil {
				return fmt.Errorf("posting pain.002 to %s: %w", callbackURL, err)
			}
			defer func() {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
			}()

			if resp.StatusCode/100 == 2 {
				return nil
			}
			statusErr := fmt.Errorf("callback returned status %d", resp.StatusCode)
			if isRetryableStatus(resp.StatusCode) {
				return statusErr
			}
			return retry.Unrecoverable(statusErr)
		},
		retry.Attempts(webhookAttempts),
		retry.Context(ctx),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

// SignPayload computes the signature the receiver recomputes on its side:
// hex(HMAC-SHA256(secret, "<timestamp>.<payload>")).
func SignPayload(secret, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func isRetryableStatus(statusCode int) bool {
	return statusCode >= http.StatusInternalServerError ||
		statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout
}
