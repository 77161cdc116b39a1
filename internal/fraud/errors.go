package fraud

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// APIError represents the error response from the fraud scoring service.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// StatusCode is the HTTP status code.
	StatusCode int `json:"status_code,omitempty"`
}

// Error implements the error interface for APIError.
func (e APIError) Error() string {
	return fmt.Sprintf("fraud APIError: Code=%s, Message=%s, StatusCode=%d", e.Code, e.Message, e.StatusCode)
}

// IsRetryable verifies the error is transient on the provider side, so the
// check can be retried.
func (e APIError) IsRetryable() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// parseAPIError parses the error response from the fraud scoring service.
func parseAPIError(resp *http.Response) (*APIError, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading error response body: %w", err)
	}
	defer resp.Body.Close()

	var apiErr APIError
	if err = json.Unmarshal(body, &apiErr); err != nil {
		return nil, fmt.Errorf("unmarshalling error response body: %w", err)
	}
	apiErr.StatusCode = resp.StatusCode

	return &apiErr, nil
}
