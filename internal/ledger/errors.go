package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrOperationNotFound is returned when no ledger operation exists for an
// idempotency key.
var ErrOperationNotFound = errors.New("ledger operation not found")

// Error codes returned by the ledger service.
const (
	ErrorCodeInsufficientFunds = "insufficient_funds"
	ErrorCodeHoldNotFound      = "hold_not_found"
	ErrorCodeDuplicateKey      = "duplicate_idempotency_key"
)

// APIError represents the error response from the ledger service.
type APIError struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Errors  []APIErrorDetail `json:"errors,omitempty"`
	// StatusCode is the HTTP status code.
	StatusCode int `json:"status_code,omitempty"`
}

// APIErrorDetail represents the detailed error information.
type APIErrorDetail struct {
	Error        string      `json:"error"`
	Message      string      `json:"message"`
	Location     string      `json:"location"`
	InvalidValue interface{} `json:"invalidValue,omitempty"`
}

// Error implements the error interface for APIError.
func (e APIError) Error() string {
	return fmt.Sprintf("ledger APIError: Code=%s, Message=%s, Errors=%v, StatusCode=%d", e.Code, e.Message, e.Errors, e.StatusCode)
}

// IsInsufficientFunds verifies the error is the ledger rejecting a hold or
// debit for lack of available balance.
func (e APIError) IsInsufficientFunds() bool {
	return e.Code == ErrorCodeInsufficientFunds
}

// IsRetryable verifies the error is transient on the ledger side, so the
// operation can be retried with the same idempotency key.
func (e APIError) IsRetryable() bool {
	return e.StatusCode >= http.StatusInternalServerError ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusRequestTimeout
}

// parseAPIError parses the error response from the ledger service.
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
