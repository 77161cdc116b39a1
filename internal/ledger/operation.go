package ledger

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type OperationType string

const (
	OperationTypeHold    OperationType = "HOLD"
	OperationTypeDebit   OperationType = "DEBIT"
	OperationTypeCredit  OperationType = "CREDIT"
	OperationTypeRelease OperationType = "RELEASE"
)

type OperationStatus string

const (
	OperationStatusPending  OperationStatus = "PENDING"
	OperationStatusComplete OperationStatus = "COMPLETE"
	OperationStatusFailed   OperationStatus = "FAILED"
)

// Money is the wire amount for ledger operations.
type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Operation is a booked ledger operation. The ledger keys every operation by
// its idempotency key, so a replayed request resolves to the original row.
type Operation struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Type           OperationType   `json:"type"`
	Status         OperationStatus `json:"status"`
	TenantID       string          `json:"tenantId"`
	AccountRef     string          `json:"accountRef,omitempty"`
	HoldID         string          `json:"holdId,omitempty"`
	Money          Money           `json:"money"`
	CreateDate     time.Time       `json:"createDate"`
}

// HoldRequest reserves funds on an account.
type HoldRequest struct {
	IdempotencyKey string `json:"-"`
	TenantID       string `json:"tenantId"`
	AccountRef     string `json:"accountRef"`
	Money          Money  `json:"money"`
}

func (r HoldRequest) validate() error {
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key must be provided")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant ID must be provided")
	}
	if r.AccountRef == "" {
		return fmt.Errorf("account ref must be provided")
	}
	if r.Money.Amount == "" || r.Money.Currency == "" {
		return fmt.Errorf("money amount and currency must be provided")
	}
	return nil
}

// DebitRequest books a debit, consuming an existing hold when HoldID is set.
type DebitRequest struct {
	IdempotencyKey string `json:"-"`
	TenantID       string `json:"tenantId"`
	AccountRef     string `json:"accountRef"`
	HoldID         string `json:"holdId,omitempty"`
	Money          Money  `json:"money"`
}

func (r DebitRequest) validate() error {
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key must be provided")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant ID must be provided")
	}
	if r.AccountRef == "" {
		return fmt.Errorf("account ref must be provided")
	}
	if r.Money.Amount == "" || r.Money.Currency == "" {
		return fmt.Errorf("money amount and currency must be provided")
	}
	return nil
}

// CreditRequest books a credit.
type CreditRequest struct {
	IdempotencyKey string `json:"-"`
	TenantID       string `json:"tenantId"`
	AccountRef     string `json:"accountRef"`
	Money          Money  `json:"money"`
}

func (r CreditRequest) validate() error {
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key must be provided")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant ID must be provided")
	}
	if r.AccountRef == "" {
		return fmt.Errorf("account ref must be provided")
	}
	if r.Money.Amount == "" || r.Money.Currency == "" {
		return fmt.Errorf("money amount and currency must be provided")
	}
	return nil
}

// ReleaseRequest releases a previously reserved hold.
type ReleaseRequest struct {
	IdempotencyKey string `json:"-"`
	TenantID       string `json:"tenantId"`
	HoldID         string `json:"holdId"`
}

func (r ReleaseRequest) validate() error {
	if r.IdempotencyKey == "" {
		return fmt.Errorf("idempotency key must be provided")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant ID must be provided")
	}
	if r.HoldID == "" {
		return fmt.Errorf("hold ID must be provided")
	}
	return nil
}

// HoldResult is the outcome of a hold request.
type HoldResult struct {
	HoldID     string          `json:"holdId"`
	Status     OperationStatus `json:"status"`
	CreateDate time.Time       `json:"createDate"`
}

func holdResultFromOperation(op *Operation) *HoldResult {
	return &HoldResult{
		HoldID:     op.HoldID,
		Status:     op.Status,
		CreateDate: op.CreateDate,
	}
}

type operationResponse struct {
	Data Operation `json:"data"`
}

func parseOperationResponse(resp *http.Response) (*Operation, error) {
	var opResponse operationResponse
	if err := json.NewDecoder(resp.Body).Decode(&opResponse); err != nil {
		return nil, fmt.Errorf("decoding operation response: %w", err)
	}
	defer resp.Body.Close()

	return &opResponse.Data, nil
}
