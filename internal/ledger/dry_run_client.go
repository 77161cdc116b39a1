package ledger

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paymenthub/payment-engine-backend/internal/log"
)

type heldFunds struct {
	AccountRef string
	Money      Money
}

// DryRunClient books operations against in-memory balances, for tests and
// environments running without a real ledger service.
type DryRunClient struct {
	mu         sync.Mutex
	balances   map[string]decimal.Decimal
	holds      map[string]heldFunds
	operations map[string]*Operation
}

func NewDryRunClient() *DryRunClient {
	return &DryRunClient{
		balances:   map[string]decimal.Decimal{},
		holds:      map[string]heldFunds{},
		operations: map[string]*Operation{},
	}
}

// SetBalance seeds the available balance of an account.
func (c *DryRunClient) SetBalance(accountRef string, balance string) error {
	amount, err := decimal.NewFromString(balance)
	if err != nil {
		return fmt.Errorf("parsing balance %q: %w", balance, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[accountRef] = amount
	return nil
}

func (c *DryRunClient) Ping(_ context.Context) (bool, error) {
	return true, nil
}

func (c *DryRunClient) Hold(ctx context.Context, holdReq HoldRequest) (*HoldResult, error) {
	if err := holdReq.validate(); err != nil {
		return nil, fmt.Errorf("validating hold request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if op, ok := c.operations[holdReq.IdempotencyKey]; ok {
		return holdResultFromOperation(op), nil
	}

	amount, err := decimal.NewFromString(holdReq.Money.Amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", holdReq.Money.Amount, err)
	}

	balance := c.balances[holdReq.AccountRef]
	if balance.LessThan(amount) {
		return nil, fmt.Errorf("API error: %w", &APIError{
			Code:       ErrorCodeInsufficientFunds,
			Message:    fmt.Sprintf("account %s has %s available, %s requested", holdReq.AccountRef, balance, amount),
			StatusCode: http.StatusUnprocessableEntity,
		})
	}

	c.balances[holdReq.AccountRef] = balance.Sub(amount)
	holdID := uuid.NewString()
	c.holds[holdID] = heldFunds{AccountRef: holdReq.AccountRef, Money: holdReq.Money}

	op := c.bookOperation(holdReq.IdempotencyKey, OperationTypeHold, holdReq.TenantID, holdReq.AccountRef, holdID, holdReq.Money)
	log.Ctx(ctx).Infof("[DRY_RUN Ledger] Held %s %s on account %s (hold %s)", holdReq.Money.Amount, holdReq.Money.Currency, holdReq.AccountRef, holdID)
	return holdResultFromOperation(op), nil
}

func (c *DryRunClient) Debit(ctx context.Context, debitReq DebitRequest) (*Operation, error) {
	if err := debitReq.validate(); err != nil {
		return nil, fmt.Errorf("validating debit request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if op, ok := c.operations[debitReq.IdempotencyKey]; ok {
		return op, nil
	}

	if debitReq.HoldID != "" {
		// The held funds were already put aside when the hold was booked.
		if _, ok := c.holds[debitReq.HoldID]; !ok {
			return nil, fmt.Errorf("API error: %w", &APIError{
				Code:       ErrorCodeHoldNotFound,
				Message:    fmt.Sprintf("hold %s does not exist", debitReq.HoldID),
				StatusCode: http.StatusNotFound,
			})
		}
		delete(c.holds, debitReq.HoldID)
	} else {
		amount, err := decimal.NewFromString(debitReq.Money.Amount)
		if err != nil {
			return nil, fmt.Errorf("parsing amount %q: %w", debitReq.Money.Amount, err)
		}
		balance := c.balances[debitReq.AccountRef]
		if balance.LessThan(amount) {
			return nil, fmt.Errorf("API error: %w", &APIError{
				Code:       ErrorCodeInsufficientFunds,
				Message:    fmt.Sprintf("account %s has %s available, %s requested", debitReq.AccountRef, balance, amount),
				StatusCode: http.StatusUnprocessableEntity,
			})
		}
		c.balances[debitReq.AccountRef] = balance.Sub(amount)
	}

	op := c.bookOperation(debitReq.IdempotencyKey, OperationTypeDebit, debitReq.TenantID, debitReq.AccountRef, debitReq.HoldID, debitReq.Money)
	log.Ctx(ctx).Infof("[DRY_RUN Ledger] Debited %s %s from account %s", debitReq.Money.Amount, debitReq.Money.Currency, debitReq.AccountRef)
	return op, nil
}

func (c *DryRunClient) Credit(ctx context.Context, creditReq CreditRequest) (*Operation, error) {
	if err := creditReq.validate(); err != nil {
		return nil, fmt.Errorf("validating credit request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if op, ok := c.operations[creditReq.IdempotencyKey]; ok {
		return op, nil
	}

	amount, err := decimal.NewFromString(creditReq.Money.Amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", creditReq.Money.Amount, err)
	}
	c.balances[creditReq.AccountRef] = c.balances[creditReq.AccountRef].Add(amount)

	op := c.bookOperation(creditReq.IdempotencyKey, OperationTypeCredit, creditReq.TenantID, creditReq.AccountRef, "", creditReq.Money)
	log.Ctx(ctx).Infof("[DRY_RUN Ledger] Credited %s %s to account %s", creditReq.Money.Amount, creditReq.Money.Currency, creditReq.AccountRef)
	return op, nil
}

func (c *DryRunClient) ReleaseHold(ctx context.Context, releaseReq ReleaseRequest) (*Operation, error) {
	if err := releaseReq.validate(); err != nil {
		return nil, fmt.Errorf("validating release request: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if op, ok := c.operations[releaseReq.IdempotencyKey]; ok {
		return op, nil
	}

	held, ok := c.holds[releaseReq.HoldID]
	if !ok {
		return nil, fmt.Errorf("API error: %w", &APIError{
			Code:       ErrorCodeHoldNotFound,
			Message:    fmt.Sprintf("hold %s does not exist", releaseReq.HoldID),
			StatusCode: http.StatusNotFound,
		})
	}

	amount, err := decimal.NewFromString(held.Money.Amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", held.Money.Amount, err)
	}
	c.balances[held.AccountRef] = c.balances[held.AccountRef].Add(amount)
	delete(c.holds, releaseReq.HoldID)

	op := c.bookOperation(releaseReq.IdempotencyKey, OperationTypeRelease, "", held.AccountRef, releaseReq.HoldID, held.Money)
	log.Ctx(ctx).Infof("[DRY_RUN Ledger] Released hold %s back to account %s", releaseReq.HoldID, held.AccountRef)
	return op, nil
}

func (c *DryRunClient) GetOperation(_ context.Context, idempotencyKey string) (*Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op, ok := c.operations[idempotencyKey]
	if !ok {
		return nil, ErrOperationNotFound
	}
	return op, nil
}

// Balance returns the available balance of an account, for test assertions.
func (c *DryRunClient) Balance(accountRef string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[accountRef]
}

func (c *DryRunClient) bookOperation(idempotencyKey string, opType OperationType, tenantID, accountRef, holdID string, money Money) *Operation {
	op := &Operation{
		ID:             uuid.NewString(),
		IdempotencyKey: idempotencyKey,
		Type:           opType,
		Status:         OperationStatusComplete,
		TenantID:       tenantID,
		AccountRef:     accountRef,
		HoldID:         holdID,
		Money:          money,
		CreateDate:     time.Now(),
	}
	c.operations[idempotencyKey] = op
	return op
}

var _ AdapterInterface = (*DryRunClient)(nil)
