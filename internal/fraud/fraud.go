package fraud

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

// Decision is the verdict a scorer returns for a payment.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
	DecisionDecline Decision = "DECLINE"
)

func ParseDecision(decisionStr string) (Decision, error) {
	d := Decision(strings.ToUpper(strings.TrimSpace(decisionStr)))
	switch d {
	case DecisionApprove, DecisionReview, DecisionDecline:
		return d, nil
	}
	return "", fmt.Errorf("invalid fraud decision %q", decisionStr)
}

// ScoreRequest carries the payment attributes submitted for scoring.
type ScoreRequest struct {
	PaymentID       string          `json:"paymentId"`
	TenantID        string          `json:"tenantId"`
	UETR            string          `json:"uetr"`
	PaymentTypeCode string          `json:"paymentTypeCode"`
	LocalInstrument string          `json:"localInstrument,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	DebtorName      string          `json:"debtorName,omitempty"`
	DebtorAccount   string          `json:"debtorAccount"`
	CreditorName    string          `json:"creditorName,omitempty"`
	CreditorAccount string          `json:"creditorAccount"`
	CreditorAgent   string          `json:"creditorAgentBic,omitempty"`
}

func (r ScoreRequest) validate() error {
	if r.PaymentID == "" {
		return fmt.Errorf("payment ID is required")
	}
	if r.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if r.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	return nil
}

// ScoreResult is the provider's verdict. Score is normalized to [0, 100].
type ScoreResult struct {
	Score    float64  `json:"score"`
	Decision Decision `json:"decision"`
	Reasons  []string `json:"reasons,omitempty"`
}

// ScorerInterface scores payments for fraud risk.
type ScorerInterface interface {
	Score(ctx context.Context, scoreReq ScoreRequest) (*ScoreResult, error)
}

// Enabled reports whether fraud scoring applies to the payment under the
// tenant's toggle matrix. Toggles match on payment type, local instrument
// and clearing system, empty toggle fields acting as wildcards; the most
// specific match wins and ties go to the earliest toggle. With no matching
// toggle the top-level flag decides.
func Enabled(cfg tenant.FraudConfig, payment *data.Payment) bool {
	if payment == nil {
		return cfg.Enabled
	}

	enabled := cfg.Enabled
	bestSpecificity := -1
	for _, toggle := range cfg.Toggles {
		specificity, ok := toggleSpecificity(toggle, payment)
		if !ok {
			continue
		}
		if specificity > bestSpecificity {
			bestSpecificity = specificity
			enabled = toggle.Enabled
		}
	}
	return enabled
}

// toggleSpecificity reports how many non-wildcard fields the toggle pins
// down, and whether all of them match the payment.
func toggleSpecificity(toggle tenant.FraudToggle, payment *data.Payment) (int, bool) {
	specificity := 0
	if toggle.PaymentType != "" {
		if !strings.EqualFold(toggle.PaymentType, payment.PaymentTypeCode) {
			return 0, false
		}
		specificity++
	}
	if toggle.LocalInstrument != "" {
		if !strings.EqualFold(toggle.LocalInstrument, payment.LocalInstrument) {
			return 0, false
		}
		specificity++
	}
	if toggle.ClearingSystem != "" {
		if payment.Rail == "" || !strings.EqualFold(toggle.ClearingSystem, string(payment.Rail)) {
			return 0, false
		}
		specificity++
	}
	return specificity, true
}
