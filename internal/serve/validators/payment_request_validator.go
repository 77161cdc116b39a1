package validators

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
)

// PaymentPartyRequest identifies one side of a credit transfer. Account
// identifiers are opaque to the engine and only keyed into the ledger.
type PaymentPartyRequest struct {
	Name     string `json:"name"`
	Account  string `json:"account"`
	AgentBIC string `json:"agent_bic,omitempty"`
}

// PaymentRequest is the canonical JSON initiation body accepted on
// POST /payments. The alternative intake is a raw pain.001 document on
// POST /iso20022/pain001.
type PaymentRequest struct {
	PaymentTypeCode        string              `json:"payment_type_code"`
	LocalInstrument        string              `json:"local_instrument,omitempty"`
	Amount                 string              `json:"amount"`
	Currency               string              `json:"currency"`
	Debtor                 PaymentPartyRequest `json:"debtor"`
	Creditor               PaymentPartyRequest `json:"creditor"`
	EndToEndID             string              `json:"end_to_end_id,omitempty"`
	InstructionID          string              `json:"instruction_id,omitempty"`
	RemittanceInfo         string              `json:"remittance_info,omitempty"`
	RequestedExecutionDate string              `json:"requested_execution_date,omitempty"`
}

type PaymentRequestValidator struct {
	*Validator
}

func NewPaymentRequestValidator() *PaymentRequestValidator {
	return &PaymentRequestValidator{Validator: NewValidator()}
}

// ValidateAndGetAmount runs the structural checks acceptance performs before
// a payment row is created. Business validation (tenant policy, routing)
// happens inside the saga so it can be retried and compensated.
func (v *PaymentRequestValidator) ValidateAndGetAmount(req *PaymentRequest) decimal.Decimal {
	v.Check(strings.TrimSpace(req.PaymentTypeCode) != "", "payment_type_code", "payment_type_code is required")

	v.Check(strings.TrimSpace(req.Debtor.Name) != "", "debtor.name", "debtor.name is required")
	v.Check(strings.TrimSpace(req.Debtor.Account) != "", "debtor.account", "debtor.account is required")
	v.Check(strings.TrimSpace(req.Creditor.Name) != "", "creditor.name", "creditor.name is required")
	v.Check(strings.TrimSpace(req.Creditor.Account) != "", "creditor.account", "creditor.account is required")

	if req.RequestedExecutionDate != "" {
		_, err := time.Parse("2006-01-02", req.RequestedExecutionDate)
		v.CheckError(err, "requested_execution_date", "invalid date format. valid format is 'YYYY-MM-DD'")
	}

	money, err := iso20022.NewMoney(req.Amount, req.Currency)
	if err != nil {
		v.CheckError(err, "amount", "")
		return decimal.Zero
	}
	v.Check(money.IsPositive(), "amount", "amount must be greater than zero")

	return money.Amount
}
