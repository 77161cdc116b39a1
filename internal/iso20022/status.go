package iso20022

// TransactionStatus is the ISO 20022 payment transaction status code set used
// in pain.002 and pacs.002 (TxSts / GrpSts).
type TransactionStatus string

const (
	StatusAcceptedTechnical         TransactionStatus = "ACTC"
	StatusAccepted                  TransactionStatus = "ACCP"
	StatusAcceptedSettlementProcess TransactionStatus = "ACSP"
	StatusAcceptedSettled           TransactionStatus = "ACSC"
	StatusPending                   TransactionStatus = "PDNG"
	StatusRejected                  TransactionStatus = "RJCT"
	StatusCancelled                 TransactionStatus = "CANC"
)

// IsFinal reports whether the status terminates the rail-side lifecycle.
func (s TransactionStatus) IsFinal() bool {
	switch s {
	case StatusAcceptedSettled, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// IsAccepted reports whether the status is any of the acceptance family.
func (s TransactionStatus) IsAccepted() bool {
	switch s {
	case StatusAcceptedTechnical, StatusAccepted, StatusAcceptedSettlementProcess, StatusAcceptedSettled:
		return true
	}
	return false
}

// ReasonCode is the fixed external reason enumeration carried in StsRsnInf.
// Internal diagnostics never leak here.
type ReasonCode string

const (
	ReasonFraud              ReasonCode = "FR01" // fraud decline
	ReasonInsufficientFunds  ReasonCode = "AM04" // insufficient funds
	ReasonNotAllowedAmount   ReasonCode = "AM02" // over configured limit
	ReasonIncorrectAccount   ReasonCode = "AC01" // malformed/unknown account
	ReasonTransactionForbidden ReasonCode = "AG01" // payment type/instrument not enabled
	ReasonDuplicate          ReasonCode = "DUPL" // duplicate UETR or replayed instruction
	ReasonAbortedClearing    ReasonCode = "AB06" // clearing unreachable, attempts exhausted
	ReasonRegulatory         ReasonCode = "RR04" // regulatory block
	ReasonCustomerRequest    ReasonCode = "CUST" // customer-requested cancellation
	ReasonTechnicalProblem   ReasonCode = "TECH" // technical/system failure
	ReasonNarrative          ReasonCode = "NARR" // see additional info
)

// CancellationStatus is the camt.029 TxCxlSts code set.
type CancellationStatus string

const (
	CancellationConfirmed CancellationStatus = "CNCL"
	CancellationRejected  CancellationStatus = "RJCR"
	CancellationPending   CancellationStatus = "PDCR"
)
