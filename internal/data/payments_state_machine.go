package data

import (
	"fmt"
	"strings"
)

type PaymentStatus string

const (
	InitiatedPaymentStatus         PaymentStatus = "INITIATED"
	ValidatedPaymentStatus         PaymentStatus = "VALIDATED"
	FundsReservedPaymentStatus     PaymentStatus = "FUNDS_RESERVED"
	RoutedPaymentStatus            PaymentStatus = "ROUTED"
	ClearingSubmittedPaymentStatus PaymentStatus = "CLEARING_SUBMITTED"
	ClearingAcceptedPaymentStatus  PaymentStatus = "CLEARING_ACCEPTED"
	SettledPaymentStatus           PaymentStatus = "SETTLED"
	ClearingRejectedPaymentStatus  PaymentStatus = "CLEARING_REJECTED"
	FailedPaymentStatus            PaymentStatus = "FAILED"
	ReversedPaymentStatus          PaymentStatus = "REVERSED"
	CancelledPaymentStatus         PaymentStatus = "CANCELLED"
)

// Validate validates the payment status
func (status PaymentStatus) Validate() error {
	switch PaymentStatus(strings.ToUpper(string(status))) {
	case InitiatedPaymentStatus, ValidatedPaymentStatus, FundsReservedPaymentStatus,
		RoutedPaymentStatus, ClearingSubmittedPaymentStatus, ClearingAcceptedPaymentStatus,
		SettledPaymentStatus, ClearingRejectedPaymentStatus, FailedPaymentStatus,
		ReversedPaymentStatus, CancelledPaymentStatus:
		return nil
	default:
		return fmt.Errorf("invalid payment status: %s", status)
	}
}

// IsTerminal reports whether the status admits no further transitions.
// Terminal payments keep their UETR dedupe row for the retention window only.
func (status PaymentStatus) IsTerminal() bool {
	switch status {
	case SettledPaymentStatus, ClearingRejectedPaymentStatus, FailedPaymentStatus,
		ReversedPaymentStatus, CancelledPaymentStatus:
		return true
	default:
		return false
	}
}

// TransitionTo transitions the payment status to the target state
func (status PaymentStatus) TransitionTo(targetState PaymentStatus) error {
	return PaymentStateMachineWithInitialState(status).TransitionTo(targetState.State())
}

// PaymentStateMachineWithInitialState returns a state machine for payments initialized with the given state
func PaymentStateMachineWithInitialState(initialState PaymentStatus) *StateMachine {
	transitions := map[State][]State{
		InitiatedPaymentStatus.State(): {
			ValidatedPaymentStatus.State(),
			FailedPaymentStatus.State(),
			CancelledPaymentStatus.State(),
		},
		ValidatedPaymentStatus.State(): {
			FundsReservedPaymentStatus.State(),
			FailedPaymentStatus.State(),
			CancelledPaymentStatus.State(),
		},
		FundsReservedPaymentStatus.State(): {
			RoutedPaymentStatus.State(),
			FailedPaymentStatus.State(),
			CancelledPaymentStatus.State(),
		},
		RoutedPaymentStatus.State(): {
			ClearingSubmittedPaymentStatus.State(),
			FailedPaymentStatus.State(),
			CancelledPaymentStatus.State(),
		},
		ClearingSubmittedPaymentStatus.State(): {
			ClearingAcceptedPaymentStatus.State(),
			ClearingRejectedPaymentStatus.State(),
			FailedPaymentStatus.State(),
			CancelledPaymentStatus.State(),
		},
		ClearingAcceptedPaymentStatus.State(): {
			SettledPaymentStatus.State(),
			ReversedPaymentStatus.State(),
			FailedPaymentStatus.State(),
		},
	}

	return NewStateMachine(initialState.State(), transitions)
}

// PaymentStatuses returns a list of all possible payment statuses
func PaymentStatuses() []PaymentStatus {
	return []PaymentStatus{
		InitiatedPaymentStatus, ValidatedPaymentStatus, FundsReservedPaymentStatus,
		RoutedPaymentStatus, ClearingSubmittedPaymentStatus, ClearingAcceptedPaymentStatus,
		SettledPaymentStatus, ClearingRejectedPaymentStatus, FailedPaymentStatus,
		ReversedPaymentStatus, CancelledPaymentStatus,
	}
}

// TerminalPaymentStatuses returns the subset of statuses with no outgoing transitions.
func TerminalPaymentStatuses() []PaymentStatus {
	statuses := []PaymentStatus{}
	for _, status := range PaymentStatuses() {
		if status.IsTerminal() {
			statuses = append(statuses, status)
		}
	}
	return statuses
}

// SourceStatuses returns a list of states that the payment status can transition from given the target state
func (status PaymentStatus) SourceStatuses() []PaymentStatus {
	stateMachine := PaymentStateMachineWithInitialState(InitiatedPaymentStatus)
	fromStates := []PaymentStatus{}
	for _, fromState := range PaymentStatuses() {
		if stateMachine.Transitions[fromState.State()][status.State()] {
			fromStates = append(fromStates, fromState)
		}
	}
	return fromStates
}

// ToPaymentStatus converts a string to a PaymentStatus
func ToPaymentStatus(s string) (PaymentStatus, error) {
	err := PaymentStatus(s).Validate()
	if err != nil {
		return "", err
	}

	return PaymentStatus(strings.ToUpper(s)), nil
}

func (status PaymentStatus) State() State {
	return State(status)
}
