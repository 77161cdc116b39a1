package data

import (
	"fmt"
	"strings"
)

type SagaStatus string

const (
	RunningSagaStatus      SagaStatus = "RUNNING"
	CompletedSagaStatus    SagaStatus = "COMPLETED"
	CompensatingSagaStatus SagaStatus = "COMPENSATING"
	CompensatedSagaStatus  SagaStatus = "COMPENSATED"
	FailedSagaStatus       SagaStatus = "FAILED"
)

func (status SagaStatus) Validate() error {
	switch SagaStatus(strings.ToUpper(string(status))) {
	case RunningSagaStatus, CompletedSagaStatus, CompensatingSagaStatus,
		CompensatedSagaStatus, FailedSagaStatus:
		return nil
	default:
		return fmt.Errorf("invalid saga status: %s", status)
	}
}

func (status SagaStatus) IsTerminal() bool {
	switch status {
	case CompletedSagaStatus, CompensatedSagaStatus, FailedSagaStatus:
		return true
	default:
		return false
	}
}

// TransitionTo transitions the saga status to the target state
func (status SagaStatus) TransitionTo(targetState SagaStatus) error {
	return SagaStateMachineWithInitialState(status).TransitionTo(targetState.State())
}

// SagaStateMachineWithInitialState returns a state machine for sagas initialized with the given state.
// FAILED is reachable only through COMPENSATING: a saga that cannot undo its
// completed steps is the one that needs an operator.
func SagaStateMachineWithInitialState(initialState SagaStatus) *StateMachine {
	transitions := map[State][]State{
		RunningSagaStatus.State(): {
			CompletedSagaStatus.State(),
			CompensatingSagaStatus.State(),
		},
		CompensatingSagaStatus.State(): {
			CompensatedSagaStatus.State(),
			FailedSagaStatus.State(),
		},
	}

	return NewStateMachine(initialState.State(), transitions)
}

func (status SagaStatus) State() State {
	return State(status)
}

type SagaStepStatus string

const (
	PendingSagaStepStatus      SagaStepStatus = "PENDING"
	RunningSagaStepStatus      SagaStepStatus = "RUNNING"
	SucceededSagaStepStatus    SagaStepStatus = "SUCCEEDED"
	FailedSagaStepStatus       SagaStepStatus = "FAILED"
	CompensatingSagaStepStatus SagaStepStatus = "COMPENSATING"
	CompensatedSagaStepStatus  SagaStepStatus = "COMPENSATED"
	SkippedSagaStepStatus      SagaStepStatus = "SKIPPED"
)

func (status SagaStepStatus) Validate() error {
	switch SagaStepStatus(strings.ToUpper(string(status))) {
	case PendingSagaStepStatus, RunningSagaStepStatus, SucceededSagaStepStatus,
		FailedSagaStepStatus, CompensatingSagaStepStatus, CompensatedSagaStepStatus,
		SkippedSagaStepStatus:
		return nil
	default:
		return fmt.Errorf("invalid saga step status: %s", status)
	}
}

// CompensationStatus tracks the undo of an individual succeeded step. It is
// kept apart from the step status so a step stays SUCCEEDED while its
// compensation is in flight.
type CompensationStatus string

const (
	CompensatingCompensationStatus CompensationStatus = "COMPENSATING"
	CompensatedCompensationStatus  CompensationStatus = "COMPENSATED"
	FailedCompensationStatus       CompensationStatus = "COMPENSATION_FAILED"
)
