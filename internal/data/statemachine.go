package data

import "fmt"

type State string

// StateMachine validates transitions between states. Transition maps are
// declared once per aggregate (payments, sagas) and checked on every write.
type StateMachine struct {
	CurrentState State
	Transitions  map[State]map[State]bool
}

func NewStateMachine(initialState State, transitions map[State][]State) *StateMachine {
	sm := &StateMachine{
		CurrentState: initialState,
		Transitions:  make(map[State]map[State]bool, len(transitions)),
	}

	for from, targets := range transitions {
		sm.Transitions[from] = make(map[State]bool, len(targets))
		for _, to := range targets {
			sm.Transitions[from][to] = true
		}
	}

	return sm
}

func (sm *StateMachine) CanTransitionTo(targetState State) bool {
	if _, ok := sm.Transitions[sm.CurrentState]; !ok {
		return false
	}
	return sm.Transitions[sm.CurrentState][targetState]
}

func (sm *StateMachine) TransitionTo(targetState State) error {
	if sm.CanTransitionTo(targetState) {
		sm.CurrentState = targetState
		return nil
	}
	return fmt.Errorf("cannot transition from %s to %s", sm.CurrentState, targetState)
}
