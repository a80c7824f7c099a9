package engine

import "fmt"

// ReplayError reports which event of a replayed log broke the state.
type ReplayError struct {
	Index int
	Err   error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay stopped at event %d: %v", e.Index, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}

// Replay builds the state a scenario reaches after the given events.
// On failure the partially replayed state is returned alongside the error.
func Replay(catalog Catalog, scenario *Scenario, events []Event) (*State, error) {
	state, err := NewStateFromScenario(scenario)
	if err != nil {
		return nil, err
	}
	return state, ApplyAll(state, catalog, events)
}

// ApplyAll applies events in order and stops at the first failure.
func ApplyAll(state *State, catalog Catalog, events []Event) error {
	for i, ev := range events {
		if err := state.Apply(catalog, ev); err != nil {
			return &ReplayError{Index: i, Err: err}
		}
	}
	return nil
}
