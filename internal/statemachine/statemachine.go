// Package statemachine is the small guarded state-transition helper
// shared by the Agent Client (C5) and Session Coordinator (C8), both
// of which need the same shape: an explicit state enum, a transition
// table, and a mutex-guarded Transition call that rejects illegal
// moves instead of silently applying them.
package statemachine

import (
	"fmt"
	"sync"
)

// State is a node name in a Machine's transition graph.
type State string

// Machine guards a current State against a fixed table of legal
// transitions.
type Machine struct {
	mu      sync.Mutex
	current State
	table   map[State]map[State]bool
}

// New builds a Machine starting at initial, legal according to table
// (table[from][to] == true means from->to is allowed).
func New(initial State, table map[State]map[State]bool) *Machine {
	return &Machine{current: initial, table: table}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition moves the machine to next if the table allows it from
// the current state, returning ErrInvalidTransition otherwise.
func (m *Machine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.table[m.current][next] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.current, next)
	}
	m.current = next
	return nil
}

// Require returns ErrInvalidTransition unless the machine is
// currently in one of the given states, without mutating state.
// Useful for guarding calls (e.g. Query) that don't themselves cause
// a transition but are only legal from certain states.
func (m *Machine) Require(states ...State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range states {
		if m.current == s {
			return nil
		}
	}
	return fmt.Errorf("%w: currently %s", ErrInvalidTransition, m.current)
}

// ErrInvalidTransition is returned by Transition/Require for any move
// the table does not permit.
var ErrInvalidTransition = errInvalidTransition{}

type errInvalidTransition struct{}

func (errInvalidTransition) Error() string { return "statemachine: invalid transition" }
