package workflow

import (
	"context"
	"fmt"
	"sort"
)

// Guard reports why a configured transition cannot fire right now. A nil error lets it through.
type Guard func(ctx context.Context) error

// Transition is one edge of a demande chart
type Transition struct {
	From    State
	Trigger Trigger
	To      State
	guard   Guard
}

// Builder collects the transitions of a chart. Configuration mistakes are
// remembered and reported by Build, so chained calls stay readable.
type Builder struct {
	edges map[State]map[Trigger]Transition
	err   error
}

// StateConfig adds transitions leaving one state
type StateConfig struct {
	b    *Builder
	from State
}

// NewBuilder creates an empty builder
func NewBuilder() *Builder {
	return &Builder{edges: make(map[State]map[Trigger]Transition)}
}

// Configure returns the configuration of the transitions leaving state
func (b *Builder) Configure(state State) *StateConfig {
	if !state.IsValid() {
		b.fail("invalid state %q", state)
	} else if b.edges[state] == nil {
		b.edges[state] = make(map[Trigger]Transition)
	}
	return &StateConfig{b: b, from: state}
}

func (b *Builder) fail(format string, args ...interface{}) {
	if b.err == nil {
		b.err = fmt.Errorf(format, args...)
	}
}

// Permit lets trigger move the demande to toState
func (c *StateConfig) Permit(trigger Trigger, toState State) *StateConfig {
	return c.PermitIf(trigger, toState, nil)
}

// PermitIf lets trigger move the demande to toState once guard passes.
// A trigger leads to a single destination from any state.
func (c *StateConfig) PermitIf(trigger Trigger, toState State, guard Guard) *StateConfig {
	switch edges := c.b.edges[c.from]; {
	case edges == nil:
		// Configure already recorded the invalid source
	case !toState.IsValid():
		c.b.fail("invalid target state %q from %s", toState, c.from)
	case edges[trigger].Trigger != "":
		c.b.fail("%s already configured from %s", trigger, c.from)
	default:
		edges[trigger] = Transition{From: c.from, Trigger: trigger, To: toState, guard: guard}
	}
	return c
}

// Build returns a machine positioned at initial. Machines share the
// builder's edges, which must not be configured further.
func (b *Builder) Build(initial State) (*Machine, error) {
	if b.err != nil {
		return nil, b.err
	}
	if !initial.IsValid() {
		return nil, fmt.Errorf("invalid initial state %q", initial)
	}
	return &Machine{current: initial, edges: b.edges}, nil
}

// Machine tracks the status of one demande and validates transitions
type Machine struct {
	current State
	edges   map[State]map[Trigger]Transition
}

// State returns the current state
func (m *Machine) State() State {
	return m.current
}

// Destination returns where trigger leads from the current state, ignoring guards
func (m *Machine) Destination(trigger Trigger) (State, bool) {
	t, ok := m.edges[m.current][trigger]
	return t.To, ok
}

// CanFire reports whether trigger is configured from the current state. Guards are not evaluated.
func (m *Machine) CanFire(trigger Trigger) bool {
	_, ok := m.Destination(trigger)
	return ok
}

// Fire moves the machine along trigger and returns the edge taken.
// A failing guard leaves the state unchanged and wraps ErrGuardFailed with the guard's reason.
func (m *Machine) Fire(ctx context.Context, trigger Trigger) (Transition, error) {
	t, ok := m.edges[m.current][trigger]
	if !ok {
		return Transition{}, fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	if t.guard != nil {
		if reason := t.guard(ctx); reason != nil {
			return Transition{}, fmt.Errorf("%w: %w: %v", ErrInvalidTransition, ErrGuardFailed, reason)
		}
	}
	m.current = t.To
	return t, nil
}

// PermittedTriggers returns the triggers configured from the current state, sorted
func (m *Machine) PermittedTriggers() []Trigger {
	triggers := make([]Trigger, 0, len(m.edges[m.current]))
	for trigger := range m.edges[m.current] {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
