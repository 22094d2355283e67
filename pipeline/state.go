package pipeline

import (
	"errors"
	"fmt"
)

// State is the position of a run in the repair pipeline.
type State string

const (
	Received           State = "received"
	Extracted          State = "extracted"
	DirectivesResolved State = "directives_resolved"
	ContentRebuilt     State = "content_rebuilt"
	StructureBuilt     State = "structure_built"
	OrderSorted        State = "order_sorted"
	MetadataSet        State = "metadata_set"
	Validated          State = "validated"
	Accepted           State = "accepted"
	Rejected           State = "rejected"
	Cancelled          State = "cancelled"
	Failed             State = "failed"
)

// ErrIllegalTransition is returned by Advance for a move the pipeline
// never makes.
var ErrIllegalTransition = errors.New("pipeline: illegal state transition")

var forward = map[State]State{
	Received:           Extracted,
	Extracted:          DirectivesResolved,
	DirectivesResolved: ContentRebuilt,
	ContentRebuilt:     StructureBuilt,
	StructureBuilt:     OrderSorted,
	OrderSorted:        MetadataSet,
	MetadataSet:        Validated,
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case Accepted, Rejected, Cancelled, Failed:
		return true
	}
	return false
}

// Machine tracks the state of one run. It is not safe for concurrent use;
// a run owns its machine.
type Machine struct {
	state   State
	history []State
}

func NewMachine() *Machine {
	return &Machine{state: Received, history: []State{Received}}
}

func (m *Machine) State() State { return m.state }

// History returns every state entered, in order.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// Advance moves to next. Stages advance one step at a time; Validated ends
// in Accepted or Rejected; any non-terminal state may end in Cancelled or
// Failed.
func (m *Machine) Advance(next State) error {
	if !m.allowed(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}

func (m *Machine) allowed(next State) bool {
	if m.state.Terminal() {
		return false
	}
	switch next {
	case Cancelled, Failed:
		return true
	case Accepted, Rejected:
		return m.state == Validated
	}
	return forward[m.state] == next
}
