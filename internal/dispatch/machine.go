package dispatch

import (
	"fmt"
	"time"
)

// State is a dispatcher lifecycle state
type State string

const (
	StateIdle                 State = "idle"
	StateClassifying          State = "classifying"
	StateRecommending         State = "recommending"
	StateFitting              State = "fitting"
	StateNormalizing          State = "normalizing"
	StateDone                 State = "done"
	StateAllFailed            State = "all_failed"
	StatePreconditionRejected State = "precondition_rejected"
	StateFailed               State = "failed"
	StateCancelled            State = "cancelled"
)

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

var transitions = map[State][]State{
	StateIdle:         {StateClassifying, StateFitting, StatePreconditionRejected},
	StateClassifying:  {StateRecommending},
	StateRecommending: {StateFitting, StateAllFailed},
	StateFitting:      {StateFitting, StateNormalizing, StateAllFailed, StateFailed, StateCancelled},
	StateNormalizing:  {StateDone, StateFitting, StateAllFailed, StateFailed, StateCancelled},
}

// Transition is one step of a dispatch trace. Index is the candidate
// position for fitting steps and -1 otherwise.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Method string    `json:"method,omitempty"`
	Index  int       `json:"index"`
	At     time.Time `json:"at"`
}

// machine tracks one dispatch. It is owned by a single goroutine.
type machine struct {
	state State
	trace []Transition
}

func newMachine() *machine {
	return &machine{state: StateIdle}
}

// to moves to next. An illegal transition is a dispatcher bug and panics.
func (m *machine) to(next State, method string, index int) {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.trace = append(m.trace, Transition{From: m.state, To: next, Method: method, Index: index, At: time.Now().UTC()})
			m.state = next
			return
		}
	}
	panic(fmt.Sprintf("dispatch: illegal transition %s -> %s", m.state, next))
}

func (m *machine) step(next State) {
	m.to(next, "", -1)
}

func (m *machine) snapshot() []Transition {
	return append([]Transition(nil), m.trace...)
}
