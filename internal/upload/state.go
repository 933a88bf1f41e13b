package upload

import (
	"errors"
	"fmt"
	"strings"
)

// Status represents the lifecycle of an upload task.
type Status string

const (
	StatusSubmitting           Status = "submitting"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusConfirmed            Status = "confirmed"
	StatusFailed               Status = "failed"
	// StatusRemoved marks a task whose row was detached by the user.
	StatusRemoved Status = "removed"
)

// ErrInvalidTransition is returned by Next for events the current state does not accept.
var ErrInvalidTransition = errors.New("invalid upload transition")

// State is the status of a task plus the data of its terminal outcome.
type State struct {
	Status    Status
	Reference string
	Failure   *Failure
}

// InitialState is the state of a freshly selected task.
func InitialState() State {
	return State{Status: StatusSubmitting}
}

// InFlight reports whether the task still waits on the intake service.
func (s State) InFlight() bool {
	return s.Status == StatusSubmitting || s.Status == StatusAwaitingConfirmation
}

// Terminal reports whether no further outcome can change the state.
func (s State) Terminal() bool {
	switch s.Status {
	case StatusConfirmed, StatusFailed, StatusRemoved:
		return true
	default:
		return false
	}
}

// Occupied reports whether the task counts towards the file cap.
func (s State) Occupied() bool {
	return s.InFlight() || s.Status == StatusConfirmed
}

func (s State) String() string {
	switch s.Status {
	case StatusConfirmed:
		return fmt.Sprintf("%s(%s)", s.Status, s.Reference)
	case StatusFailed:
		if s.Failure != nil {
			return fmt.Sprintf("%s(%s)", s.Status, s.Failure.Kind)
		}
	}
	return string(s.Status)
}

// Event is an input to Next.
type Event interface {
	eventName() string
}

// Accepted reports that the intake service took the file for asynchronous scanning.
type Accepted struct{}

// Confirmed reports the reference issued for the file.
type Confirmed struct {
	Reference string
}

// Failed reports a fatal outcome.
type Failed struct {
	Failure Failure
}

// Removed reports that the user detached the task's row.
type Removed struct{}

func (Accepted) eventName() string  { return "accepted" }
func (Confirmed) eventName() string { return "confirmed" }
func (Failed) eventName() string    { return "failed" }
func (Removed) eventName() string   { return "removed" }

// Next returns the state that follows current on ev. It has no side effects.
func Next(current State, ev Event) (State, error) {
	switch e := ev.(type) {
	case Accepted:
		if current.Status == StatusSubmitting {
			return State{Status: StatusAwaitingConfirmation}, nil
		}
	case Confirmed:
		if current.InFlight() {
			if strings.TrimSpace(e.Reference) == "" {
				return current, fmt.Errorf("%w: confirmed without reference", ErrInvalidTransition)
			}
			return State{Status: StatusConfirmed, Reference: e.Reference}, nil
		}
	case Failed:
		if current.InFlight() {
			failure := e.Failure
			return State{Status: StatusFailed, Failure: &failure}, nil
		}
	case Removed:
		if current.InFlight() || current.Status == StatusConfirmed || current.Status == StatusFailed {
			return State{Status: StatusRemoved, Reference: current.Reference}, nil
		}
	case nil:
		return current, fmt.Errorf("%w: nil event", ErrInvalidTransition)
	}
	return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev.eventName(), current.Status)
}
