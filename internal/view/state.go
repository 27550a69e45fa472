// Package view defines the page's view states and the transitions between them.
package view

import (
	"encoding/json"
	"fmt"
)

// State is the mutually exclusive UI mode of the creation page.
type State int

const (
	Form    State = iota // Creation form visible, accepting input
	Loading              // Request in flight, loading indicator visible
	Results              // Generated content visible
)

func (s State) String() string {
	switch s {
	case Form:
		return "form"
	case Loading:
		return "loading"
	case Results:
		return "results"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the state by name so the browser can switch on it.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "form":
		*s = Form
	case "loading":
		*s = Loading
	case "results":
		*s = Results
	default:
		return fmt.Errorf("unknown view state %q", name)
	}
	return nil
}

// Event is something that moves the page between states.
type Event int

const (
	Submit  Event = iota // User submitted the form
	Succeed              // Backend answered with a parseable success response
	Fail                 // Network, server, or parse failure
	Reset                // User activated the reset control
)

func (e Event) String() string {
	switch e {
	case Submit:
		return "submit"
	case Succeed:
		return "succeed"
	case Fail:
		return "fail"
	case Reset:
		return "reset"
	default:
		return "unknown"
	}
}

// TransitionError reports an event that is not legal in the current state.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("view: %s not allowed in %s state", e.Event, e.From)
}

// Transition returns the state reached by applying event to from.
// Reset is accepted from every state; all other events only from the
// state that can produce them.
func Transition(from State, event Event) (State, error) {
	switch event {
	case Reset:
		return Form, nil
	case Submit:
		if from == Form {
			return Loading, nil
		}
	case Succeed:
		if from == Loading {
			return Results, nil
		}
	case Fail:
		if from == Loading {
			return Form, nil
		}
	}
	return from, &TransitionError{From: from, Event: event}
}

// Sections says which page sections are visible.
type Sections struct {
	Form    bool `json:"form"`
	Loading bool `json:"loading"`
	Results bool `json:"results"`
}

// SectionsFor maps a state to section visibility. Exactly one section is visible.
func SectionsFor(s State) Sections {
	return Sections{
		Form:    s == Form,
		Loading: s == Loading,
		Results: s == Results,
	}
}

// HiddenClass returns "hidden" when the section should not be shown.
func (s Sections) HiddenClass(section string) string {
	var visible bool
	switch section {
	case "form":
		visible = s.Form
	case "loading":
		visible = s.Loading
	case "results":
		visible = s.Results
	}
	if visible {
		return ""
	}
	return "hidden"
}
