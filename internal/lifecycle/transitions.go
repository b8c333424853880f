package lifecycle

import "fieldops/internal/model"

// Event names a requested lifecycle action.
type Event string

const (
	EventStart    Event = "start"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
	// EventDelete and EventUpdate are guarded actions that do not move status.
	EventDelete Event = "delete"
	EventUpdate Event = "update"
)

// Transition is a single allowed edge in the operation state machine.
type Transition struct {
	From  model.OperationStatus
	To    model.OperationStatus
	Event Event
}

var transitionsTable = []Transition{
	{From: model.StatusPlanned, To: model.StatusActive, Event: EventStart},
	{From: model.StatusPlanned, To: model.StatusCancelled, Event: EventCancel},
	{From: model.StatusActive, To: model.StatusCompleted, Event: EventComplete},
	{From: model.StatusActive, To: model.StatusCancelled, Event: EventCancel},
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from model.OperationStatus, ev Event) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Transitions returns a copy of the transition table.
func Transitions() []Transition {
	return append([]Transition(nil), transitionsTable...)
}
