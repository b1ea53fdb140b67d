package intake

// State is a stage of the intake state machine.
//
//	received -> validated -> deduped(existing) -> responded
//	received -> validated -> persisted -> enriched -> dispatched -> responded
//
// validationFailed and persistenceFailed are terminal.
type State string

const (
	StateReceived          State = "received"
	StateValidated         State = "validated"
	StateDeduped           State = "deduped"
	StatePersisted         State = "persisted"
	StateEnriched          State = "enriched"
	StateDispatched        State = "dispatched"
	StateResponded         State = "responded"
	StateValidationFailed  State = "validation_failed"
	StatePersistenceFailed State = "persistence_failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateResponded, StateValidationFailed, StatePersistenceFailed:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateReceived:   {StateValidated, StateValidationFailed},
	StateValidated:  {StateDeduped, StatePersisted, StatePersistenceFailed},
	StateDeduped:    {StateResponded},
	StatePersisted:  {StateEnriched},
	StateEnriched:   {StateDispatched},
	StateDispatched: {StateResponded},
}

// CanTransition reports whether to is a legal successor of from.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
