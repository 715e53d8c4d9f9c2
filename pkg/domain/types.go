package domain

// YearRecent is used as a result's year when no year could be inferred
// from the backend data or the text.
const YearRecent = "Recent"

// Field is a labeled value rendered under a result, e.g. "Citations: 12".
type Field struct {
	Label string
	Value string
}

// NormalizedResult is the backend independent form of a search hit.
type NormalizedResult struct {
	Title   string
	Summary string
	// Year is a four digit year or YearRecent.
	Year string
	// URL is optional and rendered last.
	URL string
	// Extra holds backend specific fields in render order.
	Extra []Field
}

// DecisionKind says what the oracle wants the controller to do next.
type DecisionKind string

const (
	// DecisionFinal carries the final answer in Decision.Text.
	DecisionFinal DecisionKind = "final"
	// DecisionAction asks for a tool call.
	DecisionAction DecisionKind = "action"
	// DecisionInvalid means the oracle output could not be parsed. Reason
	// explains what was wrong and is fed back as the observation.
	DecisionInvalid DecisionKind = "invalid"
)

// Decision is the parsed output of a single oracle round trip.
type Decision struct {
	Kind     DecisionKind
	Thought  string
	Text     string
	Tool     string
	Argument string
	// CallID links a function call to its response for oracles that use
	// native function calling.
	CallID string
	Raw    string
	Reason string
}

// AgentTurn is one thought/action/observation step of a query.
type AgentTurn struct {
	Thought     string
	Tool        string
	Argument    string
	CallID      string
	Raw         string
	Observation string
}

// State is a controller state.
type State string

const (
	StateIdle         State = "idle"
	StateThinking     State = "thinking"
	StateToolDispatch State = "tool_dispatch"
	StateObserving    State = "observing"
	StateFinished     State = "finished"
	StateFailed       State = "failed"
	StateAborted      State = "aborted"
)

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	switch s {
	case StateFinished, StateFailed, StateAborted:
		return true
	}
	return false
}
