package domain

// State is the folded output of every domain, keyed by domain name.
type State map[string]any

// Clone returns a shallow copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Reducer folds an action payload into a domain's state and returns the next
// state. Reducers must not mutate their input.
type Reducer func(state any, payload any) any

// Domain owns one key of a repo's state.
type Domain interface {
	// InitialState returns the state before any action was folded.
	InitialState() any
	// Register maps action types to reducers.
	Register() map[string]Reducer
}

// Serializer is implemented by domains whose state needs translation before
// being persisted or after being restored.
type Serializer interface {
	Serialize(state any) any
	Deserialize(raw any) any
}

// DomainFunc builds a Domain from an initial state and reducer table.
type DomainFunc struct {
	Initial  any
	Handlers map[string]Reducer
}

// InitialState implements Domain.
func (d DomainFunc) InitialState() any { return d.Initial }

// Register implements Domain.
func (d DomainFunc) Register() map[string]Reducer { return d.Handlers }
