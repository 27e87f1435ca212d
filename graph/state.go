package graph

import (
	"encoding/json"
	"fmt"
)

// Reducer merges a node's partial update into the previous state.
//
// Reducers must be pure and deterministic: given the same prev and delta they
// return the same result. They should only overwrite fields the delta sets and
// append to transcripts rather than replace them.
//
// Example:
//
//	func reduce(prev, delta State) State {
//	    if delta.Answer != "" {
//	        prev.Answer = delta.Answer
//	    }
//	    prev.Messages = append(prev.Messages, delta.Messages...)
//	    return prev
//	}
type Reducer[S any] func(prev, delta S) S

// deepCopy creates a deep copy of state S using JSON round-trip serialization.
//
// Nodes receive a copy so they cannot alias slices or maps held by the
// checkpoint being built.
//
// Limitations:
//   - Unexported struct fields are not copied
//   - Channels, functions, and types that don't marshal to JSON fail
func deepCopy[S any](state S) (S, error) {
	var zero S

	data, err := json.Marshal(state)
	if err != nil {
		return zero, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied S
	if err := json.Unmarshal(data, &copied); err != nil {
		return zero, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return copied, nil
}
