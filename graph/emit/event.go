package emit

import "time"

// Event is an observability record emitted by the engine while it walks a run.
//
// Run-level events (started, approved, cancelled, completed) carry Step 0 or
// the step at which they happened and an empty NodeID. Node-level events
// carry the node that ran or halted.
//
// Messages emitted by the engine:
//   - "run started", "run restarted", "run approved", "run cancelled",
//     "run deleted", "run completed"
//   - "run interrupted": the run halted before an interrupt node
//   - "node completed": Meta["next"] names the next node
//   - "node retry": Meta["attempt"] and Meta["error"]
//   - "node failed", "routing failed": Meta["error"]
//
// Every engine event carries Meta["graph"] with the definition name.
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string `json:"run_id"`

	// Step is the number of nodes executed when the event was emitted.
	Step int `json:"step"`

	// NodeID identifies the node the event is about, if any.
	NodeID string `json:"node_id,omitempty"`

	// Msg is a short description of the event.
	Msg string `json:"msg"`

	// Meta contains additional structured data specific to this event.
	Meta map[string]interface{} `json:"meta,omitempty"`

	// Time is when the event was emitted.
	Time time.Time `json:"time"`
}

// Failed reports whether the event records an error.
func (e Event) Failed() bool {
	_, ok := e.Meta["error"]
	return ok
}
