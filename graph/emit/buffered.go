package emit

import "sync"

// BufferedEmitter keeps events in memory, grouped by run ID, and answers
// history queries for them.
//
// It backs the run events endpoint and is the emitter of choice in tests.
// Each run keeps at most the configured number of events; the oldest are
// dropped first. Runs are only forgotten through Clear.
//
// Example usage:
//
//	emitter := emit.NewBufferedEmitter(emit.WithMaxEventsPerRun(200))
//	engine, _ := graph.New(def, st, emitter)
//	engine.Run(ctx, "run-001", seed)
//
//	all := emitter.GetHistory("run-001")
//	retries := emitter.GetHistoryWithFilter("run-001", emit.HistoryFilter{Msg: "node retry"})
type BufferedEmitter struct {
	mu        sync.RWMutex
	events    map[string][]Event // runID -> events
	maxPerRun int
}

// BufferOption configures a BufferedEmitter.
type BufferOption func(*BufferedEmitter)

// WithMaxEventsPerRun bounds the history kept per run. Zero or less keeps
// everything.
func WithMaxEventsPerRun(n int) BufferOption {
	return func(b *BufferedEmitter) {
		b.maxPerRun = n
	}
}

// HistoryFilter specifies criteria for filtering execution history.
//
// All filter fields are optional. When multiple fields are set, they are
// combined with AND logic.
type HistoryFilter struct {
	NodeID  string // Filter by node ID (empty = no filter)
	Msg     string // Filter by message (empty = no filter)
	MinStep *int   // Minimum step number (nil = no filter)
	MaxStep *int   // Maximum step number (nil = no filter)
}

// NewBufferedEmitter creates a new BufferedEmitter.
func NewBufferedEmitter(opts ...BufferOption) *BufferedEmitter {
	b := &BufferedEmitter{events: make(map[string][]Event)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit stores an event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := append(b.events[event.RunID], event)
	if b.maxPerRun > 0 && len(events) > b.maxPerRun {
		events = append([]Event(nil), events[len(events)-b.maxPerRun:]...)
	}
	b.events[event.RunID] = events
}

// GetHistory returns a copy of all events for runID in emission order.
// It returns an empty slice, never nil, when the run has no events.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	return b.GetHistoryWithFilter(runID, HistoryFilter{})
}

// GetHistoryWithFilter returns the events for runID that match filter.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Event, 0, len(b.events[runID]))
	for _, event := range b.events[runID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

func (f HistoryFilter) matches(event Event) bool {
	if f.NodeID != "" && event.NodeID != f.NodeID {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinStep != nil && event.Step < *f.MinStep {
		return false
	}
	if f.MaxStep != nil && event.Step > *f.MaxStep {
		return false
	}
	return true
}

// Clear removes stored events for runID, or for every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
