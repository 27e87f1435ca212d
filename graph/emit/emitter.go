package emit

// Emitter receives observability events from the engine.
//
// Implementations must be safe for concurrent use: distinct runs execute in
// parallel and share one emitter. Emit must not block on slow backends and
// must not panic.
type Emitter interface {
	Emit(event Event)
}

// Multi fans every event out to each emitter in order.
//
// Example:
//
//	history := emit.NewBufferedEmitter(emit.WithMaxEventsPerRun(500))
//	emitter := emit.Multi(emit.NewLogEmitter(logx.Logger()), history)
func Multi(emitters ...Emitter) Emitter {
	flat := make(multi, 0, len(emitters))
	for _, e := range emitters {
		if e == nil {
			continue
		}
		if m, ok := e.(multi); ok {
			flat = append(flat, m...)
			continue
		}
		flat = append(flat, e)
	}
	return flat
}

type multi []Emitter

func (m multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
