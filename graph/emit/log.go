package emit

import (
	"github.com/rs/zerolog"
)

// LogEmitter writes events to a zerolog logger, one log line per event.
//
// Events that carry Meta["error"] are logged at warn level, everything else
// at debug level so that a production logger (info level) only shows
// failures and retries.
//
// Example output (console writer):
//
//	10:04:31 DBG node completed graph=sop next=tools node_id=assistant run_id=thread-1 step=1
//	10:04:32 WRN node retry attempt=1 error="openai: status 503: ..." graph=inquiry node_id=generate run_id=r-9 step=4
//
// Usage:
//
//	emitter := emit.NewLogEmitter(logx.Logger())
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates a LogEmitter that writes to logger.
func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger.With().Str("component", "engine").Logger()}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(event Event) {
	var e *zerolog.Event
	if event.Failed() {
		e = l.logger.Warn()
	} else {
		e = l.logger.Debug()
	}

	e = e.Str("run_id", event.RunID).Int("step", event.Step)
	if event.NodeID != "" {
		e = e.Str("node_id", event.NodeID)
	}
	if len(event.Meta) > 0 {
		e = e.Fields(event.Meta)
	}
	e.Msg(event.Msg)
}
