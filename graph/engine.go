package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deepakparameswar/csflow/graph/emit"
	"github.com/deepakparameswar/csflow/graph/store"
)

// Engine executes a Definition against a checkpoint store.
//
// The Engine:
//   - Runs one node at a time per run, merging each delta with the reducer
//   - Persists a checkpoint after every node, so any call can be resumed
//   - Halts before approval-gated nodes and returns a pending Outcome
//   - Enforces node timeouts, retry policies and the step limit
//   - Emits observability events and metrics
//
// The Engine keeps run state only in checkpoints. Distinct runs may execute
// concurrently. Calls on the same run ID never overlap: a call claims the run
// by saving it as running through the store's versioned Save before it
// executes any node, and a call that finds the run running, or loses the
// claim, returns ErrRunConflict without executing. Inside one process a busy
// run is rejected before the store is read.
//
// Type parameter S is the state type shared across the workflow.
//
// Example:
//
//	engine, err := graph.New(def, store.NewMemStore[State](), emit.NewNullEmitter())
//	out, err := engine.Run(ctx, "thread-42", State{UserID: "U001"})
//	if out.Pending() {
//	    // ask a human, then:
//	    out, err = engine.Resume(ctx, "thread-42")
//	}
type Engine[S any] struct {
	def     *Definition[S]
	store   store.Store[S]
	emitter emit.Emitter
	cfg     engineConfig

	busy sync.Map // runID -> struct{}, runs with a call in flight
}

// New creates an Engine for a built definition.
//
// The emitter may be nil, in which case events are discarded.
func New[S any](def *Definition[S], st store.Store[S], emitter emit.Emitter, opts ...Option) (*Engine[S], error) {
	if def == nil {
		return nil, &EngineError{Message: "definition is required", Code: "MISSING_DEFINITION"}
	}
	if st == nil {
		return nil, &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}

	var cfg engineConfig
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, &EngineError{Message: err.Error(), Code: "INVALID_OPTION"}
		}
	}

	return &Engine[S]{def: def, store: st, emitter: emitter, cfg: cfg}, nil
}

// Graph returns the name of the engine's definition.
func (e *Engine[S]) Graph() string {
	return e.def.name
}

// Run starts a run at the entry node with seed as its initial state, or
// continues an existing run from its checkpoint.
//
// For an existing run the seed is ignored:
//   - failed: the run is claimed and continues at the failed node
//   - running: ErrRunConflict, another call owns the run
//   - pending: the call returns the pending Outcome again without executing
//   - complete, cancelled or aborted: ErrRunAlreadyComplete, unless the engine
//     was built WithRestartCompleted, in which case the run starts over
func (e *Engine[S]) Run(ctx context.Context, runID string, seed S) (Outcome[S], error) {
	if runID == "" {
		return Outcome[S]{}, &EngineError{Message: "run ID cannot be empty", Code: "INVALID_RUN_ID"}
	}
	release, err := e.acquire(runID)
	if err != nil {
		return Outcome[S]{}, err
	}
	defer release()

	cp, err := e.load(ctx, runID)
	switch {
	case errors.Is(err, ErrRunNotFound):
		cp = e.fresh(runID, seed, 1)
		if err := e.save(ctx, cp); err != nil {
			return Outcome[S]{}, err
		}
		e.emit(runID, 0, "", "run started", nil)

	case err != nil:
		return Outcome[S]{}, err

	case cp.Status.Closed():
		if !e.cfg.restartCompleted {
			return e.outcome(cp), fmt.Errorf("run %s: %w", runID, ErrRunAlreadyComplete)
		}
		cp = e.fresh(runID, seed, cp.Version+1)
		if err := e.save(ctx, cp); err != nil {
			return Outcome[S]{}, err
		}
		e.emit(runID, 0, "", "run restarted", nil)

	case cp.Status == store.StatusPending:
		e.cfg.metrics.IncrementRuns(e.def.name, "pending")
		return e.outcome(cp), nil

	case cp.Status == store.StatusRunning:
		return e.outcome(cp), fmt.Errorf("run %s: %w", runID, ErrRunConflict)

	case cp.Status == store.StatusFailed:
		if err := e.claim(ctx, &cp, false); err != nil {
			return Outcome[S]{}, err
		}
		e.emit(runID, cp.Step, cp.NodeID, "run retried", nil)
	}

	return e.loop(ctx, cp)
}

// Resume continues a run from its checkpoint.
//
// A pending run has its gate opened: the approval and the claim are persisted
// in one versioned write, so of two concurrent Resume calls exactly one
// proceeds and the other returns ErrRunConflict. A failed run is claimed the
// same way and re-executes the failed node, keeping an approval it already
// had. A running run returns ErrRunConflict.
func (e *Engine[S]) Resume(ctx context.Context, runID string) (Outcome[S], error) {
	release, err := e.acquire(runID)
	if err != nil {
		return Outcome[S]{}, err
	}
	defer release()

	cp, err := e.load(ctx, runID)
	if err != nil {
		return Outcome[S]{}, err
	}
	if cp.Status.Closed() {
		return e.outcome(cp), fmt.Errorf("run %s: %w", runID, ErrRunAlreadyComplete)
	}

	switch cp.Status {
	case store.StatusRunning:
		return e.outcome(cp), fmt.Errorf("run %s: %w", runID, ErrRunConflict)
	case store.StatusPending:
		if err := e.claim(ctx, &cp, true); err != nil {
			return Outcome[S]{}, err
		}
		e.emit(runID, cp.Step, cp.NodeID, "run approved", nil)
	case store.StatusFailed:
		if err := e.claim(ctx, &cp, false); err != nil {
			return Outcome[S]{}, err
		}
		e.emit(runID, cp.Step, cp.NodeID, "run retried", nil)
	}

	return e.loop(ctx, cp)
}

// Cancel marks a pending or failed run cancelled. It backs the reject path of
// approval. A running run returns ErrRunConflict.
func (e *Engine[S]) Cancel(ctx context.Context, runID string) (Outcome[S], error) {
	release, err := e.acquire(runID)
	if err != nil {
		return Outcome[S]{}, err
	}
	defer release()

	cp, err := e.load(ctx, runID)
	if err != nil {
		return Outcome[S]{}, err
	}
	if cp.Status.Closed() {
		return e.outcome(cp), fmt.Errorf("run %s: %w", runID, ErrRunAlreadyComplete)
	}
	if cp.Status == store.StatusRunning {
		return e.outcome(cp), fmt.Errorf("run %s: %w", runID, ErrRunConflict)
	}

	cp.Status = store.StatusCancelled
	cp.Approved = false
	cp.Version++
	if err := e.save(ctx, cp); err != nil {
		return Outcome[S]{}, err
	}

	e.emit(runID, cp.Step, cp.NodeID, "run cancelled", nil)
	e.cfg.metrics.IncrementRuns(e.def.name, "cancelled")
	return e.outcome(cp), nil
}

// Inspect returns the stored checkpoint of a run.
func (e *Engine[S]) Inspect(ctx context.Context, runID string) (store.Checkpoint[S], error) {
	return e.load(ctx, runID)
}

// Delete removes a run's checkpoint.
func (e *Engine[S]) Delete(ctx context.Context, runID string) error {
	release, err := e.acquire(runID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := e.load(ctx, runID); err != nil {
		return err
	}
	if err := e.store.Delete(ctx, runID); err != nil {
		return &EngineError{Message: "failed to delete checkpoint: " + err.Error(), Code: "STORE_ERROR"}
	}
	e.emit(runID, 0, "", "run deleted", nil)
	return nil
}

// loop executes nodes from cp's cursor until End, an approval gate, or an
// error. cp must already be claimed (saved as running by this call). Every
// exit releases the claim by saving a status other than running.
func (e *Engine[S]) loop(ctx context.Context, cp store.Checkpoint[S]) (Outcome[S], error) {
	for {
		if e.cfg.maxSteps > 0 && cp.Step >= e.cfg.maxSteps {
			cause := &EngineError{
				Message: fmt.Sprintf("run %s exceeded %d steps", cp.RunID, e.cfg.maxSteps),
				Code:    "MAX_STEPS_EXCEEDED",
			}
			e.emit(cp.RunID, cp.Step, cp.NodeID, "run aborted", map[string]interface{}{"error": cause.Error()})
			e.cfg.metrics.IncrementRuns(e.def.name, "aborted")
			err := e.halt(ctx, &cp, store.StatusAborted, cause)
			return e.outcome(cp), err
		}
		if err := ctx.Err(); err != nil {
			err = e.halt(ctx, &cp, store.StatusFailed, err)
			return e.outcome(cp), err
		}

		spec, ok := e.def.nodes[cp.NodeID]
		if !ok {
			err := e.halt(ctx, &cp, store.StatusFailed, &EngineError{
				Message: "node not found during execution: " + cp.NodeID,
				Code:    "NODE_NOT_FOUND",
			})
			return e.outcome(cp), err
		}

		if e.def.interrupts[cp.NodeID] && !cp.Approved {
			cp.Status = store.StatusPending
			cp.Version++
			if err := e.save(ctx, cp); err != nil {
				return Outcome[S]{}, err
			}
			e.emit(cp.RunID, cp.Step, cp.NodeID, "run interrupted", nil)
			e.cfg.metrics.IncrementInterrupts(e.def.name, cp.NodeID)
			e.cfg.metrics.IncrementRuns(e.def.name, "pending")
			return e.outcome(cp), nil
		}

		delta, err := e.execute(ctx, cp, spec)
		if err != nil {
			e.emit(cp.RunID, cp.Step+1, cp.NodeID, "node failed", map[string]interface{}{"error": err.Error()})
			e.cfg.metrics.IncrementRuns(e.def.name, "failed")
			nodeErr := &NodeExecutionError{RunID: cp.RunID, NodeID: cp.NodeID, Step: cp.Step + 1, Cause: err}
			err = e.halt(ctx, &cp, store.StatusFailed, nodeErr)
			return e.outcome(cp), err
		}

		merged := e.def.reducer(cp.State, delta)
		next, err := e.def.next(cp.NodeID, merged)
		if err != nil {
			e.emit(cp.RunID, cp.Step+1, cp.NodeID, "routing failed", map[string]interface{}{"error": err.Error()})
			e.cfg.metrics.IncrementRuns(e.def.name, "failed")
			err = e.halt(ctx, &cp, store.StatusFailed, err)
			return e.outcome(cp), err
		}

		from := cp.NodeID
		cp.State = merged
		cp.NodeID = next
		cp.Step++
		cp.Version++
		cp.Approved = false
		if next == End {
			cp.Status = store.StatusComplete
		}
		if err := e.save(ctx, cp); err != nil {
			return Outcome[S]{}, err
		}
		e.emit(cp.RunID, cp.Step, from, "node completed", map[string]interface{}{"next": next})

		if next == End {
			e.emit(cp.RunID, cp.Step, "", "run completed", nil)
			e.cfg.metrics.IncrementRuns(e.def.name, "complete")
			if e.cfg.deleteOnComplete {
				if err := e.store.Delete(ctx, cp.RunID); err != nil {
					return e.outcome(cp), &EngineError{Message: "failed to delete checkpoint: " + err.Error(), Code: "STORE_ERROR"}
				}
			}
			return e.outcome(cp), nil
		}
	}
}

// execute runs one node with its timeout and retry policy and returns its delta.
func (e *Engine[S]) execute(ctx context.Context, cp store.Checkpoint[S], spec nodeSpec[S]) (S, error) {
	var zero S
	policy := spec.policy

	for attempt := 1; ; attempt++ {
		state, err := deepCopy(cp.State)
		if err != nil {
			return zero, &EngineError{Message: err.Error(), Code: "STATE_COPY_FAILED"}
		}

		e.cfg.metrics.nodeStarted()
		start := time.Now()
		result, err := executeNodeWithTimeout(ctx, spec.node, cp.NodeID, state, &policy, e.cfg.defaultNodeTimeout)
		e.cfg.metrics.nodeFinished()
		e.cfg.metrics.RecordStepLatency(e.def.name, cp.NodeID, time.Since(start), stepStatus(err))

		if err == nil {
			return result.Delta, nil
		}
		if !policy.RetryPolicy.shouldRetry(attempt, err) {
			return zero, err
		}

		e.cfg.metrics.IncrementRetries(e.def.name, cp.NodeID, stepStatus(err))
		e.emit(cp.RunID, cp.Step+1, cp.NodeID, "node retry", map[string]interface{}{
			"attempt": attempt,
			"error":   err.Error(),
		})

		rp := policy.RetryPolicy
		if err := sleepCtx(ctx, computeBackoff(attempt-1, rp.BaseDelay, rp.MaxDelay, nil)); err != nil {
			return zero, err
		}
	}
}

func stepStatus(err error) string {
	var ee *EngineError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &ee) && ee.Code == "NODE_TIMEOUT":
		return "timeout"
	default:
		return "error"
	}
}

// claim takes ownership of a pending or failed run by saving it as running.
// Losing the versioned write returns ErrRunConflict, and nothing executes.
func (e *Engine[S]) claim(ctx context.Context, cp *store.Checkpoint[S], approve bool) error {
	cp.Status = store.StatusRunning
	if approve {
		cp.Approved = true
	}
	cp.Version++
	return e.save(ctx, *cp)
}

// halt gives up a claimed run with a status other than running and returns
// cause. The write survives cancellation of ctx so a cancelled call does not
// leave the run owned.
func (e *Engine[S]) halt(ctx context.Context, cp *store.Checkpoint[S], status store.Status, cause error) error {
	cp.Status = status
	cp.Version++
	if err := e.save(context.WithoutCancel(ctx), *cp); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// acquire marks runID busy for the duration of one call.
func (e *Engine[S]) acquire(runID string) (func(), error) {
	if _, loaded := e.busy.LoadOrStore(runID, struct{}{}); loaded {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunConflict)
	}
	return func() { e.busy.Delete(runID) }, nil
}

func (e *Engine[S]) fresh(runID string, seed S, version int64) store.Checkpoint[S] {
	return store.Checkpoint[S]{
		RunID:   runID,
		Graph:   e.def.name,
		NodeID:  e.def.entry,
		Status:  store.StatusRunning,
		Version: version,
		State:   seed,
	}
}

func (e *Engine[S]) load(ctx context.Context, runID string) (store.Checkpoint[S], error) {
	cp, err := e.store.Load(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return cp, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return cp, &EngineError{Message: "failed to load checkpoint: " + err.Error(), Code: "STORE_ERROR"}
	}
	if cp.Graph != e.def.name {
		return cp, &EngineError{
			Message: fmt.Sprintf("run %s belongs to graph %s, not %s", runID, cp.Graph, e.def.name),
			Code:    "GRAPH_MISMATCH",
		}
	}
	return cp, nil
}

func (e *Engine[S]) save(ctx context.Context, cp store.Checkpoint[S]) error {
	err := e.store.Save(ctx, cp)
	if errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("run %s: %w", cp.RunID, ErrRunConflict)
	}
	if err != nil {
		return &EngineError{Message: "failed to save checkpoint: " + err.Error(), Code: "STORE_ERROR"}
	}
	return nil
}

func (e *Engine[S]) outcome(cp store.Checkpoint[S]) Outcome[S] {
	return Outcome[S]{
		RunID:  cp.RunID,
		Status: cp.Status,
		NodeID: cp.NodeID,
		Step:   cp.Step,
		State:  cp.State,
	}
}

func (e *Engine[S]) emit(runID string, step int, nodeID, msg string, meta map[string]interface{}) {
	if meta == nil {
		meta = make(map[string]interface{}, 1)
	}
	meta["graph"] = e.def.name
	e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: nodeID, Msg: msg, Meta: meta, Time: time.Now()})
}
