package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deepakparameswar/csflow/graph/store"
)

func linear(t *testing.T) *Definition[testState] {
	return mustBuild(t, NewBuilder[testState]("linear", reduce).
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddEdge("a", "b").
		AddEdge("b", End).
		SetEntry("a"))
}

func TestEngine_RunToCompletion(t *testing.T) {
	e, st, buf := newTestEngine(t, linear(t))
	ctx := context.Background()

	out, err := e.Run(ctx, "run-1", testState{Label: "seed"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Complete() || out.NodeID != End || out.Step != 2 {
		t.Errorf("unexpected outcome: %+v", out)
	}
	if got := strings.Join(out.State.Trail, ","); got != "a,b" || out.State.Label != "seed" {
		t.Errorf("unexpected state: %+v", out.State)
	}

	cp, err := st.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp.Status != store.StatusComplete || cp.Version != 3 || cp.Graph != "linear" {
		t.Errorf("unexpected checkpoint: %+v", cp)
	}

	var msgs []string
	for _, ev := range buf.GetHistory("run-1") {
		msgs = append(msgs, ev.Msg)
	}
	want := "run started,node completed,node completed,run completed"
	if got := strings.Join(msgs, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestEngine_CompletedRuns(t *testing.T) {
	ctx := context.Background()

	t.Run("resume returns already complete", func(t *testing.T) {
		e, _, _ := newTestEngine(t, linear(t))
		if _, err := e.Run(ctx, "r", testState{}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		out, err := e.Resume(ctx, "r")
		if !errors.Is(err, ErrRunAlreadyComplete) {
			t.Fatalf("expected ErrRunAlreadyComplete, got %v", err)
		}
		if !out.Complete() {
			t.Errorf("expected the complete outcome alongside the error, got %+v", out)
		}
	})

	t.Run("run again returns already complete", func(t *testing.T) {
		e, _, _ := newTestEngine(t, linear(t))
		_, _ = e.Run(ctx, "r", testState{})
		if _, err := e.Run(ctx, "r", testState{}); !errors.Is(err, ErrRunAlreadyComplete) {
			t.Fatalf("expected ErrRunAlreadyComplete, got %v", err)
		}
	})

	t.Run("restart completed", func(t *testing.T) {
		e, st, _ := newTestEngine(t, linear(t), WithRestartCompleted())
		_, _ = e.Run(ctx, "r", testState{Label: "first"})
		out, err := e.Run(ctx, "r", testState{Label: "second"})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if out.State.Label != "second" || len(out.State.Trail) != 2 || out.Step != 2 {
			t.Errorf("expected a fresh run, got %+v", out)
		}
		cp, _ := st.Load(ctx, "r")
		if cp.Version != 6 {
			t.Errorf("expected version 6 after two runs, got %d", cp.Version)
		}
	})

	t.Run("delete on complete", func(t *testing.T) {
		e, st, _ := newTestEngine(t, linear(t), WithDeleteOnComplete())
		if _, err := e.Run(ctx, "r", testState{}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if st.Len() != 0 {
			t.Error("expected checkpoint to be deleted")
		}
		if _, err := e.Resume(ctx, "r"); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})
}

func TestEngine_ResumeMissingRun(t *testing.T) {
	e, _, _ := newTestEngine(t, linear(t))
	ctx := context.Background()

	if _, err := e.Resume(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Resume: expected ErrRunNotFound, got %v", err)
	}
	if _, err := e.Cancel(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Cancel: expected ErrRunNotFound, got %v", err)
	}
	if _, err := e.Inspect(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Inspect: expected ErrRunNotFound, got %v", err)
	}
	if err := e.Delete(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Delete: expected ErrRunNotFound, got %v", err)
	}
}

func gated(t *testing.T, gate Node[testState]) *Definition[testState] {
	return mustBuild(t, NewBuilder[testState]("gated", reduce).
		AddNode("prepare", visit("prepare")).
		AddNode("gate", gate).
		AddEdge("prepare", "gate").
		AddEdge("gate", End).
		SetEntry("prepare").
		InterruptBefore("gate"))
}

func TestEngine_InterruptGate(t *testing.T) {
	gate := &counted{inner: visit("gate")}
	e, st, _ := newTestEngine(t, gated(t, gate))
	ctx := context.Background()

	out, err := e.Run(ctx, "r", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Pending() || out.NodeID != "gate" || gate.calls.Load() != 0 {
		t.Fatalf("expected pending at gate without executing it, got %+v (calls %d)", out, gate.calls.Load())
	}

	// Running a pending run again is idempotent.
	again, err := e.Run(ctx, "r", testState{Label: "ignored"})
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if !again.Pending() || gate.calls.Load() != 0 || again.State.Label != "" {
		t.Errorf("expected unchanged pending outcome, got %+v", again)
	}

	cp, _ := st.Load(ctx, "r")
	if cp.Status != store.StatusPending || cp.Approved {
		t.Errorf("unexpected checkpoint while pending: %+v", cp)
	}

	done, err := e.Resume(ctx, "r")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !done.Complete() || gate.calls.Load() != 1 {
		t.Errorf("expected completion with one gate execution, got %+v (calls %d)", done, gate.calls.Load())
	}
	if got := strings.Join(done.State.Trail, ","); got != "prepare,gate" {
		t.Errorf("trail = %s", got)
	}

	if _, err := e.Resume(ctx, "r"); !errors.Is(err, ErrRunAlreadyComplete) {
		t.Errorf("expected ErrRunAlreadyComplete, got %v", err)
	}
	if gate.calls.Load() != 1 {
		t.Errorf("gate executed %d times", gate.calls.Load())
	}
}

func TestEngine_GateFailureKeepsApproval(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	gate := &counted{inner: NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		if fail.Load() {
			return Fail[testState](errBoom)
		}
		return NodeResult[testState]{Delta: testState{Trail: []string{"gate"}}}
	})}
	e, st, _ := newTestEngine(t, gated(t, gate))
	ctx := context.Background()

	if _, err := e.Run(ctx, "r", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	_, err := e.Resume(ctx, "r")
	var nee *NodeExecutionError
	if !errors.As(err, &nee) || nee.NodeID != "gate" || !errors.Is(err, errBoom) {
		t.Fatalf("expected NodeExecutionError from gate, got %v", err)
	}

	cp, _ := st.Load(ctx, "r")
	if cp.NodeID != "gate" || !cp.Approved || cp.Status != store.StatusFailed {
		t.Errorf("expected approved failed checkpoint at gate, got %+v", cp)
	}

	fail.Store(false)
	out, err := e.Resume(ctx, "r")
	if err != nil {
		t.Fatalf("retry Resume failed: %v", err)
	}
	if !out.Complete() || gate.calls.Load() != 2 {
		t.Errorf("expected completion on retry without a second approval, got %+v", out)
	}
}

func TestEngine_NodeFailureKeepsLastGoodStep(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	flaky := NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		if fail.Load() {
			return Fail[testState](errBoom)
		}
		return NodeResult[testState]{Delta: testState{Trail: []string{"b"}}}
	})
	def := mustBuild(t, NewBuilder[testState]("flaky", reduce).
		AddNode("a", visit("a")).
		AddNode("b", flaky).
		AddEdge("a", "b").
		AddEdge("b", End).
		SetEntry("a"))
	e, st, _ := newTestEngine(t, def)
	ctx := context.Background()

	_, err := e.Run(ctx, "r", testState{})
	var nee *NodeExecutionError
	if !errors.As(err, &nee) {
		t.Fatalf("expected NodeExecutionError, got %v", err)
	}
	if nee.RunID != "r" || nee.NodeID != "b" || nee.Step != 2 || !errors.Is(err, errBoom) {
		t.Errorf("unexpected error fields: %+v", nee)
	}

	cp, _ := st.Load(ctx, "r")
	if cp.NodeID != "b" || cp.Step != 1 || strings.Join(cp.State.Trail, ",") != "a" {
		t.Errorf("expected checkpoint at b after step 1, got %+v", cp)
	}

	fail.Store(false)
	out, err := e.Resume(ctx, "r")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if got := strings.Join(out.State.Trail, ","); got != "a,b" {
		t.Errorf("trail = %s", got)
	}
}

func TestEngine_RoutingError(t *testing.T) {
	def := mustBuild(t, NewBuilder[testState]("routes", reduce).
		AddNode("a", visit("a")).
		AddConditionalEdges("a", func(testState) string { return "nope" }, map[string]string{"yes": End}).
		SetEntry("a"))
	e, _, _ := newTestEngine(t, def)

	_, err := e.Run(context.Background(), "r", testState{})
	var re *RoutingError
	if !errors.As(err, &re) {
		t.Fatalf("expected RoutingError, got %v", err)
	}
	if re.Graph != "routes" || re.NodeID != "a" || re.Label != "nope" {
		t.Errorf("unexpected routing error: %+v", re)
	}
}

func TestEngine_ConditionalLoop(t *testing.T) {
	inc := NodeFunc[testState](func(_ context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{Delta: testState{Count: s.Count + 1, Trail: []string{"inc"}}}
	})
	def := mustBuild(t, NewBuilder[testState]("loop", reduce).
		AddNode("inc", inc).
		AddConditionalEdges("inc", func(s testState) string {
			if s.Count < 3 {
				return "again"
			}
			return "done"
		}, map[string]string{"again": "inc", "done": End}).
		SetEntry("inc"))
	e, _, _ := newTestEngine(t, def)

	out, err := e.Run(context.Background(), "r", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.State.Count != 3 || len(out.State.Trail) != 3 {
		t.Errorf("unexpected loop state: %+v", out.State)
	}
}

func TestEngine_MaxSteps(t *testing.T) {
	def := mustBuild(t, NewBuilder[testState]("spin", reduce).
		AddNode("a", visit("a")).
		AddEdge("a", "a").
		SetEntry("a"))
	e, st, _ := newTestEngine(t, def, WithMaxSteps(5))
	ctx := context.Background()

	_, err := e.Run(ctx, "r", testState{})
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != "MAX_STEPS_EXCEEDED" {
		t.Fatalf("expected MAX_STEPS_EXCEEDED, got %v", err)
	}

	cp, _ := st.Load(ctx, "r")
	if cp.Status != store.StatusAborted || cp.Step != 5 {
		t.Errorf("expected aborted checkpoint after 5 steps, got %s at step %d", cp.Status, cp.Step)
	}
	if _, err := e.Run(ctx, "r", testState{}); !errors.Is(err, ErrRunAlreadyComplete) {
		t.Errorf("Run after abort: expected ErrRunAlreadyComplete, got %v", err)
	}
	if _, err := e.Resume(ctx, "r"); !errors.Is(err, ErrRunAlreadyComplete) {
		t.Errorf("Resume after abort: expected ErrRunAlreadyComplete, got %v", err)
	}
}

func TestEngine_MaxStepsRestart(t *testing.T) {
	def := mustBuild(t, NewBuilder[testState]("spin", reduce).
		AddNode("a", visit("a")).
		AddEdge("a", "a").
		SetEntry("a"))
	e, st, _ := newTestEngine(t, def, WithMaxSteps(2), WithRestartCompleted())
	ctx := context.Background()

	for range 2 {
		var ee *EngineError
		if _, err := e.Run(ctx, "r", testState{}); !errors.As(err, &ee) || ee.Code != "MAX_STEPS_EXCEEDED" {
			t.Fatalf("expected MAX_STEPS_EXCEEDED, got %v", err)
		}
	}
	cp, _ := st.Load(ctx, "r")
	if cp.Status != store.StatusAborted || len(cp.State.Trail) != 2 {
		t.Errorf("expected a fresh aborted run with 2 steps, got %+v", cp)
	}
}

func TestEngine_Retry(t *testing.T) {
	always := func(error) bool { return true }

	t.Run("succeeds within budget", func(t *testing.T) {
		var attempts atomic.Int32
		node := NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
			if attempts.Add(1) < 3 {
				return Fail[testState](errBoom)
			}
			return NodeResult[testState]{Delta: testState{Label: "ok"}}
		})
		def := mustBuild(t, NewBuilder[testState]("retry", reduce).
			AddNode("a", node, WithRetry(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Retryable: always})).
			AddEdge("a", End).
			SetEntry("a"))
		e, _, buf := newTestEngine(t, def)

		out, err := e.Run(context.Background(), "r", testState{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if out.State.Label != "ok" || attempts.Load() != 3 {
			t.Errorf("unexpected result: %+v after %d attempts", out.State, attempts.Load())
		}
		retries := 0
		for _, ev := range buf.GetHistory("r") {
			if ev.Msg == "node retry" {
				retries++
			}
		}
		if retries != 2 {
			t.Errorf("expected 2 retry events, got %d", retries)
		}
	})

	t.Run("exhausts budget", func(t *testing.T) {
		var attempts atomic.Int32
		node := NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
			attempts.Add(1)
			return Fail[testState](errBoom)
		})
		def := mustBuild(t, NewBuilder[testState]("retry", reduce).
			AddNode("a", node, WithRetry(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Retryable: always})).
			AddEdge("a", End).
			SetEntry("a"))
		e, _, _ := newTestEngine(t, def)

		if _, err := e.Run(context.Background(), "r", testState{}); !errors.Is(err, errBoom) {
			t.Fatalf("expected errBoom, got %v", err)
		}
		if attempts.Load() != 2 {
			t.Errorf("expected 2 attempts, got %d", attempts.Load())
		}
	})

	t.Run("non-retryable error", func(t *testing.T) {
		var attempts atomic.Int32
		node := NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
			attempts.Add(1)
			return Fail[testState](errBoom)
		})
		def := mustBuild(t, NewBuilder[testState]("retry", reduce).
			AddNode("a", node, WithRetry(RetryPolicy{
				MaxAttempts: 5,
				Retryable:   func(err error) bool { return !errors.Is(err, errBoom) },
			})).
			AddEdge("a", End).
			SetEntry("a"))
		e, _, _ := newTestEngine(t, def)

		_, _ = e.Run(context.Background(), "r", testState{})
		if attempts.Load() != 1 {
			t.Errorf("expected 1 attempt, got %d", attempts.Load())
		}
	})
}

func TestEngine_NodeTimeout(t *testing.T) {
	slow := NodeFunc[testState](func(ctx context.Context, _ testState) NodeResult[testState] {
		<-ctx.Done()
		return Fail[testState](ctx.Err())
	})

	tests := []struct {
		name string
		opts []NodeOption
		eng  []Option
	}{
		{name: "node timeout", opts: []NodeOption{WithTimeout(10 * time.Millisecond)}},
		{name: "engine default", eng: []Option{WithDefaultNodeTimeout(10 * time.Millisecond)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := mustBuild(t, NewBuilder[testState]("slow", reduce).
				AddNode("a", slow, tt.opts...).
				AddEdge("a", End).
				SetEntry("a"))
			e, _, _ := newTestEngine(t, def, tt.eng...)

			_, err := e.Run(context.Background(), "r", testState{})
			var nee *NodeExecutionError
			var ee *EngineError
			if !errors.As(err, &nee) || !errors.As(err, &ee) || ee.Code != "NODE_TIMEOUT" {
				t.Fatalf("expected NodeExecutionError wrapping NODE_TIMEOUT, got %v", err)
			}
		})
	}
}

func TestEngine_NodePanic(t *testing.T) {
	def := mustBuild(t, NewBuilder[testState]("panic", reduce).
		AddNode("a", NodeFunc[testState](func(context.Context, testState) NodeResult[testState] {
			panic("kaboom")
		})).
		AddEdge("a", End).
		SetEntry("a"))
	e, _, _ := newTestEngine(t, def)

	_, err := e.Run(context.Background(), "r", testState{})
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != "NODE_PANIC" {
		t.Fatalf("expected NODE_PANIC, got %v", err)
	}
}

func TestEngine_NodeReceivesCopy(t *testing.T) {
	mutator := NodeFunc[testState](func(_ context.Context, s testState) NodeResult[testState] {
		if len(s.Trail) > 0 {
			s.Trail[0] = "mutated"
		}
		return NodeResult[testState]{}
	})
	def := mustBuild(t, NewBuilder[testState]("copy", reduce).
		AddNode("a", visit("a")).
		AddNode("m", mutator).
		AddEdge("a", "m").
		AddEdge("m", End).
		SetEntry("a"))
	e, _, _ := newTestEngine(t, def)

	out, err := e.Run(context.Background(), "r", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.State.Trail[0] != "a" {
		t.Errorf("node mutated engine state: %v", out.State.Trail)
	}
}

func TestEngine_Cancel(t *testing.T) {
	gate := &counted{inner: visit("gate")}
	e, _, _ := newTestEngine(t, gated(t, gate))
	ctx := context.Background()

	if _, err := e.Run(ctx, "r", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	out, err := e.Cancel(ctx, "r")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if out.Status != store.StatusCancelled {
		t.Errorf("expected cancelled, got %s", out.Status)
	}
	if _, err := e.Resume(ctx, "r"); !errors.Is(err, ErrRunAlreadyComplete) {
		t.Errorf("expected ErrRunAlreadyComplete after cancel, got %v", err)
	}
	if _, err := e.Cancel(ctx, "r"); !errors.Is(err, ErrRunAlreadyComplete) {
		t.Errorf("expected ErrRunAlreadyComplete on second cancel, got %v", err)
	}
	if gate.calls.Load() != 0 {
		t.Error("cancelled gate must not execute")
	}
}

func TestEngine_ConcurrentApprovals(t *testing.T) {
	gate := &counted{inner: NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		time.Sleep(5 * time.Millisecond)
		return NodeResult[testState]{Delta: testState{Trail: []string{"gate"}}}
	})}
	e, _, _ := newTestEngine(t, gated(t, gate))
	ctx := context.Background()

	if _, err := e.Run(ctx, "r", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Resume(ctx, "r")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrRunConflict), errors.Is(err, ErrRunAlreadyComplete):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || gate.calls.Load() != 1 {
		t.Errorf("expected exactly one approval to execute the gate, got %d successes and %d calls", successes, gate.calls.Load())
	}
}

func TestEngine_DistinctRunsConcurrently(t *testing.T) {
	e, st, _ := newTestEngine(t, linear(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			runID := "run-" + string(rune('a'+i))
			if _, err := e.Run(ctx, runID, testState{}); err != nil {
				t.Errorf("Run %s failed: %v", runID, err)
			}
		}(i)
	}
	wg.Wait()

	if st.Len() != 20 {
		t.Errorf("expected 20 checkpoints, got %d", st.Len())
	}
}

func TestEngine_GraphMismatch(t *testing.T) {
	st := store.NewMemStore[testState]()
	first, _ := New(linear(t), st, nil)
	other := mustBuild(t, NewBuilder[testState]("other", reduce).
		AddNode("x", visit("x")).AddEdge("x", End).SetEntry("x"))
	second, _ := New(other, st, nil)
	ctx := context.Background()

	if _, err := first.Run(ctx, "shared", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	_, err := second.Resume(ctx, "shared")
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != "GRAPH_MISMATCH" {
		t.Errorf("expected GRAPH_MISMATCH, got %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	st := store.NewMemStore[testState]()
	if _, err := New[testState](nil, st, nil); err == nil {
		t.Error("expected error for nil definition")
	}
	if _, err := New(linear(t), nil, nil); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := New(linear(t), st, nil, WithMaxSteps(-1)); err == nil {
		t.Error("expected error for negative max steps")
	}
}

func TestEngine_SharedStoreRunsGateOnce(t *testing.T) {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	gate := &counted{inner: NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		close(entered)
		<-proceed
		return NodeResult[testState]{Delta: testState{Trail: []string{"gate"}}}
	})}
	def := gated(t, gate)
	st := store.NewMemStore[testState]()
	a, err := New(def, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(def, st, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := a.Run(ctx, "r", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := a.Resume(ctx, "r")
		done <- err
	}()
	<-entered

	if _, err := b.Resume(ctx, "r"); !errors.Is(err, ErrRunConflict) {
		t.Errorf("Resume on the other engine: expected ErrRunConflict, got %v", err)
	}
	if _, err := b.Run(ctx, "r", testState{}); !errors.Is(err, ErrRunConflict) {
		t.Errorf("Run on the other engine: expected ErrRunConflict, got %v", err)
	}
	if _, err := b.Cancel(ctx, "r"); !errors.Is(err, ErrRunConflict) {
		t.Errorf("Cancel on the other engine: expected ErrRunConflict, got %v", err)
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if gate.calls.Load() != 1 {
		t.Errorf("gate executed %d times for one approval", gate.calls.Load())
	}
	if _, err := b.Resume(ctx, "r"); !errors.Is(err, ErrRunAlreadyComplete) {
		t.Errorf("expected ErrRunAlreadyComplete, got %v", err)
	}
}

func TestEngine_SharedStoreClaimsFailedRunOnce(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	gate := &counted{inner: NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		if fail.Load() {
			return Fail[testState](errBoom)
		}
		time.Sleep(5 * time.Millisecond)
		return NodeResult[testState]{Delta: testState{Trail: []string{"gate"}}}
	})}
	def := gated(t, gate)
	st := store.NewMemStore[testState]()
	engines := make([]*Engine[testState], 4)
	for i := range engines {
		e, err := New(def, st, nil)
		if err != nil {
			t.Fatal(err)
		}
		engines[i] = e
	}
	ctx := context.Background()

	if _, err := engines[0].Run(ctx, "r", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := engines[0].Resume(ctx, "r"); !errors.Is(err, errBoom) {
		t.Fatalf("expected gate failure, got %v", err)
	}
	fail.Store(false)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for _, e := range engines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Resume(ctx, "r")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrRunConflict), errors.Is(err, ErrRunAlreadyComplete):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || gate.calls.Load() != 2 {
		t.Errorf("expected one retry to run the gate, got %d successes and %d calls", successes.Load(), gate.calls.Load())
	}
}

func TestEngine_CancelledCallReleasesRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := NodeFunc[testState](func(ctx context.Context, _ testState) NodeResult[testState] {
		cancel()
		<-ctx.Done()
		return Fail[testState](ctx.Err())
	})
	def := mustBuild(t, NewBuilder[testState]("blocking", reduce).
		AddNode("a", visit("a")).
		AddNode("b", blocking).
		AddEdge("a", "b").
		AddEdge("b", End).
		SetEntry("a"))
	e, st, _ := newTestEngine(t, def)

	if _, err := e.Run(ctx, "r", testState{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	cp, err := st.Load(context.Background(), "r")
	if err != nil {
		t.Fatal(err)
	}
	if cp.Status != store.StatusFailed || cp.NodeID != "b" {
		t.Errorf("expected failed checkpoint at b, got %s at %s", cp.Status, cp.NodeID)
	}
	if _, err := e.Cancel(context.Background(), "r"); err != nil {
		t.Errorf("Cancel of a failed run: %v", err)
	}
}
