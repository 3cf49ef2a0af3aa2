// Package executor runs graphs. It schedules ready nodes concurrently,
// merges their updates into the execution state, checkpoints after every
// merge and stops when the terminal node completes, a node suspends or a
// node fails.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/graph"
	"github.com/xraph/drafter/id"
	"github.com/xraph/drafter/middleware"
	"github.com/xraph/drafter/state"
)

// Suspension describes an execution waiting for external input.
type Suspension struct {
	ExecutionID id.ExecutionID `json:"execution_id"`
	Node        string         `json:"node"`
	Payload     any            `json:"payload"`
}

// Result is the outcome of Run, Resume or Inspect.
type Result struct {
	ExecutionID id.ExecutionID
	Graph       string
	Status      checkpoint.Status

	// State is the merged state at the time the result was produced.
	State state.Snapshot

	// Suspension is set when Status is suspended.
	Suspension *Suspension

	// Error is the failure text when Status is failed.
	Error string
}

// Suspended reports whether the execution is waiting for a resume value.
func (r *Result) Suspended() bool { return r.Suspension != nil }

// Executor drives executions of registered graphs.
type Executor struct {
	registry    *graph.Registry
	store       checkpoint.Store
	emitter     Emitter
	logger      *slog.Logger
	middleware  []middleware.Middleware
	concurrency int
	nodeTimeout time.Duration
	now         func() time.Time

	chain middleware.Middleware

	mu   sync.Mutex
	busy map[string]struct{}
}

// New creates an executor over registry and store.
func New(registry *graph.Registry, store checkpoint.Store, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		store:    store,
		emitter:  nopEmitter{},
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		busy:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	mws := append(slices.Clone(e.middleware),
		middleware.Recover(e.logger),
		middleware.Timeout(e.logger),
	)
	e.chain = middleware.Chain(mws...)
	return e
}

// Registry returns the graph registry.
func (e *Executor) Registry() *graph.Registry { return e.registry }

// Run starts a new execution of the latest version of graphName and drives
// it until it completes, suspends or fails. A nil execID gets a fresh id.
//
// Invalid initial values are rejected before any node runs. A node failure
// is returned as a *NodeError alongside the failed Result.
func (e *Executor) Run(ctx context.Context, graphName string, execID id.ExecutionID, initial map[string]any) (*Result, error) {
	g, ok := e.registry.Get(graphName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", drafter.ErrGraphNotFound, graphName)
	}
	if execID.IsNil() {
		execID = id.NewExecutionID()
	}

	release, err := e.acquire(execID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := g.Schema().New(initial)
	if err != nil {
		return nil, err
	}

	now := e.now()
	snap := st.Snapshot()
	cp := &checkpoint.Checkpoint{
		ID:           id.NewCheckpointID(),
		ExecutionID:  execID,
		Graph:        g.Name(),
		GraphVersion: g.Version(),
		Status:       checkpoint.StatusRunning,
		Position:     checkpoint.Position{Pending: []string{g.Entry()}},
		Values:       snap.Values(),
		StateVersion: snap.Version(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateCheckpoint(ctx, cp); err != nil {
		if errors.Is(err, drafter.ErrExecutionExists) {
			return nil, fmt.Errorf("%w: %s", drafter.ErrExecutionExists, execID)
		}
		return nil, fmt.Errorf("save checkpoint %s: %w", execID, err)
	}

	e.logger.Info("execution started",
		slog.String("execution_id", execID.String()),
		slog.String("graph", g.Name()),
		slog.Int("graph_version", g.Version()),
	)
	e.emitter.EmitExecutionStarted(ctx, cp)

	return e.drive(ctx, g, st, cp, nil)
}

// Resume continues a suspended execution. value is handed to the pending
// interrupt point of the suspended node, which runs again from the start.
//
// Resuming an execution that has no checkpoint or is not suspended returns
// a *StaleResumeError and changes nothing. The checkpoint is claimed with a
// conditional write before the node runs, so when several executors share a
// store only one of them resumes a given suspension; the others get a
// *StaleResumeError.
func (e *Executor) Resume(ctx context.Context, execID id.ExecutionID, value any) (*Result, error) {
	release, err := e.acquire(execID)
	if err != nil {
		return nil, err
	}
	defer release()

	cp, err := e.store.LoadCheckpoint(ctx, execID)
	if errors.Is(err, drafter.ErrCheckpointNotFound) {
		return nil, &StaleResumeError{ExecutionID: execID}
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", execID, err)
	}
	if cp.Status != checkpoint.StatusSuspended || cp.Position.Suspended == nil {
		return nil, &StaleResumeError{ExecutionID: execID, Status: cp.Status}
	}

	g, ok := e.registry.GetVersion(cp.Graph, cp.GraphVersion)
	if !ok {
		return nil, fmt.Errorf("%w: %s version %d", drafter.ErrGraphNotFound, cp.Graph, cp.GraphVersion)
	}
	st, err := g.Schema().Restore(cp.Values, cp.StateVersion)
	if err != nil {
		return nil, fmt.Errorf("restore state of %s: %w", execID, err)
	}
	canon, err := canonical(value)
	if err != nil {
		return nil, fmt.Errorf("resume value: %w", err)
	}

	target := *cp.Position.Suspended
	target.Resumes = append(slices.Clone(target.Resumes), canon)
	cp.Position = cp.Position.Clone()
	cp.Position.Suspended = nil
	if !slices.Contains(cp.Position.Pending, target.Node) {
		cp.Position.Pending = append(cp.Position.Pending, target.Node)
	}
	if err := e.save(ctx, cp, st, checkpoint.StatusRunning); err != nil {
		if errors.Is(err, drafter.ErrCheckpointConflict) || errors.Is(err, drafter.ErrCheckpointNotFound) {
			return nil, e.lostClaim(ctx, execID)
		}
		return nil, err
	}

	e.logger.Info("execution resumed",
		slog.String("execution_id", execID.String()),
		slog.String("graph", g.Name()),
		slog.String("node", target.Node),
		slog.Int("round", len(target.Resumes)),
	)
	e.emitter.EmitExecutionResumed(ctx, cp, target.Node, canon)

	return e.drive(ctx, g, st, cp, &target)
}

// Inspect returns the last checkpointed view of an execution.
func (e *Executor) Inspect(ctx context.Context, execID id.ExecutionID) (*Result, error) {
	cp, err := e.store.LoadCheckpoint(ctx, execID)
	if err != nil {
		return nil, err
	}
	g, ok := e.registry.GetVersion(cp.Graph, cp.GraphVersion)
	if !ok {
		return nil, fmt.Errorf("%w: %s version %d", drafter.ErrGraphNotFound, cp.Graph, cp.GraphVersion)
	}
	st, err := g.Schema().Restore(cp.Values, cp.StateVersion)
	if err != nil {
		return nil, err
	}
	return resultOf(cp, st.Snapshot()), nil
}

// lostClaim reports a resume that another executor claimed first.
func (e *Executor) lostClaim(ctx context.Context, execID id.ExecutionID) error {
	stale := &StaleResumeError{ExecutionID: execID}
	if cp, err := e.store.LoadCheckpoint(ctx, execID); err == nil {
		stale.Status = cp.Status
	}
	e.logger.Warn("resume lost to a concurrent writer",
		slog.String("execution_id", execID.String()),
		slog.String("status", string(stale.Status)),
	)
	return stale
}

func (e *Executor) acquire(execID id.ExecutionID) (func(), error) {
	key := execID.String()
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.busy[key]; ok {
		return nil, fmt.Errorf("%w: %s", drafter.ErrExecutionBusy, key)
	}
	e.busy[key] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.busy, key)
		e.mu.Unlock()
	}, nil
}

// nodeResult is what a node goroutine reports back to the coordinator.
type nodeResult struct {
	node    string
	update  state.Update
	err     error
	elapsed time.Duration
	resumes []any
}

// drive runs ready nodes until nothing is runnable. Only the calling
// goroutine touches st and cp; node goroutines get a snapshot and report
// through results.
//
// Once driving starts the caller's cancellation is ignored: started nodes
// run to completion or suspension, bounded by their own timeouts, and the
// execution is checkpointed as usual.
func (e *Executor) drive(ctx context.Context, g *graph.Graph, st *state.State, cp *checkpoint.Checkpoint, resumed *checkpoint.Suspended) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	execID := cp.ExecutionID

	completed := make(map[string]bool, g.Len())
	for _, n := range cp.Position.Completed {
		completed[n] = true
	}
	pending := make([]string, 0, g.Len())
	for _, n := range cp.Position.Pending {
		if !completed[n] && !slices.Contains(pending, n) && (resumed == nil || n != resumed.Node) {
			pending = append(pending, n)
		}
	}

	var eg errgroup.Group
	if e.concurrency > 0 {
		eg.SetLimit(e.concurrency)
	}
	results := make(chan nodeResult, g.Len())
	inflight := make(map[string]bool, g.Len())

	launch := func(name string, resumes []any) {
		inflight[name] = true
		snap := st.Snapshot()
		eg.Go(func() error {
			results <- e.runNode(ctx, g, execID, name, snap, resumes)
			return nil
		})
	}

	var (
		halted    bool
		suspended *checkpoint.Suspended
		failed    *nodeResult
		saveErr   error
	)

	if resumed != nil {
		launch(resumed.Node, resumed.Resumes)
	}
	for _, n := range pending {
		launch(n, nil)
	}
	pending = pending[:0]

	for len(inflight) > 0 {
		r := <-results
		delete(inflight, r.node)

		if r.err == nil {
			if err := st.Apply(r.update); err != nil {
				r.err = fmt.Errorf("merge update: %w", err)
			}
		}

		switch {
		case r.err == nil:
			completed[r.node] = true
			cp.Position.Completed = append(cp.Position.Completed, r.node)
			for _, next := range g.ReadySuccessors(r.node, completed) {
				if halted {
					pending = append(pending, next)
				} else {
					launch(next, nil)
				}
			}

			e.logger.Debug("node completed",
				slog.String("execution_id", execID.String()),
				slog.String("node", r.node),
				slog.Duration("elapsed", r.elapsed),
			)
			if saveErr == nil {
				cp.Position.Pending = append(slices.Clone(pending), sortedKeys(inflight)...)
				if err := e.save(ctx, cp, st, checkpoint.StatusRunning); err != nil {
					saveErr = err
					halted = true
				}
			}
			e.emitter.EmitNodeCompleted(ctx, cp, r.node, r.elapsed)

		case graph.IsSuspension(r.err):
			s, _ := graph.AsSuspension(r.err)
			candidate := &checkpoint.Suspended{Node: r.node, Payload: s.Payload, Resumes: r.resumes}
			switch {
			case suspended == nil:
				suspended = candidate
			case len(candidate.Resumes) > len(suspended.Resumes):
				// Keep the node that already consumed resume values; the
				// other one asks again on the next round.
				pending = append(pending, suspended.Node)
				suspended = candidate
			default:
				pending = append(pending, r.node)
			}
			halted = true
			e.logger.Info("node suspended",
				slog.String("execution_id", execID.String()),
				slog.String("node", r.node),
				slog.Int("interrupt", s.Index),
			)

		default:
			if failed == nil {
				f := r
				failed = &f
			} else {
				pending = append(pending, r.node)
			}
			halted = true
			e.logger.Error("node failed",
				slog.String("execution_id", execID.String()),
				slog.String("node", r.node),
				slog.String("error", r.err.Error()),
			)
			e.emitter.EmitNodeFailed(ctx, cp, r.node, r.err)
		}
	}
	_ = eg.Wait()

	elapsed := time.Since(start)
	cp.Position.Pending = pending

	switch {
	case saveErr != nil:
		return nil, saveErr

	case failed != nil:
		cp.Position.Pending = append([]string{failed.node}, pending...)
		cp.Error = failed.err.Error()
		if err := e.save(ctx, cp, st, checkpoint.StatusFailed); err != nil {
			return nil, err
		}
		nodeErr := &NodeError{ExecutionID: execID, Node: failed.node, Err: failed.err}
		e.logger.Error("execution failed",
			slog.String("execution_id", execID.String()),
			slog.String("graph", g.Name()),
			slog.String("node", failed.node),
			slog.Duration("elapsed", elapsed),
		)
		e.emitter.EmitExecutionFailed(ctx, cp, nodeErr)
		return resultOf(cp, st.Snapshot()), nodeErr

	case suspended != nil:
		cp.Position.Suspended = suspended
		cp.Error = ""
		if err := e.save(ctx, cp, st, checkpoint.StatusSuspended); err != nil {
			return nil, err
		}
		e.logger.Info("execution suspended",
			slog.String("execution_id", execID.String()),
			slog.String("graph", g.Name()),
			slog.String("node", suspended.Node),
		)
		e.emitter.EmitExecutionSuspended(ctx, cp)
		return resultOf(cp, st.Snapshot()), nil

	case completed[g.Terminal()]:
		cp.Error = ""
		if err := e.save(ctx, cp, st, checkpoint.StatusCompleted); err != nil {
			return nil, err
		}
		e.logger.Info("execution completed",
			slog.String("execution_id", execID.String()),
			slog.String("graph", g.Name()),
			slog.Duration("elapsed", elapsed),
		)
		e.emitter.EmitExecutionCompleted(ctx, cp, elapsed)
		return resultOf(cp, st.Snapshot()), nil

	default:
		err := fmt.Errorf("execution %s stalled before terminal %q", execID, g.Terminal())
		cp.Error = err.Error()
		if saveErr := e.save(ctx, cp, st, checkpoint.StatusFailed); saveErr != nil {
			return nil, saveErr
		}
		e.emitter.EmitExecutionFailed(ctx, cp, err)
		return resultOf(cp, st.Snapshot()), err
	}
}

func (e *Executor) runNode(ctx context.Context, g *graph.Graph, execID id.ExecutionID, name string, snap state.Snapshot, resumes []any) nodeResult {
	node, _ := g.Node(name)
	timeout := node.Timeout
	if timeout <= 0 {
		timeout = e.nodeTimeout
	}
	inv := graph.Invocation{
		ExecutionID: execID,
		Graph:       g.Name(),
		Node:        name,
		Resumed:     len(resumes) > 0,
		Timeout:     timeout,
		Params:      node.Params,
	}

	nctx := graph.WithResumes(ctx, resumes)
	start := time.Now()
	update, err := e.chain(nctx, inv, func(ctx context.Context) (state.Update, error) {
		return node.Func(ctx, snap, inv)
	})
	return nodeResult{
		node:    name,
		update:  update,
		err:     err,
		elapsed: time.Since(start),
		resumes: resumes,
	}
}

func (e *Executor) save(ctx context.Context, cp *checkpoint.Checkpoint, st *state.State, status checkpoint.Status) error {
	snap := st.Snapshot()
	prev := cp.Step
	cp.Status = status
	cp.Values = snap.Values()
	cp.StateVersion = snap.Version()
	cp.Step++
	cp.UpdatedAt = e.now()
	if err := e.store.UpdateCheckpoint(ctx, cp, prev); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ExecutionID, err)
	}
	return nil
}

func resultOf(cp *checkpoint.Checkpoint, snap state.Snapshot) *Result {
	r := &Result{
		ExecutionID: cp.ExecutionID,
		Graph:       cp.Graph,
		Status:      cp.Status,
		State:       snap,
		Error:       cp.Error,
	}
	if cp.Status == checkpoint.StatusSuspended && cp.Position.Suspended != nil {
		r.Suspension = &Suspension{
			ExecutionID: cp.ExecutionID,
			Node:        cp.Position.Suspended.Node,
			Payload:     cp.Position.Suspended.Payload,
		}
	}
	return r
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// canonical returns the JSON form of v so resume values stored in a
// checkpoint look the same whichever store or codec persisted them.
func canonical(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
