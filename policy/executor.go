package policy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"cosmossdk.io/log"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/fhe"
	"github.com/BackendStack21/axiom-go/metrics"
)

// State is the lifecycle state of a policy run.
//
//	Pending -> Executing -> Accepted
//	                     -> Rejected
//
// Accepted and Rejected are terminal. There is no retry transition.
type State uint8

const (
	StatePending State = iota
	StateExecuting
	StateAccepted
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExecuting:
		return "executing"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ErrRunConsumed is returned when a run is executed a second time.
var ErrRunConsumed = errors.New("run already executed")

// Execution is the terminal record of a run. Output is set only when State
// is StateAccepted; a rejected run never exposes a partial result.
type Execution struct {
	Procedure     *Procedure
	Constraints   *ConstraintSet
	Input         Value
	Output        Value
	Intermediates []Intermediate
	State         State
	// Violated names the failing constraint of a rejected run. It is empty
	// when the procedure itself failed.
	Violated string
	Err      error
	Elapsed  time.Duration
}

// Accepted reports whether the run passed every constraint.
func (e *Execution) Accepted() bool { return e.State == StateAccepted }

// Executor runs procedures against constraint sets. It holds no per-run
// state and is safe for concurrent use.
type Executor struct {
	logger    log.Logger
	metrics   *metrics.Metrics
	evaluator *fhe.Evaluator
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l log.Logger) Option {
	return func(ex *Executor) { ex.logger = l }
}

// WithMetrics sets the executor metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ex *Executor) { ex.metrics = m }
}

// WithEvaluator exposes a homomorphic evaluator to procedures.
func WithEvaluator(ev *fhe.Evaluator) Option {
	return func(ex *Executor) { ex.evaluator = ev }
}

// NewExecutor returns an executor.
func NewExecutor(opts ...Option) *Executor {
	ex := &Executor{logger: log.NewNopLogger()}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// Run is a prepared, single-use execution of a procedure.
type Run struct {
	ex    *Executor
	proc  *Procedure
	cs    *ConstraintSet
	mu    sync.Mutex
	state State
}

// Prepare binds a procedure to a constraint set. It fails with
// axiom.ErrIncompleteSpecification when either is missing, before anything runs.
func (ex *Executor) Prepare(proc *Procedure, cs *ConstraintSet) (*Run, error) {
	if err := proc.validate(); err != nil {
		return nil, fmt.Errorf("%w: missing procedure", axiom.ErrIncompleteSpecification)
	}
	if cs == nil || cs.Len() == 0 {
		return nil, fmt.Errorf("%w: missing constraint set for %s", axiom.ErrIncompleteSpecification, proc.Ref())
	}
	return &Run{ex: ex, proc: proc, cs: cs, state: StatePending}, nil
}

// State returns the current state of the run.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Execute runs the procedure once and evaluates every constraint in declared
// order. A rejected run returns its Execution together with either a
// *axiom.ConstraintViolatedError or an error wrapping axiom.ErrProcedureFailed.
func (r *Run) Execute(input Value) (*Execution, error) {
	if err := Validate(input); err != nil {
		return nil, fmt.Errorf("%w: input of %s: %w", axiom.ErrIncompleteSpecification, r.proc.Ref(), err)
	}
	r.mu.Lock()
	if r.state != StatePending {
		r.mu.Unlock()
		return nil, ErrRunConsumed
	}
	r.state = StateExecuting
	r.mu.Unlock()

	start := time.Now()
	exec := r.execute(input)
	exec.Elapsed = time.Since(start)

	r.mu.Lock()
	r.state = exec.State
	r.mu.Unlock()

	ref := r.proc.Ref()
	r.ex.metrics.Execution(ref, exec.State.String(), exec.Elapsed)
	if exec.State == StateAccepted {
		r.ex.logger.Debug("policy run accepted", "procedure", ref, "constraints", r.cs.Len())
		return exec, nil
	}
	r.ex.logger.Info("policy run rejected", "procedure", ref, "constraint", exec.Violated, "err", exec.Err)
	return exec, exec.Err
}

func (r *Run) execute(input Value) *Execution {
	exec := &Execution{Procedure: r.proc, Constraints: r.cs, Input: input}
	env := &Env{evaluator: r.ex.evaluator}

	output, err := invoke(r.proc, env, input)
	if err != nil {
		exec.State = StateRejected
		exec.Err = err
		return exec
	}

	outcome := &Outcome{Input: input, Output: output, Intermediates: env.intermediates}
	if name := r.cs.evaluate(outcome); name != "" {
		exec.State = StateRejected
		exec.Violated = name
		exec.Err = &axiom.ConstraintViolatedError{Name: name}
		return exec
	}

	exec.State = StateAccepted
	exec.Output = output
	exec.Intermediates = env.intermediates
	return exec
}

// invoke runs the procedure body, converting errors and panics into
// axiom.ErrProcedureFailed.
func invoke(p *Procedure, env *Env, input Value) (out Value, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("%w: %s panicked: %v", axiom.ErrProcedureFailed, p.Ref(), rec)
		}
	}()
	out, err = p.Run(env, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", axiom.ErrProcedureFailed, p.Ref(), err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s returned no output", axiom.ErrProcedureFailed, p.Ref())
	}
	if err := Validate(out); err != nil {
		return nil, fmt.Errorf("%w: %s output: %w", axiom.ErrProcedureFailed, p.Ref(), err)
	}
	for _, im := range env.intermediates {
		if err := Validate(im.Value); err != nil {
			return nil, fmt.Errorf("%w: %s intermediate %q: %w", axiom.ErrProcedureFailed, p.Ref(), im.Name, err)
		}
	}
	return out, nil
}

// Execute prepares and executes a run in one step.
func (ex *Executor) Execute(proc *Procedure, cs *ConstraintSet, input Value) (*Execution, error) {
	run, err := ex.Prepare(proc, cs)
	if err != nil {
		return nil, err
	}
	return run.Execute(input)
}
