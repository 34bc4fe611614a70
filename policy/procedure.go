// Package policy implements procedures, ordered constraint sets and the
// invariant policy executor that runs one against the other.
package policy

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/fhe"
)

// Func is the body of a procedure. It must not retain env after returning.
type Func func(env *Env, input Value) (Value, error)

// Procedure is an immutable, versioned unit of logic. Its identity is the
// pair (ID, Version): a changed body must be registered under a new version.
type Procedure struct {
	ID          string
	Version     string
	Description string
	// Pure declares that Run depends only on its input. The determinism
	// verifier may then execute it once instead of N times.
	Pure bool
	Run  Func
}

// Ref returns "id@version".
func (p *Procedure) Ref() string {
	return p.ID + "@" + p.Version
}

func (p *Procedure) validate() error {
	if p == nil || p.ID == "" || p.Version == "" || p.Run == nil {
		return axiom.ErrIncompleteSpecification
	}
	return nil
}

// Intermediate is a named value recorded by a procedure while it runs.
type Intermediate struct {
	Name  string
	Value Value
}

// Env is the environment handed to a running procedure.
type Env struct {
	evaluator     *fhe.Evaluator
	intermediates []Intermediate
}

// Record stores a named intermediate value for constraint evaluation.
func (e *Env) Record(name string, v Value) {
	e.intermediates = append(e.intermediates, Intermediate{Name: name, Value: v})
}

// Evaluator returns the homomorphic evaluator configured on the executor.
func (e *Env) Evaluator() (*fhe.Evaluator, error) {
	if e.evaluator == nil {
		return nil, errors.New("no homomorphic evaluator configured")
	}
	return e.evaluator, nil
}

// ErrDuplicateProcedure is returned when (ID, Version) is already registered.
var ErrDuplicateProcedure = errors.New("procedure already registered")

type procKey struct {
	id, version string
}

// Registry holds registered procedures. Registrations are never overwritten.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	procs map[procKey]*Procedure
}

// NewRegistry returns a registry holding procs and the built-in
// registry.replace procedure.
func NewRegistry(procs ...*Procedure) (*Registry, error) {
	r := &Registry{procs: make(map[procKey]*Procedure)}
	replace := r.replaceProcedure()
	r.procs[procKey{replace.ID, replace.Version}] = replace
	for _, p := range procs {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a procedure.
func (r *Registry) Register(p *Procedure) error {
	if err := p.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := procKey{p.ID, p.Version}
	if _, ok := r.procs[k]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProcedure, p.Ref())
	}
	r.procs[k] = p
	return nil
}

// Lookup returns the procedure registered under (id, version).
func (r *Registry) Lookup(id, version string) (*Procedure, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[procKey{id, version}]
	return p, ok
}

// Resolve implements the determinism verifier's procedure source. Every
// iteration sees the same registration.
func (r *Registry) Resolve(id, version string, iteration uint32) (*Procedure, error) {
	p, ok := r.Lookup(id, version)
	if !ok {
		return nil, fmt.Errorf("%w: procedure %s@%s not registered", axiom.ErrIncompleteSpecification, id, version)
	}
	return p, nil
}

// Versions returns the registered versions of id in lexical order.
func (r *Registry) Versions(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for k := range r.procs {
		if k.id == id {
			out = append(out, k.version)
		}
	}
	sort.Strings(out)
	return out
}

// List returns every registered procedure ordered by reference.
func (r *Registry) List() []*Procedure {
	r.mu.RLock()
	out := make([]*Procedure, 0, len(r.procs))
	for _, p := range r.procs {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Ref() < out[j].Ref() })
	return out
}
