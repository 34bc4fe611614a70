package policy

import (
	"fmt"
)

// ReplaceProcedureID is the built-in procedure through which new revisions
// of a registered procedure are admitted.
const (
	ReplaceProcedureID      = "registry.replace"
	ReplaceProcedureVersion = "1.0.0"
)

// replaceProcedure reports which of the requested revisions already exist.
// It records "known" (some version of the id is registered) and "exists"
// (the requested version is registered) for the replacement constraints.
func (r *Registry) replaceProcedure() *Procedure {
	return &Procedure{
		ID:          ReplaceProcedureID,
		Version:     ReplaceProcedureVersion,
		Description: "admit a new revision of a registered procedure",
		Run: func(env *Env, input Value) (Value, error) {
			id, ok := Field(input, "id")
			if !ok {
				return nil, fmt.Errorf("missing id")
			}
			version, ok := Field(input, "version")
			if !ok {
				return nil, fmt.Errorf("missing version")
			}
			idText, ok1 := id.(Text)
			versionText, ok2 := version.(Text)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("id and version must be text")
			}

			versions := r.Versions(string(idText))
			_, exists := r.Lookup(string(idText), string(versionText))
			env.Record("known", Bool(len(versions) > 0))
			env.Record("exists", Bool(exists))

			prior := make(List, len(versions))
			for i, v := range versions {
				prior[i] = Text(v)
			}
			return Record{"id": idText, "version": versionText, "prior": prior}, nil
		},
	}
}

// ReplaceConstraints is the constraint set governing procedure replacement.
var ReplaceConstraints = MustConstraintSet(
	RecordedEquals("known_procedure", "known", Bool(true)),
	RecordedEquals("fresh_version", "exists", Bool(false)),
)

// Replace admits next as a new revision of an already registered procedure.
// The admission itself is a policy run of registry.replace, so it can be
// receipted like any other run. next is registered only when the run is
// accepted; the execution is returned in both cases.
func (r *Registry) Replace(ex *Executor, next *Procedure) (*Execution, error) {
	if err := next.validate(); err != nil {
		return nil, err
	}
	replace, err := r.Resolve(ReplaceProcedureID, ReplaceProcedureVersion, 0)
	if err != nil {
		return nil, err
	}
	input := Record{"id": Text(next.ID), "version": Text(next.Version)}
	exec, err := ex.Execute(replace, ReplaceConstraints, input)
	if err != nil {
		return exec, err
	}
	if err := r.Register(next); err != nil {
		return exec, err
	}
	ex.logger.Info("procedure replaced", "procedure", next.Ref())
	return exec, nil
}
