package policy

import (
	"errors"
	"testing"

	axiom "github.com/BackendStack21/axiom-go"
)

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(balanceProc())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register(balanceProc()); !errors.Is(err, ErrDuplicateProcedure) {
		t.Errorf("expected ErrDuplicateProcedure, got %v", err)
	}
	if err := r.Register(&Procedure{ID: "x"}); !errors.Is(err, axiom.ErrIncompleteSpecification) {
		t.Errorf("expected ErrIncompleteSpecification, got %v", err)
	}

	p, err := r.Resolve("test.balance", "1.0.0", 3)
	if err != nil || p.Ref() != "test.balance@1.0.0" {
		t.Errorf("Resolve = %v, %v", p, err)
	}
	if _, err := r.Resolve("test.balance", "9.9.9", 0); !errors.Is(err, axiom.ErrIncompleteSpecification) {
		t.Errorf("expected ErrIncompleteSpecification, got %v", err)
	}
	if got := len(r.List()); got != 2 {
		t.Errorf("List has %d procedures, want 2 including registry.replace", got)
	}

	if _, err := NewRegistry(balanceProc(), balanceProc()); err == nil {
		t.Error("NewRegistry should refuse duplicates")
	}
}

func TestReplace(t *testing.T) {
	r, _ := NewRegistry(balanceProc())
	ex := NewExecutor()

	next := balanceProc()
	next.Version = "1.1.0"
	exec, err := r.Replace(ex, next)
	if err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	if !exec.Accepted() || exec.Procedure.ID != ReplaceProcedureID {
		t.Errorf("unexpected execution %+v", exec)
	}
	if v := r.Versions("test.balance"); len(v) != 2 || v[1] != "1.1.0" {
		t.Errorf("Versions = %v", v)
	}

	_, err = r.Replace(ex, next)
	if name, _ := axiom.ViolatedConstraint(err); name != "fresh_version" {
		t.Errorf("expected fresh_version violation, got %v", err)
	}

	unknown := balanceProc()
	unknown.ID = "never.registered"
	_, err = r.Replace(ex, unknown)
	if name, _ := axiom.ViolatedConstraint(err); name != "known_procedure" {
		t.Errorf("expected known_procedure violation, got %v", err)
	}
	if _, ok := r.Lookup("never.registered", unknown.Version); ok {
		t.Error("rejected replacement was registered")
	}

	if _, err := r.Replace(ex, &Procedure{}); !errors.Is(err, axiom.ErrIncompleteSpecification) {
		t.Errorf("expected ErrIncompleteSpecification, got %v", err)
	}
}
