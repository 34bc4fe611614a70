package policy

import (
	"encoding/binary"
	"fmt"

	axiom "github.com/BackendStack21/axiom-go"
)

// Outcome is what a constraint predicate sees of a finished procedure run.
type Outcome struct {
	Input         Value
	Output        Value
	Intermediates []Intermediate
}

// Predicate reports whether an outcome satisfies a constraint.
type Predicate func(o *Outcome) bool

// Constraint is a named predicate. Spec is the canonical text of the rule;
// it is what the constraint set digest commits to.
type Constraint struct {
	Name  string
	Spec  string
	Check Predicate
}

// ConstraintSet is an ordered, non-empty list of uniquely named constraints.
type ConstraintSet struct {
	constraints []Constraint
}

// NewConstraintSet validates and freezes the given constraints. An empty set
// is an incomplete specification: a run guarded by nothing would be accepted
// unconditionally.
func NewConstraintSet(cs ...Constraint) (*ConstraintSet, error) {
	if len(cs) == 0 {
		return nil, fmt.Errorf("%w: empty constraint set", axiom.ErrIncompleteSpecification)
	}
	seen := make(map[string]struct{}, len(cs))
	for _, c := range cs {
		if c.Name == "" || c.Check == nil {
			return nil, fmt.Errorf("%w: constraint without name or predicate", axiom.ErrIncompleteSpecification)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate constraint %q", axiom.ErrIncompleteSpecification, c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return &ConstraintSet{constraints: append([]Constraint(nil), cs...)}, nil
}

// MustConstraintSet is NewConstraintSet for package-level initialization.
func MustConstraintSet(cs ...Constraint) *ConstraintSet {
	set, err := NewConstraintSet(cs...)
	if err != nil {
		panic(err)
	}
	return set
}

// Len returns the number of constraints.
func (s *ConstraintSet) Len() int { return len(s.constraints) }

// Names returns the constraint names in evaluation order.
func (s *ConstraintSet) Names() []string {
	out := make([]string, len(s.constraints))
	for i, c := range s.constraints {
		out[i] = c.Name
	}
	return out
}

// AppendCanonical encodes the ordered (name, spec) pairs.
func (s *ConstraintSet) AppendCanonical(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(s.constraints)))
	for _, c := range s.constraints {
		dst = appendLen(dst, len(c.Name))
		dst = append(dst, c.Name...)
		dst = appendLen(dst, len(c.Spec))
		dst = append(dst, c.Spec...)
	}
	return dst
}

// evaluate returns the name of the first violated constraint, or "".
// A panicking predicate counts as a violation.
func (s *ConstraintSet) evaluate(o *Outcome) string {
	for _, c := range s.constraints {
		if !safeCheck(c.Check, o) {
			return c.Name
		}
	}
	return ""
}

func safeCheck(p Predicate, o *Outcome) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return p(o)
}

// NonNegative requires the output and every integer intermediate to be >= 0.
func NonNegative(name string) Constraint {
	return Constraint{
		Name: name,
		Spec: "non_negative(output, intermediates)",
		Check: func(o *Outcome) bool {
			if !nonNegative(o.Output) {
				return false
			}
			for _, im := range o.Intermediates {
				if !nonNegative(im.Value) {
					return false
				}
			}
			return true
		},
	}
}

func nonNegative(v Value) bool {
	ok := true
	Walk(v, func(x Value) {
		switch t := x.(type) {
		case Int:
			if t < 0 {
				ok = false
			}
		case Ints:
			for _, i := range t {
				if i < 0 {
					ok = false
				}
			}
		}
	})
	return ok
}

// Range requires an integer in [lo, hi]. With field == "" the output itself
// is checked, otherwise the named field of a record output.
func Range(name, field string, lo, hi int64) Constraint {
	return Constraint{
		Name: name,
		Spec: fmt.Sprintf("range(%s, %d, %d)", fieldSpec(field), lo, hi),
		Check: func(o *Outcome) bool {
			v := o.Output
			if field != "" {
				var ok bool
				if v, ok = Field(o.Output, field); !ok {
					return false
				}
			}
			i, ok := v.(Int)
			return ok && int64(i) >= lo && int64(i) <= hi
		},
	}
}

func fieldSpec(field string) string {
	if field == "" {
		return "output"
	}
	return "output." + field
}

// KindIs requires the output to be of the given kind.
func KindIs(name string, kind Kind) Constraint {
	return Constraint{
		Name: name,
		Spec: "kind(output) == " + kind.String(),
		Check: func(o *Outcome) bool {
			return o.Output != nil && o.Output.Kind() == kind
		},
	}
}

// NoiseBelow requires every ciphertext in the output to carry a tracked
// noise bound of at most bound.
func NoiseBelow(name string, bound uint64) Constraint {
	return Constraint{
		Name: name,
		Spec: fmt.Sprintf("noise(output) <= %d", bound),
		Check: func(o *Outcome) bool {
			ok := true
			Walk(o.Output, func(x Value) {
				if c, isCipher := x.(Cipher); isCipher {
					if c.Ciphertext == nil || c.Ciphertext.Noise > bound {
						ok = false
					}
				}
			})
			return ok
		},
	}
}

// RecordedEquals requires the named intermediate to equal want.
func RecordedEquals(name, intermediate string, want Value) Constraint {
	return Constraint{
		Name: name,
		Spec: fmt.Sprintf("recorded(%s) == %x", intermediate, Canonical(want)),
		Check: func(o *Outcome) bool {
			for _, im := range o.Intermediates {
				if im.Name == intermediate {
					return Equal(im.Value, want)
				}
			}
			return false
		},
	}
}

// Custom wraps an arbitrary predicate. spec must describe the predicate
// precisely enough that a changed predicate gets a changed spec.
func Custom(name, spec string, check Predicate) Constraint {
	return Constraint{Name: name, Spec: spec, Check: check}
}
