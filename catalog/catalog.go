// Package catalog holds the built-in procedures and constraint sets used by
// the CLI and the examples.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/policy"
)

// Procedure identifiers.
const (
	LedgerBalance  = "ledger.balance"
	StatsSum       = "stats.sum"
	FHESum         = "fhe.sum"
	FHEWeightedSum = "fhe.weighted_sum"

	Version = "1.0.0"
)

var errOverflow = errors.New("integer overflow")

func addInt(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, errOverflow
	}
	return a + b, nil
}

func intsField(input policy.Value, name string) (policy.Ints, error) {
	f, ok := policy.Field(input, name)
	if !ok {
		return nil, fmt.Errorf("missing field %q", name)
	}
	ints, ok := f.(policy.Ints)
	if !ok {
		return nil, fmt.Errorf("field %q: want ints, got %s", name, f.Kind())
	}
	return ints, nil
}

func ciphersField(input policy.Value, name string) ([]*axiom.Ciphertext, error) {
	f, ok := policy.Field(input, name)
	if !ok {
		return nil, fmt.Errorf("missing field %q", name)
	}
	list, ok := f.(policy.List)
	if !ok {
		return nil, fmt.Errorf("field %q: want list, got %s", name, f.Kind())
	}
	out := make([]*axiom.Ciphertext, len(list))
	for i, v := range list {
		c, ok := v.(policy.Cipher)
		if !ok || c.Ciphertext == nil {
			return nil, fmt.Errorf("field %q[%d]: want cipher", name, i)
		}
		out[i] = c.Ciphertext
	}
	return out, nil
}

// Balance applies signed operations to a starting balance.
// Input: {start: int, ops: ints}. It records the running balance after every
// operation as "balance" and the lowest balance seen as "min_balance".
func Balance() *policy.Procedure {
	return &policy.Procedure{
		ID:          LedgerBalance,
		Version:     Version,
		Description: "apply signed operations to a starting balance",
		Pure:        true,
		Run: func(env *policy.Env, input policy.Value) (policy.Value, error) {
			total, ok := policy.IntField(input, "start")
			if !ok {
				return nil, errors.New("missing integer field \"start\"")
			}
			ops, err := intsField(input, "ops")
			if err != nil {
				return nil, err
			}
			lowest := total
			for _, op := range ops {
				if total, err = addInt(total, op); err != nil {
					return nil, err
				}
				env.Record("balance", policy.Int(total))
				lowest = min(lowest, total)
			}
			env.Record("min_balance", policy.Int(lowest))
			return policy.Int(total), nil
		},
	}
}

// Sum adds a list of integers. Input: {values: ints}.
func Sum() *policy.Procedure {
	return &policy.Procedure{
		ID:          StatsSum,
		Version:     Version,
		Description: "sum of integers",
		Pure:        true,
		Run: func(env *policy.Env, input policy.Value) (policy.Value, error) {
			values, err := intsField(input, "values")
			if err != nil {
				return nil, err
			}
			var total int64
			for _, v := range values {
				if total, err = addInt(total, v); err != nil {
					return nil, err
				}
			}
			env.Record("count", policy.Int(int64(len(values))))
			return policy.Int(total), nil
		},
	}
}

// EncryptedSum adds ciphertexts homomorphically. Input: {values: [cipher]}.
func EncryptedSum() *policy.Procedure {
	return &policy.Procedure{
		ID:          FHESum,
		Version:     Version,
		Description: "homomorphic sum of ciphertexts",
		Pure:        true,
		Run: func(env *policy.Env, input policy.Value) (policy.Value, error) {
			ev, err := env.Evaluator()
			if err != nil {
				return nil, err
			}
			cts, err := ciphersField(input, "values")
			if err != nil {
				return nil, err
			}
			sum, err := ev.Sum(cts...)
			if err != nil {
				return nil, err
			}
			env.Record("budget", policy.Int(int64(min(ev.Budget(sum), math.MaxInt64))))
			return policy.Cipher{Ciphertext: sum}, nil
		},
	}
}

// WeightedSum computes sum(w_i * c_i) homomorphically.
// Input: {values: [cipher], weights: ints} of equal length.
func WeightedSum() *policy.Procedure {
	return &policy.Procedure{
		ID:          FHEWeightedSum,
		Version:     Version,
		Description: "homomorphic weighted sum of ciphertexts",
		Pure:        true,
		Run: func(env *policy.Env, input policy.Value) (policy.Value, error) {
			ev, err := env.Evaluator()
			if err != nil {
				return nil, err
			}
			cts, err := ciphersField(input, "values")
			if err != nil {
				return nil, err
			}
			weights, err := intsField(input, "weights")
			if err != nil {
				return nil, err
			}
			if len(weights) != len(cts) {
				return nil, fmt.Errorf("%d weights for %d values", len(weights), len(cts))
			}
			scaled := make([]*axiom.Ciphertext, len(cts))
			for i, ct := range cts {
				if scaled[i], err = ev.Scale(ct, weights[i]); err != nil {
					return nil, fmt.Errorf("value %d: %w", i, err)
				}
			}
			sum, err := ev.Sum(scaled...)
			if err != nil {
				return nil, err
			}
			env.Record("budget", policy.Int(int64(min(ev.Budget(sum), math.MaxInt64))))
			return policy.Cipher{Ciphertext: sum}, nil
		},
	}
}

// Procedures returns every built-in procedure.
func Procedures() []*policy.Procedure {
	return []*policy.Procedure{Balance(), Sum(), EncryptedSum(), WeightedSum()}
}

// NewRegistry returns a registry holding every built-in procedure.
func NewRegistry() (*policy.Registry, error) {
	return policy.NewRegistry(Procedures()...)
}

// BalanceConstraints rejects any run whose balance drops below zero.
func BalanceConstraints() *policy.ConstraintSet {
	return policy.MustConstraintSet(
		policy.NonNegative("non_negative"),
		policy.KindIs("integer_output", policy.KindInt),
	)
}

// SumConstraints bounds the sum to [lo, hi].
func SumConstraints(lo, hi int64) *policy.ConstraintSet {
	return policy.MustConstraintSet(
		policy.KindIs("integer_output", policy.KindInt),
		policy.Range("bounded_sum", "", lo, hi),
	)
}

// CipherConstraints requires a ciphertext output whose tracked noise stays
// at or below bound.
func CipherConstraints(bound uint64) *policy.ConstraintSet {
	return policy.MustConstraintSet(
		policy.KindIs("cipher_output", policy.KindCipher),
		policy.NoiseBelow("noise_budget", bound),
	)
}

// ConstraintSets names the constraint sets selectable from the CLI. Each
// entry builds its set for the given parameters.
var ConstraintSets = map[string]func(p axiom.Parameters) *policy.ConstraintSet{
	"balance": func(axiom.Parameters) *policy.ConstraintSet { return BalanceConstraints() },
	"sum": func(axiom.Parameters) *policy.ConstraintSet {
		return SumConstraints(math.MinInt64, math.MaxInt64)
	},
	"cipher": func(p axiom.Parameters) *policy.ConstraintSet { return CipherConstraints(p.NoiseBound) },
}

// ConstraintSetNames lists the keys of ConstraintSets.
func ConstraintSetNames() []string {
	out := make([]string, 0, len(ConstraintSets))
	for k := range ConstraintSets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultConstraints returns the usual constraint set for a built-in procedure.
func DefaultConstraints(id string, p axiom.Parameters) (*policy.ConstraintSet, error) {
	switch id {
	case LedgerBalance:
		return BalanceConstraints(), nil
	case StatsSum:
		return ConstraintSets["sum"](p), nil
	case FHESum, FHEWeightedSum:
		return CipherConstraints(p.NoiseBound), nil
	}
	return nil, fmt.Errorf("%w: no default constraints for %q", axiom.ErrIncompleteSpecification, id)
}
