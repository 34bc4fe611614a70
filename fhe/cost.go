package fhe

import (
	"fmt"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/core"
)

// Op names a cipher engine operation for cost estimates.
type Op string

const (
	OpKeyGen  Op = "keygen"
	OpEncrypt Op = "encrypt"
	OpDecrypt Op = "decrypt"
	OpAdd     Op = "add"
	OpScale   Op = "scale"
)

// Cost returns the worst-case number of modular operations op performs under
// params. Callers use it to decide whether to start an operation at all;
// nothing in this package interrupts an operation once started.
func Cost(params axiom.Parameters, op Op) (uint64, error) {
	if err := core.ValidateParams(params); err != nil {
		return 0, err
	}
	n, m := uint64(params.N), uint64(params.M)
	switch op {
	case OpKeyGen:
		// matrix expansion, A*s and the error vector
		return 2*m*n + m, nil
	case OpEncrypt:
		// A^T r and <B, r> for every selected row, plus e' and Delta*m
		return m*(n+1) + 2, nil
	case OpDecrypt:
		return n + 2, nil
	case OpAdd, OpScale:
		return n + 1, nil
	default:
		return 0, fmt.Errorf("unknown operation %q", op)
	}
}

// Ops lists every operation with a cost estimate.
func Ops() []Op {
	return []Op{OpKeyGen, OpEncrypt, OpDecrypt, OpAdd, OpScale}
}
