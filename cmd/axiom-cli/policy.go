package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/catalog"
	"github.com/BackendStack21/axiom-go/pipeline"
	"github.com/BackendStack21/axiom-go/policy"
	"github.com/BackendStack21/axiom-go/store"
	"github.com/BackendStack21/axiom-go/verifier"
)

// runFlags are shared by execute and verify.
type runFlags struct {
	procedure   string
	version     string
	constraints string
	input       string
	ciphertexts []string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.procedure, "procedure", "p", catalog.LedgerBalance, "procedure id")
	cmd.Flags().StringVar(&f.version, "version", catalog.Version, "procedure version")
	cmd.Flags().StringVar(&f.constraints, "constraints", "", "constraint set: "+strings.Join(catalog.ConstraintSetNames(), ", ")+" (default: the procedure's own)")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "input JSON, or @file")
	cmd.Flags().StringSliceVar(&f.ciphertexts, "ciphertexts", nil, "ciphertext files passed as the input field \"values\"")
}

// resolve decodes the input and picks the constraint set.
func (f *runFlags) resolve(p axiom.Parameters) (*policy.ConstraintSet, policy.Value, error) {
	var cs *policy.ConstraintSet
	if f.constraints == "" {
		var err error
		if cs, err = catalog.DefaultConstraints(f.procedure, p); err != nil {
			return nil, nil, err
		}
	} else {
		build, ok := catalog.ConstraintSets[f.constraints]
		if !ok {
			return nil, nil, fmt.Errorf("%w: unknown constraint set %q", axiom.ErrIncompleteSpecification, f.constraints)
		}
		cs = build(p)
	}

	raw := []byte(f.input)
	if strings.HasPrefix(f.input, "@") {
		var err error
		if raw, err = readFile(strings.TrimPrefix(f.input, "@")); err != nil {
			return nil, nil, err
		}
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	input, err := policy.DecodeJSON(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding input: %w", err)
	}
	if len(f.ciphertexts) == 0 {
		return cs, input, nil
	}

	rec, ok := input.(policy.Record)
	if !ok {
		return nil, nil, errors.New("ciphertexts need an object input")
	}
	values := make(policy.List, 0, len(f.ciphertexts))
	for _, file := range f.ciphertexts {
		ct, cp, err := loadCipher(file)
		if err != nil {
			return nil, nil, err
		}
		if cp.Name != p.Name {
			return nil, nil, fmt.Errorf("%w: %s is %s, expected %s", axiom.ErrIncompatibleCiphertexts, file, cp.Name, p.Name)
		}
		values = append(values, policy.Cipher{Ciphertext: ct})
	}
	rec["values"] = values
	return cs, rec, nil
}

// newCore assembles a pipeline from the configuration. Keys are not needed
// to execute or verify policies.
func (a *app) newCore(withAuthority bool) (*pipeline.Core, []byte, error) {
	params, err := a.cfg.Params()
	if err != nil {
		return nil, nil, err
	}
	mode, err := a.cfg.ParsedMode()
	if err != nil {
		return nil, nil, err
	}
	h, err := a.cfg.HashFunc()
	if err != nil {
		return nil, nil, err
	}
	reg, err := catalog.NewRegistry()
	if err != nil {
		return nil, nil, err
	}
	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithRegistry(reg),
		pipeline.WithHash(h),
		pipeline.WithVerifierOptions(
			verifier.WithWorkers(a.cfg.Workers),
			verifier.WithAnalytic(a.cfg.Analytic),
		),
	}
	var pub []byte
	if withAuthority {
		auth, err := a.cfg.Authority()
		if err != nil {
			return nil, nil, err
		}
		pub = auth.PublicKey()
		opts = append(opts, pipeline.WithAuthority(auth))
	}
	if a.cfg.StoreDir != "" {
		s, err := store.NewFileStore(a.cfg.StoreDir, a.cfg.CacheSize)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, pipeline.WithStore(s))
	}
	c, err := pipeline.New(params, mode, opts...)
	return c, pub, err
}

// executeOutput is printed by the execute command.
type executeOutput struct {
	Receipt            *axiom.ReceiptBundle `json:"receipt"`
	AuthorityPublicKey string               `json:"authority_public_key,omitempty"`
	Output             any                  `json:"output"`
}

func newExecuteCmd(a *app) *cobra.Command {
	var (
		f      runFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a procedure and issue a signed receipt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, pub, err := a.newCore(true)
			if err != nil {
				return err
			}
			cs, input, err := f.resolve(c.Params())
			if err != nil {
				return err
			}
			exec, r, err := c.Execute(f.procedure, f.version, cs, input)
			if err != nil {
				if name, ok := axiom.ViolatedConstraint(err); ok {
					return fmt.Errorf("rejected: constraint %q violated", name)
				}
				return err
			}
			data, err := marshal(executeOutput{
				Receipt:            r,
				AuthorityPublicKey: hex.EncodeToString(pub),
				Output:             policy.Native(exec.Output),
			})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), data, output)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that a policy run is deterministic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := a.newCore(false)
			if err != nil {
				return err
			}
			cs, input, err := f.resolve(c.Params())
			if err != nil {
				return err
			}
			res, err := c.VerifyDeterminism(cmd.Context(), f.procedure, f.version, cs, input, a.cfg.Iterations)
			if res != nil {
				fmt.Fprint(cmd.OutOrStdout(), verifier.Report(res))
			}
			if err != nil {
				return err
			}
			if !res.Insurable() {
				return fmt.Errorf("risk score %d", res.RiskScore)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
