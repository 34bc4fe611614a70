package main

import (
	"fmt"
	"math/bits"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BackendStack21/axiom-go/core"
	"github.com/BackendStack21/axiom-go/fhe"
)

func newParamsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "List parameter sets and operation cost estimates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "name\tlog2 Q\tT\tN\tM\tbeta\tlog2 B\tfresh noise\tkeygen ops\tencrypt ops\tdecrypt ops")
			for _, name := range core.Names() {
				p := core.MustGetParams(name)
				fresh, _ := core.FreshNoise(p)
				costs := make([]uint64, 0, 3)
				for _, op := range []fhe.Op{fhe.OpKeyGen, fhe.OpEncrypt, fhe.OpDecrypt} {
					c, err := fhe.Cost(p, op)
					if err != nil {
						return err
					}
					costs = append(costs, c)
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
					p.Name, bits.Len64(p.Q)-1, p.T, p.N, p.M, p.ErrorBound, bits.Len64(p.NoiseBound)-1, fresh,
					costs[0], costs[1], costs[2])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			a.logger.Debug("listed parameter sets", "selected", a.cfg.ParamSet)
			return nil
		},
	}
}
