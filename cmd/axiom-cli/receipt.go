package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/receipt"
)

// loadReceipt reads either a bare receipt or the output of execute. The
// second return value is the authority public key found next to it, if any.
func loadReceipt(filename string) (*axiom.ReceiptBundle, string, error) {
	data, err := readFile(filename)
	if err != nil {
		return nil, "", err
	}
	var wrapped executeOutput
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Receipt != nil {
		return wrapped.Receipt, wrapped.AuthorityPublicKey, nil
	}
	var r axiom.ReceiptBundle
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, "", fmt.Errorf("parsing %s: %w", filename, err)
	}
	return &r, "", nil
}

func newReceiptVerifyCmd(a *app) *cobra.Command {
	var publicKey string
	cmd := &cobra.Command{
		Use:   "verify <receipt>",
		Short: "Verify a receipt against the authority public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, embedded, err := loadReceipt(args[0])
			if err != nil {
				return err
			}
			if publicKey == "" {
				publicKey = embedded
			}
			if publicKey == "" {
				return fmt.Errorf("no authority public key given")
			}
			pub, err := hex.DecodeString(publicKey)
			if err != nil {
				return fmt.Errorf("decoding public key: %w", err)
			}
			if err := receipt.Verify(r, "", pub); err != nil {
				return err
			}
			a.logger.Debug("receipt verified", "digest", r.CombinedDigest.String())
			fmt.Fprintf(cmd.OutOrStdout(), "OK %s %s@%s\n", r.CombinedDigest, r.ProcedureID, r.ProcedureVersion)
			return nil
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "hex authority public key (default: the one stored with the receipt)")
	return cmd
}

// chainLink is printed by receipt chain.
type chainLink struct {
	Index     uint64       `json:"index"`
	Procedure string       `json:"procedure"`
	Digest    axiom.Digest `json:"digest"`
	Link      axiom.Digest `json:"link"`
}

func newReceiptChainCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain <receipt>...",
		Short: "Chain receipts in the given order and print the links",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.cfg.HashFunc()
			if err != nil {
				return err
			}
			chain := receipt.NewChain(h)
			var links []chainLink
			for _, f := range args {
				r, _, err := loadReceipt(f)
				if err != nil {
					return err
				}
				if err := receipt.CheckCombined(r); err != nil {
					return fmt.Errorf("%s: %w", f, err)
				}
				e, err := chain.Append(r)
				if err != nil {
					return err
				}
				links = append(links, chainLink{
					Index:     e.Index,
					Procedure: r.ProcedureID + "@" + r.ProcedureVersion,
					Digest:    r.CombinedDigest,
					Link:      e.Link,
				})
			}
			if err := chain.Verify(); err != nil {
				return err
			}
			data, err := marshal(struct {
				Head  axiom.Digest `json:"head"`
				Links []chainLink  `json:"links"`
			}{chain.Head(), links})
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), data, "")
		},
	}
	return cmd
}
