// Package main provides the axiom-cli command line interface.
package main

import (
	"fmt"
	"io"
	"os"

	"cosmossdk.io/log"
	"github.com/spf13/cobra"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/config"
)

const appName = "axiom-cli"

var version = "v0.0.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every command needs once flags are parsed.
type app struct {
	cfg    config.Config
	logger log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: log.NewNopLogger()}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Deterministic LWE cipher engine with policy receipts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}
	config.AddFlags(root.PersistentFlags())

	receiptCmd := &cobra.Command{Use: "receipt", Short: "Receipt operations"}
	receiptCmd.AddCommand(newReceiptVerifyCmd(a), newReceiptChainCmd(a))

	root.AddCommand(
		newKeygenCmd(a),
		newEncryptCmd(a),
		newDecryptCmd(a),
		newAddCmd(a),
		newScaleCmd(a),
		newExecuteCmd(a),
		newVerifyCmd(a),
		receiptCmd,
		newBenchCmd(a),
		newParamsCmd(a),
		newVersionCmd(),
	)
	return root
}

// load builds the configuration. Full validation is left to the commands
// that need every field, so that e.g. decrypt works without a seed.
func (a *app) load(cmd *cobra.Command) error {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return err
	}
	if a.cfg, err = config.BuildConfig(v); err != nil {
		return err
	}
	a.logger, err = a.cfg.NewLogger(cmd.ErrOrStderr())
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, version)
			fmt.Fprintf(cmd.OutOrStdout(), "axiom library version %s\n", axiom.Version)
			return nil
		},
	}
}

// writeOutput writes data to filename, or to w when filename is empty.
// Files are created owner read-write only since they may hold key material.
func writeOutput(w io.Writer, data []byte, filename string) error {
	if filename == "" {
		_, err := fmt.Fprintln(w, string(data))
		return err
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	// Enforce permissions even when the file already existed.
	return os.Chmod(filename, 0o600)
}
