package main

import (
	"fmt"

	"github.com/spf13/cobra"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/fhe"
)

func newKeygenCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an LWE key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			params, err := a.cfg.Params()
			if err != nil {
				return err
			}
			mode, err := a.cfg.ParsedMode()
			if err != nil {
				return err
			}
			kp, err := fhe.GenerateKeys(params, a.cfg.SeedBytes(), mode)
			if err != nil {
				return err
			}
			defer kp.SecretKey.Zeroize()
			a.logger.Info("generated key pair", "params", params.Name, "mode", mode.String())

			data, err := marshal(exportKeyPair(kp, mode))
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), data, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newEncryptCmd(a *app) *cobra.Command {
	var (
		keyFile, output, nonce string
		message                uint32
	)
	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt an integer plaintext",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := a.cfg.ParsedMode()
			if err != nil {
				return err
			}
			pk, err := loadPublicKey(keyFile)
			if err != nil {
				return err
			}
			var seed []byte
			if mode == axiom.ModeFrozen {
				seed = a.cfg.SeedBytes()
			}
			enc, err := fhe.NewEncryptor(pk, mode, seed)
			if err != nil {
				return err
			}
			var n []byte
			if nonce != "" {
				n = []byte(nonce)
			}
			ct, err := enc.EncryptWithNonce(message, n)
			if err != nil {
				return err
			}
			data, err := marshal(exportCipher(pk.Params, ct))
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), data, output)
		},
	}
	cmd.Flags().StringVarP(&keyFile, "public-key", "k", "", "key pair or public key file")
	cmd.Flags().Uint32VarP(&message, "message", "m", 0, "plaintext, below the plaintext modulus")
	cmd.Flags().StringVar(&nonce, "nonce", "", "nonce separating repeated frozen encryptions")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("public-key")
	return cmd
}

func newDecryptCmd(a *app) *cobra.Command {
	var keyFile, ctFile string
	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a ciphertext",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := loadSecretKey(keyFile)
			if err != nil {
				return err
			}
			defer sk.Zeroize()
			ct, p, err := loadCipher(ctFile)
			if err != nil {
				return err
			}
			if p.Name != sk.Params.Name {
				return fmt.Errorf("%w: ciphertext is %s, key is %s", axiom.ErrIncompatibleCiphertexts, p.Name, sk.Params.Name)
			}
			m, err := fhe.Decrypt(sk, ct)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyFile, "secret-key", "s", "", "key pair file")
	cmd.Flags().StringVarP(&ctFile, "ciphertext", "c", "", "ciphertext file")
	_ = cmd.MarkFlagRequired("secret-key")
	_ = cmd.MarkFlagRequired("ciphertext")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "add <ciphertext> <ciphertext>...",
		Short: "Add ciphertexts homomorphically",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cts    []*axiom.Ciphertext
				params axiom.Parameters
			)
			for i, f := range args {
				ct, p, err := loadCipher(f)
				if err != nil {
					return err
				}
				if i > 0 && p.Name != params.Name {
					return fmt.Errorf("%w: %s and %s", axiom.ErrIncompatibleCiphertexts, params.Name, p.Name)
				}
				params = p
				cts = append(cts, ct)
			}
			ev, err := fhe.NewEvaluator(params)
			if err != nil {
				return err
			}
			sum, err := ev.Sum(cts...)
			if err != nil {
				return err
			}
			a.logger.Debug("homomorphic sum", "operands", len(cts), "noise", sum.Noise)
			data, err := marshal(exportCipher(params, sum))
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), data, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newScaleCmd(a *app) *cobra.Command {
	var (
		ctFile, output string
		k              int64
	)
	cmd := &cobra.Command{
		Use:   "scale",
		Short: "Multiply a ciphertext by an integer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, p, err := loadCipher(ctFile)
			if err != nil {
				return err
			}
			ev, err := fhe.NewEvaluator(p)
			if err != nil {
				return err
			}
			out, err := ev.Scale(ct, k)
			if err != nil {
				return err
			}
			a.logger.Debug("homomorphic scale", "k", k, "noise", out.Noise)
			data, err := marshal(exportCipher(p, out))
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), data, output)
		},
	}
	cmd.Flags().StringVarP(&ctFile, "ciphertext", "c", "", "ciphertext file")
	cmd.Flags().Int64VarP(&k, "k", "k", 1, "scalar")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("ciphertext")
	return cmd
}
