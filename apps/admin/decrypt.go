package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/onhold/core/cryptox"
)

func (cli *commandLine) newDecryptCommand() *cobra.Command {
	var keyFile string

	cmd := &cobra.Command{
		Use:   "decrypt ENVELOPE",
		Short: "Print the plaintext of an encrypted field envelope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := cryptox.KeyOptions{Key: cli.conf.Encryption.Key, KeyFile: cli.conf.Encryption.KeyFile}
			if keyFile != "" {
				opts = cryptox.KeyOptions{KeyFile: keyFile}
			}
			key, _, err := cryptox.ResolveKey(opts)
			if err != nil {
				return errors.Wrap(err, "loading key")
			}
			c, err := cryptox.New(key, cli.conf.Encryption.HashSalt)
			if err != nil {
				return err
			}

			plaintext, err := c.Open(strings.TrimSpace(args[0]))
			if err != nil {
				return errors.Wrap(err, "decrypting envelope")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), plaintext)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "file holding the hex encoded key (defaults to the configured key)")
	return cmd
}

func (cli *commandLine) newGenKeyCommand() *cobra.Command {
	var outFile string

	cmd := &cobra.Command{
		Use:   "genkey",
		Short: "Generate a new encryption key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cryptox.GenerateKey()
			if err != nil {
				return err
			}
			encoded := fmt.Sprintf("%x", key)
			if outFile == "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), encoded)
				return nil
			}
			if err = os.WriteFile(outFile, []byte(encoded+"\n"), 0o600); err != nil {
				return errors.Wrap(err, "writing key file")
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "key written to %s\n", outFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&outFile, "out", "", "write the key to this file instead of printing it")
	return cmd
}
