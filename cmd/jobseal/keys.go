package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petrijr/jobseal"
)

func newKeygenCommand(_ *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a worker keypair",
		Long: `Generates a Curve25519 keypair, writes the base64 private key to --out
with mode 0600 and prints the public key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kp, err := jobseal.GenerateKeypair()
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, []byte(kp.PrivateKeyString()+"\n"), 0o600); err != nil {
				return fmt.Errorf("write private key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), kp.PublicKeyString())
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "jobseal.key", "file to write the private key to")
	return cmd
}

func newPublishKeyCommand(a *app) *cobra.Command {
	var keyFile string

	cmd := &cobra.Command{
		Use:   "publish-key",
		Short: "Publish the worker's public key to the store",
		Long: `Derives the public key from the worker's private key and stores it where
submitters look it up. The private key comes from --key, or from
JOBSEAL_PRIVATE_KEY / JOBSEAL_PRIVATE_KEY_FILE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keyFile != "" {
				a.cfg.PrivateKey = ""
				a.cfg.PrivateKeyFile = keyFile
			}
			kp, err := a.cfg.Keypair()
			if err != nil {
				return err
			}
			if kp == nil {
				return errors.New("no private key configured; use --key or JOBSEAL_PRIVATE_KEY_FILE")
			}

			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			if err := jobseal.PublishPublicKey(ctx, st, kp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), kp.PublicKeyString())
			return nil
		},
	}

	cmd.Flags().StringVar(&keyFile, "key", "", "private key file")
	return cmd
}
