package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/razorphish/core-api-sub000/internal/signer"
)

func newDigestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "digest <secret>",
		Short: "Print the stored fingerprint of a client secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), signer.Fingerprint(args[0]))
			return err
		},
	}
}
