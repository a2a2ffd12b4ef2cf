package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func certCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cert",
		Short: "Create the local CA certificate if needed and print its paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.ca.Obtain(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "certificate: %s\nkey: %s\n", b.CertificatePath, b.KeyPath)
			return nil
		},
	}
}
