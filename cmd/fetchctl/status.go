package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the fetch-service is online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := a.cp.Status(cmd.Context())
			out := cmd.OutOrStdout()

			if !st.Online {
				fmt.Fprintln(out, "fetch-service: offline")
				return a.health(cmd.Context())
			}

			fmt.Fprintln(out, "fetch-service: online")
			doc, err := json.MarshalIndent(st.Raw, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(doc))
			return nil
		},
	}
}
