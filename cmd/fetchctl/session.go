package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/fetchctl/internal/fetch"
)

func sessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Create and tear down fetch-service sessions",
	}
	cmd.AddCommand(sessionCreateCmd(a))
	cmd.AddCommand(sessionTeardownCmd(a))
	return cmd
}

func sessionCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a session and print its credentials as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.cp.CreateSession(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(s)
		},
	}
}

// sessionFlags binds the credentials of an existing session.
type sessionFlags struct {
	id    string
	token string
}

func (f *sessionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "id", "", "Session id")
	cmd.Flags().StringVar(&f.token, "token", "", "Session token")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("token")
}

func (f *sessionFlags) session() fetch.Session {
	return fetch.Session{ID: f.id, Token: f.token}
}

func sessionTeardownCmd(a *app) *cobra.Command {
	var sf sessionFlags

	cmd := &cobra.Command{
		Use:   "teardown",
		Short: "Revoke and delete a session, printing its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.cp.Teardown(cmd.Context(), sf.session())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(report))
			return nil
		},
	}

	sf.bind(cmd)
	return cmd
}
