package main

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"
)

// instanceFlags binds the LXD instance a command acts on.
type instanceFlags struct {
	name    string
	project string
}

func (f *instanceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "instance", "", "LXD instance name")
	cmd.Flags().StringVar(&f.project, "project", "default", "LXD project")
	_ = cmd.MarkFlagRequired("instance")
}

func configureCmd(a *app) *cobra.Command {
	var (
		inf instanceFlags
		sf  sessionFlags
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Point an LXD instance at a session and print the build environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.cp.Configure(cmd.Context(), a.instance(inf.project, inf.name), sf.session())
			if err != nil {
				return err
			}
			writeEnv(cmd.OutOrStdout(), env)
			return nil
		},
	}

	inf.bind(cmd)
	sf.bind(cmd)
	return cmd
}

// writeEnv prints env as sorted KEY=VALUE lines.
func writeEnv(w io.Writer, env map[string]string) {
	for _, k := range slices.Sorted(maps.Keys(env)) {
		fmt.Fprintf(w, "%s=%s\n", k, env[k])
	}
}
