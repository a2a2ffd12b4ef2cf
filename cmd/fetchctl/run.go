package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edvin/fetchctl/internal/fetch"
)

func runCmd(a *app) *cobra.Command {
	var (
		inf        instanceFlags
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "run --instance NAME -- COMMAND [ARGS...]",
		Short: "Run a command in an LXD instance inside a fresh fetch-service session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()

			started, err := a.cp.EnsureRunning(ctx)
			if err != nil {
				return err
			}
			if started {
				defer func() {
					err = errors.Join(err, a.cp.Stop())
				}()
			}

			inst := a.instance(inf.project, inf.name)
			report, err := a.cp.RunSession(ctx, inst, func(ctx context.Context, env map[string]string) error {
				res, err := inst.Exec(ctx, args, fetch.ExecOptions{Env: env, Check: true})
				fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
				if res.Stderr != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), res.Stderr)
				}
				return err
			})

			if reportPath != "" && report != nil {
				if werr := os.WriteFile(reportPath, report, 0o644); werr != nil {
					err = errors.Join(err, fmt.Errorf("write session report: %w", werr))
				}
			}
			return err
		},
	}

	inf.bind(cmd)
	cmd.Flags().StringVar(&reportPath, "report", "", "Write the session report to this file")
	return cmd
}
