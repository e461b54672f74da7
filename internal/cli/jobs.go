package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newJobsCmd(a *app) *cobra.Command {
	var remove string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List export jobs recorded in the job database",
		Long: `Jobs lists exports newest first. Jobs are only kept between runs when a
database is configured with --db or DB_PATH.`,
		Args: cobra.NoArgs,
	}
	cmd.Flags().StringVar(&remove, "delete", "", "Delete a finished job and its output")

	cmd.RunE = a.withDeps(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if remove != "" {
			if err := a.deps.Studio.DeleteJob(ctx, remove); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ Deleted ")+remove)
			return nil
		}

		jobs, err := a.deps.Studio.ListJobs(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderJobs(jobs))
		return nil
	})
	return cmd
}
