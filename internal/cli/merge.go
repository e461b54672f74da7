package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMergeCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge MANIFEST",
		Short: "Merge the sources listed in a YAML manifest",
		Long: `Merge composes every source in the manifest into one timeline, newest
first, and exports it. Stills play for STILL_DURATION_SEC seconds. When the
manifest has a trim section only that range is exported.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (overrides the manifest)")

	cmd.RunE = a.withDeps(func(cmd *cobra.Command, args []string) error {
		m, err := LoadManifest(args[0])
		if err != nil {
			return err
		}
		if output == "" {
			output = m.Output
		}

		ctx := cmd.Context()
		comp, err := a.deps.Studio.Compose(ctx, m.MediaSources())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderComposition(comp))

		if m.Trim != nil {
			comp, err = a.deps.Studio.Trim(ctx, comp.ID, m.Trim.Range())
			if err != nil {
				return err
			}
		}
		return a.export(cmd, comp.ID, m.ExportFormat(), output)
	})
	return cmd
}
