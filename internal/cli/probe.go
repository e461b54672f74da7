package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProbeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe FILE",
		Short: "Show the tracks of a clip",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.withDeps(func(cmd *cobra.Command, args []string) error {
		info, err := a.deps.Processor.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTrackInfo(args[0], info))
		return nil
	})
	return cmd
}
