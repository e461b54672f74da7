package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/media"
)

func newTrimCmd(a *app) *cobra.Command {
	var (
		start, end float64
		output     string
		container  string
	)

	cmd := &cobra.Command{
		Use:   "trim FILE",
		Short: "Export a range of a single clip",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if start < 0 || end <= start {
				return errors.New("--end must be after --start")
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.Float64Var(&start, "start", 0, "Range start in seconds")
	flags.Float64Var(&end, "end", 0, "Range end in seconds")
	flags.StringVarP(&output, "output", "o", "", "Output file")
	flags.StringVar(&container, "container", "", "Container: mp4, mov or m4v")
	_ = cmd.MarkFlagRequired("end")

	cmd.RunE = a.withDeps(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		comp, err := a.deps.Studio.ImportClip(ctx, media.Clip{Path: args[0]})
		if err != nil {
			return err
		}

		rng := media.TrimRange{Start: media.FromSeconds(start), End: media.FromSeconds(end)}
		trimmed, err := a.deps.Studio.Trim(ctx, comp.ID, rng)
		if err != nil {
			return err
		}

		var format *encode.Format
		if container != "" {
			format = &encode.Format{Container: container}
		}
		return a.export(cmd, trimmed.ID, format, output)
	})
	return cmd
}
