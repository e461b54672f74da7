package cli

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/maauso/clipstitch/internal/media"
)

func newThumbsCmd(a *app) *cobra.Command {
	var (
		manifest string
		width    int
		outDir   string
		merged   bool
	)

	cmd := &cobra.Command{
		Use:   "thumbs [FILE...]",
		Short: "Write a thumbnail strip as PNG files",
		Long: `Thumbs samples a preview strip for a strip of the given width in pixels.
Sources come from the files named or from --manifest. With --merged the
sources are composed first and the strip follows the merged timeline.`,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if manifest == "" && len(args) == 0 {
				return errors.New("name source files or pass --manifest")
			}
			if width <= 0 {
				return errors.New("--width must be positive")
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&manifest, "manifest", "m", "", "Read sources from a YAML manifest")
	flags.IntVarP(&width, "width", "w", 600, "Strip width in pixels")
	flags.StringVarP(&outDir, "out", "o", ".", "Directory for the PNG files")
	flags.BoolVar(&merged, "merged", false, "Sample the composed timeline")

	cmd.RunE = a.withDeps(func(cmd *cobra.Command, args []string) error {
		var sources []media.Source
		if manifest != "" {
			m, err := LoadManifest(manifest)
			if err != nil {
				return err
			}
			sources = m.MediaSources()
		} else {
			sources = SourcesFromPaths(args)
		}

		ctx := cmd.Context()
		var imgs []image.Image
		if merged {
			comp, err := a.deps.Studio.Compose(ctx, sources)
			if err != nil {
				return err
			}
			if imgs, err = a.deps.Studio.Thumbnails(ctx, comp.ID, width); err != nil {
				return err
			}
		} else {
			imgs = a.deps.Studio.SourceThumbnails(ctx, sources, width)
		}

		paths, err := writeThumbnails(outDir, imgs)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✓ Wrote %d thumbnails", len(paths)))+" to "+outDir)
		return nil
	})
	return cmd
}

// writeThumbnails saves imgs as thumb_000.png, thumb_001.png and so on.
func writeThumbnails(dir string, imgs []image.Image) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create thumbnail directory: %w", err)
	}
	paths := make([]string, 0, len(imgs))
	for i, img := range imgs {
		p := filepath.Join(dir, fmt.Sprintf("thumb_%03d.png", i))
		if err := imaging.Save(img, p); err != nil {
			return paths, fmt.Errorf("save thumbnail %d: %w", i, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
