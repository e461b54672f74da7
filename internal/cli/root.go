// Package cli implements the clipstitch command line: merging sources from a
// YAML manifest, trimming clips, sampling thumbnails and inspecting exports.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/maauso/clipstitch/internal/bootstrap"
	"github.com/maauso/clipstitch/internal/config"
	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/job"
)

var (
	version = "dev"
	commit  = "unknown"
)

// errExportCancelled is returned when an export was interrupted.
var errExportCancelled = errors.New("export cancelled")

// app holds flag values and the dependencies built from them.
type app struct {
	outputDir  string
	scratchDir string
	dbPath     string
	logLevel   string

	logger *slog.Logger
	deps   *bootstrap.Dependencies
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "clipstitch",
		Short: "Merge, trim and export video clips and stills",
		Long: `clipstitch builds a single timeline from video clips and still images,
newest first, and exports it through ffmpeg.

Quick Start:
  clipstitch merge trip.yaml             # Merge the sources in a manifest
  clipstitch trim clip.mp4 --start 2 --end 9
  clipstitch thumbs a.mp4 b.jpg --width 600
  clipstitch jobs                        # List export jobs`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.outputDir, "output-dir", "", "Directory for exports (overrides OUTPUT_DIR)")
	flags.StringVar(&a.scratchDir, "scratch-dir", "", "Directory for temporary files (overrides SCRATCH_DIR)")
	flags.StringVar(&a.dbPath, "db", "", "SQLite job database (overrides DB_PATH)")
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level: debug, info, warn or error")

	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	root.AddCommand(
		newMergeCmd(a),
		newTrimCmd(a),
		newThumbsCmd(a),
		newProbeCmd(a),
		newJobsCmd(a),
	)
	return root
}

// Execute runs the CLI, printing any error to stderr.
func Execute(ctx context.Context) error {
	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
	}
	return err
}

// withDeps wraps a command so it runs with initialized dependencies, which
// are shut down afterwards.
func (a *app) withDeps(run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.setup(cmd.ErrOrStderr()); err != nil {
			return err
		}
		defer a.teardown()
		return run(cmd, args)
	}
}

func (a *app) setup(logOut io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.outputDir != "" {
		cfg.OutputDir = a.outputDir
	}
	if a.scratchDir != "" {
		cfg.ScratchDir = a.scratchDir
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	cfg.LogLevel = a.logLevel

	a.logger = cfg.NewLoggerTo(logOut)
	deps, err := bootstrap.NewDependencies(cfg, a.logger)
	if err != nil {
		return err
	}
	a.deps = deps
	return nil
}

func (a *app) teardown() {
	if err := a.deps.Studio.Shutdown(context.Background()); err != nil {
		a.logger.Warn("cleanup incomplete", slog.String("error", err.Error()))
	}
	if err := a.deps.Close(); err != nil {
		a.logger.Warn("failed to close dependencies", slog.String("error", err.Error()))
	}
}

// export starts an export of a published composition, draws its progress
// and moves the result to output when one is given.
func (a *app) export(cmd *cobra.Command, compositionID string, format *encode.Format, output string) error {
	ctx := cmd.Context()
	j, err := a.deps.Studio.Export(ctx, compositionID, format)
	if err != nil {
		return err
	}

	bar := newProgressBar(cmd.ErrOrStderr(), "Exporting")
	final, err := waitForJob(ctx, a.deps.Studio, j.ID, pollInterval, func(p float64) {
		_ = bar.Set(int(p * 100))
	})
	if err != nil {
		return err
	}

	switch final.Status {
	case job.StatusCompleted:
		_ = bar.Finish()
	case job.StatusCancelled:
		return errExportCancelled
	default:
		return fmt.Errorf("export failed: %s", final.Error)
	}

	path := final.OutputPath
	if output != "" {
		if err := moveFile(path, output); err != nil {
			return err
		}
		path = output
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, successStyle.Render("✓ Exported ")+path)
	if final.PublishURL != "" {
		fmt.Fprintln(out, labelStyle.Render("Published: ")+final.PublishURL)
	}
	return nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy export: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return os.Remove(src)
}
