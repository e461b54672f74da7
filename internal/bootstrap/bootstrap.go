// Package bootstrap provides dependency initialization for the clipstitch services.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/maauso/clipstitch/internal/config"
	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/export"
	"github.com/maauso/clipstitch/internal/ffmpeg"
	"github.com/maauso/clipstitch/internal/job"
	"github.com/maauso/clipstitch/internal/still"
	"github.com/maauso/clipstitch/internal/storage"
	"github.com/maauso/clipstitch/internal/studio"
	"github.com/maauso/clipstitch/internal/thumbs"
	"github.com/maauso/clipstitch/internal/timeline"
)

// Dependencies holds all initialized dependencies for the server and CLI.
type Dependencies struct {
	Studio    *studio.Service
	Uploads   *storage.LocalStorage
	Storage   storage.Storage
	Processor *ffmpeg.Processor
	Jobs      job.Repository

	closers []func() error
}

// Close releases resources held by the dependencies.
func (d *Dependencies) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	uploads, err := storage.NewLocalStorage(filepath.Join(cfg.ScratchDir, "uploads"))
	if err != nil {
		return nil, fmt.Errorf("create upload storage: %w", err)
	}

	repo, closeRepo, err := initRepository(cfg, logger)
	if err != nil {
		return nil, err
	}

	processor := ffmpeg.NewProcessor(cfg.FFmpegPath, cfg.FFprobePath, logger)
	if !processor.Available() {
		logger.Warn("ffmpeg not found; exports and clip thumbnails will fail",
			slog.String("ffmpeg_path", cfg.FFmpegPath),
		)
	}

	synth := still.NewSynthesizer(filepath.Join(cfg.ScratchDir, "stills"),
		still.WithFrameRate(cfg.FrameRate),
		still.WithLogger(logger),
	)

	composer := timeline.NewComposer(processor, synth, timeline.ComposerConfig{
		StillDuration: cfg.StillDuration(),
		FrameSize:     cfg.FrameSize(),
		Concurrency:   cfg.ComposeConcurrency,
	}, logger)

	writer := export.NewWriter(processor, export.Config{
		ProgressInterval: cfg.ProgressInterval(),
	}, logger)

	sampler := thumbs.NewSampler(processor, cfg.ComposeConcurrency, logger)

	svc := studio.New(composer, writer, processor, sampler, repo, store, studio.Config{
		OutputDir: cfg.OutputDir,
		Format: encode.Format{
			Width:     cfg.FrameWidth,
			Height:    cfg.FrameHeight,
			FrameRate: cfg.FrameRate,
		},
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		MinThumbWidth:     cfg.MinThumbWidth,
		ThumbMaxSize:      cfg.ThumbMaxSize,
		Publish:           cfg.S3Enabled(),
	}, logger)

	deps := &Dependencies{
		Studio:    svc,
		Uploads:   uploads,
		Storage:   store,
		Processor: processor,
		Jobs:      repo,
	}
	if closeRepo != nil {
		deps.closers = append(deps.closers, closeRepo)
	}
	return deps, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.OutputDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("output_dir", cfg.OutputDir),
	)
	return localStore, nil
}

// initRepository opens the SQLite job store when DB_PATH is set and falls
// back to memory otherwise.
func initRepository(cfg *config.Config, logger *slog.Logger) (job.Repository, func() error, error) {
	if cfg.DBPath == "" {
		return job.NewMemoryRepository(), nil, nil
	}

	repo, err := job.NewSQLiteRepository(cfg.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open job database: %w", err)
	}
	logger.Info("sqlite job store configured", slog.String("db_path", cfg.DBPath))
	return repo, repo.Close, nil
}
