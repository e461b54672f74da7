// Package studio is the collaborator-facing facade over the engine. It keeps
// published compositions in memory, runs exports as tracked jobs and samples
// thumbnails.
package studio

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/export"
	"github.com/maauso/clipstitch/internal/job"
	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/storage"
	"github.com/maauso/clipstitch/internal/thumbs"
	"github.com/maauso/clipstitch/internal/timeline"
)

var (
	// ErrCompositionNotFound is returned for an unknown or released composition ID.
	ErrCompositionNotFound = errors.New("composition not found")
	// ErrTooManyJobs is returned when MaxConcurrentJobs exports are already running.
	ErrTooManyJobs = errors.New("too many concurrent exports")
	// ErrJobActive is returned when deleting a job that is still writing.
	ErrJobActive = errors.New("job is still running")
	// ErrJobNotActive is returned when cancelling a job that already finished.
	ErrJobNotActive = errors.New("job is not running")
	// ErrOutputUnavailable is returned when a job has no completed output to read.
	ErrOutputUnavailable = errors.New("export output not available")
)

// Composer builds compositions.
type Composer interface {
	Compose(ctx context.Context, sources []media.Source) (*timeline.Composition, error)
}

// Exporter starts asynchronous exports.
type Exporter interface {
	Export(ctx context.Context, c *timeline.Composition, outputPath string, format encode.Format, cb export.Callbacks) (*export.Handle, error)
}

// Prober reads track information from a clip.
type Prober interface {
	Probe(ctx context.Context, path string) (media.TrackInfo, error)
}

// Thumbnailer samples preview strips.
type Thumbnailer interface {
	CompositionStrip(ctx context.Context, c *timeline.Composition, width, minWidth, maxSize int) []image.Image
	ItemStrip(ctx context.Context, sources []media.Source, width, minWidth, maxSize int) []image.Image
}

// Config holds service settings.
type Config struct {
	// OutputDir receives export files.
	OutputDir string
	// Format is the default export format.
	Format encode.Format
	// MaxConcurrentJobs bounds running exports. Zero means 3.
	MaxConcurrentJobs int
	// MinThumbWidth is the narrowest a strip thumbnail may be.
	MinThumbWidth int
	// ThumbMaxSize bounds thumbnail width and height.
	ThumbMaxSize int
	// Publish uploads completed exports through storage.
	Publish bool
}

// entry is a published composition and how it was produced.
type entry struct {
	comp    *timeline.Composition
	trimmed bool
}

// jobMark records the newest persisted state of a job.
type jobMark struct {
	terminal bool
	progress float64
}

// Service coordinates compositions, exports and thumbnails.
type Service struct {
	composer Composer
	exporter Exporter
	prober   Prober
	thumbs   Thumbnailer
	repo     job.Repository
	store    storage.Storage
	cfg      Config
	logger   *slog.Logger

	mu           sync.RWMutex
	compositions map[string]entry
	handles      map[string]*export.Handle

	saveMu sync.Mutex
	saved  map[string]jobMark
}

// New creates a Service.
func New(composer Composer, exporter Exporter, prober Prober, thumbnailer Thumbnailer,
	repo job.Repository, store storage.Storage, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 3
	}
	if cfg.ThumbMaxSize <= 0 {
		cfg.ThumbMaxSize = thumbs.DefaultMaxSize
	}
	if cfg.MinThumbWidth <= 0 {
		cfg.MinThumbWidth = 40
	}
	if cfg.OutputDir == "" && store != nil {
		cfg.OutputDir = store.Dir()
	}
	cfg.Format = cfg.Format.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		composer:     composer,
		exporter:     exporter,
		prober:       prober,
		thumbs:       thumbnailer,
		repo:         repo,
		store:        store,
		cfg:          cfg,
		logger:       logger.With("component", "studio"),
		compositions: make(map[string]entry),
		handles:      make(map[string]*export.Handle),
		saved:        make(map[string]jobMark),
	}
}

// Compose builds and publishes a composition of sources.
func (s *Service) Compose(ctx context.Context, sources []media.Source) (*timeline.Composition, error) {
	c, err := s.composer.Compose(ctx, sources)
	if err != nil {
		return nil, err
	}
	s.publish(c, false)
	return c, nil
}

// ImportClip publishes a single clip as a composition so it can be trimmed
// or exported on its own.
func (s *Service) ImportClip(ctx context.Context, clip media.Clip) (*timeline.Composition, error) {
	info, err := s.prober.Probe(ctx, clip.Path)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", clip.Path, err)
	}
	if !info.HasVideo {
		return nil, fmt.Errorf("import %s: %w", clip.Path, timeline.ErrNoVideoTrack)
	}
	if clip.ID == "" {
		clip.ID = uuid.NewString()
	}
	c := timeline.FromClip(clip, info)
	s.publish(c, false)
	return c, nil
}

// Composition returns a published composition.
func (s *Service) Composition(id string) (*timeline.Composition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.compositions[id]
	if !ok {
		return nil, ErrCompositionNotFound
	}
	return e.comp, nil
}

// Trim publishes the sub-range r of a composition as a new composition.
func (s *Service) Trim(_ context.Context, compositionID string, r media.TrimRange) (*timeline.Composition, error) {
	c, err := s.Composition(compositionID)
	if err != nil {
		return nil, err
	}
	t, err := timeline.Trim(c, r)
	if err != nil {
		return nil, err
	}
	s.publish(t, true)
	return t, nil
}

// Release forgets a composition and drops its hold on scratch files.
func (s *Service) Release(compositionID string) error {
	s.mu.Lock()
	e, ok := s.compositions[compositionID]
	delete(s.compositions, compositionID)
	s.mu.Unlock()
	if !ok {
		return ErrCompositionNotFound
	}
	return e.comp.Release()
}

func (s *Service) publish(c *timeline.Composition, trimmed bool) {
	s.mu.Lock()
	s.compositions[c.ID] = entry{comp: c, trimmed: trimmed}
	s.mu.Unlock()
}

// Export starts writing a composition to OUTPUT_DIR. Compositions produced by
// Trim are written as trimmed_<uuid>, others as merged_<uuid>. The export runs
// detached from ctx; stop it with CancelJob.
func (s *Service) Export(ctx context.Context, compositionID string, format *encode.Format) (*job.Job, error) {
	s.mu.RLock()
	e, ok := s.compositions[compositionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCompositionNotFound
	}

	f := s.cfg.Format
	if format != nil {
		f = format.WithDefaults()
	}
	prefix := "merged"
	if e.trimmed {
		prefix = "trimmed"
	}
	outputPath := filepath.Join(s.cfg.OutputDir, fmt.Sprintf("%s_%s.%s", prefix, uuid.NewString(), f.Container))

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.handles) >= s.cfg.MaxConcurrentJobs {
		return nil, ErrTooManyJobs
	}

	bg := context.WithoutCancel(ctx)
	h, err := s.exporter.Export(bg, e.comp, outputPath, f, export.Callbacks{
		OnProgress: func(j *job.Job, _ float64) {
			s.persist(bg, j)
		},
		OnDone: func(j *job.Job, err error) {
			s.done(bg, j, err)
		},
	})
	if err != nil {
		return nil, err
	}

	j := h.Job()
	s.handles[j.ID] = h
	s.persist(bg, j)
	return j, nil
}

func (s *Service) done(ctx context.Context, j *job.Job, err error) {
	if err == nil && s.cfg.Publish && s.store != nil {
		key := "exports/" + filepath.Base(j.OutputPath)
		url, perr := s.store.Publish(ctx, key, j.OutputPath)
		if perr != nil {
			s.logger.Warn("failed to publish export",
				slog.String("job_id", j.ID),
				slog.String("error", perr.Error()),
			)
		} else {
			j.SetPublishURL(url)
			s.logger.Info("export published",
				slog.String("job_id", j.ID),
				slog.String("url", url),
			)
		}
	}
	s.persist(ctx, j)

	s.mu.Lock()
	delete(s.handles, j.ID)
	s.mu.Unlock()
}

// persist saves a job snapshot unless a newer one was already saved.
// Snapshots can arrive out of order between the caller and the export goroutine.
func (s *Service) persist(ctx context.Context, j *job.Job) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	terminal := j.IsTerminal()
	progress := j.GetProgress()
	if prev, ok := s.saved[j.ID]; ok {
		if prev.terminal || (!terminal && progress < prev.progress) {
			return
		}
	}
	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.saved[j.ID] = jobMark{terminal: terminal, progress: progress}
}

// GetJob returns the stored state of an export job.
func (s *Service) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]*job.Job, error) {
	return s.repo.List(ctx)
}

// CancelJob stops a running export and waits until it is terminal.
func (s *Service) CancelJob(ctx context.Context, id string) (*job.Job, error) {
	s.mu.RLock()
	h, ok := s.handles[id]
	s.mu.RUnlock()
	if !ok {
		if _, err := s.repo.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrJobNotActive
	}

	h.Cancel()
	if err := waitDone(ctx, h); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func waitDone(ctx context.Context, h *export.Handle) error {
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeleteJob removes a finished job and its output file.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	s.mu.RLock()
	_, active := s.handles[id]
	s.mu.RUnlock()
	if active {
		return ErrJobActive
	}

	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if j.OutputPath != "" && s.store != nil {
		if err := s.store.Remove(ctx, []string{j.OutputPath}); err != nil {
			s.logger.Warn("failed to remove export output",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.saveMu.Lock()
	delete(s.saved, id)
	s.saveMu.Unlock()
	return nil
}

// OpenOutput opens the file written by a completed job.
func (s *Service) OpenOutput(ctx context.Context, id string) (io.ReadCloser, *job.Job, error) {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if j.GetStatus() != job.StatusCompleted || s.store == nil {
		return nil, j, ErrOutputUnavailable
	}
	if j.OutputPath == "" {
		return nil, j, ErrOutputUnavailable
	}
	rc, err := s.store.Open(ctx, j.OutputPath)
	if errors.Is(err, fs.ErrNotExist) {
		s.forgetOutput(ctx, j)
	}
	if err != nil {
		return nil, j, fmt.Errorf("%w: %w", ErrOutputUnavailable, err)
	}
	return rc, j, nil
}

// forgetOutput keeps a completed job whose file was removed out of band but
// stops it pointing at the missing file.
func (s *Service) forgetOutput(ctx context.Context, j *job.Job) {
	s.logger.Warn("export output missing",
		slog.String("job_id", j.ID),
		slog.String("output", j.OutputPath),
	)
	j.ClearOutput()
	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Thumbnails samples a preview strip of a composition shown width pixels wide.
func (s *Service) Thumbnails(ctx context.Context, compositionID string, width int) ([]image.Image, error) {
	c, err := s.Composition(compositionID)
	if err != nil {
		return nil, err
	}
	return s.thumbs.CompositionStrip(ctx, c, width, s.cfg.MinThumbWidth, s.cfg.ThumbMaxSize), nil
}

// SourceThumbnails samples a preview strip across sources before they are composed.
func (s *Service) SourceThumbnails(ctx context.Context, sources []media.Source, width int) []image.Image {
	return s.thumbs.ItemStrip(ctx, sources, width, s.cfg.MinThumbWidth, s.cfg.ThumbMaxSize)
}

// ActiveJobs returns how many exports are running.
func (s *Service) ActiveJobs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handles)
}

// Shutdown cancels running exports, waits for them and releases every composition.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	handles := make([]*export.Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.RUnlock()

	for _, h := range handles {
		h.Cancel()
	}
	for _, h := range handles {
		if err := waitDone(ctx, h); err != nil {
			return err
		}
	}

	s.mu.Lock()
	entries := s.compositions
	s.compositions = make(map[string]entry)
	s.mu.Unlock()

	var errs []error
	for _, e := range entries {
		errs = append(errs, e.comp.Release())
	}
	return errors.Join(errs...)
}
