// Package export drives the asynchronous encode of a composition to a file.
// Each export is tracked by a job whose progress only rises and which reaches
// exactly one terminal state.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/job"
	"github.com/maauso/clipstitch/internal/mediaerr"
	"github.com/maauso/clipstitch/internal/timeline"
)

const opExport = "export"

// DefaultProgressInterval is how often progress is sampled.
const DefaultProgressInterval = 100 * time.Millisecond

// Callbacks observe an export. Both are invoked from a single goroutine per
// export, never concurrently; OnProgress is never called after OnDone.
type Callbacks struct {
	OnProgress func(j *job.Job, progress float64)
	OnDone     func(j *job.Job, err error)
}

// Config holds writer settings. Zero values take defaults.
type Config struct {
	ProgressInterval time.Duration
	Backoff          encode.Backoff
}

// Writer exports compositions through an encoder.
type Writer struct {
	encoder encode.Encoder
	cfg     Config
	logger  *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(encoder encode.Encoder, cfg Config, logger *slog.Logger) *Writer {
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = DefaultProgressInterval
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = encode.DefaultBackoff()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		encoder: encoder,
		cfg:     cfg,
		logger:  logger.With("component", "export"),
	}
}

// Handle tracks one running export.
type Handle struct {
	job    *job.Job
	cancel context.CancelFunc
	done   chan struct{}
	// release drops the hold on the composition's scratch files.
	release func() error

	mu        sync.Mutex
	cancelled bool
	err       error
}

// Job returns a snapshot of the export job.
func (h *Handle) Job() *job.Job {
	return h.job.Clone()
}

// Cancel asks the export to stop. A cancelled export ends CANCELLED unless
// it already reached another terminal state.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.cancel()
}

func (h *Handle) cancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Done is closed once the export is terminal and OnDone has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the export is terminal or ctx ends and returns the terminal error.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the terminal error: nil when completed, an ErrExportCancelled or
// ErrExportFailed kind otherwise.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Export starts writing c to outputPath. The job is WRITING when Export
// returns; completion is reported through cb and the handle. The encode
// stops when ctx is cancelled or Handle.Cancel is called.
func (w *Writer) Export(ctx context.Context, c *timeline.Composition, outputPath string, format encode.Format, cb Callbacks) (*Handle, error) {
	if c == nil || len(c.Video) == 0 || c.Duration <= 0 {
		return nil, mediaerr.New(opExport, mediaerr.ErrEmptyComposition, nil)
	}
	if outputPath == "" {
		return nil, mediaerr.New(opExport, mediaerr.ErrExportFailed, errors.New("empty output path"))
	}

	j := job.New(c.ID, outputPath)
	j.Container = format.WithDefaults().Container
	j.Duration = c.Duration

	removeExisting(outputPath, w.logger)

	if err := j.Start(); err != nil {
		return nil, fmt.Errorf("start export job: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Handle{job: j, cancel: cancel, done: make(chan struct{}), release: c.Retain()}

	w.logger.Info("export started",
		slog.String("job_id", j.ID),
		slog.String("composition_id", c.ID),
		slog.String("output", outputPath),
		slog.Int("segments", len(c.Video)),
	)

	go w.run(runCtx, h, c, outputPath, format, cb)
	return h, nil
}

func (w *Writer) run(ctx context.Context, h *Handle, c *timeline.Composition, outputPath string, format encode.Format, cb Callbacks) {
	defer h.cancel()
	start := time.Now()

	sess, err := w.feed(ctx, c, outputPath, format)
	if err == nil {
		err = w.watch(ctx, h, sess, cb)
	} else if sess != nil {
		sess.Cancel()
	}

	w.finish(h, outputPath, err, cb, time.Since(start))
}

// feed opens a session and appends every segment, waiting for readiness
// before each one and again before finishing.
func (w *Writer) feed(ctx context.Context, c *timeline.Composition, outputPath string, format encode.Format) (encode.Session, error) {
	sess, err := w.encoder.Open(ctx, encode.Spec{
		OutputPath: outputPath,
		Format:     format,
		Total:      c.Duration,
		WithAudio:  c.HasAudio(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, mediaerr.New(opExport, mediaerr.ErrEncoderUnavailable, err)
	}

	for _, seg := range c.Video {
		if err := encode.WaitReady(ctx, sess, w.cfg.Backoff); err != nil {
			if errors.Is(err, encode.ErrNotReady) {
				return sess, mediaerr.AtIndex(opExport, seg.Index, mediaerr.ErrEncoderNotReady, err)
			}
			return sess, err
		}
		if err := sess.Append(ctx, unitFor(seg)); err != nil {
			if ctx.Err() != nil {
				return sess, ctx.Err()
			}
			return sess, mediaerr.AtIndex(opExport, seg.Index, mediaerr.ErrExportFailed, err)
		}
	}

	if err := encode.WaitReady(ctx, sess, w.cfg.Backoff); err != nil {
		if errors.Is(err, encode.ErrNotReady) {
			return sess, mediaerr.New(opExport, mediaerr.ErrEncoderNotReady, err)
		}
		return sess, err
	}
	if err := sess.MarkFinished(ctx); err != nil {
		return sess, mediaerr.New(opExport, mediaerr.ErrExportFailed, err)
	}
	return sess, nil
}

// watch samples progress until the session is terminal.
func (w *Writer) watch(ctx context.Context, h *Handle, sess encode.Session, cb Callbacks) error {
	ticker := time.NewTicker(w.cfg.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.Done():
			switch st := sess.Status(); st {
			case encode.StatusCompleted:
				return nil
			case encode.StatusCancelled:
				return context.Canceled
			default:
				cause := sess.Err()
				if cause == nil {
					cause = fmt.Errorf("encoder ended in status %q", st)
				}
				return cause
			}
		case <-ctx.Done():
			sess.Cancel()
			<-sess.Done()
			return ctx.Err()
		case <-ticker.C:
			if st := sess.Status(); st != encode.StatusWriting && st != encode.StatusUnknown {
				// Terminal statuses are handled once Done closes.
				continue
			}
			w.report(h, sess.Progress(), cb)
		}
	}
}

func (w *Writer) report(h *Handle, p float64, cb Callbacks) {
	if !h.job.UpdateProgress(p) {
		return
	}
	if cb.OnProgress != nil {
		cb.OnProgress(h.job.Clone(), h.job.GetProgress())
	}
}

func (w *Writer) finish(h *Handle, outputPath string, err error, cb Callbacks, elapsed time.Duration) {
	j := h.job
	log := w.logger.With(slog.String("job_id", j.ID), slog.Duration("elapsed", elapsed))

	var final error
	switch {
	case h.cancelRequested() || errors.Is(err, context.Canceled):
		final = mediaerr.New(opExport, mediaerr.ErrExportCancelled, err)
		_ = j.Cancel()
		removeOutput(outputPath, log)
		log.Info("export cancelled")

	case err != nil:
		final = err
		var op *mediaerr.OpError
		if !errors.As(err, &op) {
			final = mediaerr.New(opExport, mediaerr.ErrExportFailed, err)
		}
		_ = j.Fail(final.Error())
		removeOutput(outputPath, log)
		log.Error("export failed", "error", final)

	default:
		w.report(h, 1, cb)
		_ = j.Complete()
		log.Info("export completed", slog.String("output", outputPath))
	}

	h.mu.Lock()
	h.err = final
	h.mu.Unlock()

	if err := h.release(); err != nil {
		log.Warn("failed to release scratch files", "error", err)
	}

	if cb.OnDone != nil {
		cb.OnDone(j.Clone(), final)
	}
	close(h.done)
}

func unitFor(seg timeline.Segment) encode.Unit {
	return encode.Unit{
		Index:       seg.Index,
		Path:        seg.Path,
		SourceStart: seg.SourceRange.Start,
		Duration:    seg.Duration,
		Orientation: seg.Orientation,
		HasAudio:    seg.HasAudio,
	}
}

// removeExisting deletes a previous file at path. Failure is logged only.
func removeExisting(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove existing output", "path", path, "error", err)
	}
}

func removeOutput(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove partial output", "path", path, "error", err)
	}
}
