// Package thumbs samples preview frames from compositions and sources. A
// failed sample never shortens the result: it is replaced by a placeholder.
package thumbs

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/still"
	"github.com/maauso/clipstitch/internal/timeline"
)

// DefaultMaxSize bounds thumbnail width and height.
const DefaultMaxSize = 100

var errEmptyTarget = errors.New("nothing to sample")

// FrameExtractor decodes a single frame from a clip.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, path string, at media.Time) (image.Image, error)
}

// Target is what a Sampler reads frames from: a composition or a single source.
type Target struct {
	composition *timeline.Composition
	source      media.Source
}

// CompositionTarget samples a composition's timeline.
func CompositionTarget(c *timeline.Composition) Target {
	return Target{composition: c}
}

// SourceTarget samples one source on its own time axis.
func SourceTarget(s media.Source) Target {
	return Target{source: s}
}

// Sampler extracts thumbnails.
type Sampler struct {
	frames      FrameExtractor
	loadImage   func(media.Still) (image.Image, error)
	concurrency int
	logger      *slog.Logger
}

// NewSampler creates a Sampler running at most concurrency extractions at once.
func NewSampler(frames FrameExtractor, concurrency int, logger *slog.Logger) *Sampler {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		frames:      frames,
		loadImage:   still.LoadImage,
		concurrency: concurrency,
		logger:      logger.With("component", "thumbs"),
	}
}

// Sample returns one image per timestamp, in order, each fitting within
// maxSize×maxSize.
func (s *Sampler) Sample(ctx context.Context, target Target, timestamps []media.Time, maxSize int) []image.Image {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	out := make([]image.Image, len(timestamps))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, t := range timestamps {
		g.Go(func() error {
			img, kind, err := s.frameAt(ctx, target, t)
			if err == nil && img == nil {
				err = errEmptyTarget
			}
			if err != nil {
				s.logger.Debug("thumbnail sample failed", "at", t.String(), "error", err)
				out[i] = Placeholder(kind)
				return nil
			}
			out[i] = imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (s *Sampler) frameAt(ctx context.Context, target Target, t media.Time) (image.Image, media.Kind, error) {
	if err := ctx.Err(); err != nil {
		return nil, kindOf(target), err
	}

	if c := target.composition; c != nil {
		seg, at, ok := c.Locate(t)
		if !ok {
			return nil, "", errEmptyTarget
		}
		img, err := s.frames.ExtractFrame(ctx, seg.Path, at)
		return img, seg.Kind, err
	}

	switch src := target.source.(type) {
	case media.Clip:
		at := t
		if src.NaturalDuration > 0 && at >= src.NaturalDuration {
			at = src.NaturalDuration - 1
		}
		img, err := s.frames.ExtractFrame(ctx, src.Path, max(at, 0))
		return img, media.KindClip, err
	case media.Still:
		img, err := s.loadImage(src)
		return img, media.KindStill, err
	default:
		return nil, "", errEmptyTarget
	}
}

func kindOf(t Target) media.Kind {
	if t.source != nil {
		return t.source.Kind()
	}
	return ""
}

// CompositionStrip samples a preview strip for a composition shown width pixels wide.
func (s *Sampler) CompositionStrip(ctx context.Context, c *timeline.Composition, width, minWidth, maxSize int) []image.Image {
	n := StripCount(c.Duration, len(c.Video), width, minWidth, true)
	return s.Sample(ctx, CompositionTarget(c), EvenTimestamps(c.Duration, n), maxSize)
}

// ItemStrip samples a preview strip across individual sources, in
// presentation order, before they are composed.
func (s *Sampler) ItemStrip(ctx context.Context, sources []media.Source, width, minWidth, maxSize int) []image.Image {
	ordered := media.SortByRecency(sources)
	n := StripCount(0, len(ordered), width, minWidth, false)

	durations := make([]media.Time, len(ordered))
	for i, src := range ordered {
		if clip, ok := src.(media.Clip); ok {
			durations[i] = clip.NaturalDuration
		}
	}

	var out []image.Image
	for _, item := range ItemPlan(durations, n) {
		if len(item.Timestamps) == 0 {
			continue
		}
		out = append(out, s.Sample(ctx, SourceTarget(ordered[item.Index]), item.Timestamps, maxSize)...)
	}
	return out
}
