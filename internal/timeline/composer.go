package timeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/mediaerr"
	"github.com/maauso/clipstitch/internal/still"
)

const opCompose = "compose"

// DefaultStillDuration is how long a still plays on the timeline.
var DefaultStillDuration = media.Seconds(3)

// ErrNoVideoTrack is the cause reported for a clip without a video stream.
var ErrNoVideoTrack = errors.New("source has no video track")

// Prober inspects a clip's tracks.
type Prober interface {
	Probe(ctx context.Context, path string) (media.TrackInfo, error)
}

// StillSynthesizer turns an image into a clip.
type StillSynthesizer interface {
	Synthesize(ctx context.Context, img image.Image, duration media.Time, size image.Point) (media.Clip, error)
}

// ImageLoader decodes the image of a still source.
type ImageLoader func(media.Still) (image.Image, error)

// ComposerConfig holds composer settings. Zero values take defaults.
type ComposerConfig struct {
	StillDuration media.Time
	FrameSize     image.Point
	// Concurrency bounds how many sources are prepared at once.
	Concurrency int
}

// Composer builds compositions from media sources.
type Composer struct {
	prober    Prober
	synth     StillSynthesizer
	loadImage ImageLoader
	cfg       ComposerConfig
	logger    *slog.Logger
}

// NewComposer creates a Composer.
func NewComposer(prober Prober, synth StillSynthesizer, cfg ComposerConfig, logger *slog.Logger) *Composer {
	if cfg.StillDuration <= 0 {
		cfg.StillDuration = DefaultStillDuration
	}
	if cfg.FrameSize.X <= 0 || cfg.FrameSize.Y <= 0 {
		cfg.FrameSize = image.Pt(1280, 720)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{
		prober:    prober,
		synth:     synth,
		loadImage: still.LoadImage,
		cfg:       cfg,
		logger:    logger.With("component", "composer"),
	}
}

// prepared is a source ready for placement: a playable file plus its track info.
type prepared struct {
	clip     media.Clip
	info     media.TrackInfo
	kind     media.Kind
	sourceID string
	scratch  string
}

// Compose orders sources most-recent-first and lays them end to end.
// Any source whose video cannot be placed aborts the whole composition.
func (c *Composer) Compose(ctx context.Context, sources []media.Source) (*Composition, error) {
	if len(sources) == 0 {
		return nil, mediaerr.New(opCompose, mediaerr.ErrEmptyComposition, nil)
	}

	ordered := media.SortByRecency(sources)
	items := make([]prepared, len(ordered))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, src := range ordered {
		g.Go(func() error {
			p, err := c.prepare(gctx, src)
			if err != nil {
				return mediaerr.AtIndex(opCompose, i, mediaerr.ErrTrackInsertionFailed, err)
			}
			items[i] = p
			return nil
		})
	}
	err := g.Wait()

	var scratch []string
	for _, p := range items {
		if p.scratch != "" {
			scratch = append(scratch, p.scratch)
		}
	}
	if err != nil {
		if rmErr := removeAll(scratch, c.logger); rmErr != nil {
			c.logger.Warn("failed to clean scratch after compose error", "error", rmErr)
		}
		c.logger.Error("compose failed", "sources", len(sources), "error", err)
		return nil, err
	}

	comp := &Composition{ID: uuid.NewString()}
	var offset media.Time
	for i, p := range items {
		seg := clipSegment(i, p.clip, p.info, offset)
		seg.SourceID = p.sourceID
		seg.Kind = p.kind
		if seg.Duration <= 0 {
			_ = removeAll(scratch, c.logger)
			return nil, mediaerr.AtIndex(opCompose, i, mediaerr.ErrTrackInsertionFailed,
				fmt.Errorf("source %s has no duration", p.sourceID))
		}
		comp.Video = append(comp.Video, seg)
		if seg.HasAudio {
			comp.Audio = append(comp.Audio, seg)
		}
		offset += seg.Duration
	}
	comp.Duration = offset
	comp.scratch = newScratch(scratch, c.logger)

	c.logger.Info("composition built",
		slog.String("composition_id", comp.ID),
		slog.Int("segments", len(comp.Video)),
		slog.Int("audio_segments", len(comp.Audio)),
		slog.String("duration", comp.Duration.String()),
	)
	return comp, nil
}

func (c *Composer) prepare(ctx context.Context, src media.Source) (prepared, error) {
	switch s := src.(type) {
	case media.Clip:
		info, err := c.prober.Probe(ctx, s.Path)
		if err != nil {
			return prepared{}, fmt.Errorf("probe %s: %w", s.ID, err)
		}
		if !info.HasVideo {
			return prepared{}, fmt.Errorf("%w: %s", ErrNoVideoTrack, s.ID)
		}
		return prepared{clip: s, info: info, kind: media.KindClip, sourceID: s.ID}, nil

	case media.Still:
		img, err := c.loadImage(s)
		if err != nil {
			return prepared{}, mediaerr.New("synthesize", mediaerr.ErrFrameSynthesisFailed, err)
		}
		clip, err := c.synth.Synthesize(ctx, img, c.cfg.StillDuration, c.cfg.FrameSize)
		if err != nil {
			return prepared{}, err
		}
		return prepared{
			clip:     clip,
			info:     media.TrackInfo{Duration: clip.NaturalDuration, HasVideo: true},
			kind:     media.KindStill,
			sourceID: s.ID,
			scratch:  clip.Path,
		}, nil

	default:
		return prepared{}, fmt.Errorf("unsupported source %T", src)
	}
}
