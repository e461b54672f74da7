// Package still turns a single image into a fixed-duration video clip so that
// it can sit on a timeline next to real clips.
package still

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/icza/mjpeg"

	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/mediaerr"
)

const opSynthesize = "synthesize"

// ErrInvalidFrameSize is returned for a frame size without area.
var ErrInvalidFrameSize = errors.New("invalid frame size")

// FrameWriter receives encoded frames in presentation order.
// Writers that also implement encode.Sink are asked for readiness before each frame.
type FrameWriter interface {
	AddFrame(jpegData []byte) error
	Close() error
}

// WriterFactory opens a FrameWriter for a w×h clip at fps frames per second.
type WriterFactory func(path string, w, h, fps int32) (FrameWriter, error)

// MJPEGWriter opens an AVI Motion-JPEG writer.
func MJPEGWriter(path string, w, h, fps int32) (FrameWriter, error) {
	return mjpeg.New(path, w, h, fps)
}

// Synthesizer writes still clips into a scratch directory.
type Synthesizer struct {
	dir       string
	fps       int
	quality   int
	backoff   encode.Backoff
	newWriter WriterFactory
	logger    *slog.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithFrameRate sets the clip frame rate.
func WithFrameRate(fps int) Option {
	return func(s *Synthesizer) {
		if fps > 0 {
			s.fps = fps
		}
	}
}

// WithBackoff sets how long to wait for a busy writer.
func WithBackoff(b encode.Backoff) Option {
	return func(s *Synthesizer) { s.backoff = b }
}

// WithWriterFactory replaces the MJPEG container writer.
func WithWriterFactory(f WriterFactory) Option {
	return func(s *Synthesizer) { s.newWriter = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// NewSynthesizer creates a Synthesizer writing into dir.
func NewSynthesizer(dir string, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		dir:       dir,
		fps:       30,
		quality:   90,
		backoff:   encode.DefaultBackoff(),
		newWriter: MJPEGWriter,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "still")
	return s
}

// Synthesize writes a clip of the given duration whose every frame is img
// scaled and cropped to size. The returned clip's file belongs to the caller.
func (s *Synthesizer) Synthesize(ctx context.Context, img image.Image, duration media.Time, size image.Point) (media.Clip, error) {
	if duration <= 0 {
		return media.Clip{}, mediaerr.New(opSynthesize, mediaerr.ErrFrameSynthesisFailed,
			fmt.Errorf("non-positive duration %s", duration))
	}

	frame, err := renderFrame(img, size)
	if err != nil {
		return media.Clip{}, mediaerr.New(opSynthesize, mediaerr.ErrFrameSynthesisFailed, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: s.quality}); err != nil {
		return media.Clip{}, mediaerr.New(opSynthesize, mediaerr.ErrFrameSynthesisFailed,
			fmt.Errorf("encode frame: %w", err))
	}

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return media.Clip{}, mediaerr.New(opSynthesize, mediaerr.ErrFrameSynthesisFailed,
			fmt.Errorf("create scratch dir: %w", err))
	}
	path := filepath.Join(s.dir, "still_"+uuid.NewString()+".avi")

	if err := s.writeClip(ctx, path, buf.Bytes(), size, frameCount(duration, s.fps)); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn("failed to remove partial still clip", "path", path, "error", rmErr)
		}
		return media.Clip{}, err
	}

	s.logger.Debug("still synthesized",
		slog.String("path", path),
		slog.String("duration", duration.String()),
		slog.Int("width", size.X),
		slog.Int("height", size.Y),
	)
	return media.Clip{
		ID:              uuid.NewString(),
		Path:            path,
		NaturalDuration: duration,
	}, nil
}

func (s *Synthesizer) writeClip(ctx context.Context, path string, frame []byte, size image.Point, frames int) error {
	w, err := s.newWriter(path, int32(size.X), int32(size.Y), int32(s.fps))
	if err != nil {
		return mediaerr.New(opSynthesize, mediaerr.ErrEncoderUnavailable, err)
	}
	sink, ok := w.(encode.Sink)
	if !ok {
		sink = alwaysReady{}
	}

	for i := 0; i < frames; i++ {
		if err := encode.WaitReady(ctx, sink, s.backoff); err != nil {
			_ = w.Close()
			if errors.Is(err, encode.ErrNotReady) {
				return mediaerr.New(opSynthesize, mediaerr.ErrEncoderNotReady, err)
			}
			return fmt.Errorf("%s: %w", opSynthesize, err)
		}
		if err := w.AddFrame(frame); err != nil {
			_ = w.Close()
			return mediaerr.New(opSynthesize, mediaerr.ErrFrameSynthesisFailed,
				fmt.Errorf("add frame %d: %w", i, err))
		}
	}

	if err := w.Close(); err != nil {
		return mediaerr.New(opSynthesize, mediaerr.ErrFrameSynthesisFailed, fmt.Errorf("close container: %w", err))
	}
	return nil
}

// frameCount is the number of frames covering d at fps, never less than one.
func frameCount(d media.Time, fps int) int {
	n := int(math.Round(d.Seconds() * float64(fps)))
	if n < 1 {
		return 1
	}
	return n
}

// renderFrame fills a size-sized YCbCr 4:2:0 buffer with img. Panics from
// decoding or drawing are turned into errors.
func renderFrame(img image.Image, size image.Point) (frame *image.YCbCr, err error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidFrameSize, size.X, size.Y)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("empty source image %v", b)
	}

	defer func() {
		if r := recover(); r != nil {
			frame, err = nil, fmt.Errorf("draw frame: %v", r)
		}
	}()

	filled := imaging.Fill(img, size.X, size.Y, imaging.Center, imaging.Lanczos)
	return toYCbCr(filled), nil
}

// toYCbCr converts to 4:2:0, taking chroma from the top-left pixel of each block.
func toYCbCr(src *image.NRGBA) *image.YCbCr {
	b := src.Bounds()
	dst := image.NewYCbCr(b, image.YCbCrSubsampleRatio420)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.NRGBAAt(x, y)
			r, g, bl := flatten(c)
			yy, cb, cr := color.RGBToYCbCr(r, g, bl)
			dst.Y[dst.YOffset(x, y)] = yy
			if (x-b.Min.X)%2 == 0 && (y-b.Min.Y)%2 == 0 {
				ci := dst.COffset(x, y)
				dst.Cb[ci] = cb
				dst.Cr[ci] = cr
			}
		}
	}
	return dst
}

// flatten composites a translucent pixel over black.
func flatten(c color.NRGBA) (r, g, b uint8) {
	if c.A == 0xff {
		return c.R, c.G, c.B
	}
	a := uint16(c.A)
	return uint8(uint16(c.R) * a / 0xff), uint8(uint16(c.G) * a / 0xff), uint8(uint16(c.B) * a / 0xff)
}

// LoadImage decodes the image a Still refers to, honouring EXIF orientation.
func LoadImage(st media.Still) (image.Image, error) {
	if st.Image != nil {
		return st.Image, nil
	}
	img, err := imaging.Open(st.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open still %s: %w", st.ID, err)
	}
	return img, nil
}

type alwaysReady struct{}

func (alwaysReady) ReadyForMoreData() bool { return true }
