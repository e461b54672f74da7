// Package ffmpeg provides the process-backed media operations: clip probing,
// frame extraction and composition encoding through the ffmpeg CLI.
package ffmpeg

import (
	"context"
	"image"

	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/media"
)

// Prober inspects a clip's tracks.
type Prober interface {
	Probe(ctx context.Context, path string) (media.TrackInfo, error)
}

// FrameExtractor decodes a single frame from a clip.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, path string, at media.Time) (image.Image, error)
}

// Verify interface implementations at compile time.
var (
	_ Prober         = (*Processor)(nil)
	_ FrameExtractor = (*Processor)(nil)
	_ encode.Encoder = (*Processor)(nil)
)
