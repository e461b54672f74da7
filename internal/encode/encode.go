// Package encode defines the contract between writers and encoder backends:
// the units a writer feeds, the session it feeds them to, and the readiness
// protocol that keeps the writer from outrunning the encoder.
package encode

import (
	"context"
	"time"

	"github.com/maauso/clipstitch/internal/media"
)

// Format is the container and codec preference of an encode.
type Format struct {
	Container  string `json:"container" yaml:"container"`
	VideoCodec string `json:"video_codec" yaml:"video_codec"`
	AudioCodec string `json:"audio_codec" yaml:"audio_codec"`
	Width      int    `json:"width" yaml:"width"`
	Height     int    `json:"height" yaml:"height"`
	FrameRate  int    `json:"frame_rate" yaml:"frame_rate"`
}

// DefaultFormat is H.264 video with AAC audio in an MP4 container.
func DefaultFormat() Format {
	return Format{
		Container:  "mp4",
		VideoCodec: "libx264",
		AudioCodec: "aac",
		Width:      1280,
		Height:     720,
		FrameRate:  30,
	}
}

// WithDefaults fills zero fields from DefaultFormat.
func (f Format) WithDefaults() Format {
	d := DefaultFormat()
	if f.Container == "" {
		f.Container = d.Container
	}
	if f.VideoCodec == "" {
		f.VideoCodec = d.VideoCodec
	}
	if f.AudioCodec == "" {
		f.AudioCodec = d.AudioCodec
	}
	if f.Width <= 0 {
		f.Width = d.Width
	}
	if f.Height <= 0 {
		f.Height = d.Height
	}
	if f.FrameRate <= 0 {
		f.FrameRate = d.FrameRate
	}
	return f
}

// Unit is one contiguous slice of a source placed on the output timeline.
type Unit struct {
	Index       int
	Path        string
	SourceStart media.Time
	Duration    media.Time
	Orientation media.Orientation
	HasAudio    bool
}

// Spec describes a whole encode.
type Spec struct {
	OutputPath string
	Format     Format
	Total      media.Time
	// WithAudio is false when no unit carries audio; the output then has no audio stream.
	WithAudio bool
}

// Status is the state of an encoder session.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusWriting   Status = "writing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Sink accepts data only while it reports ready.
type Sink interface {
	ReadyForMoreData() bool
}

// Notifier is implemented by sinks that can signal readiness instead of being polled.
// The returned channel receives (or is closed) when the sink may be ready again.
type Notifier interface {
	ReadyNotify() <-chan struct{}
}

// Session is an open encode. Units are appended in timeline order, then
// MarkFinished starts the final write. Done is closed once the session reaches
// a terminal status.
type Session interface {
	Sink
	Append(ctx context.Context, u Unit) error
	MarkFinished(ctx context.Context) error
	Status() Status
	// Progress is the encoded fraction in [0,1].
	Progress() float64
	Done() <-chan struct{}
	Err() error
	Cancel()
}

// Encoder opens sessions.
type Encoder interface {
	Open(ctx context.Context, spec Spec) (Session, error)
}

// Backoff bounds how long a writer waits for a sink to become ready.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff starts polling every 10ms and gives up
// after roughly ten seconds.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:     10 * time.Millisecond,
		Max:         time.Second,
		MaxAttempts: 20,
	}
}
