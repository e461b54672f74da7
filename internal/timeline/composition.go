// Package timeline builds compositions: ordered, gapless video tracks with an
// optional audio track, assembled from clips and synthesized stills, and the
// trimmed sub-compositions derived from them.
package timeline

import (
	"sync"

	"github.com/google/uuid"

	"github.com/maauso/clipstitch/internal/media"
)

// Segment places a slice of one source on the output timeline.
type Segment struct {
	// Index is the position of the originating source in presentation order.
	Index       int               `json:"index"`
	SourceID    string            `json:"source_id"`
	Kind        media.Kind        `json:"kind"`
	Path        string            `json:"path"`
	SourceRange media.TimeRange   `json:"source_range"`
	Offset      media.Time        `json:"offset"`
	Duration    media.Time        `json:"duration"`
	Orientation media.Orientation `json:"orientation"`
	HasAudio    bool              `json:"has_audio"`
}

// End returns the exclusive output end of the segment.
func (s Segment) End() media.Time {
	return s.Offset + s.Duration
}

// Composition is an immutable timeline. Video segments are contiguous from
// zero; Audio holds only the segments that carry sound and is nil when none do.
type Composition struct {
	ID       string     `json:"id"`
	Video    []Segment  `json:"video"`
	Audio    []Segment  `json:"audio,omitempty"`
	Duration media.Time `json:"duration"`

	scratch *Scratch
}

// HasAudio reports whether any segment carries sound.
func (c *Composition) HasAudio() bool {
	return len(c.Audio) > 0
}

// Release drops this composition's claim on its scratch files. Files are
// removed once every composition sharing them has been released.
func (c *Composition) Release() error {
	if c == nil || c.scratch == nil {
		return nil
	}
	s := c.scratch
	c.scratch = nil
	return s.Release()
}

// Retain adds a hold on the composition's scratch files so they outlive a
// concurrent Release. The returned func drops that hold and is safe to call
// more than once.
func (c *Composition) Retain() func() error {
	s := c.scratch.retain()
	var once sync.Once
	return func() error {
		var err error
		once.Do(func() { err = s.Release() })
		return err
	}
}

// ScratchPaths lists the temporary files this composition depends on.
func (c *Composition) ScratchPaths() []string {
	if c.scratch == nil {
		return nil
	}
	return c.scratch.Paths()
}

// Locate maps a timeline instant to the segment showing it and the matching
// source time. Instants at or past the end resolve to the last frame.
func (c *Composition) Locate(t media.Time) (Segment, media.Time, bool) {
	if len(c.Video) == 0 {
		return Segment{}, 0, false
	}
	if t < 0 {
		t = 0
	}
	for _, seg := range c.Video {
		if t < seg.End() {
			return seg, seg.SourceRange.Start + (t - seg.Offset), true
		}
	}
	last := c.Video[len(c.Video)-1]
	at := last.SourceRange.End() - 1
	if at < last.SourceRange.Start {
		at = last.SourceRange.Start
	}
	return last, at, true
}

// FromClip wraps a single probed clip as a one-segment composition.
func FromClip(clip media.Clip, info media.TrackInfo) *Composition {
	seg := clipSegment(0, clip, info, 0)
	c := &Composition{
		ID:       uuid.NewString(),
		Video:    []Segment{seg},
		Duration: seg.Duration,
	}
	if seg.HasAudio {
		c.Audio = []Segment{seg}
	}
	return c
}

// clipSegment uses the clip's natural duration, falling back to the probed one.
func clipSegment(index int, clip media.Clip, info media.TrackInfo, offset media.Time) Segment {
	d := clip.NaturalDuration
	if d <= 0 {
		d = info.Duration
	}
	return Segment{
		Index:       index,
		SourceID:    clip.ID,
		Kind:        media.KindClip,
		Path:        clip.Path,
		SourceRange: media.TimeRange{Start: 0, Duration: d},
		Offset:      offset,
		Duration:    d,
		Orientation: info.Orientation.Normalize(),
		HasAudio:    info.HasAudio,
	}
}
