package timeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/mediaerr"
)

const opTrim = "trim"

// Trim restricts c to r. The result starts at zero, spans r.Span() and
// references the same source files. Segments straddling a boundary are
// clipped; segments outside r are dropped.
func Trim(c *Composition, r media.TrimRange) (*Composition, error) {
	if c == nil {
		return nil, mediaerr.New(opTrim, mediaerr.ErrInvalidRange, fmt.Errorf("nil composition"))
	}
	if !r.Within(c.Duration) {
		return nil, mediaerr.New(opTrim, mediaerr.ErrInvalidRange,
			fmt.Errorf("range [%s, %s) outside [0, %s)", r.Start, r.End, c.Duration))
	}

	out := &Composition{
		ID:       uuid.NewString(),
		Video:    clipSegments(c.Video, r),
		Audio:    clipSegments(c.Audio, r),
		Duration: r.Span(),
		scratch:  c.scratch.retain(),
	}
	return out, nil
}

func clipSegments(segs []Segment, r media.TrimRange) []Segment {
	var out []Segment
	for _, seg := range segs {
		start := max(seg.Offset, r.Start)
		end := min(seg.End(), r.End)
		if start >= end {
			continue
		}
		clipped := seg
		clipped.SourceRange = media.TimeRange{
			Start:    seg.SourceRange.Start + (start - seg.Offset),
			Duration: end - start,
		}
		clipped.Offset = start - r.Start
		clipped.Duration = end - start
		out = append(out, clipped)
	}
	return out
}
