package media

import (
	"fmt"
	"math"
	"time"
)

// Timescale is the number of ticks per second used for every timeline value.
const Timescale = 600

// Time is a point or span on a timeline, expressed in ticks of 1/Timescale seconds.
// Integer ticks keep range arithmetic exact across compose and trim.
type Time int64

// Seconds returns n whole seconds as a Time.
func Seconds(n int64) Time {
	return Time(n * Timescale)
}

// FromSeconds converts fractional seconds to the nearest tick.
func FromSeconds(s float64) Time {
	return Time(math.Round(s * Timescale))
}

// FromDuration converts a time.Duration to the nearest tick.
func FromDuration(d time.Duration) Time {
	return FromSeconds(d.Seconds())
}

// Seconds returns t as fractional seconds.
func (t Time) Seconds() float64 {
	return float64(t) / Timescale
}

// Duration returns t as a time.Duration.
func (t Time) Duration() time.Duration {
	return time.Duration(int64(t) * int64(time.Second) / Timescale)
}

func (t Time) String() string {
	return fmt.Sprintf("%.3fs", t.Seconds())
}

// TimeRange is a half-open span [Start, Start+Duration).
type TimeRange struct {
	Start    Time `json:"start" yaml:"start"`
	Duration Time `json:"duration" yaml:"duration"`
}

// End returns the exclusive end of the range.
func (r TimeRange) End() Time {
	return r.Start + r.Duration
}

// TrimRange is a requested [Start, End) window on a composition timeline.
type TrimRange struct {
	Start Time `json:"start"`
	End   Time `json:"end"`
}

// Span returns End - Start.
func (r TrimRange) Span() Time {
	return r.End - r.Start
}

// Within reports whether 0 <= Start < End <= total.
func (r TrimRange) Within(total Time) bool {
	return r.Start >= 0 && r.Start < r.End && r.End <= total
}
