package thumbs

import (
	"github.com/maauso/clipstitch/internal/media"
)

// mergedSpacing is the timeline distance between strip thumbnails of a composition.
var mergedSpacing = media.Seconds(2)

// StripCount is how many thumbnails a preview strip of width pixels shows.
// A merged composition gets one every two seconds; a list of items gets two
// per item. Both are capped so no thumbnail is narrower than minWidth.
func StripCount(total media.Time, items, width, minWidth int, merged bool) int {
	var n int
	if merged {
		if total <= 0 {
			return 0
		}
		n = max(1, int(total/mergedSpacing))
	} else {
		if items <= 0 {
			return 0
		}
		n = max(1, items*2)
	}

	if minWidth > 0 {
		n = min(n, max(width, 0)/minWidth)
	}
	return n
}

// EvenTimestamps returns n instants i*total/n, starting at zero.
func EvenTimestamps(total media.Time, n int) []media.Time {
	if n <= 0 || total <= 0 {
		return nil
	}
	out := make([]media.Time, n)
	for i := range out {
		out[i] = media.Time(int64(i) * int64(total) / int64(n))
	}
	return out
}

// ItemSamples is the slice of a strip taken from one item.
type ItemSamples struct {
	Index      int
	Timestamps []media.Time
}

// ItemPlan spreads count thumbnails over items of the given durations.
// Each item receives max(1, count/len(durations)) until count runs out, so
// trailing items may receive none. Within an item the samples span its whole
// duration, first to last frame.
func ItemPlan(durations []media.Time, count int) []ItemSamples {
	if len(durations) == 0 || count <= 0 {
		return nil
	}
	per := max(1, count/len(durations))
	remaining := count

	plan := make([]ItemSamples, len(durations))
	for i, d := range durations {
		k := min(per, remaining)
		remaining -= k
		plan[i] = ItemSamples{Index: i, Timestamps: spread(d, k)}
	}
	return plan
}

// spread returns k instants from 0 to d inclusive.
func spread(d media.Time, k int) []media.Time {
	if k <= 0 {
		return nil
	}
	out := make([]media.Time, k)
	if k == 1 || d <= 0 {
		return out
	}
	for i := range out {
		out[i] = media.Time(int64(i) * int64(d) / int64(k-1))
	}
	return out
}
