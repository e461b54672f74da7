package media

import "sort"

// SortByRecency returns a copy of sources ordered most-recent-first.
// The sort is stable, so ties and undated sources keep their input order.
// Every consumer (compose, thumbnail strips, listings) uses this order.
func SortByRecency(sources []Source) []Source {
	out := make([]Source, len(sources))
	copy(out, sources)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Created().After(out[j].Created())
	})
	return out
}
