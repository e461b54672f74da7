package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// progressReport is one key=value block emitted by `-progress`.
type progressReport struct {
	OutTime time.Duration
	End     bool
}

// readProgress scans ffmpeg's -progress stream and calls fn once per block.
// It returns when r is exhausted.
func readProgress(r io.Reader, fn func(progressReport)) error {
	sc := bufio.NewScanner(r)
	var cur progressReport
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			// Both keys are in microseconds; out_time_ms is misnamed upstream.
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				cur.OutTime = time.Duration(us) * time.Microsecond
			}
		case "progress":
			cur.End = value == "end"
			fn(cur)
			cur.End = false
		}
	}
	return sc.Err()
}

// fraction converts an encoded position into a clamped [0,1] ratio.
func fraction(done, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(done) / float64(total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
