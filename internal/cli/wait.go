package cli

import (
	"context"
	"errors"
	"time"

	"github.com/maauso/clipstitch/internal/job"
	"github.com/maauso/clipstitch/internal/studio"
)

const pollInterval = 100 * time.Millisecond

// jobWatcher is the part of the studio used to follow an export.
type jobWatcher interface {
	GetJob(ctx context.Context, id string) (*job.Job, error)
	CancelJob(ctx context.Context, id string) (*job.Job, error)
}

// waitForJob polls a job until it is terminal, reporting progress along the
// way. Cancelling ctx cancels the export and returns its final state.
func waitForJob(ctx context.Context, w jobWatcher, id string, interval time.Duration, onProgress func(float64)) (*job.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			bg := context.WithoutCancel(ctx)
			j, err := w.CancelJob(bg, id)
			if errors.Is(err, studio.ErrJobNotActive) {
				return w.GetJob(bg, id)
			}
			return j, err
		case <-ticker.C:
			j, err := w.GetJob(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return nil, err
			}
			onProgress(j.GetProgress())
			if j.IsTerminal() {
				return j, nil
			}
		}
	}
}
