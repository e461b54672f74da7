package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/maauso/clipstitch/internal/encode"
)

// ErrSessionFinished is returned when units are appended after MarkFinished.
var ErrSessionFinished = errors.New("session already finished")

// Open starts an encode session. The ffmpeg process is launched by
// MarkFinished once every unit has been appended.
func (p *Processor) Open(ctx context.Context, spec encode.Spec) (encode.Session, error) {
	if _, err := exec.LookPath(p.ffmpegPath); err != nil {
		return nil, fmt.Errorf("locate %s: %w", p.ffmpegPath, err)
	}
	if spec.OutputPath == "" {
		return nil, fmt.Errorf("%w: empty output path", ErrInvalidSpec)
	}
	if spec.Total <= 0 {
		return nil, fmt.Errorf("%w: total duration %s", ErrInvalidSpec, spec.Total)
	}

	spec.Format = spec.Format.WithDefaults()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s := &session{
		proc:   p,
		spec:   spec,
		ctx:    runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
		ready:  make(chan struct{}),
		logger: p.logger.With("output", spec.OutputPath),
	}
	close(s.ready)
	s.status.Store(string(encode.StatusUnknown))

	return s, nil
}

// session buffers units and runs a single ffmpeg process over all of them.
type session struct {
	proc   *Processor
	spec   encode.Spec
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	units     []encode.Unit
	finished  bool
	cancelled atomic.Bool

	status   atomic.Value // string
	progress atomic.Uint64
	err      error
	ready    chan struct{}
	done     chan struct{}
}

// ReadyForMoreData is true until MarkFinished; appending only buffers.
func (s *session) ReadyForMoreData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.finished
}

func (s *session) ReadyNotify() <-chan struct{} {
	return s.ready
}

func (s *session) Append(ctx context.Context, u encode.Unit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.Duration <= 0 {
		return fmt.Errorf("%w: unit %d has no duration", ErrInvalidSpec, u.Index)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return ErrSessionFinished
	}
	s.units = append(s.units, u)
	s.status.Store(string(encode.StatusWriting))
	return nil
}

func (s *session) MarkFinished(ctx context.Context) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return ErrSessionFinished
	}
	s.finished = true
	units := append([]encode.Unit(nil), s.units...)
	s.mu.Unlock()

	if len(units) == 0 {
		s.finish(encode.StatusFailed, fmt.Errorf("%w: no units", ErrInvalidSpec))
		return nil
	}
	if err := ctx.Err(); err != nil {
		s.finish(encode.StatusCancelled, err)
		return nil
	}

	s.status.Store(string(encode.StatusWriting))
	args := buildEncodeArgs(s.spec, units)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(s.ctx, s.proc.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.finish(encode.StatusFailed, fmt.Errorf("progress pipe: %w", err))
		return nil
	}

	s.logger.Debug("starting encode", "units", len(units), "total", s.spec.Total.String())
	if err := cmd.Start(); err != nil {
		s.finish(encode.StatusFailed, &Error{Args: args, Stderr: stderr.String(), Err: err})
		return nil
	}

	go s.run(cmd, args, stdout, &stderr)
	return nil
}

func (s *session) run(cmd *exec.Cmd, args []string, stdout io.Reader, stderr *bytes.Buffer) {
	total := s.spec.Total.Duration()
	_ = readProgress(stdout, func(r progressReport) {
		f := fraction(r.OutTime, total)
		if r.End {
			f = 1
		}
		s.storeProgress(f)
	})

	err := cmd.Wait()
	switch {
	case s.cancelled.Load():
		s.finish(encode.StatusCancelled, context.Canceled)
	case err != nil:
		s.finish(encode.StatusFailed, &Error{Args: args, Stderr: stderr.String(), Err: err})
	default:
		s.storeProgress(1)
		s.finish(encode.StatusCompleted, nil)
	}
}

// storeProgress keeps the reported fraction monotonic.
func (s *session) storeProgress(f float64) {
	next := math.Float64bits(f)
	for {
		cur := s.progress.Load()
		if math.Float64frombits(cur) >= f {
			return
		}
		if s.progress.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (s *session) finish(status encode.Status, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	if status == encode.StatusFailed && s.cancelled.Load() {
		status, err = encode.StatusCancelled, context.Canceled
	}
	s.err = err
	s.status.Store(string(status))
	s.cancel()
	close(s.done)

	if err != nil && status == encode.StatusFailed {
		s.logger.Error("encode failed", "error", err)
	} else {
		s.logger.Debug("encode finished", "status", status)
	}
}

func (s *session) Status() encode.Status {
	return encode.Status(s.status.Load().(string))
}

func (s *session) Progress() float64 {
	return math.Float64frombits(s.progress.Load())
}

func (s *session) Done() <-chan struct{} {
	return s.done
}

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops a running encode. Before MarkFinished it ends the session directly.
func (s *session) Cancel() {
	s.cancelled.Store(true)
	s.mu.Lock()
	started := s.finished
	s.finished = true
	s.mu.Unlock()

	if !started {
		s.finish(encode.StatusCancelled, context.Canceled)
		return
	}
	s.cancel()
}
