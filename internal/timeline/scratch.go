package timeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Scratch tracks temporary files shared by a composition and everything
// trimmed from it. The files are removed when the last holder releases.
type Scratch struct {
	mu     sync.Mutex
	paths  []string
	refs   int
	logger *slog.Logger
}

func newScratch(paths []string, logger *slog.Logger) *Scratch {
	if len(paths) == 0 {
		return nil
	}
	return &Scratch{paths: paths, refs: 1, logger: logger}
}

// retain adds a holder. A nil Scratch stays nil.
func (s *Scratch) retain() *Scratch {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs++
	return s
}

// Paths returns a copy of the tracked file paths.
func (s *Scratch) Paths() []string {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Release drops one holder and removes the files when none remain.
func (s *Scratch) Release() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return nil
	}
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	return removeAll(paths, s.logger)
}

func removeAll(paths []string, logger *slog.Logger) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove scratch %s: %w", p, err))
			continue
		}
		if logger != nil {
			logger.Debug("scratch file removed", "path", p)
		}
	}
	return errors.Join(errs...)
}
