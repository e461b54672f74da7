// Package job provides the export Job aggregate: the lifecycle of one encode of
// a composition to a file, with its progress, terminal outcome and persistence port.
package job

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/clipstitch/internal/job/id"
	"github.com/maauso/clipstitch/internal/media"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusCreated indicates the job exists but encoding has not begun.
	StatusCreated Status = "CREATED"
	// StatusWriting indicates the encoder is producing the output file.
	StatusWriting Status = "WRITING"
	// StatusCompleted indicates the output file was written successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the encode failed; Error holds the diagnostic.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the caller cancelled the encode.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusCreated:   {StatusWriting, StatusFailed, StatusCancelled},
	StatusWriting:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one export of a composition to a file.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// CompositionID names the composition being exported.
	CompositionID string
	// Status is the current job state.
	Status Status
	// Progress is the encoded fraction in [0,1]. It never decreases.
	Progress float64
	// Error contains the diagnostic if the job failed.
	Error string
	// OutputPath is where the file is written.
	OutputPath string
	// Container is the output container format, e.g. "mp4".
	Container string
	// Duration is the composition length being encoded.
	Duration media.Time
	// PublishURL is set when the finished file was uploaded to object storage.
	PublishURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when writing started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a Job in the CREATED state with a generated ID.
func New(compositionID, outputPath string) *Job {
	return NewWithID(id.Generate(), compositionID, outputPath)
}

// NewWithID creates a Job with the specified ID.
// Useful for testing or when the ID is generated elsewhere.
func NewWithID(jobID, compositionID, outputPath string) *Job {
	now := time.Now()
	return &Job{
		ID:            jobID,
		CompositionID: compositionID,
		Status:        StatusCreated,
		OutputPath:    outputPath,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusWriting:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted:
		j.Progress = 1
		j.CompletedAt = j.UpdatedAt
	case StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from CREATED to WRITING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusWriting)
}

// Complete transitions the job to COMPLETED.
func (j *Job) Complete() error {
	return j.TransitionTo(StatusCompleted)
}

// Fail transitions the job to FAILED with an error message.
// The message is only recorded if the transition is allowed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// GetProgress returns the current progress (thread-safe).
func (j *Job) GetProgress() float64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Progress
}

// UpdateProgress records progress while writing. Values are clamped to [0,1];
// lower values than the current one and updates outside WRITING are ignored.
// It reports whether the stored value changed.
func (j *Job) UpdateProgress(progress float64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusWriting {
		return false
	}
	progress = min(max(progress, 0), 1)
	if progress <= j.Progress {
		return false
	}
	j.Progress = progress
	j.UpdatedAt = time.Now()
	return true
}

// SetPublishURL records where the finished file was published.
func (j *Job) SetPublishURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.PublishURL = url
	j.UpdatedAt = time.Now()
}

// ClearOutput clears the output path and URL once the file has been removed.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = ""
	j.PublishURL = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status.IsTerminal()
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:            j.ID,
		CompositionID: j.CompositionID,
		Status:        j.Status,
		Progress:      j.Progress,
		Error:         j.Error,
		OutputPath:    j.OutputPath,
		Container:     j.Container,
		Duration:      j.Duration,
		PublishURL:    j.PublishURL,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}
