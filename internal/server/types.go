// Package server provides the HTTP API over the studio.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// SourceRequest is one media source in a composition request.
type SourceRequest struct {
	// ID identifies the source. Generated from its position when empty.
	ID string `json:"id"`
	// Kind is "clip" or "still".
	Kind string `json:"kind" validate:"required,oneof=clip still"`
	// Path is the file on the server, usually returned by POST /uploads.
	Path string `json:"path" validate:"required"`
	// CreatedAt orders sources, newest first. Undated sources go last.
	CreatedAt *time.Time `json:"created_at,omitempty"`
	// DurationSec is the natural duration of a clip. Probed when zero.
	DurationSec float64 `json:"duration_sec" validate:"gte=0"`
}

// ComposeRequest is the HTTP request body for building a composition.
type ComposeRequest struct {
	Sources []SourceRequest `json:"sources" validate:"dive"`
}

// ImportRequest wraps a single clip as a composition.
type ImportRequest struct {
	ID   string `json:"id"`
	Path string `json:"path" validate:"required"`
}

// TrimRequest is the HTTP request body for trimming a composition.
type TrimRequest struct {
	StartSec float64 `json:"start_sec" validate:"gte=0"`
	EndSec   float64 `json:"end_sec" validate:"gt=0"`
}

// ExportRequest optionally overrides the export format.
type ExportRequest struct {
	Container  string `json:"container" validate:"omitempty,oneof=mp4 mov m4v"`
	VideoCodec string `json:"video_codec" validate:"omitempty,oneof=libx264 libx265"`
	AudioCodec string `json:"audio_codec" validate:"omitempty,oneof=aac"`
	Width      int    `json:"width" validate:"omitempty,min=2,max=7680"`
	Height     int    `json:"height" validate:"omitempty,min=2,max=4320"`
	FrameRate  int    `json:"frame_rate" validate:"omitempty,min=1,max=120"`
}

// SourceThumbnailsRequest samples sources before they are composed.
type SourceThumbnailsRequest struct {
	Sources []SourceRequest `json:"sources" validate:"required,min=1,dive"`
	Width   int             `json:"width" validate:"required,min=1,max=16384"`
}

// SegmentResponse is one segment of a composition's video track.
type SegmentResponse struct {
	Index          int     `json:"index"`
	SourceID       string  `json:"source_id"`
	Kind           string  `json:"kind"`
	OffsetSec      float64 `json:"offset_sec"`
	DurationSec    float64 `json:"duration_sec"`
	SourceStartSec float64 `json:"source_start_sec"`
	HasAudio       bool    `json:"has_audio"`
}

// CompositionResponse describes a composition.
type CompositionResponse struct {
	ID          string            `json:"id"`
	DurationSec float64           `json:"duration_sec"`
	HasAudio    bool              `json:"has_audio"`
	Segments    []SegmentResponse `json:"segments"`
}

// JobResponse is the HTTP response for export job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// CompositionID is the exported composition.
	CompositionID string `json:"composition_id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Progress is the percentage of completion (0-100).
	Progress int `json:"progress"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// Container is the output container format.
	Container string `json:"container,omitempty"`
	// DurationSec is the length of the exported timeline.
	DurationSec float64 `json:"duration_sec"`
	// OutputPath is the file written on the server.
	OutputPath string `json:"output_path,omitempty"`
	// PublishURL is the S3 URL of the output video, when published.
	PublishURL string `json:"publish_url,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the job reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse lists export jobs, newest first.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ThumbnailsResponse carries base64-encoded PNG thumbnails in timeline order.
type ThumbnailsResponse struct {
	Count  int      `json:"count"`
	Images []string `json:"images"`
}

// UploadResponse is returned after storing an uploaded file.
type UploadResponse struct {
	Path string `json:"path"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// Index is the offending segment or source, when known.
	Index *int `json:"index,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Encoder reports whether ffmpeg and ffprobe were found.
	Encoder bool `json:"encoder"`
	// ActiveJobs is the number of running exports.
	ActiveJobs int `json:"active_jobs"`
}
