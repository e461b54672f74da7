package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/job"
	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/studio"
	"github.com/maauso/clipstitch/internal/timeline"
)

// maxUploadBytes bounds a single uploaded source file.
const maxUploadBytes = 2 << 30

// Studio is the application port the handlers drive.
type Studio interface {
	Compose(ctx context.Context, sources []media.Source) (*timeline.Composition, error)
	ImportClip(ctx context.Context, clip media.Clip) (*timeline.Composition, error)
	Composition(id string) (*timeline.Composition, error)
	Trim(ctx context.Context, compositionID string, r media.TrimRange) (*timeline.Composition, error)
	Release(compositionID string) error
	Export(ctx context.Context, compositionID string, format *encode.Format) (*job.Job, error)
	GetJob(ctx context.Context, id string) (*job.Job, error)
	ListJobs(ctx context.Context) ([]*job.Job, error)
	CancelJob(ctx context.Context, id string) (*job.Job, error)
	DeleteJob(ctx context.Context, id string) error
	OpenOutput(ctx context.Context, id string) (io.ReadCloser, *job.Job, error)
	Thumbnails(ctx context.Context, compositionID string, width int) ([]image.Image, error)
	SourceThumbnails(ctx context.Context, sources []media.Source, width int) []image.Image
	ActiveJobs() int
}

var _ Studio = (*studio.Service)(nil)

// Uploader stores uploaded source files.
type Uploader interface {
	Save(ctx context.Context, name string, data io.Reader) (string, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	studio    Studio
	uploads   Uploader
	validator *validator.Validate
	logger    *slog.Logger
	encoderOK func() bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithEncoderCheck sets the probe used by the health endpoint.
func WithEncoderCheck(fn func() bool) HandlerOption {
	return func(h *Handlers) {
		h.encoderOK = fn
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(s Studio, uploads Uploader, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		studio:    s,
		uploads:   uploads,
		validator: validator.New(),
		logger:    logger,
		encoderOK: func() bool { return true },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Encoder: h.encoderOK(), ActiveJobs: h.studio.ActiveJobs()}
	if !resp.Encoder {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Upload handles POST /uploads with a multipart "file" field.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required", "INVALID_UPLOAD")
		return
	}
	defer func() { _ = file.Close() }()

	path, err := h.uploads.Save(r.Context(), filepath.Base(header.Filename), file)
	if err != nil {
		h.logger.Error("failed to store upload",
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to store upload", "UPLOAD_FAILED")
		return
	}

	h.logger.Info("source uploaded", slog.String("path", path), slog.Int64("size", header.Size))
	writeJSON(w, http.StatusCreated, UploadResponse{Path: path})
}

// CreateComposition handles POST /compositions requests.
func (h *Handlers) CreateComposition(w http.ResponseWriter, r *http.Request) {
	var req ComposeRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	c, err := h.studio.Compose(r.Context(), toSources(req.Sources))
	if err != nil {
		h.logger.Warn("compose failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, compositionResponse(c))
}

// ImportClip handles POST /compositions/import requests.
func (h *Handlers) ImportClip(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	c, err := h.studio.ImportClip(r.Context(), media.Clip{ID: req.ID, Path: req.Path})
	if err != nil {
		h.logger.Warn("import failed", slog.String("path", req.Path), slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, compositionResponse(c))
}

// GetComposition handles GET /compositions/{id} requests.
func (h *Handlers) GetComposition(w http.ResponseWriter, r *http.Request) {
	c, err := h.studio.Composition(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, compositionResponse(c))
}

// DeleteComposition handles DELETE /compositions/{id} requests.
func (h *Handlers) DeleteComposition(w http.ResponseWriter, r *http.Request) {
	err := h.studio.Release(chi.URLParam(r, "id"))
	if errors.Is(err, studio.ErrCompositionNotFound) {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		h.logger.Warn("failed to remove scratch files", slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrimComposition handles POST /compositions/{id}/trim requests.
func (h *Handlers) TrimComposition(w http.ResponseWriter, r *http.Request) {
	var req TrimRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	rng := media.TrimRange{Start: media.FromSeconds(req.StartSec), End: media.FromSeconds(req.EndSec)}
	c, err := h.studio.Trim(r.Context(), chi.URLParam(r, "id"), rng)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, compositionResponse(c))
}

// CreateExport handles POST /compositions/{id}/exports requests.
// The body is optional; without one the configured format is used.
func (h *Handlers) CreateExport(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	var format *encode.Format
	if req != (ExportRequest{}) {
		format = &encode.Format{
			Container:  req.Container,
			VideoCodec: req.VideoCodec,
			AudioCodec: req.AudioCodec,
			Width:      req.Width,
			Height:     req.Height,
			FrameRate:  req.FrameRate,
		}
	}

	// The export outlives the request.
	j, err := h.studio.Export(context.WithoutCancel(r.Context()), chi.URLParam(r, "id"), format)
	if err != nil {
		h.logger.Warn("export not started", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	h.logger.Info("export accepted",
		slog.String("job_id", j.ID),
		slog.String("composition_id", j.CompositionID),
	)
	writeJSON(w, http.StatusAccepted, jobResponse(j))
}

// CompositionThumbnails handles GET /compositions/{id}/thumbnails?width=N.
func (h *Handlers) CompositionThumbnails(w http.ResponseWriter, r *http.Request) {
	width, err := strconv.Atoi(r.URL.Query().Get("width"))
	if err != nil || width <= 0 {
		writeError(w, http.StatusBadRequest, "width must be a positive integer", "VALIDATION_ERROR")
		return
	}

	imgs, err := h.studio.Thumbnails(r.Context(), chi.URLParam(r, "id"), width)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.writeThumbnails(w, imgs)
}

// SourceThumbnails handles POST /thumbnails requests.
func (h *Handlers) SourceThumbnails(w http.ResponseWriter, r *http.Request) {
	var req SourceThumbnailsRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	h.writeThumbnails(w, h.studio.SourceThumbnails(r.Context(), toSources(req.Sources), req.Width))
}

func (h *Handlers) writeThumbnails(w http.ResponseWriter, imgs []image.Image) {
	resp := ThumbnailsResponse{Count: len(imgs), Images: make([]string, 0, len(imgs))}
	var buf bytes.Buffer
	for _, img := range imgs {
		buf.Reset()
		if err := png.Encode(&buf, img); err != nil {
			h.logger.Error("failed to encode thumbnail", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to encode thumbnail", "THUMBNAIL_FAILED")
			return
		}
		resp.Images = append(resp.Images, base64.StdEncoding.EncodeToString(buf.Bytes()))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListJobs handles GET /exports requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.studio.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, jobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob handles GET /exports/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	foundJob, err := h.studio.GetJob(r.Context(), jobID)
	if err != nil {
		if !errors.Is(err, job.ErrJobNotFound) {
			h.logger.Error("failed to get job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobResponse(foundJob))
}

// CancelJob handles POST /exports/{id}/cancel requests.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.studio.CancelJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobResponse(j))
}

// DeleteJob handles DELETE /exports/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if err := h.studio.DeleteJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DownloadJob handles GET /exports/{id}/file requests.
func (h *Handlers) DownloadJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	rc, j, err := h.studio.OpenOutput(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", "video/"+videoSubtype(j.Container))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(j.OutputPath)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("download interrupted",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// decode reads and validates a JSON body into dst. With optional set, an
// empty body is accepted.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			h.logger.Warn("failed to decode request body",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
			return false
		}
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

func toSources(reqs []SourceRequest) []media.Source {
	sources := make([]media.Source, 0, len(reqs))
	for i, s := range reqs {
		id := s.ID
		if id == "" {
			id = fmt.Sprintf("source-%d", i)
		}
		switch media.Kind(s.Kind) {
		case media.KindStill:
			sources = append(sources, media.Still{ID: id, Path: s.Path, CreatedAt: s.CreatedAt})
		default:
			sources = append(sources, media.Clip{
				ID:              id,
				Path:            s.Path,
				NaturalDuration: media.FromSeconds(s.DurationSec),
				CreatedAt:       s.CreatedAt,
			})
		}
	}
	return sources
}

func compositionResponse(c *timeline.Composition) CompositionResponse {
	resp := CompositionResponse{
		ID:          c.ID,
		DurationSec: c.Duration.Seconds(),
		HasAudio:    c.HasAudio(),
		Segments:    make([]SegmentResponse, 0, len(c.Video)),
	}
	for _, seg := range c.Video {
		resp.Segments = append(resp.Segments, SegmentResponse{
			Index:          seg.Index,
			SourceID:       seg.SourceID,
			Kind:           string(seg.Kind),
			OffsetSec:      seg.Offset.Seconds(),
			DurationSec:    seg.Duration.Seconds(),
			SourceStartSec: seg.SourceRange.Start.Seconds(),
			HasAudio:       seg.HasAudio,
		})
	}
	return resp
}

func jobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:            j.ID,
		CompositionID: j.CompositionID,
		Status:        string(j.Status),
		Progress:      int(j.Progress * 100),
		Error:         j.Error,
		Container:     j.Container,
		DurationSec:   j.Duration.Seconds(),
		OutputPath:    j.OutputPath,
		PublishURL:    j.PublishURL,
		CreatedAt:     j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}

func videoSubtype(container string) string {
	switch container {
	case "mov":
		return "quicktime"
	case "m4v":
		return "x-m4v"
	default:
		return "mp4"
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
