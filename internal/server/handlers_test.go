package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/job"
	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/mediaerr"
	"github.com/maauso/clipstitch/internal/studio"
	"github.com/maauso/clipstitch/internal/timeline"
)

// mockStudio implements Studio for testing.
type mockStudio struct {
	mock.Mock
}

func (m *mockStudio) Compose(ctx context.Context, sources []media.Source) (*timeline.Composition, error) {
	args := m.Called(ctx, sources)
	return compositionArg(args)
}

func (m *mockStudio) ImportClip(ctx context.Context, clip media.Clip) (*timeline.Composition, error) {
	args := m.Called(ctx, clip)
	return compositionArg(args)
}

func (m *mockStudio) Composition(id string) (*timeline.Composition, error) {
	args := m.Called(id)
	return compositionArg(args)
}

func (m *mockStudio) Trim(ctx context.Context, id string, r media.TrimRange) (*timeline.Composition, error) {
	args := m.Called(ctx, id, r)
	return compositionArg(args)
}

func (m *mockStudio) Release(id string) error {
	return m.Called(id).Error(0)
}

func (m *mockStudio) Export(ctx context.Context, id string, format *encode.Format) (*job.Job, error) {
	args := m.Called(ctx, id, format)
	return jobArg(args)
}

func (m *mockStudio) GetJob(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	return jobArg(args)
}

func (m *mockStudio) ListJobs(ctx context.Context) ([]*job.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*job.Job), args.Error(1)
}

func (m *mockStudio) CancelJob(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	return jobArg(args)
}

func (m *mockStudio) DeleteJob(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStudio) OpenOutput(ctx context.Context, id string) (io.ReadCloser, *job.Job, error) {
	args := m.Called(ctx, id)
	var rc io.ReadCloser
	if v := args.Get(0); v != nil {
		rc = v.(io.ReadCloser)
	}
	var j *job.Job
	if v := args.Get(1); v != nil {
		j = v.(*job.Job)
	}
	return rc, j, args.Error(2)
}

func (m *mockStudio) Thumbnails(ctx context.Context, id string, width int) ([]image.Image, error) {
	args := m.Called(ctx, id, width)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]image.Image), args.Error(1)
}

func (m *mockStudio) SourceThumbnails(ctx context.Context, sources []media.Source, width int) []image.Image {
	return m.Called(ctx, sources, width).Get(0).([]image.Image)
}

func (m *mockStudio) ActiveJobs() int {
	return m.Called().Int(0)
}

func compositionArg(args mock.Arguments) (*timeline.Composition, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeline.Composition), args.Error(1)
}

func jobArg(args mock.Arguments) (*job.Job, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

// mockUploader implements Uploader for testing.
type mockUploader struct {
	mock.Mock
	body string
}

func (m *mockUploader) Save(ctx context.Context, name string, data io.Reader) (string, error) {
	b, _ := io.ReadAll(data)
	m.body = string(b)
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRouter(t *testing.T, opts ...HandlerOption) (http.Handler, *mockStudio, *mockUploader) {
	t.Helper()
	s := &mockStudio{}
	up := &mockUploader{}
	h := NewHandlers(s, up, testLogger(), opts...)
	return NewRouter(h, testLogger(), DefaultConfig()), s, up
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func sampleComposition() *timeline.Composition {
	return &timeline.Composition{
		ID: "comp-1",
		Video: []timeline.Segment{
			{Index: 0, SourceID: "a", Kind: media.KindClip, Duration: media.Seconds(5), HasAudio: true},
			{Index: 1, SourceID: "s", Kind: media.KindStill, Offset: media.Seconds(5), Duration: media.Seconds(3)},
		},
		Audio: []timeline.Segment{
			{Index: 0, SourceID: "a", Kind: media.KindClip, Duration: media.Seconds(5), HasAudio: true},
		},
		Duration: media.Seconds(8),
	}
}

func TestHealth(t *testing.T) {
	router, s, _ := newTestRouter(t, WithEncoderCheck(func() bool { return false }))
	s.On("ActiveJobs").Return(2)

	rec := do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, HealthResponse{Status: "degraded", Encoder: false, ActiveJobs: 2}, resp)
}

func TestCreateComposition_Success(t *testing.T) {
	router, s, _ := newTestRouter(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	want := []media.Source{
		media.Clip{ID: "a", Path: "/in/a.mp4", NaturalDuration: media.Seconds(5), CreatedAt: &created},
		media.Still{ID: "source-1", Path: "/in/s.png"},
	}
	s.On("Compose", mock.Anything, want).Return(sampleComposition(), nil)

	rec := do(t, router, http.MethodPost, "/compositions", ComposeRequest{Sources: []SourceRequest{
		{ID: "a", Kind: "clip", Path: "/in/a.mp4", DurationSec: 5, CreatedAt: &created},
		{Kind: "still", Path: "/in/s.png"},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CompositionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "comp-1", resp.ID)
	assert.InDelta(t, 8.0, resp.DurationSec, 1e-9)
	assert.True(t, resp.HasAudio)
	require.Len(t, resp.Segments, 2)
	assert.Equal(t, "still", resp.Segments[1].Kind)
	assert.InDelta(t, 5.0, resp.Segments[1].OffsetSec, 1e-9)
	s.AssertExpectations(t)
}

func TestCreateComposition_InvalidJSON(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/compositions", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
}

func TestCreateComposition_ValidationError(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/compositions", ComposeRequest{Sources: []SourceRequest{
		{Kind: "audio", Path: "/in/a.wav"},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestCreateComposition_DomainErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		wantIndex *int
	}{
		{
			name:   "empty",
			err:    mediaerr.New("compose", mediaerr.ErrEmptyComposition, nil),
			status: http.StatusUnprocessableEntity,
			code:   "EMPTY_COMPOSITION",
		},
		{
			name:      "track insertion names the source",
			err:       mediaerr.AtIndex("compose", 2, mediaerr.ErrTrackInsertionFailed, errors.New("probe failed")),
			status:    http.StatusUnprocessableEntity,
			code:      "TRACK_INSERTION_FAILED",
			wantIndex: func() *int { i := 2; return &i }(),
		},
		{
			name:   "synthesis",
			err:    mediaerr.AtIndex("compose", 0, mediaerr.ErrTrackInsertionFailed, mediaerr.New("synthesize", mediaerr.ErrFrameSynthesisFailed, nil)),
			status: http.StatusUnprocessableEntity,
			code:   "TRACK_INSERTION_FAILED",
		},
		{
			name:   "unexpected",
			err:    errors.New("disk on fire"),
			status: http.StatusInternalServerError,
			code:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, s, _ := newTestRouter(t)
			s.On("Compose", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := do(t, router, http.MethodPost, "/compositions", ComposeRequest{})
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Code)
			if tt.wantIndex != nil {
				require.NotNil(t, resp.Index)
				assert.Equal(t, *tt.wantIndex, *resp.Index)
			}
			if tt.code == "INTERNAL_ERROR" {
				assert.NotContains(t, resp.Error, "disk on fire")
			}
		})
	}
}

func TestImportClip(t *testing.T) {
	router, s, _ := newTestRouter(t)
	s.On("ImportClip", mock.Anything, media.Clip{ID: "x", Path: "/in/x.mp4"}).Return(sampleComposition(), nil)
	s.On("ImportClip", mock.Anything, media.Clip{Path: "/in/song.m4a"}).
		Return(nil, timeline.ErrNoVideoTrack)

	rec := do(t, router, http.MethodPost, "/compositions/import", ImportRequest{ID: "x", Path: "/in/x.mp4"})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, router, http.MethodPost, "/compositions/import", ImportRequest{Path: "/in/song.m4a"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "NO_VIDEO_TRACK", decodeError(t, rec).Code)

	rec = do(t, router, http.MethodPost, "/compositions/import", ImportRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetComposition(t *testing.T) {
	router, s, _ := newTestRouter(t)
	s.On("Composition", "comp-1").Return(sampleComposition(), nil)
	s.On("Composition", "nope").Return(nil, studio.ErrCompositionNotFound)

	rec := do(t, router, http.MethodGet, "/compositions/comp-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/compositions/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "COMPOSITION_NOT_FOUND", decodeError(t, rec).Code)
}

func TestDeleteComposition(t *testing.T) {
	router, s, _ := newTestRouter(t)
	s.On("Release", "comp-1").Return(nil)
	s.On("Release", "busy").Return(errors.New("remove scratch: permission denied"))
	s.On("Release", "nope").Return(studio.ErrCompositionNotFound)

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/compositions/comp-1", nil).Code)
	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/compositions/busy", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/compositions/nope", nil).Code)
}

func TestTrimComposition(t *testing.T) {
	router, s, _ := newTestRouter(t)
	trimmed := &timeline.Composition{ID: "comp-2", Duration: media.Seconds(3)}
	s.On("Trim", mock.Anything, "comp-1", media.TrimRange{Start: media.Seconds(2), End: media.Seconds(5)}).
		Return(trimmed, nil)
	s.On("Trim", mock.Anything, "comp-1", media.TrimRange{Start: media.Seconds(5), End: media.Seconds(2)}).
		Return(nil, mediaerr.New("trim", mediaerr.ErrInvalidRange, nil))

	rec := do(t, router, http.MethodPost, "/compositions/comp-1/trim", TrimRequest{StartSec: 2, EndSec: 5})
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp CompositionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "comp-2", resp.ID)
	assert.Empty(t, resp.Segments)

	rec = do(t, router, http.MethodPost, "/compositions/comp-1/trim", TrimRequest{StartSec: 5, EndSec: 2})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_RANGE", decodeError(t, rec).Code)

	rec = do(t, router, http.MethodPost, "/compositions/comp-1/trim", TrimRequest{StartSec: -1, EndSec: 2})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func writingJob() *job.Job {
	j := job.NewWithID("export-1", "comp-1", "/out/merged_1.mp4")
	j.Container = "mp4"
	j.Duration = media.Seconds(8)
	_ = j.Start()
	j.UpdateProgress(0.42)
	return j
}

func TestCreateExport_DefaultFormat(t *testing.T) {
	router, s, _ := newTestRouter(t)
	s.On("Export", mock.Anything, "comp-1", (*encode.Format)(nil)).Return(writingJob(), nil)

	rec := do(t, router, http.MethodPost, "/compositions/comp-1/exports", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "export-1", resp.ID)
	assert.Equal(t, "WRITING", resp.Status)
	assert.Equal(t, 42, resp.Progress)
	assert.InDelta(t, 8.0, resp.DurationSec, 1e-9)
	assert.Nil(t, resp.CompletedAt)
}

func TestCreateExport_CustomFormat(t *testing.T) {
	router, s, _ := newTestRouter(t)
	want := &encode.Format{Container: "mov", Width: 1920, Height: 1080}
	s.On("Export", mock.Anything, "comp-1", want).Return(writingJob(), nil)

	rec := do(t, router, http.MethodPost, "/compositions/comp-1/exports",
		ExportRequest{Container: "mov", Width: 1920, Height: 1080})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	s.AssertExpectations(t)
}

func TestCreateExport_Errors(t *testing.T) {
	router, s, _ := newTestRouter(t)
	s.On("Export", mock.Anything, "busy", mock.Anything).Return(nil, studio.ErrTooManyJobs)
	s.On("Export", mock.Anything, "noenc", mock.Anything).
		Return(nil, mediaerr.New("export", mediaerr.ErrEncoderUnavailable, errors.New("ffmpeg not found")))

	rec := do(t, router, http.MethodPost, "/compositions/busy/exports", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(t, router, http.MethodPost, "/compositions/noenc/exports", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "ENCODER_UNAVAILABLE", decodeError(t, rec).Code)

	rec = do(t, router, http.MethodPost, "/compositions/comp-1/exports", ExportRequest{Container: "gif"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompositionThumbnails(t *testing.T) {
	router, s, _ := newTestRouter(t)
	imgs := []image.Image{
		image.NewNRGBA(image.Rect(0, 0, 4, 2)),
		image.NewNRGBA(image.Rect(0, 0, 4, 2)),
	}
	s.On("Thumbnails", mock.Anything, "comp-1", 320).Return(imgs, nil)

	rec := do(t, router, http.MethodGet, "/compositions/comp-1/thumbnails?width=320", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ThumbnailsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Images, 2)

	data, err := base64.StdEncoding.DecodeString(resp.Images[0])
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())

	rec = do(t, router, http.MethodGet, "/compositions/comp-1/thumbnails", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSourceThumbnails(t *testing.T) {
	router, s, _ := newTestRouter(t)
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	s.On("SourceThumbnails", mock.Anything, []media.Source{media.Clip{ID: "source-0", Path: "/a.mp4"}}, 200).
		Return([]image.Image{img, img})

	rec := do(t, router, http.MethodPost, "/thumbnails", SourceThumbnailsRequest{
		Sources: []SourceRequest{{Kind: "clip", Path: "/a.mp4"}},
		Width:   200,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ThumbnailsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)

	rec = do(t, router, http.MethodPost, "/thumbnails", SourceThumbnailsRequest{Width: 200})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobs(t *testing.T) {
	router, s, _ := newTestRouter(t)
	done := job.NewWithID("export-2", "comp-1", "/out/b.mp4")
	_ = done.Start()
	_ = done.Complete()
	s.On("ListJobs", mock.Anything).Return([]*job.Job{done, writingJob()}, nil)

	rec := do(t, router, http.MethodGet, "/exports", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "COMPLETED", resp.Jobs[0].Status)
	assert.Equal(t, 100, resp.Jobs[0].Progress)
	assert.NotNil(t, resp.Jobs[0].CompletedAt)
}

func TestGetJob(t *testing.T) {
	router, s, _ := newTestRouter(t)
	j := writingJob()
	s.On("GetJob", mock.Anything, "export-1").Return(j, nil)
	s.On("GetJob", mock.Anything, "missing").Return(nil, job.ErrJobNotFound)

	rec := do(t, router, http.MethodGet, "/exports/export-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/exports/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", decodeError(t, rec).Code)
}

func TestCancelJob(t *testing.T) {
	router, s, _ := newTestRouter(t)
	cancelled := writingJob()
	_ = cancelled.Cancel()
	s.On("CancelJob", mock.Anything, "export-1").Return(cancelled, nil)
	s.On("CancelJob", mock.Anything, "export-2").Return(nil, studio.ErrJobNotActive)

	rec := do(t, router, http.MethodPost, "/exports/export-1/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp JobResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "CANCELLED", resp.Status)

	rec = do(t, router, http.MethodPost, "/exports/export-2/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteJob(t *testing.T) {
	router, s, _ := newTestRouter(t)
	s.On("DeleteJob", mock.Anything, "export-1").Return(nil)
	s.On("DeleteJob", mock.Anything, "export-2").Return(studio.ErrJobActive)

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/exports/export-1", nil).Code)

	rec := do(t, router, http.MethodDelete, "/exports/export-2", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "JOB_ACTIVE", decodeError(t, rec).Code)
}

func TestDownloadJob(t *testing.T) {
	router, s, _ := newTestRouter(t)
	j := job.NewWithID("export-1", "comp-1", "/out/trimmed_1.mov")
	j.Container = "mov"
	s.On("OpenOutput", mock.Anything, "export-1").Return(io.NopCloser(strings.NewReader("movie")), j, nil)
	s.On("OpenOutput", mock.Anything, "export-2").Return(nil, nil, studio.ErrOutputUnavailable)

	rec := do(t, router, http.MethodGet, "/exports/export-1/file", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "movie", rec.Body.String())
	assert.Equal(t, "video/quicktime", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "trimmed_1.mov")

	rec = do(t, router, http.MethodGet, "/exports/export-2/file", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpload(t *testing.T) {
	router, _, up := newTestRouter(t)
	up.On("Save", mock.Anything, "clip.mp4").Return("/scratch/clip_123.mp4", nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "clip.mp4")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("video bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "/scratch/clip_123.mp4", resp.Path)
	assert.Equal(t, "video bytes", up.body)
}

func TestUpload_MissingFile(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/uploads", "{}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_UPLOAD", decodeError(t, rec).Code)
}

func TestCORSMiddleware(t *testing.T) {
	s := &mockStudio{}
	s.On("ActiveJobs").Return(0)
	h := NewHandlers(s, &mockUploader{}, testLogger())

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(h, testLogger(), cfg)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Disallowed origins get no CORS headers
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Test OPTIONS preflight
	req = httptest.NewRequest(http.MethodOptions, "/compositions", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	// Create a handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{mediaerr.New("export", mediaerr.ErrExportCancelled, nil), http.StatusConflict, "EXPORT_CANCELLED"},
		{mediaerr.New("export", mediaerr.ErrExportFailed, nil), http.StatusInternalServerError, "EXPORT_FAILED"},
		{mediaerr.AtIndex("export", 1, mediaerr.ErrEncoderNotReady, nil), http.StatusServiceUnavailable, "ENCODER_NOT_READY"},
		{mediaerr.New("synthesize", mediaerr.ErrFrameSynthesisFailed, nil), http.StatusUnprocessableEntity, "FRAME_SYNTHESIS_FAILED"},
		{studio.ErrOutputUnavailable, http.StatusConflict, "OUTPUT_UNAVAILABLE"},
		{context.Canceled, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestLoggingMiddleware_RequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := &mockStudio{}
	s.On("Composition", "nope").Return(nil, studio.ErrCompositionNotFound)
	router := NewRouter(NewHandlers(s, &mockUploader{}, logger), logger, DefaultConfig())

	rec := do(t, router, http.MethodGet, "/compositions/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	line := buf.String()
	assert.Contains(t, line, "msg=\"http request\"")
	assert.Contains(t, line, "status=404")
	assert.Regexp(t, `request_id=[^"\s]+`, line)
}
