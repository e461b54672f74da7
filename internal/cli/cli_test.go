package cli

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipstitch/internal/job"
	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/timeline"
)

// runCLI executes the command tree with temporary directories.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	base := []string{
		"--output-dir", filepath.Join(dir, "out"),
		"--scratch-dir", filepath.Join(dir, "scratch"),
		"--log-level", "error",
	}

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append(args, base...))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedJobs(t *testing.T, dbPath string, jobs ...*job.Job) {
	t.Helper()
	repo, err := job.NewSQLiteRepository(dbPath, nil)
	require.NoError(t, err)
	for _, j := range jobs {
		require.NoError(t, repo.Save(context.Background(), j))
	}
	require.NoError(t, repo.Close())
}

func TestJobsCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "jobs.db")
	done := job.NewWithID("job-done", "comp-1", "/out/merged_1.mp4")
	require.NoError(t, done.Start())
	require.NoError(t, done.Complete())
	failed := job.NewWithID("job-failed", "comp-2", "/out/merged_2.mp4")
	require.NoError(t, failed.Fail("encoder exited"))
	seedJobs(t, dbPath, done, failed)

	out, err := runCLI(t, "jobs", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "job-done")
	assert.Contains(t, out, "COMPLETED")
	assert.Contains(t, out, "job-failed")
	assert.Contains(t, out, "encoder exited")

	out, err = runCLI(t, "jobs", "--db", dbPath, "--delete", "job-done")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted job-done")

	out, err = runCLI(t, "jobs", "--db", dbPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "job-done")
}

func TestJobsCommand_Empty(t *testing.T) {
	out, err := runCLI(t, "jobs")
	require.NoError(t, err)
	assert.Contains(t, out, "no export jobs")
}

func TestJobsCommand_DeleteUnknown(t *testing.T) {
	_, err := runCLI(t, "jobs", "--delete", "nope")
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"merge needs a manifest", []string{"merge"}},
		{"merge missing manifest", []string{"merge", "/does/not/exist.yaml"}},
		{"trim reversed range", []string{"trim", "a.mp4", "--start", "5", "--end", "2"}},
		{"trim without end", []string{"trim", "a.mp4"}},
		{"thumbs without sources", []string{"thumbs"}},
		{"thumbs zero width", []string{"thumbs", "a.mp4", "--width", "0"}},
		{"probe needs a file", []string{"probe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestWriteThumbnails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "strip")
	imgs := []image.Image{
		image.NewNRGBA(image.Rect(0, 0, 8, 4)),
		image.NewNRGBA(image.Rect(0, 0, 8, 4)),
	}

	paths, err := writeThumbnails(dir, imgs)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "thumb_001.png"), paths[1])
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "merged.mp4")
	require.NoError(t, os.WriteFile(src, []byte("movie"), 0o600))
	dst := filepath.Join(dir, "nested", "final.mp4")

	require.NoError(t, moveFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "movie", string(data))
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestRenderJobs(t *testing.T) {
	assert.Contains(t, renderJobs(nil), "no export jobs")

	j := job.NewWithID("j1", "c1", "/out/merged.mp4")
	j.PublishURL = "https://bucket.s3.eu-west-1.amazonaws.com/exports/merged.mp4"
	out := renderJobs([]*job.Job{j})
	assert.Contains(t, out, "CREATED")
	assert.Contains(t, out, j.PublishURL)
	assert.NotContains(t, out, "/out/merged.mp4")
}

func TestRenderComposition(t *testing.T) {
	c := &timeline.Composition{
		ID: "comp-1",
		Video: []timeline.Segment{
			{Index: 0, SourceID: "beach", Kind: media.KindClip, Duration: media.Seconds(4), HasAudio: true},
			{Index: 1, SourceID: "sunset", Kind: media.KindStill, Offset: media.Seconds(4), Duration: media.Seconds(3)},
		},
		Duration: media.Seconds(7),
	}
	out := renderComposition(c)
	assert.Contains(t, out, "comp-1")
	assert.Contains(t, out, "7.000s")
	assert.Contains(t, out, "beach")
	assert.Contains(t, out, "+audio")
}

func TestRenderTrackInfo(t *testing.T) {
	out := renderTrackInfo("/in/clip.mp4", media.TrackInfo{
		Duration: media.Seconds(3), HasVideo: true, Width: 1920, Height: 1080, Orientation: -90,
	})
	assert.Contains(t, out, "clip.mp4")
	assert.Contains(t, out, "1920x1080")
	assert.Contains(t, out, "270°")
}
