package timeline

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/mediaerr"
)

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, path string) (media.TrackInfo, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(media.TrackInfo), args.Error(1)
}

// fileSynth writes a placeholder file per still so scratch cleanup is observable.
type fileSynth struct {
	dir   string
	calls atomic.Int32
	err   error
}

func (s *fileSynth) Synthesize(_ context.Context, _ image.Image, d media.Time, _ image.Point) (media.Clip, error) {
	n := s.calls.Add(1)
	if s.err != nil {
		return media.Clip{}, s.err
	}
	path := filepath.Join(s.dir, "still_"+string(rune('a'+n))+".avi")
	if err := os.WriteFile(path, []byte("avi"), 0o600); err != nil {
		return media.Clip{}, err
	}
	return media.Clip{ID: "synth", Path: path, NaturalDuration: d}, nil
}

func at(sec int) *time.Time {
	t := time.Date(2024, 1, 1, 0, 0, sec, 0, time.UTC)
	return &t
}

func newTestComposer(p Prober, s StillSynthesizer) *Composer {
	c := NewComposer(p, s, ComposerConfig{FrameSize: image.Pt(64, 48)}, nil)
	c.loadImage = func(st media.Still) (image.Image, error) {
		if st.Image == nil {
			return nil, errors.New("no image")
		}
		return st.Image, nil
	}
	return c
}

// scenario builds 5s clip, 7s clip and a still, in that presentation order.
func scenario(t *testing.T) (*Composition, *fileSynth) {
	t.Helper()
	prober := &mockProber{}
	prober.On("Probe", mock.Anything, "/a.mp4").Return(media.TrackInfo{Duration: media.Seconds(5), HasVideo: true, HasAudio: true}, nil)
	prober.On("Probe", mock.Anything, "/b.mp4").Return(media.TrackInfo{Duration: media.Seconds(7), HasVideo: true, Orientation: 90}, nil)
	synth := &fileSynth{dir: t.TempDir()}

	sources := []media.Source{
		media.Still{ID: "s", Image: image.NewRGBA(image.Rect(0, 0, 4, 4)), CreatedAt: at(1)},
		media.Clip{ID: "a", Path: "/a.mp4", CreatedAt: at(3)},
		media.Clip{ID: "b", Path: "/b.mp4", NaturalDuration: media.Seconds(7), CreatedAt: at(2)},
	}

	c, err := newTestComposer(prober, synth).Compose(context.Background(), sources)
	require.NoError(t, err)
	prober.AssertExpectations(t)
	return c, synth
}

func TestCompose_Scenario(t *testing.T) {
	c, synth := scenario(t)

	assert.Equal(t, media.Seconds(15), c.Duration)
	require.Len(t, c.Video, 3)
	assert.Equal(t, []string{"a", "b", "s"}, []string{c.Video[0].SourceID, c.Video[1].SourceID, c.Video[2].SourceID})

	wantOffsets := []media.Time{0, media.Seconds(5), media.Seconds(12)}
	wantEnds := []media.Time{media.Seconds(5), media.Seconds(12), media.Seconds(15)}
	for i, seg := range c.Video {
		assert.Equal(t, wantOffsets[i], seg.Offset, "offset %d", i)
		assert.Equal(t, wantEnds[i], seg.End(), "end %d", i)
		assert.Equal(t, seg.Duration, seg.SourceRange.Duration)
		assert.Equal(t, i, seg.Index)
	}
	assert.Equal(t, media.KindStill, c.Video[2].Kind)
	assert.Equal(t, media.Orientation(90), c.Video[1].Orientation)
	assert.Equal(t, media.Orientation(0), c.Video[0].Orientation)

	// Only the first clip has sound; the rest of the audio track is a gap.
	require.Len(t, c.Audio, 1)
	assert.Equal(t, "a", c.Audio[0].SourceID)

	assert.Equal(t, int32(1), synth.calls.Load())
	assert.Len(t, c.ScratchPaths(), 1)
}

func TestCompose_Contiguous(t *testing.T) {
	c, _ := scenario(t)
	var sum media.Time
	for i := range c.Video {
		sum += c.Video[i].Duration
		if i > 0 {
			assert.Equal(t, c.Video[i-1].End(), c.Video[i].Offset)
		}
	}
	assert.Equal(t, c.Duration, sum)
}

func TestCompose_Empty(t *testing.T) {
	c, err := newTestComposer(&mockProber{}, &fileSynth{dir: t.TempDir()}).Compose(context.Background(), nil)
	assert.Nil(t, c)
	assert.ErrorIs(t, err, mediaerr.ErrEmptyComposition)
}

func TestCompose_NoAudioAnywhere(t *testing.T) {
	synth := &fileSynth{dir: t.TempDir()}
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	c, err := newTestComposer(&mockProber{}, synth).Compose(context.Background(), []media.Source{
		media.Still{ID: "x", Image: img},
		media.Still{ID: "y", Image: img},
	})
	require.NoError(t, err)
	assert.Nil(t, c.Audio)
	assert.False(t, c.HasAudio())
	assert.Equal(t, media.Seconds(6), c.Duration)
	// Undated sources keep input order.
	assert.Equal(t, "x", c.Video[0].SourceID)
	assert.Equal(t, "y", c.Video[1].SourceID)
}

func TestCompose_ProbeFailureNamesIndexAndCleansScratch(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", mock.Anything, "/ok.mp4").Return(media.TrackInfo{Duration: media.Seconds(2), HasVideo: true}, nil)
	prober.On("Probe", mock.Anything, "/bad.mp4").Return(media.TrackInfo{}, errors.New("moov atom not found"))
	synth := &fileSynth{dir: t.TempDir()}

	sources := []media.Source{
		media.Still{ID: "s", Image: image.NewRGBA(image.Rect(0, 0, 2, 2)), CreatedAt: at(3)},
		media.Clip{ID: "ok", Path: "/ok.mp4", CreatedAt: at(2)},
		media.Clip{ID: "bad", Path: "/bad.mp4", CreatedAt: at(1)},
	}

	c, err := newTestComposer(prober, synth).Compose(context.Background(), sources)
	assert.Nil(t, c)
	require.ErrorIs(t, err, mediaerr.ErrTrackInsertionFailed)
	assert.Equal(t, 2, mediaerr.IndexOf(err))
	assert.Contains(t, err.Error(), "moov atom not found")

	entries, err := os.ReadDir(synth.dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCompose_MissingVideoTrack(t *testing.T) {
	prober := &mockProber{}
	prober.On("Probe", mock.Anything, "/audio.m4a").Return(media.TrackInfo{Duration: media.Seconds(2), HasAudio: true}, nil)

	_, err := newTestComposer(prober, &fileSynth{dir: t.TempDir()}).Compose(context.Background(), []media.Source{
		media.Clip{ID: "m", Path: "/audio.m4a"},
	})
	require.ErrorIs(t, err, mediaerr.ErrTrackInsertionFailed)
	assert.ErrorIs(t, err, ErrNoVideoTrack)
	assert.Equal(t, 0, mediaerr.IndexOf(err))
}

func TestCompose_SynthesisFailure(t *testing.T) {
	synth := &fileSynth{dir: t.TempDir(), err: mediaerr.New("synthesize", mediaerr.ErrFrameSynthesisFailed, errors.New("boom"))}

	_, err := newTestComposer(&mockProber{}, synth).Compose(context.Background(), []media.Source{
		media.Still{ID: "s", Image: image.NewRGBA(image.Rect(0, 0, 2, 2))},
	})
	assert.ErrorIs(t, err, mediaerr.ErrTrackInsertionFailed)
	assert.ErrorIs(t, err, mediaerr.ErrFrameSynthesisFailed)
}

func TestCompose_UndecodableStill(t *testing.T) {
	_, err := newTestComposer(&mockProber{}, &fileSynth{dir: t.TempDir()}).Compose(context.Background(), []media.Source{
		media.Still{ID: "s"},
	})
	assert.ErrorIs(t, err, mediaerr.ErrTrackInsertionFailed)
	assert.ErrorIs(t, err, mediaerr.ErrFrameSynthesisFailed)
}

func TestTrim_Scenario(t *testing.T) {
	c, _ := scenario(t)

	tr, err := Trim(c, media.TrimRange{Start: media.Seconds(4), End: media.Seconds(13)})
	require.NoError(t, err)

	assert.Equal(t, media.Seconds(9), tr.Duration)
	assert.NotEqual(t, c.ID, tr.ID)
	require.Len(t, tr.Video, 3)

	first := tr.Video[0]
	assert.Equal(t, "a", first.SourceID)
	assert.Equal(t, media.TimeRange{Start: media.Seconds(4), Duration: media.Seconds(1)}, first.SourceRange)
	assert.Equal(t, media.Time(0), first.Offset)

	mid := tr.Video[1]
	assert.Equal(t, media.TimeRange{Start: 0, Duration: media.Seconds(7)}, mid.SourceRange)
	assert.Equal(t, media.Seconds(1), mid.Offset)
	assert.Equal(t, media.Orientation(90), mid.Orientation)

	last := tr.Video[2]
	assert.Equal(t, media.KindStill, last.Kind)
	assert.Equal(t, media.TimeRange{Start: 0, Duration: media.Seconds(1)}, last.SourceRange)
	assert.Equal(t, media.Seconds(8), last.Offset)
	assert.Equal(t, c.Video[2].Path, last.Path)

	require.Len(t, tr.Audio, 1)
	assert.Equal(t, media.Seconds(1), tr.Audio[0].Duration)
}

func TestTrim_FullRangeIsNoop(t *testing.T) {
	c, _ := scenario(t)

	tr, err := Trim(c, media.TrimRange{Start: 0, End: c.Duration})
	require.NoError(t, err)
	assert.Equal(t, c.Duration, tr.Duration)
	assert.Equal(t, c.Video, tr.Video)
	assert.Equal(t, c.Audio, tr.Audio)
}

func TestTrim_Composes(t *testing.T) {
	c, _ := scenario(t)

	outer, err := Trim(c, media.TrimRange{Start: media.Seconds(4), End: media.Seconds(13)})
	require.NoError(t, err)
	nested, err := Trim(outer, media.TrimRange{Start: media.Seconds(2), End: media.Seconds(8)})
	require.NoError(t, err)

	direct, err := Trim(c, media.TrimRange{Start: media.Seconds(6), End: media.Seconds(12)})
	require.NoError(t, err)

	assert.Equal(t, direct.Duration, nested.Duration)
	assert.Equal(t, direct.Video, nested.Video)
	assert.Equal(t, direct.Audio, nested.Audio)
}

func TestTrim_InvalidRanges(t *testing.T) {
	c, _ := scenario(t)

	tests := []struct {
		name string
		r    media.TrimRange
	}{
		{"inverted", media.TrimRange{Start: media.Seconds(5), End: media.Seconds(4)}},
		{"empty", media.TrimRange{Start: media.Seconds(5), End: media.Seconds(5)}},
		{"past end", media.TrimRange{Start: 0, End: media.Seconds(16)}},
		{"negative start", media.TrimRange{Start: -1, End: media.Seconds(2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Trim(c, tt.r)
			assert.Nil(t, tr)
			assert.ErrorIs(t, err, mediaerr.ErrInvalidRange)
		})
	}

	_, err := Trim(nil, media.TrimRange{End: 1})
	assert.ErrorIs(t, err, mediaerr.ErrInvalidRange)
}

func TestScratch_SharedUntilLastRelease(t *testing.T) {
	c, _ := scenario(t)
	paths := c.ScratchPaths()
	require.Len(t, paths, 1)

	tr, err := Trim(c, media.TrimRange{Start: media.Seconds(12), End: media.Seconds(15)})
	require.NoError(t, err)

	require.NoError(t, c.Release())
	assert.FileExists(t, paths[0])

	require.NoError(t, tr.Release())
	assert.NoFileExists(t, paths[0])

	// Releasing twice is harmless.
	require.NoError(t, tr.Release())
}

func TestComposition_RetainOutlivesRelease(t *testing.T) {
	c, _ := scenario(t)
	paths := c.ScratchPaths()
	require.Len(t, paths, 1)

	drop := c.Retain()
	require.NoError(t, c.Release())
	assert.FileExists(t, paths[0])

	require.NoError(t, drop())
	assert.NoFileExists(t, paths[0])
	require.NoError(t, drop())
}

func TestComposition_RetainWithoutScratch(t *testing.T) {
	c := FromClip(media.Clip{ID: "a", Path: "/a.mp4", NaturalDuration: media.Seconds(1)}, media.TrackInfo{HasVideo: true})
	drop := c.Retain()
	assert.NoError(t, drop())
}

func TestLocate(t *testing.T) {
	c, _ := scenario(t)

	seg, src, ok := c.Locate(media.Seconds(6))
	require.True(t, ok)
	assert.Equal(t, "b", seg.SourceID)
	assert.Equal(t, media.Seconds(1), src)

	seg, _, ok = c.Locate(0)
	require.True(t, ok)
	assert.Equal(t, "a", seg.SourceID)

	seg, src, ok = c.Locate(c.Duration)
	require.True(t, ok)
	assert.Equal(t, "s", seg.SourceID)
	assert.Equal(t, media.Seconds(3)-1, src)

	_, _, ok = (&Composition{}).Locate(0)
	assert.False(t, ok)
}

func TestFromClip(t *testing.T) {
	c := FromClip(media.Clip{ID: "c", Path: "/c.mp4"}, media.TrackInfo{Duration: media.Seconds(4), HasVideo: true, HasAudio: true, Orientation: 180})

	assert.Equal(t, media.Seconds(4), c.Duration)
	require.Len(t, c.Video, 1)
	assert.Equal(t, media.Orientation(180), c.Video[0].Orientation)
	assert.Len(t, c.Audio, 1)
	assert.NoError(t, c.Release())
}
