package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/maauso/clipstitch/internal/media"
)

// Static errors for ffmpeg operations.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoFrame is returned when ffmpeg produced no image for the requested time.
	ErrNoFrame = errors.New("no frame decoded")
	// ErrInvalidSpec is returned when an encode spec cannot produce any output.
	ErrInvalidSpec = errors.New("invalid encode spec")
)

// Processor runs the ffmpeg and ffprobe binaries. It probes clips, extracts
// frames for thumbnails and opens encode sessions.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

// NewProcessor creates a Processor.
// Empty paths default to "ffmpeg" and "ffprobe" found via PATH.
func NewProcessor(ffmpegPath, ffprobePath string, logger *slog.Logger) *Processor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger.With("component", "ffmpeg"),
	}
}

// Available reports whether the ffmpeg binary can be found.
func (p *Processor) Available() bool {
	_, err := exec.LookPath(p.ffmpegPath)
	return err == nil
}

type sideData struct {
	Rotation float64 `json:"rotation"`
}

// probeOutput is the subset of `ffprobe -print_format json` we read.
type probeOutput struct {
	Streams []struct {
		CodecType    string            `json:"codec_type"`
		Width        int               `json:"width"`
		Height       int               `json:"height"`
		Tags         map[string]string `json:"tags"`
		SideDataList []sideData        `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe inspects the tracks of a media file.
func (p *Processor) Probe(ctx context.Context, path string) (media.TrackInfo, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return media.TrackInfo{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return media.TrackInfo{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return parseProbe(stdout.Bytes())
}

func parseProbe(data []byte) (media.TrackInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return media.TrackInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var info media.TrackInfo
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.Orientation = streamOrientation(s.Tags, s.SideDataList)
		case "audio":
			info.HasAudio = true
		}
	}

	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
		if err != nil {
			return media.TrackInfo{}, fmt.Errorf("parse duration: %w", err)
		}
		info.Duration = media.FromSeconds(d)
	}

	return info, nil
}

// streamOrientation reads the clockwise display rotation. The display matrix
// side data stores it counter-clockwise, the legacy rotate tag clockwise.
func streamOrientation(tags map[string]string, side []sideData) media.Orientation {
	for _, sd := range side {
		if sd.Rotation != 0 {
			return media.Orientation(-int(sd.Rotation)).Normalize()
		}
	}
	if r, ok := tags["rotate"]; ok {
		if deg, err := strconv.Atoi(r); err == nil {
			return media.Orientation(deg).Normalize()
		}
	}
	return 0
}

// ExtractFrame decodes the frame shown at time at.
func (p *Processor) ExtractFrame(ctx context.Context, path string, at media.Time) (image.Image, error) {
	args := []string{
		"-v", "error",
		"-ss", secs(at),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	}

	out, err := p.runFFmpeg(ctx, args)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w at %s in %s", ErrNoFrame, at, path)
	}

	img, err := imaging.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// runFFmpeg executes ffmpeg with the given arguments and returns stdout.
// The error carries stderr output if the command fails.
func (p *Processor) runFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &Error{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

// Error represents a failed ffmpeg run, including the stderr output.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// secs formats a timeline value for ffmpeg time options.
func secs(t media.Time) string {
	return strconv.FormatFloat(t.Seconds(), 'f', 3, 64)
}
