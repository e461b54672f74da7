package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/maauso/clipstitch/internal/encode"
	"github.com/maauso/clipstitch/internal/media"
)

const (
	audioSampleRate = 48000
	audioLayout     = "stereo"
)

// buildEncodeArgs turns a spec and its units into one ffmpeg invocation.
// Each unit becomes an input seeked to its source range; the filter graph
// orients, fits and pads every video slice to the output frame, fills audio
// gaps with silence and concatenates everything in order.
func buildEncodeArgs(spec encode.Spec, units []encode.Unit) []string {
	f := spec.Format.WithDefaults()

	args := []string{
		"-y",
		"-nostdin",
		"-hide_banner",
		"-v", "error",
		"-progress", "pipe:1",
		"-nostats",
	}

	for _, u := range units {
		args = append(args,
			"-noautorotate",
			"-ss", secs(u.SourceStart),
			"-t", secs(u.Duration),
			"-i", u.Path,
		)
	}

	args = append(args,
		"-filter_complex", filterGraph(f, spec.WithAudio, units),
		"-map", "[outv]",
	)
	if spec.WithAudio {
		args = append(args, "-map", "[outa]")
	}

	args = append(args,
		"-c:v", f.VideoCodec,
		"-preset", "fast",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprint(f.FrameRate),
	)
	if spec.WithAudio {
		args = append(args,
			"-c:a", f.AudioCodec,
			"-b:a", "128k",
		)
	}
	if f.Container == "mp4" || f.Container == "mov" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-f", f.Container, spec.OutputPath)

	return args
}

func filterGraph(f encode.Format, withAudio bool, units []encode.Unit) string {
	var chains []string
	var concatInputs strings.Builder

	for i, u := range units {
		d := secs(u.Duration)

		video := []string{}
		video = append(video, orientationFilters(u.Orientation)...)
		video = append(video,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", f.Width, f.Height),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:black", f.Width, f.Height),
			"setsar=1",
			fmt.Sprintf("fps=%d", f.FrameRate),
			"format=yuv420p",
			"setpts=PTS-STARTPTS",
			"tpad=stop_mode=clone:stop_duration="+d,
			"trim=duration="+d,
		)
		chains = append(chains, fmt.Sprintf("[%d:v]%s[v%d]", i, strings.Join(video, ","), i))
		fmt.Fprintf(&concatInputs, "[v%d]", i)

		if !withAudio {
			continue
		}
		if u.HasAudio {
			chains = append(chains, fmt.Sprintf(
				"[%d:a]aresample=%d,aformat=sample_fmts=fltp:channel_layouts=%s,asetpts=PTS-STARTPTS,apad,atrim=duration=%s[a%d]",
				i, audioSampleRate, audioLayout, d, i))
		} else {
			chains = append(chains, fmt.Sprintf(
				"anullsrc=channel_layout=%s:sample_rate=%d,aformat=sample_fmts=fltp,atrim=duration=%s[a%d]",
				audioLayout, audioSampleRate, d, i))
		}
		fmt.Fprintf(&concatInputs, "[a%d]", i)
	}

	a := 0
	outs := "[outv]"
	if withAudio {
		a = 1
		outs = "[outv][outa]"
	}
	chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=1:a=%d%s", concatInputs.String(), len(units), a, outs))

	return strings.Join(chains, ";")
}

// orientationFilters rotates decoded frames clockwise into display orientation.
func orientationFilters(o media.Orientation) []string {
	switch o.Normalize() {
	case 90:
		return []string{"transpose=clock"}
	case 180:
		return []string{"hflip", "vflip"}
	case 270:
		return []string{"transpose=cclock"}
	default:
		return nil
	}
}
