package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/maauso/clipstitch/internal/job"
	"github.com/maauso/clipstitch/internal/media"
	"github.com/maauso/clipstitch/internal/timeline"
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true)
)

func statusStyle(s job.Status) lipgloss.Style {
	switch s {
	case job.StatusCompleted:
		return successStyle
	case job.StatusFailed:
		return errorStyle
	case job.StatusCancelled:
		return warningStyle
	default:
		return progressStyle
	}
}

// renderComposition summarises a composition's tracks.
func renderComposition(c *timeline.Composition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Composition:"), c.ID)
	fmt.Fprintf(&b, "%s %s", labelStyle.Render("Duration:"), c.Duration)
	for _, seg := range c.Video {
		audio := ""
		if seg.HasAudio {
			audio = " +audio"
		}
		fmt.Fprintf(&b, "\n  #%d %-5s %-24s @%s for %s%s",
			seg.Index, seg.Kind, seg.SourceID, seg.Offset, seg.Duration, audio)
	}
	return boxStyle.Render(b.String())
}

// renderTrackInfo describes a probed clip.
func renderTrackInfo(path string, info media.TrackInfo) string {
	yes := func(ok bool) string {
		if ok {
			return successStyle.Render("yes")
		}
		return warningStyle.Render("no")
	}
	content := fmt.Sprintf(
		"%s %s\n%s %s\n%s %s\n%s %dx%d\n%s %d°\n%s %s",
		labelStyle.Render("File:"), filepath.Base(path),
		labelStyle.Render("Duration:"), info.Duration,
		labelStyle.Render("Video:"), yes(info.HasVideo),
		labelStyle.Render("Size:"), info.Width, info.Height,
		labelStyle.Render("Rotation:"), int(info.Orientation.Normalize()),
		labelStyle.Render("Audio:"), yes(info.HasAudio),
	)
	return boxStyle.Render(content)
}

// renderJobs lays out export jobs as a table.
func renderJobs(jobs []*job.Job) string {
	if len(jobs) == 0 {
		return warningStyle.Render("no export jobs")
	}

	col := func(w int) lipgloss.Style { return lipgloss.NewStyle().Width(w) }
	var b strings.Builder
	b.WriteString(labelStyle.Render(
		col(38).Render("ID") + col(11).Render("STATUS") + col(6).Render("DONE") + col(20).Render("CREATED") + "OUTPUT"))
	for _, j := range jobs {
		b.WriteString("\n")
		b.WriteString(col(38).Render(j.ID))
		b.WriteString(col(11).Render(statusStyle(j.Status).Render(string(j.Status))))
		b.WriteString(col(6).Render(fmt.Sprintf("%d%%", int(j.Progress*100))))
		b.WriteString(col(20).Render(j.CreatedAt.Local().Format("2006-01-02 15:04:05")))
		out := j.OutputPath
		if j.PublishURL != "" {
			out = j.PublishURL
		}
		b.WriteString(out)
		if j.Error != "" {
			b.WriteString("\n  " + errorStyle.Render(j.Error))
		}
	}
	return b.String()
}

// newProgressBar draws export progress as a percentage.
func newProgressBar(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(w) }),
	)
}
