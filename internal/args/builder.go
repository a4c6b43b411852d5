// Package args maps a validated option set to the argument vector for the
// yt-dlp subprocess. Every option becomes discrete tokens; values are never
// concatenated into a shell string.
package args

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
	errpkg "github.com/dlstudio/ytdl-orchestrator/internal/errors"
)

// ProgressTemplate makes yt-dlp emit one JSON object per progress tick on
// its own line, so the parser never has to scrape free-form text.
const ProgressTemplate = `{"status": "%(progress.status)s", ` +
	`"downloaded_bytes": %(progress.downloaded_bytes)d, ` +
	`"total_bytes": %(progress.total_bytes)d, ` +
	`"speed": %(progress.speed)d, ` +
	`"eta": %(progress.eta)d, ` +
	`"filename": "%(info.filename)s"}`

const defaultOutputTemplate = "%(title)s.%(ext)s"

var rateLimitRe = regexp.MustCompile(`^[0-9]+(?:\.[0-9]+)?[KkMmGg]?$`)

// Validate rejects bad or incompatible option combinations before any
// process launch. It returns a *errors.ValidationError describing the
// first problem found.
func Validate(opts domain.Options) error {
	u, err := url.Parse(opts.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errpkg.NewValidation("url", "must be an absolute http(s) URL")
	}

	if opts.FormatSelector != "" && (opts.VideoFormat != "" || opts.AudioFormatSelector != "") {
		return errpkg.NewValidation("format_selector", "cannot be combined with per-role format selectors")
	}
	if opts.ExtractAudio {
		if opts.VideoFormat != "" {
			return errpkg.NewValidation("video_format", "cannot request a video format together with audio extraction")
		}
		if opts.PostProcessing.MergeFormat != "" {
			return errpkg.NewValidation("merge_format", "merge format does not apply to audio extraction")
		}
	}
	if opts.AudioQuality < 0 || opts.AudioQuality > 10 {
		return errpkg.NewValidation("audio_quality", "must be between 0 (best) and 10 (worst)")
	}
	if opts.FragmentConcurrency < 0 || opts.FragmentConcurrency > 32 {
		return errpkg.NewValidation("fragment_concurrency", "must be between 1 and 32")
	}
	if opts.RateLimit != "" && !rateLimitRe.MatchString(opts.RateLimit) {
		return errpkg.NewValidation("rate_limit", `must look like "500K" or "4.2M"`)
	}
	if strings.ContainsAny(opts.OutputTemplate, "\x00\n") {
		return errpkg.NewValidation("output_template", "contains control characters")
	}
	return nil
}

// Build returns the deterministic, ordered argument vector for the given
// option set. Callers must Validate first; Build repeats the check so a
// bad combination can never reach the process table.
func Build(opts domain.Options) ([]string, error) {
	if err := Validate(opts); err != nil {
		return nil, err
	}

	outputTemplate := opts.OutputTemplate
	if outputTemplate == "" {
		outputTemplate = defaultOutputTemplate
	}
	if !strings.Contains(outputTemplate, ".%(ext)s") {
		outputTemplate += ".%(ext)s"
	}

	args := []string{
		"--newline",
		"--no-colors",
		"--no-warnings",
		"--progress-template", ProgressTemplate,
		"--retries", "3",
		"--fragment-retries", "3",
		"-o", outputTemplate,
		"-f", formatSelector(opts),
	}

	if opts.ExtractAudio {
		args = append(args, "-x")
		if opts.AudioFormat != "" && opts.AudioFormat != "best" {
			args = append(args, "--audio-format", opts.AudioFormat)
		}
		if opts.AudioQuality > 0 {
			args = append(args, "--audio-quality", strconv.Itoa(opts.AudioQuality))
		}
	}

	if opts.Subtitles.Enabled {
		args = append(args, "--write-subs")
		if opts.Subtitles.AutoSubs {
			args = append(args, "--write-auto-subs")
		}
		if len(opts.Subtitles.Languages) > 0 {
			args = append(args, "--sub-langs", strings.Join(opts.Subtitles.Languages, ","))
		}
		if opts.Subtitles.Embed {
			args = append(args, "--embed-subs")
		}
	}

	if opts.EmbedThumbnail {
		args = append(args, "--embed-thumbnail")
	}
	if opts.EmbedMetadata {
		args = append(args, "--embed-metadata")
	}
	if opts.PostProcessing.MergeFormat != "" {
		args = append(args, "--merge-output-format", opts.PostProcessing.MergeFormat)
	}
	if opts.PostProcessing.RemuxVideo != "" {
		args = append(args, "--remux-video", opts.PostProcessing.RemuxVideo)
	}
	if opts.PostProcessing.SplitChapters {
		args = append(args, "--split-chapters")
	}

	if opts.RateLimit != "" {
		args = append(args, "--limit-rate", opts.RateLimit)
	}
	if opts.FragmentConcurrency > 0 {
		args = append(args, "-N", strconv.Itoa(opts.FragmentConcurrency))
	}

	args = append(args, opts.URL)
	return args, nil
}

// formatSelector composes "<video>+<audio>/<fallback>" when both roles are
// requested, a single selector otherwise, always with a trailing fallback.
func formatSelector(opts domain.Options) string {
	if opts.FormatSelector != "" {
		return opts.FormatSelector
	}
	if opts.ExtractAudio {
		sel := opts.AudioFormatSelector
		if sel == "" {
			sel = "bestaudio"
		}
		return sel + "/best"
	}
	video := opts.VideoFormat
	audio := opts.AudioFormatSelector
	if video == "" && audio == "" {
		return "bestvideo*+bestaudio/best"
	}
	if video == "" {
		video = "bestvideo*"
	}
	if audio == "" {
		audio = "bestaudio"
	}
	return fmt.Sprintf("%s+%s/best", video, audio)
}
