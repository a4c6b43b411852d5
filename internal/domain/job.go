package domain

import (
	"time"

	"github.com/google/uuid"
)

// Options is the full option set captured at submission time. It is
// immutable for the lifetime of the job.
type Options struct {
	URL                 string           `json:"url"`
	FormatSelector      string           `json:"format_selector,omitempty"`
	VideoFormat         string           `json:"video_format,omitempty"`
	AudioFormatSelector string           `json:"audio_format_selector,omitempty"`
	OutputTemplate      string           `json:"output_template,omitempty"`
	ExtractAudio        bool             `json:"extract_audio,omitempty"`
	AudioFormat         string           `json:"audio_format,omitempty"`
	AudioQuality        int              `json:"audio_quality,omitempty"`
	Subtitles           SubtitleOptions  `json:"subtitles,omitempty"`
	EmbedThumbnail      bool             `json:"embed_thumbnail,omitempty"`
	EmbedMetadata       bool             `json:"embed_metadata,omitempty"`
	RateLimit           string           `json:"rate_limit,omitempty"`
	FragmentConcurrency int              `json:"fragment_concurrency,omitempty"`
	PostProcessing      PostProcOptions  `json:"post_processing,omitempty"`
}

// SubtitleOptions controls subtitle download and embedding.
type SubtitleOptions struct {
	Enabled   bool     `json:"enabled,omitempty"`
	Languages []string `json:"languages,omitempty"`
	Embed     bool     `json:"embed,omitempty"`
	AutoSubs  bool     `json:"auto_subs,omitempty"`
}

// PostProcOptions controls the ffmpeg post-processing step.
type PostProcOptions struct {
	MergeFormat string `json:"merge_format,omitempty"`
	RemuxVideo  string `json:"remux_video,omitempty"`
	SplitChapters bool `json:"split_chapters,omitempty"`
}

// Job is one requested download/transcode task tracked end to end by the
// orchestrator. The registry exclusively owns the canonical record; all
// other components read copies and mutate through the registry API.
type Job struct {
	ID      uuid.UUID `json:"id"`
	Options Options   `json:"options"`

	Status          JobStatus                   `json:"status"`
	Progress        map[StreamRole]RoleProgress `json:"progress_by_role,omitempty"`
	Percent         float64                     `json:"percent"`
	Rate            float64                     `json:"rate"`
	ETASeconds      int                         `json:"eta_seconds"`
	DownloadedBytes int64                       `json:"downloaded_bytes"`
	TotalBytes      int64                       `json:"total_bytes,omitempty"`
	Error           string                      `json:"error,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	EndedAt     time.Time `json:"ended_at,omitzero"`
}

// Clone returns a deep copy of the job so callers can never mutate
// registry-internal state through a snapshot.
func (j *Job) Clone() *Job {
	c := *j
	if j.Progress != nil {
		c.Progress = make(map[StreamRole]RoleProgress, len(j.Progress))
		for role, p := range j.Progress {
			c.Progress[role] = p
		}
	}
	if j.Options.Subtitles.Languages != nil {
		c.Options.Subtitles.Languages = append([]string(nil), j.Options.Subtitles.Languages...)
	}
	return &c
}
