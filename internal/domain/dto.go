package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmitRequest represents the request body for submitting a new job.
type SubmitRequest struct {
	URL                 string   `json:"url" validate:"required,safe_url"`
	FormatSelector      string   `json:"format_selector,omitempty"`
	VideoFormat         string   `json:"video_format,omitempty"`
	AudioFormatSelector string   `json:"audio_format_selector,omitempty"`
	OutputTemplate      string   `json:"output_template,omitempty"`
	ExtractAudio        bool     `json:"extract_audio,omitempty"`
	AudioFormat         string   `json:"audio_format,omitempty" validate:"omitempty,oneof=best mp3 m4a opus vorbis flac aac alac wav"`
	AudioQuality        int      `json:"audio_quality,omitempty" validate:"omitempty,min=0,max=10"`
	Subtitles           bool     `json:"subtitles,omitempty"`
	AutoSubs            bool     `json:"auto_subs,omitempty"`
	SubtitleLanguages   []string `json:"subtitle_languages,omitempty" validate:"omitempty,max=20"`
	EmbedSubtitles      bool     `json:"embed_subtitles,omitempty"`
	EmbedThumbnail      bool     `json:"embed_thumbnail,omitempty"`
	EmbedMetadata       bool     `json:"embed_metadata,omitempty"`
	RateLimit           string   `json:"rate_limit,omitempty"`
	FragmentConcurrency int      `json:"fragment_concurrency,omitempty" validate:"omitempty,min=1,max=32"`
	MergeFormat         string   `json:"merge_format,omitempty" validate:"omitempty,oneof=mp4 mkv webm"`
}

// ToOptions normalizes the request into the canonical option set.
func (r *SubmitRequest) ToOptions() Options {
	return Options{
		URL:                 r.URL,
		FormatSelector:      r.FormatSelector,
		VideoFormat:         r.VideoFormat,
		AudioFormatSelector: r.AudioFormatSelector,
		OutputTemplate:      r.OutputTemplate,
		ExtractAudio:        r.ExtractAudio,
		AudioFormat:         r.AudioFormat,
		AudioQuality:        r.AudioQuality,
		Subtitles: SubtitleOptions{
			Enabled:   r.Subtitles,
			Languages: r.SubtitleLanguages,
			Embed:     r.EmbedSubtitles,
			AutoSubs:  r.AutoSubs,
		},
		EmbedThumbnail:      r.EmbedThumbnail,
		EmbedMetadata:       r.EmbedMetadata,
		RateLimit:           r.RateLimit,
		FragmentConcurrency: r.FragmentConcurrency,
		PostProcessing:      PostProcOptions{MergeFormat: r.MergeFormat},
	}
}

// JobResponse represents the status query output for a single job.
type JobResponse struct {
	ID              uuid.UUID                   `json:"id"`
	URL             string                      `json:"url"`
	Status          JobStatus                   `json:"status"`
	ProgressByRole  map[StreamRole]RoleProgress `json:"progress_by_role,omitempty"`
	Percent         float64                     `json:"percent"`
	Rate            float64                     `json:"rate"`
	ETASeconds      int                         `json:"eta_seconds"`
	DownloadedBytes int64                       `json:"downloaded_bytes"`
	TotalBytes      int64                       `json:"total_bytes,omitempty"`
	Error           string                      `json:"error,omitempty"`
	SubmittedAt     time.Time                   `json:"submitted_at"`
	StartedAt       time.Time                   `json:"started_at,omitzero"`
	EndedAt         time.Time                   `json:"ended_at,omitzero"`
}

// NewJobResponse builds the response DTO from a job snapshot.
func NewJobResponse(job *Job) JobResponse {
	return JobResponse{
		ID:              job.ID,
		URL:             job.Options.URL,
		Status:          job.Status,
		ProgressByRole:  job.Progress,
		Percent:         job.Percent,
		Rate:            job.Rate,
		ETASeconds:      job.ETASeconds,
		DownloadedBytes: job.DownloadedBytes,
		TotalBytes:      job.TotalBytes,
		Error:           job.Error,
		SubmittedAt:     job.SubmittedAt,
		StartedAt:       job.StartedAt,
		EndedAt:         job.EndedAt,
	}
}

// LogResponse is the bounded log tail for a job.
type LogResponse struct {
	JobID uuid.UUID `json:"job_id"`
	Lines []string  `json:"lines"`
}
