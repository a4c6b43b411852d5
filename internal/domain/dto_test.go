package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitRequest_ToOptions(t *testing.T) {
	req := SubmitRequest{
		URL:               "https://example.com/v",
		VideoFormat:       "bestvideo[height<=1080]",
		Subtitles:         true,
		SubtitleLanguages: []string{"en", "de"},
		EmbedSubtitles:    true,
		RateLimit:         "500K",
		MergeFormat:       "mkv",
	}

	opts := req.ToOptions()
	assert.Equal(t, "https://example.com/v", opts.URL)
	assert.Equal(t, "bestvideo[height<=1080]", opts.VideoFormat)
	assert.True(t, opts.Subtitles.Enabled)
	assert.False(t, opts.Subtitles.AutoSubs, "auto subs follow their own flag, not the subtitles toggle")
	assert.Equal(t, []string{"en", "de"}, opts.Subtitles.Languages)
	assert.True(t, opts.Subtitles.Embed)
	assert.Equal(t, "500K", opts.RateLimit)
	assert.Equal(t, "mkv", opts.PostProcessing.MergeFormat)

	req.AutoSubs = true
	assert.True(t, req.ToOptions().Subtitles.AutoSubs)
}
