package args

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
	errpkg "github.com/dlstudio/ytdl-orchestrator/internal/errors"
)

func TestBuild_Defaults(t *testing.T) {
	tokens, err := Build(domain.Options{URL: "https://example.com/watch?v=abc"})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/watch?v=abc", tokens[len(tokens)-1])
	assert.Contains(t, tokens, "--newline")
	assert.Contains(t, tokens, "--progress-template")

	f := indexOfFlagValue(tokens, "-f")
	assert.Equal(t, "bestvideo*+bestaudio/best", f)

	o := indexOfFlagValue(tokens, "-o")
	assert.Equal(t, "%(title)s.%(ext)s", o)
}

func TestBuild_PerRoleSelectors(t *testing.T) {
	tokens, err := Build(domain.Options{
		URL:                 "https://example.com/v",
		VideoFormat:         "bv*[height<=1080]",
		AudioFormatSelector: "ba[abr<=128]",
	})
	require.NoError(t, err)
	assert.Equal(t, "bv*[height<=1080]+ba[abr<=128]/best", indexOfFlagValue(tokens, "-f"))
}

func TestBuild_AudioExtraction(t *testing.T) {
	tokens, err := Build(domain.Options{
		URL:          "https://example.com/v",
		ExtractAudio: true,
		AudioFormat:  "mp3",
		AudioQuality: 2,
	})
	require.NoError(t, err)

	assert.Contains(t, tokens, "-x")
	assert.Equal(t, "mp3", indexOfFlagValue(tokens, "--audio-format"))
	assert.Equal(t, "2", indexOfFlagValue(tokens, "--audio-quality"))
	assert.Equal(t, "bestaudio/best", indexOfFlagValue(tokens, "-f"))
}

func TestBuild_DiscreteTokens(t *testing.T) {
	// Attacker-controlled template values must stay single tokens, never
	// shell-interpreted.
	template := "video; rm -rf ~"
	tokens, err := Build(domain.Options{
		URL:            "https://example.com/v",
		OutputTemplate: template,
	})
	require.NoError(t, err)
	assert.Contains(t, tokens, template+".%(ext)s")
}

func TestBuild_SubtitlesAndLimits(t *testing.T) {
	tokens, err := Build(domain.Options{
		URL: "https://example.com/v",
		Subtitles: domain.SubtitleOptions{
			Enabled:   true,
			Languages: []string{"en", "de"},
			Embed:     true,
			AutoSubs:  true,
		},
		RateLimit:           "500K",
		FragmentConcurrency: 8,
	})
	require.NoError(t, err)

	assert.Contains(t, tokens, "--write-subs")
	assert.Contains(t, tokens, "--write-auto-subs")
	assert.Contains(t, tokens, "--embed-subs")
	assert.Equal(t, "en,de", indexOfFlagValue(tokens, "--sub-langs"))
	assert.Equal(t, "500K", indexOfFlagValue(tokens, "--limit-rate"))
	assert.Equal(t, "8", indexOfFlagValue(tokens, "-N"))
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		opts  domain.Options
		field string
	}{
		{
			name:  "non-http url",
			opts:  domain.Options{URL: "file:///etc/passwd"},
			field: "url",
		},
		{
			name: "combined and per-role selectors",
			opts: domain.Options{
				URL:            "https://example.com/v",
				FormatSelector: "best",
				VideoFormat:    "bv*",
			},
			field: "format_selector",
		},
		{
			name: "video format with audio extraction",
			opts: domain.Options{
				URL:          "https://example.com/v",
				ExtractAudio: true,
				VideoFormat:  "bv*",
			},
			field: "video_format",
		},
		{
			name: "merge format with audio extraction",
			opts: domain.Options{
				URL:            "https://example.com/v",
				ExtractAudio:   true,
				PostProcessing: domain.PostProcOptions{MergeFormat: "mkv"},
			},
			field: "merge_format",
		},
		{
			name:  "bad rate limit",
			opts:  domain.Options{URL: "https://example.com/v", RateLimit: "fast"},
			field: "rate_limit",
		},
		{
			name:  "fragment concurrency out of range",
			opts:  domain.Options{URL: "https://example.com/v", FragmentConcurrency: 100},
			field: "fragment_concurrency",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.opts)
			require.Error(t, err)

			var verr *errpkg.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)

			_, err = Build(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	opts := domain.Options{
		URL:          "https://example.com/v",
		ExtractAudio: true,
		AudioFormat:  "m4a",
		RateLimit:    "1M",
	}
	a, err := Build(opts)
	require.NoError(t, err)
	b, err := Build(opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func indexOfFlagValue(tokens []string, flag string) string {
	for i, tok := range tokens {
		if tok == flag && i+1 < len(tokens) {
			return tokens[i+1]
		}
	}
	return ""
}
