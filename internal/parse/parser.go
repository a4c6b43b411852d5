// Package parse turns yt-dlp output text into structured progress events.
// Malformed or unrecognized lines are never fatal; they degrade to
// log-only events so the raw line still reaches the job log.
package parse

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dlstudio/ytdl-orchestrator/internal/domain"
)

// Kind classifies what a parsed line means to the orchestrator.
type Kind int

const (
	// KindLog is a line carrying no structured progress; it is routed to
	// the log buffer untouched.
	KindLog Kind = iota
	// KindProgress carries percentage/rate/eta/bytes for one stream role.
	KindProgress
	// KindPhase signals that the subprocess entered post-processing
	// (merge, remux, audio extraction) with no active transfer.
	KindPhase
)

// Event is the result of parsing a single output line.
type Event struct {
	Kind            Kind
	Role            domain.StreamRole
	Percent         float64
	Rate            float64
	ETASeconds      int
	DownloadedBytes int64
	TotalBytes      int64
	Finished        bool
	Line            string
}

// templateUpdate mirrors the JSON emitted by the --progress-template
// argument (see args.ProgressTemplate).
type templateUpdate struct {
	Status          string  `json:"status"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	Speed           float64 `json:"speed"`
	ETA             int     `json:"eta"`
	Filename        string  `json:"filename"`
}

var (
	rePct = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reOf  = regexp.MustCompile(`\bof\s+~?([0-9.]+[KMGT]?i?B)`)
	reAt  = regexp.MustCompile(`\bat\s+([0-9.]+[KMGT]?i?B)/s`)
	reETA = regexp.MustCompile(`\bETA\s+([0-9]+(?::[0-9]{2})+)`)
)

var postProcessPrefixes = []string{
	"[Merger]",
	"[ExtractAudio]",
	"[VideoConvertor]",
	"[VideoRemuxer]",
	"[EmbedThumbnail]",
	"[EmbedSubtitle]",
	"[Metadata]",
	"[SplitChapters]",
	"[Fixup",
	"[ffmpeg]",
}

var audioExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".wav": true, ".aac": true,
	".opus": true, ".ogg": true, ".flac": true, ".alac": true,
}

// Parser accumulates chunks of subprocess output and yields one event per
// complete line. Partial lines are buffered until a terminator arrives;
// yt-dlp uses both \n and \r, so either ends a line.
type Parser struct {
	buf []byte
}

// Feed consumes a chunk and returns the events for every completed line.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		idx := -1
		for i, b := range p.buf {
			if b == '\n' || b == '\r' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return events
		}
		line := strings.TrimSpace(string(p.buf[:idx]))
		p.buf = p.buf[idx+1:]
		if line == "" {
			continue
		}
		events = append(events, ParseLine(line))
	}
}

// Flush drains any trailing text left without a terminator, e.g. the last
// line before process exit.
func (p *Parser) Flush() []Event {
	line := strings.TrimSpace(string(p.buf))
	p.buf = nil
	if line == "" {
		return nil
	}
	return []Event{ParseLine(line)}
}

// ParseLine classifies one complete output line.
func ParseLine(line string) Event {
	if strings.HasPrefix(line, "{") {
		if ev, ok := parseTemplateLine(line); ok {
			return ev
		}
		return Event{Kind: KindLog, Line: line}
	}

	for _, prefix := range postProcessPrefixes {
		if strings.HasPrefix(line, prefix) {
			return Event{Kind: KindPhase, Line: line}
		}
	}

	if strings.HasPrefix(line, "[download]") {
		if ev, ok := parseClassicLine(line); ok {
			return ev
		}
	}

	return Event{Kind: KindLog, Line: line}
}

func parseTemplateLine(line string) (Event, bool) {
	var u templateUpdate
	if err := json.Unmarshal([]byte(line), &u); err != nil {
		return Event{}, false
	}

	switch u.Status {
	case "downloading", "finished":
	default:
		return Event{}, false
	}

	ev := Event{
		Kind:            KindProgress,
		Role:            roleForFilename(u.Filename),
		Rate:            u.Speed,
		ETASeconds:      u.ETA,
		DownloadedBytes: u.DownloadedBytes,
		TotalBytes:      u.TotalBytes,
		Line:            line,
	}
	if u.Status == "finished" {
		ev.Finished = true
		ev.Percent = 100
		ev.Rate = 0
		ev.ETASeconds = 0
		return ev, true
	}
	if u.TotalBytes > 0 {
		ev.Percent = min(float64(u.DownloadedBytes)/float64(u.TotalBytes)*100, 100)
	}
	return ev, true
}

// parseClassicLine handles the human-readable "[download]  45.2% of
// 10.5MiB at 1.2MiB/s ETA 00:30" form emitted when the progress template
// is absent or for fragment summaries.
func parseClassicLine(line string) (Event, bool) {
	m := rePct.FindStringSubmatch(line)
	if m == nil {
		return Event{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Event{}, false
	}

	ev := Event{
		Kind:    KindProgress,
		Role:    domain.RoleVideo,
		Percent: pct,
		Line:    line,
	}
	if m := reAt.FindStringSubmatch(line); m != nil {
		ev.Rate = parseByteSize(m[1])
	}
	if m := reOf.FindStringSubmatch(line); m != nil {
		ev.TotalBytes = int64(parseByteSize(m[1]))
		if ev.TotalBytes > 0 {
			ev.DownloadedBytes = int64(pct / 100 * float64(ev.TotalBytes))
		}
	}
	if m := reETA.FindStringSubmatch(line); m != nil {
		ev.ETASeconds = parseClock(m[1])
	}
	return ev, true
}

// roleForFilename decides which stream a progress line belongs to. When a
// combined format selection fetches video and audio separately, yt-dlp
// reports each part's target filename; audio parts carry an audio
// container extension.
func roleForFilename(name string) domain.StreamRole {
	lower := strings.ToLower(name)
	if audioExtensions[filepath.Ext(lower)] {
		return domain.RoleAudio
	}
	if strings.Contains(lower, "audio") {
		return domain.RoleAudio
	}
	return domain.RoleVideo
}

func parseByteSize(s string) float64 {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	val, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(strings.TrimSuffix(s[i:], "B")) {
	case "":
		return val
	case "K":
		return val * 1000
	case "KI":
		return val * 1024
	case "M":
		return val * 1000 * 1000
	case "MI":
		return val * 1024 * 1024
	case "G":
		return val * 1000 * 1000 * 1000
	case "GI":
		return val * 1024 * 1024 * 1024
	case "T":
		return val * 1e12
	case "TI":
		return val * 1024 * 1024 * 1024 * 1024
	default:
		return 0
	}
}

func parseClock(s string) int {
	parts := strings.Split(s, ":")
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
