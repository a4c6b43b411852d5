package domain

// StreamRole identifies an independent media component fetched separately
// and later merged. Format selections like "bestvideo+bestaudio" download
// two streams in one process invocation.
type StreamRole string

const (
	RoleVideo StreamRole = "video"
	RoleAudio StreamRole = "audio"
)

// RoleProgress is the progress of a single stream role.
type RoleProgress struct {
	Percent         float64 `json:"percent"`
	Rate            float64 `json:"rate"`
	ETASeconds      int     `json:"eta_seconds"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes,omitempty"`
}

// EventKind classifies a job mutation notification.
type EventKind string

const (
	EventProgress EventKind = "progress"
	EventStatus   EventKind = "status"
)

// Event is one notification per job-state mutation, delivered to
// subscribers at least once and ordered per job.
type Event struct {
	Kind  EventKind `json:"kind"`
	JobID string    `json:"job_id"`
	Job   *Job      `json:"job"`
}
