package domain

// JobStatus represents the current lifecycle state of a Job.
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusDownloading JobStatus = "downloading"
	StatusPaused      JobStatus = "paused"
	StatusProcessing  JobStatus = "processing"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusCancelled   JobStatus = "cancelled"
)

// String returns the string representation of JobStatus.
func (s JobStatus) String() string {
	return string(s)
}

// IsActive reports whether the status holds a live subprocess.
func (s JobStatus) IsActive() bool {
	return s == StatusDownloading || s == StatusPaused || s == StatusProcessing
}

// IsTerminal reports whether no further transition can occur.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
