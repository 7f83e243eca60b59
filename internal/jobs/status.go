package jobs

// Status is the outcome of one extraction run as reported in metrics.
type Status string

const (
	StatusCompleted     Status = "completed"
	StatusInvalid       Status = "invalid"
	StatusNotConfigured Status = "not_configured"
	StatusFailed        Status = "failed"
)
