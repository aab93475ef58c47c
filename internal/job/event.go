package job

import "time"

// StatusUpdate is the ephemeral projection of a Job broadcast on the
// status pub/sub channel after every transition. It is regenerated from
// the job on each update and never persisted independently.
type StatusUpdate struct {
	JobID      string         `json:"job_id"`
	Status     Status         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	To         string         `json:"to"`
	Subject    string         `json:"subject"`
	UpdatedAt  time.Time      `json:"updated_at"`
	LastError  string         `json:"last_error,omitempty"`
	RetryCount int            `json:"retry_count,omitempty"`
	History    []HistoryEntry `json:"history"`
}

// NewStatusUpdate projects the job's current state into an update event.
func NewStatusUpdate(j *Job) *StatusUpdate {
	return &StatusUpdate{
		JobID:      j.ID,
		Status:     j.Status,
		Timestamp:  time.Now().UTC(),
		To:         j.To,
		Subject:    j.Subject,
		UpdatedAt:  j.UpdatedAt,
		LastError:  j.LastError,
		RetryCount: j.RetryCount,
		History:    j.History,
	}
}
