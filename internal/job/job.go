// Package job defines the email job record, the unit of work tracked
// from submission through completion or terminal failure, and its
// status state machine.
package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/MohamedAljoke/mail-sender/internal/fault"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusQueued means the job was accepted and is waiting on the queue.
	StatusQueued Status = "queued"
	// StatusProcessing means a worker is currently sending the email.
	StatusProcessing Status = "processing"
	// StatusCompleted means the email was sent successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed and will not be retried.
	StatusFailed Status = "failed"
	// StatusRetrying means the job failed but is scheduled for redelivery.
	StatusRetrying Status = "retrying"
)

// IsTerminal reports whether the status is final (completed or failed).
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether the status is one of the known states.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusRetrying:
		return true
	}
	return false
}

// HistoryEntry records a single status transition.
type HistoryEntry struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Job is an email-send request and its status history. The status store
// owns the authoritative copy; serialized snapshots carried by the queue
// are stale the moment a worker begins processing.
type Job struct {
	ID         string            `json:"job_id"`
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Status     Status            `json:"status"`
	RetryCount int               `json:"retry_count"`
	MaxRetries int               `json:"max_retries"`
	LastError  string            `json:"last_error,omitempty"`
	History    []HistoryEntry    `json:"history"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// New creates a queued job with a generated ID and one history entry.
func New(to, subject, body string, maxRetries int) *Job {
	now := time.Now().UTC()
	j := &Job{
		ID:         uuid.NewString(),
		To:         to,
		Subject:    subject,
		Body:       body,
		CreatedAt:  now,
		UpdatedAt:  now,
		Status:     StatusQueued,
		MaxRetries: maxRetries,
		History:    []HistoryEntry{},
	}
	j.addHistory(StatusQueued, "Job accepted", "")
	return j
}

// addHistory appends a transition entry and bumps UpdatedAt.
// History is append-only; entries are never modified or removed.
func (j *Job) addHistory(status Status, message, errMsg string) {
	entry := HistoryEntry{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Message:   message,
		Error:     errMsg,
	}
	j.History = append(j.History, entry)
	j.UpdatedAt = entry.Timestamp
}

// UpdateStatus transitions the job to status and records the transition.
func (j *Job) UpdateStatus(status Status, message, errMsg string) {
	j.Status = status
	j.LastError = errMsg
	j.addHistory(status, message, errMsg)
}

// IncrementRetry bumps the retry counter and transitions to retrying.
func (j *Job) IncrementRetry(errMsg string) {
	j.RetryCount++
	j.UpdateStatus(StatusRetrying, "Job requeued for retry", errMsg)
}

// ShouldRetry reports whether the job has retry budget left.
func (j *Job) ShouldRetry() bool {
	return j.RetryCount < j.MaxRetries && !j.Status.IsTerminal()
}

// CanProcess reports whether a worker may begin processing this job.
// Terminal jobs return false, which is the guard against duplicate
// delivery under at-least-once queue semantics.
func (j *Job) CanProcess() bool {
	return j.Status == StatusQueued || j.Status == StatusRetrying
}

// Validate checks the job is well formed.
func (j *Job) Validate() error {
	switch {
	case j.ID == "":
		return fault.Validation("job_id is required")
	case j.To == "":
		return fault.Validation("to is required")
	case j.Subject == "":
		return fault.Validation("subject is required")
	case j.Body == "":
		return fault.Validation("body is required")
	case j.MaxRetries < 0:
		return fault.Validation("max_retries must be >= 0")
	case !j.Status.IsValid():
		return fault.Validation("invalid status")
	}
	return nil
}
