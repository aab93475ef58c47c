package job_test

import (
	"testing"

	"github.com/MohamedAljoke/mail-sender/internal/fault"
	"github.com/MohamedAljoke/mail-sender/internal/job"
)

func newTestJob() *job.Job {
	return job.New("user@example.com", "hello", "body text", 3)
}

func TestNew_StartsQueuedWithOneHistoryEntry(t *testing.T) {
	j := newTestJob()

	if j.ID == "" {
		t.Error("expected a generated ID")
	}
	if j.Status != job.StatusQueued {
		t.Errorf("Status = %q, want %q", j.Status, job.StatusQueued)
	}
	if len(j.History) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(j.History))
	}
	if j.History[0].Status != job.StatusQueued {
		t.Errorf("History[0].Status = %q, want %q", j.History[0].Status, job.StatusQueued)
	}
	if j.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", j.RetryCount)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status job.Status
		want   bool
	}{
		{job.StatusQueued, false},
		{job.StatusProcessing, false},
		{job.StatusRetrying, false},
		{job.StatusCompleted, true},
		{job.StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%q.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestCanProcess_FalseOnTerminalStates(t *testing.T) {
	tests := []struct {
		status job.Status
		want   bool
	}{
		{job.StatusQueued, true},
		{job.StatusRetrying, true},
		{job.StatusProcessing, false},
		{job.StatusCompleted, false},
		{job.StatusFailed, false},
	}
	for _, tt := range tests {
		j := newTestJob()
		j.Status = tt.status
		if got := j.CanProcess(); got != tt.want {
			t.Errorf("CanProcess() with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestUpdateStatus_AppendsHistory(t *testing.T) {
	j := newTestJob()

	j.UpdateStatus(job.StatusProcessing, "", "")
	j.UpdateStatus(job.StatusCompleted, "", "")

	if len(j.History) != 3 {
		t.Fatalf("len(History) = %d, want 3", len(j.History))
	}
	wantPath := []job.Status{job.StatusQueued, job.StatusProcessing, job.StatusCompleted}
	for i, want := range wantPath {
		if j.History[i].Status != want {
			t.Errorf("History[%d].Status = %q, want %q", i, j.History[i].Status, want)
		}
	}
	if j.Status != job.StatusCompleted {
		t.Errorf("Status = %q, want %q", j.Status, job.StatusCompleted)
	}
}

func TestIncrementRetry_BumpsCountAndRecordsError(t *testing.T) {
	j := newTestJob()

	j.IncrementRetry("smtp timeout")

	if j.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", j.RetryCount)
	}
	if j.Status != job.StatusRetrying {
		t.Errorf("Status = %q, want %q", j.Status, job.StatusRetrying)
	}
	if j.LastError != "smtp timeout" {
		t.Errorf("LastError = %q, want %q", j.LastError, "smtp timeout")
	}
	last := j.History[len(j.History)-1]
	if last.Error != "smtp timeout" {
		t.Errorf("last history Error = %q, want %q", last.Error, "smtp timeout")
	}
}

func TestShouldRetry_RespectsBudgetAndTerminality(t *testing.T) {
	j := newTestJob()
	for i := 0; i < j.MaxRetries; i++ {
		if !j.ShouldRetry() {
			t.Fatalf("ShouldRetry() = false at retry %d of %d", i, j.MaxRetries)
		}
		j.IncrementRetry("transient")
	}
	if j.ShouldRetry() {
		t.Error("ShouldRetry() = true after budget exhausted")
	}

	done := newTestJob()
	done.UpdateStatus(job.StatusCompleted, "", "")
	if done.ShouldRetry() {
		t.Error("ShouldRetry() = true on a terminal job")
	}
}

func TestRetryCountNeverExceedsMaxWhileNonTerminal(t *testing.T) {
	j := newTestJob()

	for j.ShouldRetry() {
		j.IncrementRetry("transient")
		if j.RetryCount > j.MaxRetries {
			t.Fatalf("RetryCount %d exceeded MaxRetries %d", j.RetryCount, j.MaxRetries)
		}
	}
	if j.RetryCount != j.MaxRetries {
		t.Errorf("RetryCount = %d, want %d", j.RetryCount, j.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*job.Job)
		wantOK bool
	}{
		{"valid", func(*job.Job) {}, true},
		{"missing id", func(j *job.Job) { j.ID = "" }, false},
		{"missing to", func(j *job.Job) { j.To = "" }, false},
		{"missing subject", func(j *job.Job) { j.Subject = "" }, false},
		{"missing body", func(j *job.Job) { j.Body = "" }, false},
		{"negative max retries", func(j *job.Job) { j.MaxRetries = -1 }, false},
		{"bogus status", func(j *job.Job) { j.Status = "limbo" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJob()
			tt.mutate(j)
			err := j.Validate()
			if tt.wantOK && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.wantOK {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if fault.KindOf(err) != fault.KindValidation {
					t.Errorf("KindOf = %v, want validation", fault.KindOf(err))
				}
			}
		})
	}
}

func TestNewStatusUpdate_ProjectsJobState(t *testing.T) {
	j := newTestJob()
	j.UpdateStatus(job.StatusProcessing, "", "")
	j.IncrementRetry("smtp refused")

	u := job.NewStatusUpdate(j)

	if u.JobID != j.ID {
		t.Errorf("JobID = %q, want %q", u.JobID, j.ID)
	}
	if u.Status != job.StatusRetrying {
		t.Errorf("Status = %q, want %q", u.Status, job.StatusRetrying)
	}
	if u.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", u.RetryCount)
	}
	if u.LastError != "smtp refused" {
		t.Errorf("LastError = %q, want %q", u.LastError, "smtp refused")
	}
	if len(u.History) != len(j.History) {
		t.Errorf("len(History) = %d, want %d", len(u.History), len(j.History))
	}
}
