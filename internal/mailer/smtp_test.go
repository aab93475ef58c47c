package mailer

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/MohamedAljoke/mail-sender/internal/fault"
	"github.com/MohamedAljoke/mail-sender/internal/job"
)

func newTestSender(cfg Config, opts ...SMTPOption) *SMTPSender {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSMTPSender(cfg, logger, opts...)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Host: "mail.local", Port: 1025, From: "noreply@example.com"}, false},
		{"missing host", Config{Port: 1025, From: "noreply@example.com"}, true},
		{"zero port", Config{Host: "mail.local", From: "noreply@example.com"}, true},
		{"port out of range", Config{Host: "mail.local", Port: 70000, From: "noreply@example.com"}, true},
		{"missing from", Config{Host: "mail.local", Port: 1025}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestSender(tt.cfg).ValidateConfig()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if fault.KindOf(err) != fault.KindConfig {
					t.Errorf("kind = %v, want KindConfig", fault.KindOf(err))
				}
				if fault.Retryable(err) {
					t.Error("config faults must not be retryable")
				}
			}
		})
	}
}

func TestFormatMessage(t *testing.T) {
	j := job.New("user@example.com", "Welcome", "Hello there", 3)
	msg := formatMessage("noreply@example.com", j)

	headers, body, ok := strings.Cut(msg, "\r\n\r\n")
	if !ok {
		t.Fatal("message missing blank line between headers and body")
	}
	for _, want := range []string{
		"From: noreply@example.com",
		"To: user@example.com",
		"Subject: Welcome",
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
	} {
		if !strings.Contains(headers, want) {
			t.Errorf("headers missing %q", want)
		}
	}
	if !strings.HasPrefix(body, "Hello there") {
		t.Errorf("body = %q, want prefix %q", body, "Hello there")
	}
}

func TestSimulatedFailure(t *testing.T) {
	tests := []struct {
		name       string
		to         string
		retryCount int
		wantErr    bool
	}{
		{"normal recipient", "user@example.com", 0, false},
		{"transient address first attempt", "error-1@email.com", 0, true},
		{"transient address after retry", "error-1@email.com", 1, false},
		{"persistent address first attempt", "error@email.com", 0, true},
		{"persistent address after retries", "error@email.com", 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := job.New(tt.to, "s", "b", 3)
			j.RetryCount = tt.retryCount
			err := simulatedFailure(j)
			if (err != nil) != tt.wantErr {
				t.Fatalf("simulatedFailure() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !fault.Retryable(err) {
				t.Error("simulated failures must be retryable")
			}
		})
	}
}

func TestSendRejectsInvalidJob(t *testing.T) {
	s := newTestSender(Config{Host: "mail.local", Port: 1025, From: "noreply@example.com"})
	j := job.New("", "s", "b", 3)
	err := s.Send(t.Context(), j)
	if err == nil {
		t.Fatal("expected validation error for empty recipient")
	}
	if fault.Retryable(err) {
		t.Error("validation failures must not be retryable")
	}
}

func TestSendFailsFastOnBadConfig(t *testing.T) {
	s := newTestSender(Config{})
	j := job.New("user@example.com", "s", "b", 3)
	if err := s.Send(t.Context(), j); fault.KindOf(err) != fault.KindConfig {
		t.Fatalf("kind = %v, want KindConfig", fault.KindOf(err))
	}
}
