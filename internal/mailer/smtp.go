package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/MohamedAljoke/mail-sender/internal/fault"
	"github.com/MohamedAljoke/mail-sender/internal/job"
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultPingTimeout = 5 * time.Second
)

// SMTPSender delivers jobs over plain SMTP. It opens a fresh connection
// per send, which keeps it trivially safe for concurrent use.
type SMTPSender struct {
	cfg         Config
	logger      *slog.Logger
	dialTimeout time.Duration
	simulate    bool
}

// SMTPOption configures an SMTPSender.
type SMTPOption func(*SMTPSender)

// WithDialTimeout overrides the TCP connect timeout.
func WithDialTimeout(d time.Duration) SMTPOption {
	return func(s *SMTPSender) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// WithErrorSimulation enables deterministic failures for the reserved
// test recipients. Intended for local and staging environments.
func WithErrorSimulation(enabled bool) SMTPOption {
	return func(s *SMTPSender) {
		s.simulate = enabled
	}
}

// NewSMTPSender creates a sender for the given transport config.
func NewSMTPSender(cfg Config, logger *slog.Logger, opts ...SMTPOption) *SMTPSender {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SMTPSender{
		cfg:         cfg,
		logger:      logger.With("component", "mailer"),
		dialTimeout: defaultDialTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Sender = (*SMTPSender)(nil)

// From returns the envelope sender address.
func (s *SMTPSender) From() string { return s.cfg.From }

// Send delivers the job over SMTP. A validation or config failure is
// returned as a non-retryable fault; transport failures are
// infrastructure faults and eligible for retry.
func (s *SMTPSender) Send(ctx context.Context, j *job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	if err := s.ValidateConfig(); err != nil {
		return err
	}
	if s.simulate {
		if err := simulatedFailure(j); err != nil {
			return err
		}
	}

	msg := formatMessage(s.cfg.From, j)
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))

	start := time.Now()
	if err := s.send(ctx, addr, []string{j.To}, []byte(msg)); err != nil {
		return fault.Infra("smtp delivery failed", err)
	}

	s.logger.Debug("email delivered",
		"job_id", j.ID,
		"to", j.To,
		"duration", time.Since(start))
	return nil
}

func (s *SMTPSender) send(ctx context.Context, addr string, to []string, msg []byte) error {
	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Quit()

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data stream: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	return w.Close()
}

// Ping checks that the SMTP server accepts connections and responds
// to the protocol greeting.
func (s *SMTPSender) Ping(ctx context.Context) error {
	if err := s.ValidateConfig(); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	dialer := net.Dialer{Timeout: defaultPingTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fault.Infra("smtp server unreachable", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fault.Infra("smtp server not responding", err)
	}
	defer client.Quit()
	return nil
}

// ValidateConfig reports configuration faults. These never retry.
func (s *SMTPSender) ValidateConfig() error {
	if s.cfg.Host == "" {
		return fault.Config("smtp host is required")
	}
	if s.cfg.Port <= 0 || s.cfg.Port > 65535 {
		return fault.Config(fmt.Sprintf("smtp port %d out of range", s.cfg.Port))
	}
	if s.cfg.From == "" {
		return fault.Config("smtp from address is required")
	}
	return nil
}

// formatMessage renders a minimal RFC 5322 plain-text message.
func formatMessage(from string, j *job.Job) string {
	return fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Date: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n",
		from, j.To, j.Subject, time.Now().Format(time.RFC1123Z), j.Body)
}

// simulatedFailure fails delivery for reserved recipient addresses so
// retry behavior can be exercised end to end without a broken SMTP
// server. error-1@email.com fails only the first attempt;
// error@email.com fails every attempt.
func simulatedFailure(j *job.Job) error {
	if strings.Contains(j.To, "error-1@email.com") && j.RetryCount == 0 {
		return fault.Infra("simulated first-attempt failure for "+j.To,
			fmt.Errorf("transient failure simulation"))
	}
	if strings.Contains(j.To, "error@email.com") {
		return fault.Infra("simulated persistent failure for "+j.To,
			fmt.Errorf("persistent failure simulation"))
	}
	return nil
}
