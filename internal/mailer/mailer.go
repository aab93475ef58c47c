// Package mailer delivers email jobs over SMTP. The Sender interface
// decouples processing from transport so tests can substitute a fake,
// and SMTPSender is the production implementation.
package mailer

import (
	"context"

	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// Sender delivers a single email job. Implementations must be safe for
// concurrent use.
type Sender interface {
	// Send delivers the job. The context bounds the whole delivery
	// including connection setup.
	Send(ctx context.Context, j *job.Job) error

	// Ping verifies the transport is reachable.
	Ping(ctx context.Context) error

	// ValidateConfig reports whether the sender is usable at all.
	// A failure here is a configuration fault, never retried.
	ValidateConfig() error

	// From returns the envelope sender address.
	From() string
}

// Config holds SMTP transport settings.
type Config struct {
	Host string
	Port int
	From string
}
