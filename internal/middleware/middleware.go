// Package middleware wraps email delivery attempts with cross-cutting
// behavior: panic recovery, per-attempt deadlines, attempt logging, and
// delivery metrics. Each wrapper runs inline around the send call.
package middleware

import (
	"context"

	"github.com/MohamedAljoke/mail-sender/internal/job"
)

// Handler performs the actual delivery at the end of the chain.
type Handler func(ctx context.Context) error

// Middleware intercepts a delivery attempt for one job. An
// implementation invokes next to hand off to the rest of the chain, or
// returns without doing so to abort the attempt.
type Middleware func(ctx context.Context, j *job.Job, next Handler) error

// Chain folds a list of middleware into one. The first element wraps
// all the others, so Chain(logging, recovery, timeout) runs logging
// outermost and timeout closest to the handler.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, j, prev)
			}
		}
		return h(ctx)
	}
}
