package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/MohamedAljoke/mail-sender/internal/fault"
)

func TestKindOf_WalksWrapChain(t *testing.T) {
	inner := fault.Infra("redis unreachable", errors.New("dial tcp: refused"))
	wrapped := fmt.Errorf("update status: %w", inner)

	if got := fault.KindOf(wrapped); got != fault.KindInfra {
		t.Errorf("KindOf(wrapped) = %v, want %v", got, fault.KindInfra)
	}
	if got := fault.KindOf(errors.New("plain")); got != fault.KindUnknown {
		t.Errorf("KindOf(plain) = %v, want %v", got, fault.KindUnknown)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", fault.Validation("to is required"), false},
		{"config", fault.Config("smtp host missing"), false},
		{"infra", fault.Infra("smtp send failed", errors.New("timeout")), true},
		{"business", fault.RetryExceeded("j1", 3), true},
		{"unknown defaults to retryable", errors.New("who knows"), true},
		{"wrapped validation", fmt.Errorf("send: %w", fault.Validation("bad address")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fault.Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("broken pipe")
	err := fault.Infra("publish failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}
