package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hyperjump/soulsync/internal/embedding"
	"github.com/hyperjump/soulsync/internal/storage"
	"github.com/hyperjump/soulsync/internal/vector"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"not eligible", ErrUserNotEligible, KindNotEligible},
		{"unknown user while matching", fmt.Errorf("%w: %w", ErrUserNotEligible, storage.ErrUserNotFound), KindNotEligible},
		{"profile not ready", fmt.Errorf("wrapped: %w", ErrProfileNotReady), KindProfileNotReady},
		{"no eligible users", ErrNoEligibleUsers, KindNoEligibleUsers},
		{"invalid input", fmt.Errorf("%w: empty answer", ErrInvalidInput), KindInvalidInput},
		{"unavailable", fmt.Errorf("%w: timeout", ErrUnavailable), KindUnavailable},
		{"embedding unavailable", embedding.ErrUnavailable, KindUnavailable},
		{"deadline", context.DeadlineExceeded, KindUnavailable},
		{"not found", storage.ErrUserNotFound, KindNotFound},
		{"dimension mismatch", vector.ErrDimensionMismatch, KindInternal},
		{"other", errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
