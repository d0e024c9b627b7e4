package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
		code int
	}{
		{"nil", nil, KindNone, 0},
		{"config", fmt.Errorf("feature x: %w", ErrConfiguration), KindConfiguration, 2},
		{"precondition", fmt.Errorf("wrapped: %w", ErrPrecondition), KindPrecondition, 3},
		{"backend", fmt.Errorf("mip: %w", ErrBackend), KindBackend, 4},
		{"other", errors.New("boom"), KindInternal, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KindOf(tt.err)
			if got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
			if got.ExitCode() != tt.code {
				t.Errorf("ExitCode() = %d, want %d", got.ExitCode(), tt.code)
			}
		})
	}
}
