package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/geocoder89/signalhub/internal/apperr"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"wrapped not found", fmt.Errorf("signal: %w", apperr.ErrNotFound), "not_found"},
		{"validation", fmt.Errorf("%w: coin_name is required", apperr.ErrValidation), "validation_failed"},
		{"unauthenticated", apperr.ErrUnauthenticated, "unauthenticated"},
		{"forbidden", apperr.ErrForbidden, "forbidden"},
		{"conflict", apperr.ErrConflict, "conflict"},
		{"unknown", errors.New("connection reset"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apperr.Kind(tt.err); got != tt.want {
				t.Fatalf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}
