package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestDeriveMatchesSentinel(t *testing.T) {
	err := Derive(ErrZeroPivot, "pivot %g at row %d", 0.0, 3)
	if !errors.Is(err, ErrZeroPivot) {
		t.Errorf("derived error should match its sentinel")
	}
	if errors.Is(err, ErrPenaltyNotConverged) {
		t.Errorf("derived error must not match an unrelated sentinel")
	}
	if ErrZeroPivot.Detail == err.Detail {
		t.Errorf("sentinel detail must stay unchanged")
	}
	if !strings.Contains(err.Error(), "row 3") {
		t.Errorf("detail missing from message: %s", err.Error())
	}
	if len(err.Stack) == 0 {
		t.Errorf("expected captured stack")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, ErrInternal, "x") != nil {
		t.Errorf("Wrap(nil) should return nil")
	}

	base := Derive(ErrInvalidStepCount, "steps=0")
	wrapped := Wrap(fmt.Errorf("solve: %w", base), ErrInternal, "grid rejected")
	if wrapped.Code != ErrInvalidStepCount.Code || wrapped.Type != ErrInvalidArg {
		t.Errorf("wrap should keep the classification of a structured cause, got %d/%s", wrapped.Code, wrapped.Type)
	}
	if !errors.Is(wrapped, ErrInvalidStepCount) {
		t.Errorf("wrapped error should still match the sentinel")
	}

	plain := WrapInternal(errors.New("boom"), "unexpected")
	if plain.Type != ErrInternal || !strings.Contains(plain.Error(), "boom") {
		t.Errorf("unexpected internal wrap: %v", plain)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  *Error
		want int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrCacheMiss, http.StatusNotFound},
		{ErrGridTooLarge, http.StatusTooManyRequests},
		{New(ErrUnavailable, 503001, "down", "", nil), http.StatusServiceUnavailable},
		{ErrPenaltyNotConverged, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.err.Message, tt.want, got)
		}
	}
}

func TestFromError(t *testing.T) {
	if _, ok := FromError(errors.New("plain")); ok {
		t.Errorf("plain error should not convert")
	}
	e, ok := FromError(fmt.Errorf("ctx: %w", ErrDimMismatch))
	if !ok || e.Code != ErrDimMismatch.Code {
		t.Errorf("expected to extract ErrDimMismatch, got %v", e)
	}
	if ErrorType(99).String() != "Unknown" {
		t.Errorf("out of range type should print Unknown")
	}
}
