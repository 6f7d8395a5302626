package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := Capacity(nil, "rate limit exceeded")
	if !Is(err, KindCapacity) {
		t.Error("expected KindCapacity")
	}
	if Is(err, KindReplay) {
		t.Error("did not expect KindReplay")
	}
}

func TestIsUnwrapsWrappedErrors(t *testing.T) {
	inner := Replay(errors.New("nonce 42 already used"), "duplicate delivery")
	wrapped := fmt.Errorf("handle inbound: %w", inner)

	if !Is(wrapped, KindReplay) {
		t.Error("expected KindReplay through wrapping")
	}
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Configuration(nil, "protocol not registered"), http.StatusUnprocessableEntity},
		{Authorization(nil, "untrusted remote"), http.StatusForbidden},
		{Replay(nil, "nonce already used"), http.StatusConflict},
		{Validation(nil, "zero amount"), http.StatusBadRequest},
		{Consistency(nil, "adapter paused"), http.StatusServiceUnavailable},
		{Capacity(nil, "rate limit exceeded"), http.StatusTooManyRequests},
		{Internal(nil), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		var bridgeErr *Error
		if !errors.As(tc.err, &bridgeErr) {
			t.Fatalf("expected *Error, got %T", tc.err)
		}
		if got := bridgeErr.StatusCode(); got != tc.want {
			t.Errorf("kind %s: expected status %d, got %d", bridgeErr.Kind, tc.want, got)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Validation(errors.New("decode failed"), "malformed payload")
	if err.Error() != "malformed payload: decode failed" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
