package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodesMapToStatuses(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{Validation("amount must be positive"), http.StatusBadRequest},
		{InsufficientFunds("balance 5 below 10"), http.StatusConflict},
		{InsufficientHeld("held 0 below 10"), http.StatusConflict},
		{NotFound("transaction %s", "tx1"), http.StatusNotFound},
		{InvalidTransition("draft to completed"), http.StatusConflict},
		{InvalidState("already released"), http.StatusConflict},
		{Unauthorized("missing token"), http.StatusUnauthorized},
		{Forbidden("payer only"), http.StatusForbidden},
		{Conflict("version mismatch"), http.StatusConflict},
		{PartialFailure("credit leg failed"), http.StatusBadGateway},
		{Internal("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.err.Code, tc.status, got)
		}
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("load account: %w", NotFound("account a1"))
	if !errors.Is(err, Sentinel(CodeNotFound)) {
		t.Fatalf("wrapped not-found should match sentinel")
	}
	if errors.Is(err, Sentinel(CodeConflict)) {
		t.Fatalf("not-found must not match conflict")
	}
	if CodeOf(err) != CodeNotFound {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
}

func TestUntypedErrorsAreInternal(t *testing.T) {
	err := errors.New("disk on fire")
	if CodeOf(err) != CodeInternal {
		t.Fatalf("expected internal, got %s", CodeOf(err))
	}
	if HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", HTTPStatus(err))
	}
}

func TestWithCauseKeepsCode(t *testing.T) {
	cause := errors.New("row locked")
	err := Conflict("account a1 version 3").WithCause(cause)
	if !errors.Is(err, Sentinel(CodeConflict)) {
		t.Fatalf("cause must not change the code")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should unwrap")
	}
}
