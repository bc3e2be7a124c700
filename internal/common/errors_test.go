package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestUserError(t *testing.T) {
	cause := errors.New("open /tmp/batch.json: no such file")
	err := NewUserError("cannot read batch file", cause)

	var userErr *UserError
	if !errors.As(err, &userErr) {
		t.Fatal("errors.As() failed to unwrap UserError")
	}
	if userErr.UserMessage != "cannot read batch file" {
		t.Errorf("UserMessage = %q", userErr.UserMessage)
	}
	if !errors.Is(err, cause) {
		t.Error("UserError does not unwrap to its cause")
	}
	if err.Error() != "cannot read batch file: "+cause.Error() {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestUserErrorWithoutCause(t *testing.T) {
	err := NewUserError("nothing to do", nil)
	if err.Error() != "nothing to do" {
		t.Errorf("Error() = %q, want the bare message", err.Error())
	}
}

func TestNotFoundWrapping(t *testing.T) {
	wrapped := fmt.Errorf("assignment rule %w", ErrNotFound)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped sentinel does not match ErrNotFound")
	}
}
