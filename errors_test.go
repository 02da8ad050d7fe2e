package mmal

import (
	"errors"
	"testing"
)

func TestStatus_Error(t *testing.T) {
	tests := []struct {
		st   Status
		want string
	}{
		{EINVAL, "mmal: invalid argument"},
		{ENOSPC, "mmal: out of resources"},
		{EISCONN, "mmal: port is already connected"},
		{Status(99), "mmal: status(99)"},
	}
	for _, tt := range tests {
		if got := tt.st.Error(); got != tt.want {
			t.Errorf("Status(%d).Error() = %q, want %q", int32(tt.st), got, tt.want)
		}
	}
	if !Success.OK() || EINVAL.OK() {
		t.Error("OK() mismatch")
	}
}

func TestCheck(t *testing.T) {
	if err := check(Success, "op"); err != nil {
		t.Errorf("check(Success) = %v", err)
	}
	err := check(ENOMEM, "enable %s", "port")
	if !errors.Is(err, ENOMEM) {
		t.Errorf("check(ENOMEM) = %v, want ENOMEM in chain", err)
	}
	if got := err.Error(); got != "enable port: mmal: out of memory" {
		t.Errorf("message = %q", got)
	}
}

func TestComponentCreationError(t *testing.T) {
	err := error(&ComponentCreationError{Name: "vc.ril.nope", Err: ENOSYS})
	if !errors.Is(err, ENOSYS) {
		t.Error("errors.Is(ENOSYS) = false")
	}
	var cce *ComponentCreationError
	if !errors.As(err, &cce) || cce.Status() != ENOSYS {
		t.Errorf("As/Status() = %v", cce)
	}

	null := &ComponentCreationError{Name: "x", Err: ErrInvalidHandle}
	if null.Status() != Success || !errors.Is(null, ErrInvalidHandle) {
		t.Errorf("null component error = %v, status %v", null, null.Status())
	}
}
