package errors

import (
	"errors"
	"testing"
)

func TestPlayerError(t *testing.T) {
	err := New(ErrorTypeOpen, "open_input", errors.New("file missing"))
	if err.Type != ErrorTypeOpen {
		t.Errorf("expected type %s, got %s", ErrorTypeOpen, err.Type)
	}

	err = err.WithInput("mxf:a.mxf").WithDetail("fallback", true)
	if err.Details["fallback"] != true {
		t.Errorf("expected fallback detail, got %v", err.Details["fallback"])
	}

	expected := "open error in open_input for input mxf:a.mxf: file missing"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestErrorWrapping(t *testing.T) {
	err := BuildError("build_source", ErrNoInputs)
	if !errors.Is(err, ErrNoInputs) {
		t.Error("expected error to match ErrNoInputs")
	}
	if GetType(err) != ErrorTypeBuild {
		t.Errorf("expected type %s, got %s", ErrorTypeBuild, GetType(err))
	}
	if GetOperation(err) != "build_source" {
		t.Errorf("expected operation 'build_source', got %s", GetOperation(err))
	}

	wrapped := Wrap(err, ErrorTypeInternal, "outer")
	if GetOperation(wrapped) != "build_source" {
		t.Error("expected Wrap to preserve an existing PlayerError")
	}

	plain := Wrap(errors.New("boom"), ErrorTypeRuntimeIO, "read_frame")
	if GetType(plain) != ErrorTypeRuntimeIO {
		t.Errorf("expected runtime_io, got %s", GetType(plain))
	}
	if Wrap(nil, ErrorTypeInternal, "noop") != nil {
		t.Error("expected nil for nil error")
	}
	if GetType(errors.New("x")) != ErrorTypeInternal {
		t.Error("expected plain errors to classify as internal")
	}
}

func TestIsRecoverable(t *testing.T) {
	tests := []struct {
		name        string
		err         *PlayerError
		recoverable bool
	}{
		{"open failure", OpenError("open_input", ErrUnsupportedKind), true},
		{"overlay failure", OverlayError("render_label", ErrOutOfBounds), true},
		{"runtime io", RuntimeIOError("read_frame", errors.New("eio")), true},
		{"build failure", BuildError("build_sink", ErrDeviceUnavailable), false},
		{"device reset", DeviceResetError("reset_sink", ErrResetFailed), false},
		{"validation", ValidationError("config", ErrInvalidInput), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsRecoverable(); got != tt.recoverable {
				t.Errorf("expected recoverable=%v, got %v", tt.recoverable, got)
			}
		})
	}
}
