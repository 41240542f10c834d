package ioperr

import (
	"errors"
	"testing"

	"ps2sif/device/sif"
)

func TestError(t *testing.T) {
	specs := []struct {
		status int32
		want   error
	}{
		{0, nil},
		{-400, sif.ErrOutOfMemory},
		{-427, sif.ErrOutOfMemory},
		{-202, sif.ErrNoSuchService},
		{-105, sif.ErrNoSuchService},
		{-104, sif.ErrBusy},
		{-205, sif.ErrBusy},
		{-401, sif.ErrInvalidArgument},
		{-101, sif.ErrInvalidArgument},
		{-204, sif.ErrIO},
		{-200, sif.ErrIO},
		// Codes outside the table.
		{-999, sif.ErrInvalidArgument},
		{-5000, sif.ErrIO},
		{7, sif.ErrIO},
	}

	for specIndex, spec := range specs {
		got := Error(spec.status)
		if spec.want == nil {
			if got != nil {
				t.Errorf("[spec %d] expected status %d to map to nil; got %v",
					specIndex, spec.status, got)
			}
			continue
		}
		if !errors.Is(got, spec.want) {
			t.Errorf("[spec %d] expected status %d to map to %v; got %v",
				specIndex, spec.status, spec.want, got)
		}
	}
}

func TestMessage(t *testing.T) {
	specs := []struct {
		code int32
		want string
	}{
		{0, "Success"},
		{1, "Error"},
		{-1, "Error"},
		{400, "Out of memory"},
		{-400, "Out of memory"},
		{202, "Module not found"},
		{12345, "Unknown error"},
	}

	for specIndex, spec := range specs {
		if got := Message(spec.code); got != spec.want {
			t.Errorf("[spec %d] expected message %q for code %d; got %q",
				specIndex, spec.want, spec.code, got)
		}
	}
}
