// Package ioperr translates satellite-side numeric error codes into
// the SIF error taxonomy and human-readable messages. RPC servers on
// the satellite report status as a signed 32-bit value: zero for
// success, the negated code on failure.
package ioperr

import (
	"fmt"

	"ps2sif/device/sif"
)

type entry struct {
	err error
	msg string
}

var codes = map[int32]entry{
	50: {sif.ErrInvalidArgument, "Bad exception"},
	51: {sif.ErrNoSuchService, "Exception not found"},
	52: {sif.ErrBusy, "Exception in use"},

	100: {sif.ErrIO, "In IRQ context"},
	101: {sif.ErrInvalidArgument, "Bad IRQ"},
	102: {sif.ErrIO, "CPU interrupts disabled"},
	103: {sif.ErrIO, "Interrupts disabled"},
	104: {sif.ErrBusy, "Handler in use"},
	105: {sif.ErrNoSuchService, "Handler not found"},

	150: {sif.ErrNoSuchService, "Timer not found"},
	151: {sif.ErrInvalidArgument, "Bad timer"},

	160: {sif.ErrBusy, "Unit in use"},
	161: {sif.ErrNoSuchService, "Unit not found"},
	162: {sif.ErrNoSuchService, "ROM directory not found"},

	200: {sif.ErrIO, "Module linking error"},
	201: {sif.ErrIO, "Object not module"},
	202: {sif.ErrNoSuchService, "Module not found"},
	203: {sif.ErrNoSuchService, "No such file"},
	204: {sif.ErrIO, "File error"},
	205: {sif.ErrBusy, "Memory in use"},

	400: {sif.ErrOutOfMemory, "Out of memory"},
	401: {sif.ErrInvalidArgument, "Bad attribute"},
	402: {sif.ErrInvalidArgument, "Bad entry"},
	403: {sif.ErrInvalidArgument, "Bad priority"},
	404: {sif.ErrInvalidArgument, "Bad stack size"},
	405: {sif.ErrInvalidArgument, "Bad mode"},
	406: {sif.ErrInvalidArgument, "Bad thread"},
	407: {sif.ErrNoSuchService, "Thread not found"},
	408: {sif.ErrNoSuchService, "Semaphore not found"},
	409: {sif.ErrNoSuchService, "Event flag not found"},
	410: {sif.ErrNoSuchService, "Mailbox not found"},
	411: {sif.ErrNoSuchService, "Variable pool not found"},
	412: {sif.ErrNoSuchService, "Fixed pool not found"},
	413: {sif.ErrInvalidArgument, "Thread dormant"},
	414: {sif.ErrNoSuchService, "Thread not dormant"},
	415: {sif.ErrNoSuchService, "Thread not suspended"},
	416: {sif.ErrInvalidArgument, "Bad wait state"},
	417: {sif.ErrNoSuchService, "No wait state"},
	418: {sif.ErrInvalidArgument, "Wait released"},
	419: {sif.ErrInvalidArgument, "Semaphore at zero"},
	420: {sif.ErrInvalidArgument, "Semaphore overflow"},
	421: {sif.ErrInvalidArgument, "Event flag condition"},
	422: {sif.ErrInvalidArgument, "Event flag multiple waiters"},
	423: {sif.ErrInvalidArgument, "Event flag illegal pattern"},
	424: {sif.ErrNoSuchService, "Mailbox empty"},
	425: {sif.ErrInvalidArgument, "Wait deleted"},
	426: {sif.ErrInvalidArgument, "Invalid memory block"},
	427: {sif.ErrOutOfMemory, "Invalid memory size"},
}

// Error returns the error corresponding to a satellite status value,
// or nil for success. Unrecognised small negative codes map to
// ErrInvalidArgument, anything else to ErrIO.
func Error(status int32) error {
	if status == 0 {
		return nil
	}

	if e, ok := codes[-status]; ok {
		return fmt.Errorf("%w: satellite error %d: %s", e.err, -status, e.msg)
	}
	if -1000 < status && status < 0 {
		return fmt.Errorf("%w: satellite error %d", sif.ErrInvalidArgument, -status)
	}
	return fmt.Errorf("%w: satellite status %d", sif.ErrIO, status)
}

// Message returns the human-readable message for a satellite error
// code, accepting either sign.
func Message(code int32) string {
	if code < 0 {
		code = -code
	}
	switch code {
	case 0:
		return "Success"
	case 1:
		return "Error"
	}
	if e, ok := codes[code]; ok {
		return e.msg
	}
	return "Unknown error"
}
