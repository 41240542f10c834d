package sif

import "errors"

// Errors returned by the SIF transport and RPC layers. Callers match
// them with errors.Is; most are returned wrapped with context.
var (
	// ErrBusy indicates the outbound transport channel was still
	// occupied after its bounded wait, or the satellite was too slow
	// to respond within a poll budget.
	ErrBusy = errors.New("transport channel busy")

	// ErrTimeout indicates a boot/init bounded wait was exceeded.
	ErrTimeout = errors.New("timed out waiting for the satellite")

	// ErrNoSuchService indicates an RPC bind found no matching server.
	ErrNoSuchService = errors.New("no such RPC service")

	// ErrInvalidArgument indicates an oversized payload, an unknown
	// command id or a full handler table.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrIO is a generic transport failure.
	ErrIO = errors.New("transport I/O failure")

	// ErrOutOfMemory indicates a DMA buffer allocation failed.
	ErrOutOfMemory = errors.New("out of DMA memory")
)
