// Package iopheap drives the satellite heap service: allocation and
// release of satellite RAM on behalf of the main processor.
package iopheap

import (
	"encoding/binary"
	"fmt"
	"sync"

	"ps2sif/device/sif"
	"ps2sif/device/sif/ioperr"
	"ps2sif/hw"
)

// Heap service operations.
const (
	opAlloc = 1
	opFree  = 2
)

// Heap is a connection to the satellite heap service. The zero value
// is unconnected; DriverInit binds it.
type Heap struct {
	mu     sync.Mutex
	client sif.Client
}

// DriverName returns the name of the driver.
func (h *Heap) DriverName() string {
	return "iopheap"
}

// DriverVersion returns the driver version.
func (h *Heap) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit binds the heap client to the satellite heap server.
func (h *Heap) DriverInit(s *sif.Sif) error {
	return h.client.Bind(s, sif.ServerHeap)
}

// Close releases the connection.
func (h *Heap) Close() {
	h.client.Unbind()
}

// Alloc allocates nbytes of satellite RAM and returns its
// satellite-bus address. A zero address from the service means the
// heap is exhausted.
func (h *Heap) Alloc(nbytes int) (hw.Addr, error) {
	send := make([]byte, 4)
	recv := make([]byte, 4)
	binary.LittleEndian.PutUint32(send, uint32(nbytes))

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.client.Call(opAlloc, send, recv); err != nil {
		return 0, err
	}

	addr := hw.Addr(binary.LittleEndian.Uint32(recv))
	if addr == 0 {
		return 0, fmt.Errorf("%w: satellite heap, %d bytes",
			sif.ErrOutOfMemory, nbytes)
	}

	return addr, nil
}

// Free releases satellite RAM previously returned by Alloc.
func (h *Heap) Free(addr hw.Addr) error {
	send := make([]byte, 4)
	recv := make([]byte, 4)
	binary.LittleEndian.PutUint32(send, uint32(addr))

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.client.Call(opFree, send, recv); err != nil {
		return err
	}

	return ioperr.Error(int32(binary.LittleEndian.Uint32(recv)))
}
