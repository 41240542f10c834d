// Package iopirq drives the satellite interrupt relay service: it asks
// the satellite to forward selected satellite-side interrupts to the
// main processor over the command transport, where they surface through
// the interrupt controller's relay path.
package iopirq

import (
	"encoding/binary"
	"sync"

	"ps2sif/device/sif"
	"ps2sif/device/sif/ioperr"
)

// Relay service operations.
const (
	opRequest = 1
	opRelease = 2
	opRemap   = 3
)

// relayRPC identifies the command-transport relay mechanism in request
// packets.
const relayRPC = 1

// Relay is a connection to the satellite interrupt relay service. The
// zero value is unconnected; DriverInit binds it.
type Relay struct {
	mu     sync.Mutex
	client sif.Client
}

// DriverName returns the name of the driver.
func (r *Relay) DriverName() string {
	return "iopirq"
}

// DriverVersion returns the driver version.
func (r *Relay) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit binds the relay client to the satellite relay server.
func (r *Relay) DriverInit(s *sif.Sif) error {
	return r.client.Bind(s, sif.ServerIRQRelay)
}

// Close releases the connection.
func (r *Relay) Close() {
	r.client.Unbind()
}

// Request asks the satellite to relay its interrupt irq, delivered on
// the main side as line.
func (r *Relay) Request(irq, line uint8) error {
	return r.call(opRequest, []byte{irq, line, relayRPC})
}

// Release stops relaying the satellite interrupt irq.
func (r *Relay) Release(irq uint8) error {
	return r.call(opRelease, []byte{irq})
}

// Remap changes the main-side line a relayed satellite interrupt is
// delivered on.
func (r *Relay) Remap(irq, line uint8) error {
	return r.call(opRemap, []byte{irq, line, relayRPC})
}

func (r *Relay) call(op uint32, send []byte) error {
	recv := make([]byte, 4)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.Call(op, send, recv); err != nil {
		return err
	}

	return ioperr.Error(int32(binary.LittleEndian.Uint32(recv)))
}
