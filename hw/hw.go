// Package hw declares the hardware interfaces consumed by the SIF
// protocol stack: the memory-mapped register file shared between the
// main processor and the satellite input/output processor (IOP), main
// memory with cache maintenance and DMA-capable allocation, and the
// interrupt controller. Concrete implementations are provided by the
// platform; hw/sim provides an in-process model for tests.
package hw

// Addr is a 32-bit main-bus physical address. Satellite-bus addresses
// use the same type; see SubBusToMain and MainToSubBus.
type Addr uint32

// Reg identifies one of the memory-mapped words the SIF stack drives.
type Reg uint8

const (
	// RegMainAddr advertises the main-side command buffer to the IOP.
	RegMainAddr Reg = iota

	// RegSubAddr holds the IOP-side command buffer address.
	RegSubAddr

	// RegMSFlag is the main-to-sub mailbox status flag register.
	// Writes set bits.
	RegMSFlag

	// RegSMFlag is the sub-to-main mailbox status flag register.
	// Bits are set by the IOP; main-side writes clear bits.
	RegSMFlag

	// RegSubCtrl is the SIF control register.
	RegSubCtrl

	// RegHandshake is the auxiliary boot handshake register written
	// before each main-address advertisement.
	RegHandshake

	// Outbound (main-to-sub) DMA channel registers.
	RegOutChcr
	RegOutMadr
	RegOutQwc

	// Inbound (sub-to-main) DMA channel registers.
	RegInChcr
	RegInMadr
	RegInQwc

	// NumRegs is the size of the register file.
	NumRegs
)

// Regs provides 32-bit access to the memory-mapped register file.
type Regs interface {
	Read32(reg Reg) uint32
	Write32(reg Reg, val uint32)
}

// Memory provides access to main memory as seen by both the CPU and
// the DMA engines. Slice views alias the underlying memory; cache
// maintenance calls order CPU accesses against DMA.
type Memory interface {
	// Slice returns a view of nbytes of memory starting at addr.
	Slice(addr Addr, nbytes int) ([]byte, error)

	// FlushWriteback makes CPU writes in the given range visible to
	// the DMA engines.
	FlushWriteback(addr Addr, nbytes int)

	// Invalidate makes DMA writes in the given range visible to the
	// CPU.
	Invalidate(addr Addr, nbytes int)

	// AllocDMA allocates a 16-byte aligned DMA-capable buffer and
	// returns its physical address.
	AllocDMA(nbytes int) (Addr, error)

	// FreeDMA releases a buffer previously returned by AllocDMA.
	FreeDMA(addr Addr)
}

// IRQLine identifies an interrupt line consumed by the SIF stack.
type IRQLine uint8

const (
	// LineInboundDMA is raised when the inbound (sub-to-main) DMA
	// channel completes a packet reception.
	LineInboundDMA IRQLine = iota

	// NumLines is the number of interrupt lines.
	NumLines
)

// IRQController installs and removes handlers for the interrupt lines
// the SIF stack uses, and accepts satellite interrupts relayed over
// the command transport.
type IRQController interface {
	// Request installs handler for the given line. At most one
	// handler per line; Request fails if one is already installed.
	Request(line IRQLine, handler func()) error

	// Free removes the handler for the given line.
	Free(line IRQLine)

	// RelaySub delivers a satellite interrupt relayed by the IOP via
	// the irq-relay system command.
	RelaySub(irq uint32)
}

// Bus bundles the hardware interfaces handed to the SIF stack.
type Bus struct {
	Regs Regs
	Mem  Memory
	IRQ  IRQController
}
