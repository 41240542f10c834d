// Package dmac drives the two SIF DMA controller channels used to
// exchange command packets with the satellite processor. Each channel
// performs one-shot transfers measured in 16-byte units; the channel
// control register exposes a busy bit while a transfer is in flight.
package dmac

import "ps2sif/hw"

// Channel control register bits.
const (
	// ChcrStop halts the channel and clears in-flight state.
	ChcrStop uint32 = 0x00000000

	// ChcrBusy is set while the channel is transferring.
	ChcrBusy uint32 = 0x00000100

	// ChcrSendNTie starts a normal-mode send from memory with an
	// interrupt on completion.
	ChcrSendNTie uint32 = 0x00000181

	// ChcrRecvCTie arms a chain-mode reception into memory with an
	// interrupt on completion.
	ChcrRecvCTie uint32 = 0x00000184
)

// Outbound transfers carry a 16-byte tag consumed by the receiving
// DMA engine: destination address and flags in the first word, the
// transfer word count in the second, the rest zero.
const TagSize = 16

const (
	// TagAddrMask extracts the destination address from the first
	// tag word.
	TagAddrMask uint32 = 0x00ffffff

	// TagERT marks the end of a transfer chain.
	TagERT uint32 = 1 << 30

	// TagIRQ asks the receiving engine to raise its command-arrival
	// interrupt on completion.
	TagIRQ uint32 = 1 << 31
)

// Channel is one SIF DMA channel, identified by its control, memory
// address and quadword count registers.
type Channel struct {
	regs hw.Regs

	chcr hw.Reg
	madr hw.Reg
	qwc  hw.Reg
}

// NewChannel returns a channel driving the given register triple.
func NewChannel(regs hw.Regs, chcr, madr, qwc hw.Reg) *Channel {
	return &Channel{regs: regs, chcr: chcr, madr: madr, qwc: qwc}
}

// Busy reports whether a transfer is in flight.
func (c *Channel) Busy() bool {
	return c.regs.Read32(c.chcr)&ChcrBusy != 0
}

// Send starts a one-shot transfer of qwc 16-byte units from main
// memory at madr. The caller must have flushed the source range and
// verified the channel is idle.
func (c *Channel) Send(madr hw.Addr, qwc uint32) {
	c.regs.Write32(c.madr, uint32(madr))
	c.regs.Write32(c.qwc, qwc)
	c.regs.Write32(c.chcr, ChcrSendNTie)
}

// Arm resets the channel for the next inbound packet. The reception
// address is taken from the tag the satellite sends, so the address
// and count registers are cleared.
func (c *Channel) Arm() {
	c.regs.Write32(c.qwc, 0)
	c.regs.Write32(c.madr, 0)
	c.regs.Write32(c.chcr, ChcrRecvCTie)
}

// Stop halts the channel and clears any in-flight state.
func (c *Channel) Stop() {
	c.regs.Write32(c.chcr, ChcrStop)
	c.regs.Write32(c.madr, 0)
	c.regs.Write32(c.qwc, 0)
	c.regs.Read32(c.qwc) // flush posted writes
}
