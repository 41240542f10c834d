// Package sim provides an in-process model of the SIF hardware for
// tests: the mailbox register file, main and satellite memory, both
// DMA channels and a scriptable satellite processor. Outbound DMA
// transfers complete synchronously inside the register write that
// starts them; inbound completion interrupts are delivered from a
// dedicated dispatcher goroutine so handlers may take locks freely.
package sim

import (
	"encoding/binary"
	"fmt"
	"sync"

	"ps2sif/device/dmac"
	"ps2sif/hw"
)

const (
	mainRAMSize = 1 << 20
	subRAMSize  = 1 << 20

	// allocBase keeps address zero out of the allocator so a zero
	// address can mean "no buffer".
	allocBase hw.Addr = 0x1000
)

// Bus models the hardware interfaces behind a single SIF instance. It
// implements hw.Regs, hw.Memory and hw.IRQController; Bus bundles the
// three for Init. Create one with New and release its dispatcher with
// Shutdown.
type Bus struct {
	mu   sync.Mutex
	regs [hw.NumRegs]uint32
	main []byte
	sub  []byte

	handlers [hw.NumLines]func()
	events   chan func()

	allocNext hw.Addr
	allocs    map[hw.Addr]int

	relayed []uint32

	// stallOutbound keeps the outbound channel busy without
	// transferring, for exercising the busy path.
	stallOutbound bool

	inboundArmed bool
	pending      [][]byte

	iop *IOP
}

// New returns a powered-on bus with a responsive satellite.
func New() *Bus {
	b := &Bus{
		main:      make([]byte, mainRAMSize),
		sub:       make([]byte, subRAMSize),
		events:    make(chan func(), 256),
		allocNext: allocBase,
		allocs:    make(map[hw.Addr]int),
	}
	b.iop = newIOP(b)

	go func() {
		for fn := range b.events {
			fn()
		}
	}()

	return b
}

// Bus returns the interface bundle handed to sif.Init.
func (b *Bus) Bus() hw.Bus {
	return hw.Bus{Regs: b, Mem: b, IRQ: b}
}

// IOP returns the satellite model for scripting.
func (b *Bus) IOP() *IOP {
	return b.iop
}

// Shutdown stops the interrupt dispatcher. No traffic may follow.
func (b *Bus) Shutdown() {
	close(b.events)
}

// Read32 implements hw.Regs.
func (b *Bus) Read32(reg hw.Reg) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs[reg]
}

// Write32 implements hw.Regs. Writing the outbound control register
// with the busy bit performs the tagged transfer before returning;
// arming the inbound channel delivers any queued satellite packet.
func (b *Bus) Write32(reg hw.Reg, val uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch reg {
	case hw.RegSMFlag:
		// Main-side writes clear bits the satellite set.
		b.regs[reg] &^= val
		b.iop.flagsCleared(val)

	case hw.RegMSFlag:
		b.regs[reg] |= val

	case hw.RegOutChcr:
		b.regs[reg] = val
		if val&dmac.ChcrBusy != 0 && !b.stallOutbound {
			b.outboundTransfer()
			b.regs[reg] &^= dmac.ChcrBusy
		}

	case hw.RegInChcr:
		b.regs[reg] = val
		b.inboundArmed = val&dmac.ChcrBusy != 0
		if b.inboundArmed {
			b.deliverPending()
		}

	default:
		b.regs[reg] = val
	}
}

// StallOutbound toggles the outbound stall. Releasing the stall
// completes a transfer left in flight.
func (b *Bus) StallOutbound(stall bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stallOutbound = stall
	if !stall && b.regs[hw.RegOutChcr]&dmac.ChcrBusy != 0 {
		b.outboundTransfer()
		b.regs[hw.RegOutChcr] &^= dmac.ChcrBusy
	}
}

// outboundTransfer parses the tag at the channel's memory address and
// copies the payload into satellite RAM, handing it to the satellite
// model when the tag requests a command-arrival interrupt. Malformed
// transfers are dropped, as the hardware would scribble rather than
// report. Callers hold mu.
func (b *Bus) outboundTransfer() {
	madr := int(b.regs[hw.RegOutMadr])
	n := int(b.regs[hw.RegOutQwc]) * 16
	if n < dmac.TagSize || madr+n > len(b.main) {
		return
	}
	src := b.main[madr : madr+n]

	flags := binary.LittleEndian.Uint32(src)
	words := int(binary.LittleEndian.Uint32(src[4:]))
	dst := int(flags & dmac.TagAddrMask)

	payload := src[dmac.TagSize:]
	if words*4 < len(payload) {
		payload = payload[:words*4]
	}
	if dst+len(payload) > len(b.sub) {
		return
	}
	copy(b.sub[dst:], payload)

	if flags&dmac.TagIRQ != 0 {
		b.iop.command(b.sub[dst : dst+len(payload)])
	}
}

// deliverPending copies the oldest queued satellite packet into the
// advertised main-side buffer, completes the inbound channel and posts
// its interrupt. One packet per arming. Callers hold mu.
func (b *Bus) deliverPending() {
	if !b.inboundArmed || len(b.pending) == 0 {
		return
	}

	pkt := b.pending[0]
	dst := int(b.regs[hw.RegMainAddr])
	if dst+len(pkt) > len(b.main) {
		return
	}
	b.pending = b.pending[1:]
	copy(b.main[dst:], pkt)

	b.inboundArmed = false
	b.regs[hw.RegInChcr] &^= dmac.ChcrBusy

	if h := b.handlers[hw.LineInboundDMA]; h != nil {
		b.events <- h
	}
}

// Slice implements hw.Memory. Addresses below the satellite RAM window
// index main memory; the window at hw.SubRAMBase exposes satellite RAM.
func (b *Bus) Slice(addr hw.Addr, nbytes int) ([]byte, error) {
	if nbytes < 0 {
		return nil, fmt.Errorf("sim: negative slice size %d", nbytes)
	}
	if addr >= hw.SubRAMBase {
		off := int(addr - hw.SubRAMBase)
		if off+nbytes <= len(b.sub) {
			return b.sub[off : off+nbytes], nil
		}
	} else if end := int(addr) + nbytes; end <= len(b.main) {
		return b.main[addr:end], nil
	}
	return nil, fmt.Errorf("sim: no memory at %#x+%d", addr, nbytes)
}

// FlushWriteback implements hw.Memory. The model has one coherent
// memory, so cache maintenance is a no-op.
func (b *Bus) FlushWriteback(addr hw.Addr, nbytes int) {}

// Invalidate implements hw.Memory.
func (b *Bus) Invalidate(addr hw.Addr, nbytes int) {}

// AllocDMA implements hw.Memory with a bump allocator over main RAM.
func (b *Bus) AllocDMA(nbytes int) (hw.Addr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := hw.Addr(nbytes+15) &^ 15
	if int(b.allocNext)+int(size) > len(b.main) {
		return 0, fmt.Errorf("sim: DMA allocator exhausted at %#x", b.allocNext)
	}

	addr := b.allocNext
	b.allocNext += size
	b.allocs[addr] = nbytes

	return addr, nil
}

// FreeDMA implements hw.Memory.
func (b *Bus) FreeDMA(addr hw.Addr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.allocs, addr)
}

// Outstanding reports the number of DMA allocations not yet freed.
func (b *Bus) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.allocs)
}

// Request implements hw.IRQController.
func (b *Bus) Request(line hw.IRQLine, handler func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[line] != nil {
		return fmt.Errorf("sim: IRQ line %d already requested", line)
	}
	b.handlers[line] = handler

	return nil
}

// Free implements hw.IRQController.
func (b *Bus) Free(line hw.IRQLine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[line] = nil
}

// RelaySub implements hw.IRQController by recording the relayed
// satellite interrupt for inspection.
func (b *Bus) RelaySub(irq uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relayed = append(b.relayed, irq)
}

// Relayed returns the satellite interrupts relayed so far.
func (b *Bus) Relayed() []uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]uint32, len(b.relayed))
	copy(out, b.relayed)
	return out
}
