// Package sif implements the sub-system interface (SIF): the command
// and remote procedure call transport between the main processor and
// the satellite input/output processor (IOP).
//
// The two processors cooperate through a pair of DMA channels and four
// mailbox registers. Data travels in tagged command packets: a 16-byte
// header, an optional inline packet of up to 96 bytes, and an optional
// bulk payload delivered ahead of the header to a separate address.
// Inbound packets arrive via the inbound DMA channel and are dispatched
// from its completion interrupt to handlers registered per command id.
//
// Init performs the one-time boot handshake that brings the satellite
// up and establishes the two command buffers; the RPC layer in this
// package builds connection establishment and synchronous call
// semantics on top of the command transport.
package sif

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"ps2sif/device/dmac"
	"ps2sif/hw"
)

// Sif is the transport context. It owns the two per-direction DMA
// buffers, the command handler tables and the scratch registers, and
// is the single owner of the mailbox registers. Construct one with
// Init and release it with Close.
type Sif struct {
	cfg  Config
	regs hw.Regs
	mem  hw.Memory
	irq  hw.IRQController

	in  *dmac.Channel // inbound, sub-to-main
	out *dmac.Channel // outbound, main-to-sub

	// iopBuffer is the satellite-side command buffer address, read
	// from the mailbox during boot.
	iopBuffer hw.Addr

	inAddr  hw.Addr
	inBuf   []byte
	outAddr hw.Addr
	outBuf  []byte

	// outMu serializes composing and starting outbound transfers. It
	// is never held across a wait; at most one transfer is in flight
	// and a second sender fails with ErrBusy rather than queuing.
	outMu sync.Mutex

	handlersMu sync.Mutex
	handlers   handlerTable

	sregsMu sync.Mutex
	sregs   [sregCount]int32

	clientsMu  sync.Mutex
	clients    map[uint32]*Client
	nextClient uint32

	dropSize rate.Sometimes
	dropCmd  rate.Sometimes

	irqInstalled bool
}

var errNotReady = errors.New("not ready")

// Memory returns the memory interface the transport was built on.
// Drivers use it for bulk copies into the satellite RAM window.
func (s *Sif) Memory() hw.Memory {
	return s.mem
}

// dropLogInterval rate-limits logging of dropped inbound packets: a
// misbehaving satellite must not be able to flood the log.
const dropLogInterval = time.Minute

// completed polls cond cooperatively until it holds or the poll budget
// is exhausted.
func (s *Sif) completed(cond func() bool) bool {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.PollInterval
	bo.MaxInterval = s.cfg.PollInterval
	bo.Multiplier = 1
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = s.cfg.PollBudget

	err := backoff.Retry(func() error {
		if cond() {
			return nil
		}
		return errNotReady
	}, bo)
	return err == nil
}

// outboundReady waits for the outbound channel to go idle. The spin
// variant busy-waits within the spin budget and is the only form
// allowed on the inbound dispatch path, which must not sleep.
func (s *Sif) outboundReady(spin bool) bool {
	if !s.out.Busy() {
		return true
	}
	if spin {
		deadline := time.Now().Add(s.cfg.SpinBudget)
		for time.Now().Before(deadline) {
			if !s.out.Busy() {
				return true
			}
		}
		return false
	}
	return s.completed(func() bool { return !s.out.Busy() })
}

// outWrite composes tag, optional header, inline packet and padding in
// the outbound buffer and starts the transfer. The ert/irq flags ask
// the satellite DMA engine to raise a command-arrival interrupt, so
// they are set only on the header-bearing transfer of a packet.
func (s *Sif) outWrite(h *Header, ert, irq bool, dst hw.Addr, src []byte, spin bool) error {
	headerSize := 0
	if h != nil {
		headerSize = HeaderSize
	}
	aligned := align16(headerSize + len(src))
	if aligned == 0 {
		return nil
	}

	total := dmac.TagSize + aligned
	if total > len(s.outBuf) {
		return fmt.Errorf("%w: %d byte transfer exceeds %d byte buffer",
			ErrInvalidArgument, total, len(s.outBuf))
	}
	if !s.outboundReady(spin) {
		return fmt.Errorf("%w: outbound DMA", ErrBusy)
	}

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if s.out.Busy() {
		// Lost the race with another sender.
		return fmt.Errorf("%w: outbound DMA", ErrBusy)
	}

	flags := uint32(dst) & dmac.TagAddrMask
	if ert {
		flags |= dmac.TagERT
	}
	if irq {
		flags |= dmac.TagIRQ
	}
	binary.LittleEndian.PutUint32(s.outBuf[0:], flags)
	binary.LittleEndian.PutUint32(s.outBuf[4:], uint32(aligned/4))
	binary.LittleEndian.PutUint32(s.outBuf[8:], 0)
	binary.LittleEndian.PutUint32(s.outBuf[12:], 0)

	b := s.outBuf[dmac.TagSize:]
	if h != nil {
		h.Marshal(b)
		b = b[HeaderSize:]
	}
	n := copy(b, src)
	for i := n; i < len(b) && i < aligned-headerSize; i++ {
		b[i] = 0 // alignment padding
	}

	s.mem.FlushWriteback(s.outAddr, total)
	s.out.Send(s.outAddr, uint32(total/16))

	return nil
}

func (s *Sif) cmdOptCopy(cmd, opt uint32, pkt []byte, dst hw.Addr, src []byte, spin bool) error {
	if len(pkt) > PacketDataMax {
		return fmt.Errorf("%w: %d byte packet exceeds %d bytes",
			ErrInvalidArgument, len(pkt), PacketDataMax)
	}

	h := Header{
		PacketSize: uint8(HeaderSize + len(pkt)),
		DataSize:   uint32(len(src)),
		DataAddr:   dst,
		Cmd:        cmd,
		Opt:        opt,
	}

	// The bulk payload must be visible to the receiver before the
	// header announcing it, so the header transfer is issued second.
	if err := s.outWrite(nil, false, false, dst, src, spin); err != nil {
		return err
	}
	return s.outWrite(&h, true, true, s.iopBuffer, pkt, spin)
}

// CmdOptCopy sends a command packet with an opaque option argument and
// a bulk payload delivered to dst ahead of the header. It fails with
// ErrBusy if the outbound channel is still occupied after its bounded
// wait; sends are never queued or retried.
func (s *Sif) CmdOptCopy(cmd, opt uint32, pkt []byte, dst hw.Addr, src []byte) error {
	return s.cmdOptCopy(cmd, opt, pkt, dst, src, false)
}

// CmdCopy sends a command packet with a bulk payload delivered to dst.
func (s *Sif) CmdCopy(cmd uint32, pkt []byte, dst hw.Addr, src []byte) error {
	return s.cmdOptCopy(cmd, 0, pkt, dst, src, false)
}

// CmdOpt sends a command packet with an opaque option argument.
func (s *Sif) CmdOpt(cmd, opt uint32, pkt []byte) error {
	return s.cmdOptCopy(cmd, opt, pkt, 0, nil, false)
}

// Cmd sends a command packet carrying up to PacketDataMax inline bytes.
func (s *Sif) Cmd(cmd uint32, pkt []byte) error {
	return s.cmdOptCopy(cmd, 0, pkt, 0, nil, false)
}

// inboundHandler runs on the inbound DMA completion interrupt. The
// channel is re-armed unconditionally: transport liveness must not
// depend on any single packet's handling outcome.
func (s *Sif) inboundHandler() {
	if s.in.Busy() {
		return // spurious
	}

	s.mem.Invalidate(s.inAddr, PacketMax)

	var h Header
	h.Unmarshal(s.inBuf)
	s.dispatch(&h)

	s.in.Arm()
}

func (s *Sif) dispatch(h *Header) {
	if h.PacketSize < HeaderSize || int(h.PacketSize) > PacketMax {
		s.dropSize.Do(func() {
			glog.Errorf("sif: invalid command header size %d bytes", h.PacketSize)
		})
		return
	}

	if h.DataSize > 0 {
		s.mem.Invalidate(h.DataAddr, int(h.DataSize))
	}

	handler, ok := s.lookupCmd(h.Cmd)
	if !ok {
		s.dropCmd.Do(func() {
			glog.Errorf("sif: invalid command 0x%x ignored", h.Cmd)
		})
		return
	}

	handler.cb(h, s.inBuf[HeaderSize:h.PacketSize], handler.arg)
}

// cmdIRQRelay handles the irq-relay system command: a packet of
// {irq u32} forwarded to the interrupt controller.
func (s *Sif) cmdIRQRelay(h *Header, pkt []byte, arg any) {
	if len(pkt) < 4 {
		glog.Errorf("sif: short irq-relay packet, %d bytes", len(pkt))
		return
	}
	s.irq.RelaySub(binary.LittleEndian.Uint32(pkt))
}
