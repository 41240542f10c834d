package sif

import (
	"fmt"

	"github.com/golang/glog"
	"golang.org/x/time/rate"

	"ps2sif/device/dmac"
	"ps2sif/hw"
)

// resetArgMax bounds the satellite reset argument string, including
// the implied NUL terminator.
const resetArgMax = 80

// Init brings up the sub-system interface with a satellite reset.
//
// The satellite follows a fixed boot protocol:
//
//  1. Both DMA channels are disabled and any in-flight state cleared.
//
//  2. The two per-direction DMA command buffers are allocated.
//
//  3. The provisional satellite command buffer address is read from
//     the mailbox, which requires the satellite to have set its
//     command-init flag within the poll budget.
//
//  4. The main-side receive buffer is advertised through the mailbox
//     together with the handshake byte.
//
//  5. The reset command is issued with the boot argument string; the
//     init and commands-ready flags are then raised and the satellite
//     is given the poll budget to signal boot completion.
//
//  6. The final receive buffer address is re-advertised and the final
//     satellite command buffer address re-read.
//
//  7. The system command handlers are registered: write-register,
//     irq-relay, rpc-end and rpc-bind.
//
//  8. The inbound DMA channel is armed for first reception and its
//     completion interrupt handler installed.
//
//  9. The init-commands directive is sent carrying the main receive
//     buffer address; the satellite confirms its command layer is
//     live through a scratch register, within the poll budget.
//
// 10. The init-RPC directive is sent; the satellite confirms RPC
//     readiness through a scratch register, within the poll budget.
//
// Failure at any step unwinds in strict reverse order: the interrupt
// handler is removed if installed, DMA is disabled and both buffers
// are freed; the first error encountered is returned.
func Init(bus hw.Bus, cfg Config) (*Sif, error) {
	s := &Sif{
		cfg:      cfg.withDefaults(),
		regs:     bus.Regs,
		mem:      bus.Mem,
		irq:      bus.IRQ,
		handlers: newHandlerTable(),
		clients:  make(map[uint32]*Client),
		dropSize: rate.Sometimes{First: 1, Interval: dropLogInterval},
		dropCmd:  rate.Sometimes{First: 1, Interval: dropLogInterval},
	}
	s.in = dmac.NewChannel(bus.Regs, hw.RegInChcr, hw.RegInMadr, hw.RegInQwc)
	s.out = dmac.NewChannel(bus.Regs, hw.RegOutChcr, hw.RegOutMadr, hw.RegOutQwc)

	s.disableDMA()

	if err := s.getDMABuffers(); err != nil {
		glog.Errorf("sif: failed to allocate DMA buffers: %v", err)
		return nil, err
	}

	// Read the provisional satellite command buffer in preparation
	// for the reset.
	if err := s.readSubAddr(&s.iopBuffer); err != nil {
		glog.Errorf("sif: failed to read provisional sub address: %v", err)
		s.putDMABuffers()
		return nil, err
	}

	// Advertise the provisional main command buffer.
	s.writeMainAddrBootEnd(s.inAddr)

	if err := s.iopReset(s.cfg.ResetArgs); err != nil {
		glog.Errorf("sif: failed to reset the satellite: %v", err)
		s.putDMABuffers()
		return nil, err
	}

	// Advertise the final main address and indicate end of boot.
	s.writeMainAddrBootEnd(s.inAddr)

	if err := s.readSubAddr(&s.iopBuffer); err != nil {
		glog.Errorf("sif: failed to read final sub address: %v", err)
		s.putDMABuffers()
		return nil, err
	}

	if err := s.requestCmds(); err != nil {
		glog.Errorf("sif: failed to register system commands: %v", err)
		s.putDMABuffers()
		return nil, err
	}

	s.in.Arm()

	if err := bus.IRQ.Request(hw.LineInboundDMA, s.inboundHandler); err != nil {
		glog.Errorf("sif: failed to install inbound DMA handler: %v", err)
		s.disableDMA()
		s.putDMABuffers()
		return nil, err
	}
	s.irqInstalled = true

	if err := s.cmdInit(s.inAddr); err != nil {
		glog.Errorf("sif: failed to initialise commands: %v", err)
		s.teardown()
		return nil, err
	}

	if err := s.rpcInit(); err != nil {
		glog.Errorf("sif: failed to initialise RPC: %v", err)
		s.teardown()
		return nil, err
	}

	glog.V(1).Infof("sif: satellite up, command buffer at %#x", s.iopBuffer)

	return s, nil
}

// Close shuts the interface down and releases all resources. Blocked
// bind or call waiters are not cancelled; teardown with RPCs in flight
// is the caller's responsibility.
func (s *Sif) Close() {
	s.teardown()
}

func (s *Sif) teardown() {
	if s.irqInstalled {
		s.irq.Free(hw.LineInboundDMA)
		s.irqInstalled = false
	}
	s.disableDMA()
	s.putDMABuffers()
}

func (s *Sif) disableDMA() {
	s.in.Stop()
	s.out.Stop()
}

func (s *Sif) getDMABuffers() error {
	inAddr, err := s.mem.AllocDMA(s.cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("%w: inbound buffer: %v", ErrOutOfMemory, err)
	}
	outAddr, err := s.mem.AllocDMA(s.cfg.BufferSize)
	if err != nil {
		s.mem.FreeDMA(inAddr)
		return fmt.Errorf("%w: outbound buffer: %v", ErrOutOfMemory, err)
	}

	s.inAddr = inAddr
	s.outAddr = outAddr
	if s.inBuf, err = s.mem.Slice(inAddr, s.cfg.BufferSize); err != nil {
		s.putDMABuffers()
		return err
	}
	if s.outBuf, err = s.mem.Slice(outAddr, s.cfg.BufferSize); err != nil {
		s.putDMABuffers()
		return err
	}

	return nil
}

func (s *Sif) putDMABuffers() {
	if s.outAddr != 0 {
		s.mem.FreeDMA(s.outAddr)
		s.outAddr, s.outBuf = 0, nil
	}
	if s.inAddr != 0 {
		s.mem.FreeDMA(s.inAddr)
		s.inAddr, s.inBuf = 0, nil
	}
}

// readSubAddr reads the satellite command buffer address, waiting for
// the satellite to flag its command layer initialised.
func (s *Sif) readSubAddr(addr *hw.Addr) error {
	if !s.completed(s.smflagCmdInit) {
		return fmt.Errorf("%w: satellite command-init flag", ErrTimeout)
	}

	*addr = hw.Addr(s.regs.Read32(hw.RegSubAddr))

	return nil
}

// writeMainAddrBootEnd advertises the main-side receive buffer and
// flags the boot stage complete, preceded by the handshake byte.
func (s *Sif) writeMainAddrBootEnd(mainAddr hw.Addr) {
	s.regs.Write32(hw.RegHandshake, 0xff)
	s.regs.Write32(hw.RegMainAddr, uint32(mainAddr))
	s.writeMSFlag(StatusCmdInit | StatusBootEnd)
}

// iopReset issues the satellite reset command with the given boot
// argument string and waits for the satellite to signal boot
// completion.
func (s *Sif) iopReset(args string) error {
	arglen := len(args) + 1 // including NUL
	if arglen > resetArgMax {
		return fmt.Errorf("%w: reset argument %d bytes exceeds %d",
			ErrInvalidArgument, arglen, resetArgMax)
	}

	pkt := make([]byte, 8+resetArgMax)
	putU32(pkt[0:], uint32(arglen))
	putU32(pkt[4:], 0) // mode
	copy(pkt[8:], args)

	s.writeSMFlag(StatusBootEnd)

	if err := s.Cmd(CmdReset, pkt); err != nil {
		return err
	}

	s.writeSMFlag(StatusSifInit | StatusCmdInit)

	if !s.completed(s.smflagBootEnd) {
		return fmt.Errorf("%w: satellite boot-end flag", ErrTimeout)
	}
	return nil
}

// cmdInit tells the satellite where to deliver command packets and
// waits for its command layer to come up.
func (s *Sif) cmdInit(cmdBuffer hw.Addr) error {
	pkt := make([]byte, 4)
	putU32(pkt, uint32(cmdBuffer))

	if err := s.CmdOpt(CmdInit, 0, pkt); err != nil {
		return err
	}

	if !s.completed(s.sregCmdInit) {
		return fmt.Errorf("%w: satellite command layer", ErrTimeout)
	}
	return nil
}

// rpcInit enables the satellite RPC layer and waits for it to confirm
// readiness.
func (s *Sif) rpcInit() error {
	if err := s.CmdOpt(CmdInit, 1, nil); err != nil {
		return err
	}

	if !s.completed(s.sregRPCInit) {
		return fmt.Errorf("%w: satellite RPC layer", ErrTimeout)
	}
	return nil
}

// requestCmds registers the fixed set of system command handlers.
// Failure here is a capacity programming error, not expected at
// runtime.
func (s *Sif) requestCmds() error {
	cmds := []struct {
		cmd uint32
		cb  HandlerFunc
	}{
		{CmdWriteSreg, s.cmdWriteSreg},
		{CmdIRQRelay, s.cmdIRQRelay},

		{CmdRPCEnd, s.cmdRPCEnd},
		{CmdRPCBind, s.cmdRPCBind},
	}

	for _, c := range cmds {
		if err := s.RequestCmd(c.cmd, c.cb, nil); err != nil {
			return err
		}
	}
	return nil
}
