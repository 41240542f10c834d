package sim

import (
	"encoding/binary"

	"ps2sif/device/sif"
	"ps2sif/hw"
)

// Satellite-side command buffer addresses (satellite-bus). The
// provisional buffer is advertised at power-on, the final one after a
// reset.
const (
	provisionalCmdBuf hw.Addr = 0x100
	finalCmdBuf       hw.Addr = 0x200
)

// Server scripts one satellite RPC server. Handler receives the call's
// argument bytes and returns the result; it runs on the bus's internal
// lock and must not touch the bus.
type Server struct {
	// ID is the well-known server id clients bind to.
	ID uint32

	// Addr is the satellite-bus server address resolved by a bind.
	// Must be nonzero, as zero means "no such server" on the wire.
	Addr hw.Addr

	// Buffer is the satellite-bus scratch area call arguments are
	// delivered to.
	Buffer hw.Addr

	Handler func(rpcID uint32, arg []byte) []byte
}

// IOP is the scriptable satellite model. A responsive satellite
// answers the boot handshake, the init directives and RPC traffic;
// servers are added with AddServer before clients bind to them.
//
// Configuration fields and AddServer must be used before the traffic
// they affect, not concurrently with it.
type IOP struct {
	bus *Bus

	// EchoUser makes the satellite bounce any user-namespace command
	// back to the main side unchanged.
	EchoUser bool

	responsive   bool
	resetPending bool
	mainAddr     hw.Addr
	servers      map[uint32]*Server
}

func newIOP(b *Bus) *IOP {
	i := &IOP{
		bus:        b,
		responsive: true,
		servers:    make(map[uint32]*Server),
	}

	// Power-on state: provisional command buffer advertised, interface
	// and command layer flagged up.
	b.regs[hw.RegSubAddr] = uint32(provisionalCmdBuf)
	b.regs[hw.RegSMFlag] = sif.StatusSifInit | sif.StatusCmdInit

	return i
}

// SetUnresponsive makes the satellite ignore all traffic and clears its
// mailbox flags, as if it never came up.
func (i *IOP) SetUnresponsive() {
	i.bus.mu.Lock()
	defer i.bus.mu.Unlock()
	i.responsive = false
	i.bus.regs[hw.RegSMFlag] = 0
}

// AddServer registers an RPC server with the satellite.
func (i *IOP) AddServer(srv *Server) {
	i.bus.mu.Lock()
	defer i.bus.mu.Unlock()
	i.servers[srv.ID] = srv
}

// Send queues a command packet from the satellite to the main side.
func (i *IOP) Send(cmd, opt uint32, pkt []byte) {
	i.bus.mu.Lock()
	defer i.bus.mu.Unlock()
	i.send(cmd, opt, pkt)
}

// Inject queues raw bytes as an inbound packet, bypassing the packet
// builder. For malformed-traffic tests.
func (i *IOP) Inject(raw []byte) {
	i.bus.mu.Lock()
	defer i.bus.mu.Unlock()
	b := make([]byte, len(raw))
	copy(b, raw)
	i.bus.pending = append(i.bus.pending, b)
	i.bus.deliverPending()
}

// RaiseIRQ relays a satellite interrupt over the command transport.
func (i *IOP) RaiseIRQ(irq uint32) {
	pkt := make([]byte, 4)
	binary.LittleEndian.PutUint32(pkt, irq)
	i.Send(sif.CmdIRQRelay, 0, pkt)
}

// flagsCleared reacts to the main side clearing sub-to-main flags. A
// reset completes once the main side lowers the command-init flag: the
// rebooted satellite advertises its final command buffer and raises all
// flags. Callers hold bus.mu.
func (i *IOP) flagsCleared(bits uint32) {
	if !i.responsive || !i.resetPending || bits&sif.StatusCmdInit == 0 {
		return
	}

	i.resetPending = false
	i.bus.regs[hw.RegSubAddr] = uint32(finalCmdBuf)
	i.bus.regs[hw.RegSMFlag] |= sif.StatusSifInit | sif.StatusCmdInit | sif.StatusBootEnd
}

// command processes a packet that arrived in satellite RAM with the
// command-arrival interrupt flag. Callers hold bus.mu.
func (i *IOP) command(raw []byte) {
	if !i.responsive || len(raw) < sif.HeaderSize {
		return
	}

	var h sif.Header
	h.Unmarshal(raw)
	if int(h.PacketSize) < sif.HeaderSize || int(h.PacketSize) > len(raw) {
		return
	}
	pkt := raw[sif.HeaderSize:h.PacketSize]

	switch h.Cmd {
	case sif.CmdReset:
		i.resetPending = true

	case sif.CmdInit:
		if h.Opt == 0 {
			if len(pkt) >= 4 {
				i.mainAddr = hw.Addr(binary.LittleEndian.Uint32(pkt))
			}
			i.writeSreg(sif.SregCmdInit, 1)
		} else {
			i.writeSreg(sif.SregRPCInit, 1)
		}

	case sif.CmdRPCBind:
		i.rpcBind(pkt)

	case sif.CmdRPCCall:
		i.rpcCall(&h, pkt)

	default:
		if i.EchoUser && h.Cmd&sif.CmdIDSys == 0 {
			i.sendRaw(h, pkt)
		}
	}
}

func (i *IOP) rpcBind(pkt []byte) {
	if len(pkt) < 20 {
		return
	}
	token := binary.LittleEndian.Uint32(pkt[12:])
	serverID := binary.LittleEndian.Uint32(pkt[16:])

	end := make([]byte, 32)
	binary.LittleEndian.PutUint32(end[12:], token)
	binary.LittleEndian.PutUint32(end[16:], sif.CmdRPCBind)
	if srv := i.servers[serverID]; srv != nil {
		binary.LittleEndian.PutUint32(end[20:], uint32(srv.Addr))
		binary.LittleEndian.PutUint32(end[24:], uint32(srv.Buffer))
	}
	i.send(sif.CmdRPCEnd, 0, end)
}

func (i *IOP) rpcCall(h *sif.Header, pkt []byte) {
	if len(pkt) < 40 {
		return
	}
	token := binary.LittleEndian.Uint32(pkt[12:])
	rpcID := binary.LittleEndian.Uint32(pkt[16:])
	recvAddr := int(binary.LittleEndian.Uint32(pkt[24:]))
	recvSize := int(binary.LittleEndian.Uint32(pkt[28:]))
	serverAddr := hw.Addr(binary.LittleEndian.Uint32(pkt[36:]))

	srv := i.serverByAddr(serverAddr)
	if srv == nil {
		return
	}

	// The argument bytes were delivered to the server scratch buffer
	// ahead of this packet; the header says where and how much.
	var arg []byte
	if h.DataSize > 0 && int(h.DataAddr)+int(h.DataSize) <= len(i.bus.sub) {
		arg = i.bus.sub[h.DataAddr : int(h.DataAddr)+int(h.DataSize)]
	}

	var result []byte
	if srv.Handler != nil {
		result = srv.Handler(rpcID, arg)
	}
	n := min(len(result), recvSize)
	if recvAddr+n <= len(i.bus.main) {
		copy(i.bus.main[recvAddr:], result[:n])
	}

	end := make([]byte, 32)
	binary.LittleEndian.PutUint32(end[12:], token)
	binary.LittleEndian.PutUint32(end[16:], sif.CmdRPCCall)
	i.send(sif.CmdRPCEnd, 0, end)
}

func (i *IOP) serverByAddr(addr hw.Addr) *Server {
	for _, srv := range i.servers {
		if srv.Addr == addr {
			return srv
		}
	}
	return nil
}

func (i *IOP) writeSreg(reg uint32, val int32) {
	pkt := make([]byte, 8)
	binary.LittleEndian.PutUint32(pkt[0:], reg)
	binary.LittleEndian.PutUint32(pkt[4:], uint32(val))
	i.send(sif.CmdWriteSreg, 0, pkt)
}

// send builds and queues a satellite-to-main packet. Callers hold
// bus.mu.
func (i *IOP) send(cmd, opt uint32, pkt []byte) {
	i.sendRaw(sif.Header{
		PacketSize: uint8(sif.HeaderSize + len(pkt)),
		Cmd:        cmd,
		Opt:        opt,
	}, pkt)
}

func (i *IOP) sendRaw(h sif.Header, pkt []byte) {
	b := make([]byte, sif.HeaderSize+len(pkt))
	h.Marshal(b)
	copy(b[sif.HeaderSize:], pkt)
	i.bus.pending = append(i.bus.pending, b)
	i.bus.deliverPending()
}
