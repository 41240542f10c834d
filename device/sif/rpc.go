package sif

import (
	"fmt"
	"sync"

	"github.com/golang/glog"

	"ps2sif/hw"
)

// RPC packet sizes on the wire. Each starts with a 12-byte packet
// header of {rec_id u32, pkt_addr u32, rpc_id u32}, unused by this
// side and sent as zero.
const (
	rpcHeaderSize  = 12
	bindPacketSize = 20 // header, client token, server id
	callPacketSize = 40 // header, client token, rpc id, send size, recv addr/size/mode, server
	endPacketSize  = 32 // header, client token, completed command id, server, server buffer, client buffer
)

type clientState uint8

const (
	stateUnbound clientState = iota
	stateBinding
	stateBound
)

// Client is a connection to a satellite RPC server. The zero value is
// an unbound client; Bind establishes the connection and Unbind
// releases it. A client owns its receive buffer exclusively.
type Client struct {
	s *Sif

	mu    sync.Mutex
	state clientState

	// token identifies this client in packets crossing the interface,
	// issued by the transport's client registry while bound.
	token uint32

	serverID     uint32
	server       hw.Addr // resolved satellite-side server address
	serverBuffer hw.Addr // satellite-side scratch buffer

	bufAddr hw.Addr // owned DMA-capable receive buffer
	buf     []byte

	done *completion
}

// ServerAddr returns the satellite-side address of the bound server,
// or zero if the client is not bound.
func (c *Client) ServerAddr() hw.Addr {
	return c.server
}

// Bind requests a connection to the satellite RPC server with the
// given id. It allocates the client's receive buffer, issues the bind
// system command and sleeps until the satellite acknowledges with an
// rpc-end packet carrying the resolved server addresses. The wait is
// unbounded; only process teardown aborts it.
//
// Bind fails with ErrNoSuchService if the satellite resolved no server
// for the id. The connection is released with Unbind.
func (c *Client) Bind(s *Sif, serverID uint32) error {
	c.mu.Lock()
	if c.state != stateUnbound {
		c.mu.Unlock()
		return fmt.Errorf("%w: client is not unbound", ErrInvalidArgument)
	}
	c.state = stateBinding
	c.mu.Unlock()

	c.s = s
	c.serverID = serverID
	c.server = 0
	c.serverBuffer = 0
	c.done = newCompletion()

	addr, err := s.mem.AllocDMA(s.cfg.BufferSize)
	if err != nil {
		c.setState(stateUnbound)
		return fmt.Errorf("%w: client buffer: %v", ErrOutOfMemory, err)
	}
	c.bufAddr = addr
	if c.buf, err = s.mem.Slice(addr, s.cfg.BufferSize); err != nil {
		c.release()
		return err
	}

	c.token = s.registerClient(c)

	pkt := make([]byte, bindPacketSize)
	putU32(pkt[12:], c.token)
	putU32(pkt[16:], serverID)

	if err := s.Cmd(CmdRPCBind, pkt); err != nil {
		s.unregisterClient(c.token)
		c.release()
		return err
	}

	c.done.wait()

	if c.server == 0 {
		s.unregisterClient(c.token)
		c.release()
		return fmt.Errorf("%w: server id %#x", ErrNoSuchService, serverID)
	}

	c.setState(stateBound)
	return nil
}

// Call issues a remote procedure call against the bound server and
// sleeps until the satellite signals completion. The send bytes are
// delivered to the server's scratch buffer ahead of the call command;
// the result is DMAd by the satellite directly into the client's
// receive buffer and copied out to recv once the round trip completes.
//
// Call returns once delivery completes; validating the result content
// is the caller's responsibility. A call the satellite never answers
// never returns: deadlines, if needed, belong to a higher layer.
func (c *Client) Call(rpcID uint32, send, recv []byte) error {
	c.mu.Lock()
	bound := c.state == stateBound
	c.mu.Unlock()
	if !bound {
		return fmt.Errorf("%w: client is not bound", ErrInvalidArgument)
	}
	if len(recv) > len(c.buf) {
		return fmt.Errorf("%w: %d byte receive exceeds %d byte client buffer",
			ErrInvalidArgument, len(recv), len(c.buf))
	}

	c.done.reinit()

	pkt := make([]byte, callPacketSize)
	putU32(pkt[12:], c.token)
	putU32(pkt[16:], rpcID)
	putU32(pkt[20:], uint32(len(send)))
	putU32(pkt[24:], uint32(c.bufAddr))
	putU32(pkt[28:], uint32(len(recv)))
	putU32(pkt[32:], 1) // receive mode
	putU32(pkt[36:], uint32(c.server))

	if err := c.s.CmdCopy(CmdRPCCall, pkt, c.serverBuffer, send); err != nil {
		return err
	}

	c.done.wait()

	if len(recv) > 0 {
		c.s.mem.Invalidate(c.bufAddr, len(recv))
		copy(recv, c.buf[:len(recv)])
	}

	return nil
}

// Unbind releases the connection and the client's receive buffer. The
// client may be bound again afterwards. Unbinding with a call in
// flight is the caller's responsibility to avoid.
func (c *Client) Unbind() {
	c.mu.Lock()
	if c.state == stateUnbound {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.s.unregisterClient(c.token)
	c.release()
}

func (c *Client) setState(st clientState) {
	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

func (c *Client) release() {
	if c.bufAddr != 0 {
		c.s.mem.FreeDMA(c.bufAddr)
	}
	c.bufAddr = 0
	c.buf = nil
	c.token = 0
	c.server = 0
	c.serverBuffer = 0
	c.setState(stateUnbound)
}

func (s *Sif) registerClient(c *Client) uint32 {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	s.nextClient++
	if s.nextClient == 0 {
		s.nextClient++ // token zero is reserved
	}
	s.clients[s.nextClient] = c

	return s.nextClient
}

func (s *Sif) unregisterClient(token uint32) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	delete(s.clients, token)
}

func (s *Sif) clientByToken(token uint32) *Client {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return s.clients[token]
}

// cmdRPCEnd handles the rpc-end system command that completes an
// outstanding bind or call. For a bind it records the resolved server
// addresses before resuming the blocked caller.
func (s *Sif) cmdRPCEnd(h *Header, pkt []byte, arg any) {
	if len(pkt) < endPacketSize {
		glog.Errorf("sif: short rpc-end packet, %d bytes", len(pkt))
		return
	}

	token := getU32(pkt[12:])
	c := s.clientByToken(token)
	if c == nil {
		glog.Errorf("sif: rpc-end for unknown client %d ignored", token)
		return
	}

	switch cmd := getU32(pkt[16:]); cmd {
	case CmdRPCCall:

	case CmdRPCBind:
		c.server = hw.Addr(getU32(pkt[20:]))
		c.serverBuffer = hw.Addr(getU32(pkt[24:]))

	default:
		glog.Errorf("sif: rpc-end with unexpected command %#x ignored", cmd)
		return
	}

	c.done.complete()
}

// cmdRPCBind answers a bind request issued by the satellite with an
// rpc-end acknowledgement. It runs on the dispatch path, so the reply
// uses the spin-bounded send.
func (s *Sif) cmdRPCBind(h *Header, pkt []byte, arg any) {
	if len(pkt) < bindPacketSize {
		glog.Errorf("sif: short rpc-bind packet, %d bytes", len(pkt))
		return
	}

	end := make([]byte, endPacketSize)
	putU32(end[12:], getU32(pkt[12:]))
	putU32(end[16:], CmdRPCBind)

	if err := s.cmdOptCopy(CmdRPCEnd, 0, end, 0, nil, true); err != nil {
		glog.Errorf("sif: rpc-bind acknowledgement failed: %v", err)
	}
}
