package sif

import "fmt"

// HandlerFunc handles one inbound command packet. The header and the
// inline packet bytes following it are views into the transport's
// receive buffer and are only valid for the duration of the call.
//
// Handlers run on the inbound dispatch path, which executes in
// interrupt context: they must not block, sleep or allocate.
type HandlerFunc func(h *Header, pkt []byte, arg any)

type cmdHandler struct {
	cb  HandlerFunc
	arg any
}

// handlerMax is the capacity of each command namespace table.
const handlerMax = 64

type handlerTable struct {
	sys map[uint32]cmdHandler
	usr map[uint32]cmdHandler
}

func newHandlerTable() handlerTable {
	return handlerTable{
		sys: make(map[uint32]cmdHandler, handlerMax),
		usr: make(map[uint32]cmdHandler, handlerMax),
	}
}

func (t *handlerTable) namespace(cmd uint32) (map[uint32]cmdHandler, uint32, bool) {
	id := cmd &^ CmdIDSys
	if id >= handlerMax {
		return nil, 0, false
	}
	if cmd&CmdIDSys != 0 {
		return t.sys, id, true
	}
	return t.usr, id, true
}

// RequestCmd registers a handler for the given command id, overwriting
// any previous registration for the same id. It fails with
// ErrInvalidArgument if the id is outside its namespace table's
// capacity.
//
// Registration is expected during bring-up, before inbound traffic
// flows; the table is nevertheless locked against concurrent dispatch.
func (s *Sif) RequestCmd(cmd uint32, cb HandlerFunc, arg any) error {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	m, id, ok := s.handlers.namespace(cmd)
	if !ok {
		return fmt.Errorf("%w: command id 0x%x out of range", ErrInvalidArgument, cmd)
	}
	if _, exists := m[id]; !exists && len(m) >= handlerMax {
		return fmt.Errorf("%w: command table full", ErrInvalidArgument)
	}

	m[id] = cmdHandler{cb: cb, arg: arg}
	return nil
}

func (s *Sif) lookupCmd(cmd uint32) (cmdHandler, bool) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	m, id, ok := s.handlers.namespace(cmd)
	if !ok {
		return cmdHandler{}, false
	}
	h, ok := m[id]
	return h, ok && h.cb != nil
}
