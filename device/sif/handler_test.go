package sif

import (
	"errors"
	"fmt"
	"testing"
)

func newTestTransport() *Sif {
	return &Sif{
		handlers: newHandlerTable(),
		inBuf:    make([]byte, PacketMax),
	}
}

func TestRequestCmdRange(t *testing.T) {
	specs := []struct {
		cmd     uint32
		wantErr bool
	}{
		{CmdIDUsr | 0, false},
		{CmdIDUsr | 63, false},
		{CmdIDUsr | 64, true},
		{CmdIDSys | 0, false},
		{CmdIDSys | 63, false},
		{CmdIDSys | 64, true},
	}

	s := newTestTransport()
	cb := func(h *Header, pkt []byte, arg any) {}

	for specIndex, spec := range specs {
		err := s.RequestCmd(spec.cmd, cb, nil)
		if spec.wantErr {
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("[spec %d] expected ErrInvalidArgument for cmd %#x; got %v",
					specIndex, spec.cmd, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("[spec %d] expected cmd %#x to register; got %v",
				specIndex, spec.cmd, err)
		}
	}
}

func TestRequestCmdOverwrite(t *testing.T) {
	s := newTestTransport()
	cmd := CmdIDUsr | 0x21

	var invoked int
	for i := 1; i <= 2; i++ {
		i := i
		err := s.RequestCmd(cmd, func(h *Header, pkt []byte, arg any) {
			invoked = i
		}, nil)
		if err != nil {
			t.Fatalf("registration %d failed: %v", i, err)
		}
	}

	h, ok := s.lookupCmd(cmd)
	if !ok {
		t.Fatal("expected a handler to be registered")
	}
	h.cb(nil, nil, nil)

	if invoked != 2 {
		t.Fatalf("expected the later registration to win; handler %d invoked", invoked)
	}
}

func TestHandlerNamespaces(t *testing.T) {
	s := newTestTransport()
	cb := func(h *Header, pkt []byte, arg any) {}

	// The same low id registers independently in each namespace.
	if err := s.RequestCmd(CmdIDUsr|0x08, cb, "usr"); err != nil {
		t.Fatalf("user registration failed: %v", err)
	}
	if err := s.RequestCmd(CmdIDSys|0x08, cb, "sys"); err != nil {
		t.Fatalf("system registration failed: %v", err)
	}

	for _, spec := range []struct {
		cmd  uint32
		want string
	}{
		{CmdIDUsr | 0x08, "usr"},
		{CmdIDSys | 0x08, "sys"},
	} {
		h, ok := s.lookupCmd(spec.cmd)
		if !ok {
			t.Fatalf("expected a handler for cmd %#x", spec.cmd)
		}
		if h.arg != spec.want {
			t.Fatalf("expected cmd %#x to resolve to the %q handler; got %v",
				spec.cmd, spec.want, h.arg)
		}
	}
}

func TestRequestCmdFullTable(t *testing.T) {
	s := newTestTransport()
	cb := func(h *Header, pkt []byte, arg any) {}

	for id := uint32(0); id < handlerMax; id++ {
		if err := s.RequestCmd(CmdIDUsr|id, cb, nil); err != nil {
			t.Fatalf("registering cmd %d failed: %v", id, err)
		}
	}

	// Overwriting an existing entry still works on a full table.
	if err := s.RequestCmd(CmdIDUsr|0, cb, nil); err != nil {
		t.Fatalf("expected overwrite on a full table to succeed; got %v", err)
	}
}

func TestDispatchDropsInvalidSizes(t *testing.T) {
	s := newTestTransport()
	cmd := CmdIDUsr | 0x21

	var invoked bool
	if err := s.RequestCmd(cmd, func(h *Header, pkt []byte, arg any) {
		invoked = true
	}, nil); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	for _, size := range []uint8{0, 8, HeaderSize - 1, PacketMax + 1, 200} {
		s.dispatch(&Header{PacketSize: size, Cmd: cmd})
		if invoked {
			t.Fatalf("expected packet of size %d to be dropped", size)
		}
	}

	s.dispatch(&Header{PacketSize: HeaderSize, Cmd: cmd})
	if !invoked {
		t.Fatal("expected a valid packet to be dispatched")
	}
}

func TestDispatchDropsUnknownCmd(t *testing.T) {
	s := newTestTransport()

	var invoked bool
	if err := s.RequestCmd(CmdIDUsr|0x21, func(h *Header, pkt []byte, arg any) {
		invoked = true
	}, nil); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	s.dispatch(&Header{PacketSize: HeaderSize, Cmd: CmdIDUsr | 0x22})
	if invoked {
		t.Fatal("expected a packet for an unregistered command to be dropped")
	}
}

func TestDispatchPayloadView(t *testing.T) {
	s := newTestTransport()
	cmd := CmdIDUsr | 0x21

	payload := []byte{0xde, 0xad, 0xbe, 0xef, 0x99}
	copy(s.inBuf[HeaderSize:], payload)

	var got []byte
	if err := s.RequestCmd(cmd, func(h *Header, pkt []byte, arg any) {
		got = append([]byte(nil), pkt...)
	}, nil); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	s.dispatch(&Header{PacketSize: uint8(HeaderSize + len(payload)), Cmd: cmd})

	if fmt.Sprintf("%x", got) != fmt.Sprintf("%x", payload) {
		t.Fatalf("expected payload %x; got %x", payload, got)
	}
}
