package dmac

import (
	"testing"

	"ps2sif/hw"
)

type fakeRegs struct {
	regs [hw.NumRegs]uint32
}

func (f *fakeRegs) Read32(reg hw.Reg) uint32 {
	return f.regs[reg]
}

func (f *fakeRegs) Write32(reg hw.Reg, val uint32) {
	f.regs[reg] = val
}

func TestChannelSend(t *testing.T) {
	f := &fakeRegs{}
	c := NewChannel(f, hw.RegOutChcr, hw.RegOutMadr, hw.RegOutQwc)

	c.Send(0x1040, 7)

	if got := f.regs[hw.RegOutMadr]; got != 0x1040 {
		t.Fatalf("expected memory address 0x1040; got %#x", got)
	}
	if got := f.regs[hw.RegOutQwc]; got != 7 {
		t.Fatalf("expected quadword count 7; got %d", got)
	}
	if got := f.regs[hw.RegOutChcr]; got != ChcrSendNTie {
		t.Fatalf("expected control %#x; got %#x", ChcrSendNTie, got)
	}
	if !c.Busy() {
		t.Fatal("expected the channel to report busy after Send")
	}
}

func TestChannelArm(t *testing.T) {
	f := &fakeRegs{}
	f.regs[hw.RegInMadr] = 0xdead
	f.regs[hw.RegInQwc] = 3
	c := NewChannel(f, hw.RegInChcr, hw.RegInMadr, hw.RegInQwc)

	c.Arm()

	if got := f.regs[hw.RegInMadr]; got != 0 {
		t.Fatalf("expected the memory address to be cleared; got %#x", got)
	}
	if got := f.regs[hw.RegInQwc]; got != 0 {
		t.Fatalf("expected the quadword count to be cleared; got %d", got)
	}
	if got := f.regs[hw.RegInChcr]; got != ChcrRecvCTie {
		t.Fatalf("expected control %#x; got %#x", ChcrRecvCTie, got)
	}
}

func TestChannelStop(t *testing.T) {
	f := &fakeRegs{}
	c := NewChannel(f, hw.RegOutChcr, hw.RegOutMadr, hw.RegOutQwc)
	c.Send(0x1040, 7)

	c.Stop()

	if got := f.regs[hw.RegOutChcr]; got != ChcrStop {
		t.Fatalf("expected control %#x; got %#x", ChcrStop, got)
	}
	if c.Busy() {
		t.Fatal("expected the channel to be idle after Stop")
	}
}
