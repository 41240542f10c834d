package iopheap_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"ps2sif/device/sif"
	"ps2sif/device/sif/iopheap"
	"ps2sif/hw/sim"
)

// heapScript models the satellite heap service: a bump allocator that
// reports exhaustion with a zero address and rejects frees of unknown
// addresses.
type heapScript struct {
	next  uint32
	limit uint32
	live  map[uint32]bool
}

func (hs *heapScript) handle(op uint32, arg []byte) []byte {
	out := make([]byte, 4)
	val := binary.LittleEndian.Uint32(arg)

	switch op {
	case 1: // alloc
		size := (val + 15) &^ 15
		if hs.next+size > hs.limit {
			return out // zero address: exhausted
		}
		binary.LittleEndian.PutUint32(out, hs.next)
		hs.live[hs.next] = true
		hs.next += size

	case 2: // free
		if !hs.live[val] {
			status := int32(-426) // invalid memory block
			binary.LittleEndian.PutUint32(out, uint32(status))
			break
		}
		delete(hs.live, val)
	}

	return out
}

func newHeap(t *testing.T) (*sim.Bus, *iopheap.Heap, *heapScript) {
	t.Helper()

	b := sim.New()
	hs := &heapScript{next: 0x8000, limit: 0x20000, live: make(map[uint32]bool)}
	b.IOP().AddServer(&sim.Server{
		ID:      sif.ServerHeap,
		Addr:    0x3000,
		Buffer:  0x3100,
		Handler: hs.handle,
	})

	s, err := sif.Init(b.Bus(), sif.Config{
		PollBudget:   time.Second,
		PollInterval: time.Millisecond,
	})
	if err != nil {
		b.Shutdown()
		t.Fatalf("expected Init to succeed; got %v", err)
	}

	h := &iopheap.Heap{}
	if err := h.DriverInit(s); err != nil {
		s.Close()
		b.Shutdown()
		t.Fatalf("expected the heap driver to bind; got %v", err)
	}
	t.Cleanup(func() {
		h.Close()
		s.Close()
		b.Shutdown()
	})

	return b, h, hs
}

func TestAllocFree(t *testing.T) {
	_, h, hs := newHeap(t)

	addr, err := h.Alloc(64)
	if err != nil {
		t.Fatalf("expected Alloc to succeed; got %v", err)
	}
	if addr == 0 {
		t.Fatal("expected a nonzero satellite address")
	}
	if !hs.live[uint32(addr)] {
		t.Fatalf("expected the service to track allocation %#x", addr)
	}

	if err := h.Free(addr); err != nil {
		t.Fatalf("expected Free to succeed; got %v", err)
	}
	if hs.live[uint32(addr)] {
		t.Fatalf("expected the service to release allocation %#x", addr)
	}
}

func TestAllocExhausted(t *testing.T) {
	_, h, _ := newHeap(t)

	_, err := h.Alloc(1 << 20)
	if !errors.Is(err, sif.ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory; got %v", err)
	}
}

func TestFreeUnknownAddress(t *testing.T) {
	_, h, _ := newHeap(t)

	err := h.Free(0xdead0)
	if !errors.Is(err, sif.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument; got %v", err)
	}
}
