package iopmodule_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"ps2sif/device/sif"
	"ps2sif/device/sif/iopmodule"
	"ps2sif/hw"
	"ps2sif/hw/sim"
)

// loaderScript models the satellite module loader: it records each
// link request and assigns increasing module ids.
type loaderScript struct {
	nextID uint32
	status int32

	op   uint32
	addr uint32
	path string
	args string
}

func (ls *loaderScript) handle(op uint32, arg []byte) []byte {
	ls.op = op
	ls.addr = binary.LittleEndian.Uint32(arg[0:])
	ls.path = cstring(arg[8:260])
	ls.args = cstring(arg[260:512])

	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out[0:], uint32(ls.status))
	if ls.status == 0 {
		ls.nextID++
		binary.LittleEndian.PutUint32(out[4:], ls.nextID)
	}
	return out
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func newLoader(t *testing.T) (*sim.Bus, *iopmodule.Loader, *loaderScript) {
	t.Helper()

	b := sim.New()

	// The loader stages images through the satellite heap service.
	heapNext := uint32(0x40000)
	b.IOP().AddServer(&sim.Server{
		ID:     sif.ServerHeap,
		Addr:   0x3000,
		Buffer: 0x3100,
		Handler: func(op uint32, arg []byte) []byte {
			out := make([]byte, 4)
			if op == 1 {
				size := binary.LittleEndian.Uint32(arg)
				binary.LittleEndian.PutUint32(out, heapNext)
				heapNext += (size + 15) &^ 15
			}
			return out
		},
	})

	ls := &loaderScript{}
	b.IOP().AddServer(&sim.Server{
		ID:      sif.ServerLoadModule,
		Addr:    0x4000,
		Buffer:  0x4100,
		Handler: ls.handle,
	})

	s, err := sif.Init(b.Bus(), sif.Config{
		PollBudget:   time.Second,
		PollInterval: time.Millisecond,
	})
	if err != nil {
		b.Shutdown()
		t.Fatalf("expected Init to succeed; got %v", err)
	}

	l := &iopmodule.Loader{}
	if err := l.DriverInit(s); err != nil {
		s.Close()
		b.Shutdown()
		t.Fatalf("expected the loader driver to bind; got %v", err)
	}
	t.Cleanup(func() {
		l.Close()
		s.Close()
		b.Shutdown()
	})

	return b, l, ls
}

func TestLinkBuffer(t *testing.T) {
	b, l, ls := newLoader(t)

	image := make([]byte, 300)
	for i := range image {
		image[i] = byte(i)
	}

	id, err := l.LinkBuffer(image, "maxbackup=3")
	if err != nil {
		t.Fatalf("expected LinkBuffer to succeed; got %v", err)
	}
	if id != 1 {
		t.Fatalf("expected module id 1; got %d", id)
	}
	if ls.op != 6 {
		t.Fatalf("expected the link-buffer operation; got %d", ls.op)
	}
	if ls.args != "maxbackup=3" {
		t.Fatalf("expected argument string to reach the loader; got %q", ls.args)
	}

	// The image must have been staged at the address handed to the
	// loader.
	staged, err := b.Slice(hw.SubBusToMain(hw.Addr(ls.addr)), len(image))
	if err != nil {
		t.Fatalf("expected the staging address to be readable; got %v", err)
	}
	if !bytes.Equal(staged, image) {
		t.Fatal("expected the staged image to match the input")
	}
}

func TestLinkPath(t *testing.T) {
	_, l, ls := newLoader(t)

	id, err := l.LinkPath("rom0:SIO2MAN", "")
	if err != nil {
		t.Fatalf("expected LinkPath to succeed; got %v", err)
	}
	if id != 1 {
		t.Fatalf("expected module id 1; got %d", id)
	}
	if ls.op != 0 {
		t.Fatalf("expected the link-path operation; got %d", ls.op)
	}
	if ls.path != "rom0:SIO2MAN" {
		t.Fatalf("expected the path to reach the loader; got %q", ls.path)
	}
	if ls.addr != 0 {
		t.Fatalf("expected no staging address for a path link; got %#x", ls.addr)
	}
}

func TestLinkBufferLoaderFailure(t *testing.T) {
	_, l, ls := newLoader(t)
	ls.status = -202 // module not found

	_, err := l.LinkBuffer([]byte{1, 2, 3}, "")
	if !errors.Is(err, sif.ErrNoSuchService) {
		t.Fatalf("expected ErrNoSuchService; got %v", err)
	}
}

func TestLinkBufferInvalidInput(t *testing.T) {
	_, l, _ := newLoader(t)

	if _, err := l.LinkBuffer(nil, ""); !errors.Is(err, sif.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for an empty image; got %v", err)
	}

	longArgs := strings.Repeat("a", 300)
	if _, err := l.LinkBuffer([]byte{1}, longArgs); !errors.Is(err, sif.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for oversized arguments; got %v", err)
	}

	if _, err := l.LinkPath("", ""); !errors.Is(err, sif.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for an empty path; got %v", err)
	}
}
