package sif

import (
	"bytes"
	"testing"
)

func TestHeaderMarshalGolden(t *testing.T) {
	h := Header{
		PacketSize: 32,
		DataSize:   0x123456,
		DataAddr:   0xdeadbeef,
		Cmd:        CmdRPCBind,
		Opt:        7,
	}

	// Packet size and data size share the first little-endian word.
	want := []byte{
		0x20, 0x56, 0x34, 0x12,
		0xef, 0xbe, 0xad, 0xde,
		0x09, 0x00, 0x00, 0x80,
		0x07, 0x00, 0x00, 0x00,
	}

	got := make([]byte, HeaderSize)
	h.Marshal(got)

	if !bytes.Equal(got, want) {
		t.Fatalf("expected header bytes %x; got %x", want, got)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	specs := []Header{
		{PacketSize: HeaderSize},
		{PacketSize: PacketMax, DataSize: 1 << 12, DataAddr: 0x1c000100, Cmd: CmdReset, Opt: 1},
		{PacketSize: 21, Cmd: CmdIDUsr | 0x21},
		{PacketSize: 48, DataSize: 0xffffff, DataAddr: 0xfffffff0, Cmd: CmdRPCCall, Opt: 0xffffffff},
	}

	for specIndex, want := range specs {
		b := make([]byte, HeaderSize)
		want.Marshal(b)

		var got Header
		got.Unmarshal(b)

		if got != want {
			t.Errorf("[spec %d] expected %+v; got %+v", specIndex, want, got)
		}
	}
}

func TestAlign16(t *testing.T) {
	specs := []struct {
		in, want int
	}{
		{0, 0},
		{1, 16},
		{16, 16},
		{17, 32},
		{96, 96},
		{97, 112},
	}

	for specIndex, spec := range specs {
		if got := align16(spec.in); got != spec.want {
			t.Errorf("[spec %d] expected align16(%d) to return %d; got %d",
				specIndex, spec.in, spec.want, got)
		}
	}
}
