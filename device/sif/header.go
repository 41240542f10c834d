package sif

import (
	"encoding/binary"

	"ps2sif/hw"
)

// Wire format limits. Packets are measured in 16-byte units: a header
// occupies one unit and a packet at most seven.
const (
	// HeaderSize is the size in bytes of the command packet header.
	HeaderSize = 16

	// PacketMax is the maximum size in bytes of a command packet,
	// including the header.
	PacketMax = 112

	// PacketDataMax is the maximum size in bytes of the inline packet
	// following the header.
	PacketDataMax = PacketMax - HeaderSize
)

// Command ids are namespaced by the top bit: set for system commands,
// clear for user commands.
const (
	CmdIDSys uint32 = 0x80000000
	CmdIDUsr uint32 = 0x00000000
)

// Reserved system command ids.
const (
	CmdChangeSubAddr = CmdIDSys | 0x00
	CmdWriteSreg     = CmdIDSys | 0x01
	CmdInit          = CmdIDSys | 0x02
	CmdReset         = CmdIDSys | 0x03
	CmdRPCEnd        = CmdIDSys | 0x08
	CmdRPCBind       = CmdIDSys | 0x09
	CmdRPCCall       = CmdIDSys | 0x0a
	CmdRPCRData      = CmdIDSys | 0x0c
	CmdIRQRelay      = CmdIDSys | 0x20
)

// Well-known satellite RPC server ids.
const (
	ServerFileIO     uint32 = 0x80000001
	ServerHeap       uint32 = 0x80000003
	ServerLoadModule uint32 = 0x80000006
	ServerIRQRelay   uint32 = 0x80000020
)

// Header is the 16-byte command packet header. PacketSize and DataSize
// share the first little-endian word, with PacketSize in the low 8
// bits and DataSize in the high 24.
type Header struct {
	// PacketSize is the total packet size in bytes including the
	// header, a multiple of 16 between 16 and PacketMax.
	PacketSize uint8

	// DataSize is the size in bytes of the bulk payload, if any.
	// Only the low 24 bits travel on the wire.
	DataSize uint32

	// DataAddr is the destination address of the bulk payload, or
	// zero if the packet carries no bulk payload.
	DataAddr hw.Addr

	// Cmd is the command id.
	Cmd uint32

	// Opt is an opaque argument interpreted by the command handler.
	Opt uint32
}

// Marshal encodes the header into the first HeaderSize bytes of b.
func (h *Header) Marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], uint32(h.PacketSize)|h.DataSize<<8)
	binary.LittleEndian.PutUint32(b[4:], uint32(h.DataAddr))
	binary.LittleEndian.PutUint32(b[8:], h.Cmd)
	binary.LittleEndian.PutUint32(b[12:], h.Opt)
}

// Unmarshal decodes the header from the first HeaderSize bytes of b.
func (h *Header) Unmarshal(b []byte) {
	w := binary.LittleEndian.Uint32(b[0:])
	h.PacketSize = uint8(w)
	h.DataSize = w >> 8
	h.DataAddr = hw.Addr(binary.LittleEndian.Uint32(b[4:]))
	h.Cmd = binary.LittleEndian.Uint32(b[8:])
	h.Opt = binary.LittleEndian.Uint32(b[12:])
}

func align16(n int) int {
	return (n + 15) &^ 15
}

func putU32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

func getU32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
