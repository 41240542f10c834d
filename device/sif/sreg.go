package sif

import (
	"encoding/binary"

	"github.com/golang/glog"
)

// Scratch registers written by the satellite via the write-register
// system command. Two of them signal layer readiness during boot.
const (
	// SregRPCInit becomes nonzero once the satellite RPC layer is
	// live.
	SregRPCInit = 0

	// SregCmdInit becomes nonzero once the satellite command layer is
	// live.
	SregCmdInit = 1

	sregCount = 32
)

func (s *Sif) readSreg(reg uint32) int32 {
	s.sregsMu.Lock()
	defer s.sregsMu.Unlock()
	return s.sregs[reg]
}

func (s *Sif) sregRPCInit() bool {
	return s.readSreg(SregRPCInit) != 0
}

func (s *Sif) sregCmdInit() bool {
	return s.readSreg(SregCmdInit) != 0
}

// cmdWriteSreg handles the write-register system command: a packet of
// {reg u32, val s32}.
func (s *Sif) cmdWriteSreg(h *Header, pkt []byte, arg any) {
	if len(pkt) < 8 {
		glog.Errorf("sif: short write-register packet, %d bytes", len(pkt))
		return
	}
	reg := binary.LittleEndian.Uint32(pkt[0:])
	val := int32(binary.LittleEndian.Uint32(pkt[4:]))

	if reg >= sregCount {
		glog.Errorf("sif: write-register out of range: %d", reg)
		return
	}

	s.sregsMu.Lock()
	s.sregs[reg] = val
	s.sregsMu.Unlock()
}
