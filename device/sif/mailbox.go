package sif

import "ps2sif/hw"

// Status flags shared by the sub-to-main and main-to-sub mailbox
// registers.
const (
	// StatusSifInit: the interface is initialised.
	StatusSifInit uint32 = 0x10000

	// StatusCmdInit: the command layer is initialised.
	StatusCmdInit uint32 = 0x20000

	// StatusBootEnd: the satellite bootup completed.
	StatusBootEnd uint32 = 0x40000
)

// writeMSFlag sets main-to-sub flag register bits.
func (s *Sif) writeMSFlag(mask uint32) {
	s.regs.Write32(hw.RegMSFlag, mask)
}

// writeSMFlag clears sub-to-main flag register bits.
func (s *Sif) writeSMFlag(mask uint32) {
	s.regs.Write32(hw.RegSMFlag, mask)
}

// readSMFlag reads the sub-to-main flag register, re-reading until two
// consecutive reads agree. The satellite updates the register
// asynchronously.
func (s *Sif) readSMFlag() uint32 {
	a := s.regs.Read32(hw.RegSMFlag)
	for {
		b := a
		a = s.regs.Read32(hw.RegSMFlag)
		if a == b {
			return a
		}
	}
}

func (s *Sif) smflagCmdInit() bool {
	return s.readSMFlag()&StatusCmdInit != 0
}

func (s *Sif) smflagBootEnd() bool {
	return s.readSMFlag()&StatusBootEnd != 0
}
