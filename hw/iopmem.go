package hw

// SubRAMBase is the main-bus physical address where the satellite
// processor's RAM is visible to the main processor.
const SubRAMBase Addr = 0x1c000000

// SubBusToMain converts a satellite-bus address to the main-bus
// physical address of the same memory.
func SubBusToMain(baddr Addr) Addr {
	return baddr + SubRAMBase
}

// MainToSubBus converts a main-bus physical address within the
// satellite RAM window to the corresponding satellite-bus address.
func MainToSubBus(paddr Addr) Addr {
	return paddr - SubRAMBase
}
