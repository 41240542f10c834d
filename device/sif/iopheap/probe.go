package iopheap

import (
	"ps2sif/device"
	"ps2sif/device/sif"
)

// probeForHeap returns an unconnected heap driver. Presence of the
// service is established when DriverInit binds to it.
func probeForHeap(_ *sif.Sif) device.Driver {
	return &Heap{}
}

func init() {
	device.RegisterProbe(probeForHeap)
}
