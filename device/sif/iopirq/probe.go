package iopirq

import (
	"ps2sif/device"
	"ps2sif/device/sif"
)

// probeForRelay returns an unconnected relay driver. Presence of the
// service is established when DriverInit binds to it.
func probeForRelay(_ *sif.Sif) device.Driver {
	return &Relay{}
}

func init() {
	device.RegisterProbe(probeForRelay)
}
