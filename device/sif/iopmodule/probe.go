package iopmodule

import (
	"ps2sif/device"
	"ps2sif/device/sif"
)

// probeForLoader returns an unconnected loader driver. Presence of the
// service is established when DriverInit binds to it.
func probeForLoader(_ *sif.Sif) device.Driver {
	return &Loader{}
}

func init() {
	device.RegisterProbe(probeForLoader)
}
