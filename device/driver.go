// Package device defines the driver interface for services hosted on
// the satellite processor and a registry of probe functions used to
// detect them once the SIF transport is up.
package device

import (
	"github.com/golang/glog"

	"ps2sif/device/sif"
)

// Driver is an interface implemented by all satellite service drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit connects the driver to its satellite service over the
	// given transport.
	DriverInit(s *sif.Sif) error
}

// ProbeFn is a function that checks the satellite for the presence of
// a particular service and returns a driver for it, or nil.
type ProbeFn func(s *sif.Sif) Driver

var probeFns []ProbeFn

// RegisterProbe adds a probe function to the registry. Driver packages
// call it from init.
func RegisterProbe(fn ProbeFn) {
	probeFns = append(probeFns, fn)
}

// DetectDrivers probes for satellite services over the given transport
// and returns the initialised drivers. Probe and init failures are
// logged and skipped.
func DetectDrivers(s *sif.Sif) []Driver {
	var drivers []Driver

	for _, probe := range probeFns {
		drv := probe(s)
		if drv == nil {
			continue
		}

		major, minor, patch := drv.DriverVersion()
		if err := drv.DriverInit(s); err != nil {
			glog.Errorf("device: init %s %d.%d.%d: %v",
				drv.DriverName(), major, minor, patch, err)
			continue
		}

		glog.V(1).Infof("device: %s %d.%d.%d up",
			drv.DriverName(), major, minor, patch)
		drivers = append(drivers, drv)
	}

	return drivers
}
