// Package iopmodule drives the satellite module loader service: it
// links relocatable modules into the satellite kernel, either from a
// buffer staged into satellite RAM or from a path on a satellite
// filesystem.
package iopmodule

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"ps2sif/device/sif"
	"ps2sif/device/sif/ioperr"
	"ps2sif/device/sif/iopheap"
	"ps2sif/hw"
)

// Loader service operations.
const (
	opLoad       = 0 // link a module from a satellite filesystem path
	opLoadBuffer = 6 // link a module staged in satellite RAM
)

// Request layout: {addr u32, arg size u32, filepath, argument string}.
const (
	requestSize = 512
	pathMax     = 252 // including NUL
	argMax      = 252 // including NUL

	pathOff = 8
	argOff  = pathOff + pathMax
)

// Loader is a connection to the satellite module loader service. It
// owns a private heap connection for staging module images. The zero
// value is unconnected; DriverInit binds it.
type Loader struct {
	mu     sync.Mutex
	mem    hw.Memory
	heap   iopheap.Heap
	client sif.Client
}

// DriverName returns the name of the driver.
func (l *Loader) DriverName() string {
	return "iopmodule"
}

// DriverVersion returns the driver version.
func (l *Loader) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit binds the loader and its staging heap to their satellite
// servers.
func (l *Loader) DriverInit(s *sif.Sif) error {
	l.mem = s.Memory()

	if err := l.heap.DriverInit(s); err != nil {
		return err
	}
	if err := l.client.Bind(s, sif.ServerLoadModule); err != nil {
		l.heap.Close()
		return err
	}

	return nil
}

// Close releases both connections.
func (l *Loader) Close() {
	l.client.Unbind()
	l.heap.Close()
}

// LinkBuffer stages the module image in satellite RAM and asks the
// loader to link it, passing args as the module's argument string. It
// returns the satellite-assigned module id.
func (l *Loader) LinkBuffer(image []byte, args string) (uint32, error) {
	if len(image) == 0 {
		return 0, fmt.Errorf("%w: empty module image", sif.ErrInvalidArgument)
	}

	req, err := request(0, "", args)
	if err != nil {
		return 0, err
	}

	addr, err := l.heap.Alloc(len(image))
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(req, uint32(addr))

	// Stage the image through the satellite RAM window.
	win, err := l.mem.Slice(hw.SubBusToMain(addr), len(image))
	if err != nil {
		l.free(addr)
		return 0, err
	}
	copy(win, image)
	l.mem.FlushWriteback(hw.SubBusToMain(addr), len(image))

	id, err := l.link(opLoadBuffer, req)
	l.free(addr)

	return id, err
}

// LinkPath asks the loader to link the module at the given satellite
// filesystem path, passing args as the module's argument string. It
// returns the satellite-assigned module id.
func (l *Loader) LinkPath(path, args string) (uint32, error) {
	if path == "" {
		return 0, fmt.Errorf("%w: empty module path", sif.ErrInvalidArgument)
	}
	req, err := request(0, path, args)
	if err != nil {
		return 0, err
	}

	return l.link(opLoad, req)
}

func (l *Loader) link(op uint32, req []byte) (uint32, error) {
	recv := make([]byte, 8)

	l.mu.Lock()
	err := l.client.Call(op, req, recv)
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}

	status := int32(binary.LittleEndian.Uint32(recv[0:]))
	if err := ioperr.Error(status); err != nil {
		return 0, fmt.Errorf("module link: %w", err)
	}

	return binary.LittleEndian.Uint32(recv[4:]), nil
}

func (l *Loader) free(addr hw.Addr) {
	if err := l.heap.Free(addr); err != nil {
		glog.Errorf("iopmodule: releasing staging buffer %#x: %v", addr, err)
	}
}

// request builds a loader request packet.
func request(addr hw.Addr, path, args string) ([]byte, error) {
	if len(path)+1 > pathMax {
		return nil, fmt.Errorf("%w: module path %d bytes exceeds %d",
			sif.ErrInvalidArgument, len(path)+1, pathMax)
	}
	if len(args)+1 > argMax {
		return nil, fmt.Errorf("%w: module argument %d bytes exceeds %d",
			sif.ErrInvalidArgument, len(args)+1, argMax)
	}

	req := make([]byte, requestSize)
	binary.LittleEndian.PutUint32(req[0:], uint32(addr))
	binary.LittleEndian.PutUint32(req[4:], uint32(len(args)+1))
	copy(req[pathOff:], path)
	copy(req[argOff:], args)

	return req, nil
}
