package serialmux

import (
	"errors"
	"fmt"

	"go.bug.st/serial"

	"github.com/banshee-data/imufusion/internal/monitoring"
)

// ErrPortNotFound is returned when none of the candidate ports exist.
var ErrPortNotFound = errors.New("serial port not found")

// OpenSerialPort opens the device at path with opts, applying the read
// timeout when one is set.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	if opts.ReadTimeout > 0 {
		if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("failed to set read timeout: %w", err)
		}
	}
	return port, nil
}

// OpenFirst opens the first of paths for which exists reports true.
// Later candidates are not tried once an existing port fails to open.
func OpenFirst(paths []string, opts PortOptions, exists func(string) bool, open PortOpener) (SerialPorter, string, error) {
	if open == nil {
		open = OpenSerialPort
	}
	for _, p := range paths {
		if !exists(p) {
			continue
		}
		monitoring.Logf("opening serial port %s", p)
		port, err := open(p, opts)
		if err != nil {
			return nil, p, fmt.Errorf("failed to open serial port %s: %w", p, err)
		}
		return port, p, nil
	}
	return nil, "", fmt.Errorf("%w: tried %v", ErrPortNotFound, paths)
}

// NewRealSerialMux creates a SerialMux backed by the first existing port
// among paths.
func NewRealSerialMux(paths []string, opts PortOptions, exists func(string) bool) (*SerialMux[SerialPorter], error) {
	port, _, err := OpenFirst(paths, opts, exists, OpenSerialPort)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}
