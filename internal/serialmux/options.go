package serialmux

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the rate IMU boards stream at unless configured.
const DefaultBaudRate = 115200

// SupportedBaudRates lists the accepted line rates.
var SupportedBaudRates = []int{
	50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800, 2400, 4800,
	9600, 19200, 38400, 57600, 115200, 230400,
}

// parities maps accepted parity spellings to their one-letter form.
var parities = map[string]string{
	"": "N", "N": "N", "NONE": "N",
	"E": "E", "EVEN": "E",
	"O": "O", "ODD": "O",
}

var serialParity = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

var serialStopBits = map[int]serial.StopBits{
	1: serial.OneStopBit,
	2: serial.TwoStopBits,
}

// PortOptions are the line settings used to open a real port. They can be
// read from the [serial] section of the legacy config.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`

	// ReadTimeout bounds a single read; zero blocks.
	ReadTimeout time.Duration `json:"read_timeout"`
}

// Normalize fills unset fields with 115200 8N1 and rejects settings the
// port cannot use.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = DefaultBaudRate
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}

	_, stopOK := serialStopBits[o.StopBits]
	switch {
	case !slices.Contains(SupportedBaudRates, o.BaudRate):
		return o, fmt.Errorf("unsupported baud rate %d", o.BaudRate)
	case o.DataBits < 5 || o.DataBits > 8:
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", o.DataBits)
	case !stopOK:
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	case o.ReadTimeout < 0:
		return o, fmt.Errorf("invalid read timeout %s", o.ReadTimeout)
	}

	p, ok := parities[strings.ToUpper(strings.TrimSpace(o.Parity))]
	if !ok {
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	o.Parity = p
	return o, nil
}

// SerialMode returns the go.bug.st/serial mode for the normalized options.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		StopBits: serialStopBits[n.StopBits],
		Parity:   serialParity[n.Parity],
	}, nil
}
