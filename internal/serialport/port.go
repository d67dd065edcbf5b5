// Package serialport abstracts the serial link to the headset. The headset
// presents as a Bluetooth RFCOMM serial device; the decoder only needs "read
// available bytes with a short timeout", so the abstraction is a plain
// io.ReadWriteCloser. This keeps every consumer testable without hardware.
package serialport

import (
	"io"
	"time"
)

// Porter is the minimal interface for a serial port.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter extends Porter with a read timeout, so a stalled link
// surfaces as a zero-byte read instead of blocking a control cycle forever.
// Real ports implement it; mock ports may not.
type TimeoutPorter interface {
	Porter
	SetReadTimeout(timeout time.Duration) error
}
