package thinkgear

import (
	"errors"
	"io"
)

// Stats holds decoder diagnostics. Checksum failures and skipped bytes are
// normal on a noisy Bluetooth serial link and are counted rather than
// surfaced as errors.
type Stats struct {
	Frames           uint64 // checksum-valid frames produced
	ChecksumFailures uint64 // frames dropped on checksum mismatch
	SkippedBytes     uint64 // bytes discarded while hunting for sync
}

// Decoder reconstructs packets from an unreliable byte stream. It is a lazy,
// restartable sequence: each call to Next scans forward until a
// checksum-valid frame is found or the stream ends.
//
// Recovery semantics: on a checksum mismatch (or an over-long length byte)
// the decoder discards a single byte and rescans from the next one, so a
// valid frame that happens to start inside a corrupted window is still
// found. Sync bytes inside a declared payload are never mistaken for a new
// frame start because the payload is consumed by its declared length before
// the checksum is verified.
type Decoder struct {
	r     io.Reader
	buf   []byte // unconsumed stream bytes
	stats Stats
	err   error // sticky stream error
}

// NewDecoder returns a Decoder reading from r. The decoder owns no goroutine
// and performs no buffering beyond the bytes of the frame being assembled.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Stats returns a snapshot of the decoder diagnostics.
func (d *Decoder) Stats() Stats { return d.stats }

// Next returns the next checksum-valid packet. When the stream ends,
// including mid-frame, Next returns io.EOF; a truncated trailing frame is
// not an error. Checksum failures never surface: the decoder resynchronises
// and keeps scanning.
func (d *Decoder) Next() (Packet, error) {
	for {
		// Two consecutive sync bytes mark a candidate frame start.
		if err := d.fill(2); err != nil {
			return Packet{}, err
		}
		if d.buf[0] != Sync || d.buf[1] != Sync {
			d.discard(1)
			d.stats.SkippedBytes++
			continue
		}

		// Skip any run of extra sync bytes before the length.
		i := 2
		for {
			if err := d.fill(i + 1); err != nil {
				return Packet{}, err
			}
			if d.buf[i] != Sync {
				break
			}
			i++
		}

		plen := int(d.buf[i])
		if plen > MaxPayload {
			d.discard(1)
			d.stats.SkippedBytes++
			continue
		}

		// Payload plus trailing checksum byte.
		end := i + 1 + plen + 1
		if err := d.fill(end); err != nil {
			return Packet{}, err
		}
		payload := d.buf[i+1 : i+1+plen]
		if checksum(payload) != d.buf[end-1] {
			d.stats.ChecksumFailures++
			// Discard only the first sync byte so frames overlapping the
			// corrupted window are still recoverable.
			d.discard(1)
			continue
		}

		p := Packet{Records: parseRecords(append([]byte(nil), payload...))}
		d.discard(end)
		d.stats.Frames++
		return p, nil
	}
}

// fill ensures at least n unconsumed bytes are buffered. A stream that ends
// before n bytes arrive yields io.EOF.
func (d *Decoder) fill(n int) error {
	for len(d.buf) < n {
		if d.err != nil {
			return d.err
		}
		chunk := make([]byte, 256)
		m, err := d.r.Read(chunk)
		if m > 0 {
			d.buf = append(d.buf, chunk[:m]...)
		}
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			d.err = err
		}
		// A zero-byte read without an error means no data was available
		// within the port's read timeout; keep waiting. The timeout itself
		// paces the loop.
	}
	return nil
}

// discard consumes n buffered bytes.
func (d *Decoder) discard(n int) {
	d.buf = d.buf[n:]
}
