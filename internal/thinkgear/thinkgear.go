// Package thinkgear decodes the NeuroSky ThinkGear serial protocol used by
// MindWave headsets. It reconstructs checksum-validated packets from a raw
// byte stream and extracts typed sensor readings from their payloads.
//
// Frame layout on the wire:
//
//	[0xAA] [0xAA] [PLENGTH] [PAYLOAD...] [CHECKSUM]
//
// where CHECKSUM is the ones' complement of the low byte of the payload sum.
// Payloads are sequences of (code, value) records: codes below 0x80 carry a
// single value byte; codes at or above 0x80 carry a length byte followed by
// that many value bytes.
package thinkgear

// Framing constants.
const (
	Sync       = 0xAA // frame marker, appears twice at frame start
	ExCode     = 0x55 // extended-code prefix, skipped before the code byte
	MaxPayload = 169  // a length byte above this cannot start a valid frame
)

// Simple payload codes (single value byte).
const (
	CodePoorSignal = 0x02 // 0 = perfect contact, 200 = no contact
	CodeAttention  = 0x04 // 0-100, 0 means the headset could not calculate
	CodeMeditation = 0x05 // 0-100, 0 means the headset could not calculate
	CodeBlink      = 0x16 // blink strength 1-255
)

// Extended payload codes (length byte followed by value bytes).
const (
	CodeRawValue = 0x80 // 2-byte big-endian signed raw sample
	CodeEEGPower = 0x83 // 8 bands x 3-byte big-endian magnitudes
)

// extendedCodeMin is the first code that carries a declared length. Records
// with unknown codes are skipped using this rule so that firmware additions
// never break decoding.
const extendedCodeMin = 0x80

// Record is a single (code, value) unit inside a packet payload. Value holds
// exactly one byte for simple codes and the declared number of bytes for
// extended codes, including codes this package does not recognise.
type Record struct {
	Code  byte
	Value []byte
}

// Extended reports whether the record's code carries a declared length on
// the wire.
func (r Record) Extended() bool { return r.Code >= extendedCodeMin }

// Packet is one checksum-validated frame. Packets are produced only after
// checksum verification succeeds; malformed byte runs never surface as a
// Packet.
type Packet struct {
	Records []Record
}

// parseRecords splits a verified payload into records. ExCode prefix bytes
// are skipped. A record truncated by the end of the payload terminates
// parsing; records decoded before the truncation are kept.
func parseRecords(payload []byte) []Record {
	var records []Record
	i := 0
	for i < len(payload) {
		for i < len(payload) && payload[i] == ExCode {
			i++
		}
		if i >= len(payload) {
			break
		}
		code := payload[i]
		i++

		if code >= extendedCodeMin {
			if i >= len(payload) {
				break
			}
			vlen := int(payload[i])
			i++
			if i+vlen > len(payload) {
				break
			}
			records = append(records, Record{Code: code, Value: payload[i : i+vlen]})
			i += vlen
			continue
		}

		if i >= len(payload) {
			break
		}
		records = append(records, Record{Code: code, Value: payload[i : i+1]})
		i++
	}
	return records
}

// checksum computes the ThinkGear payload checksum: the ones' complement of
// the low byte of the payload sum.
func checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return ^sum
}
