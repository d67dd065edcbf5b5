package thinkgear

import "encoding/binary"

// NotAvailable is the sentinel for scalar metrics the headset has not yet
// reported, or reported as uncalculable. The ThinkGear protocol encodes
// "unable to calculate" as a zero attention/meditation value; this package
// maps that to the sentinel so downstream consumers can hold their last good
// value instead of lurching to an extreme.
const NotAvailable = -1

// NoContact is the worst signal quality value: the sensor has no skin
// contact. Zero is perfect contact.
const NoContact = 200

// BandPowers holds the eight ASIC EEG band magnitudes. Each is a 3-byte
// unsigned magnitude with no defined unit; only relative changes are
// meaningful.
type BandPowers struct {
	Delta     uint32 `json:"delta"`
	Theta     uint32 `json:"theta"`
	LowAlpha  uint32 `json:"low_alpha"`
	HighAlpha uint32 `json:"high_alpha"`
	LowBeta   uint32 `json:"low_beta"`
	HighBeta  uint32 `json:"high_beta"`
	LowGamma  uint32 `json:"low_gamma"`
	MidGamma  uint32 `json:"mid_gamma"`
}

// Reading is a merged point-in-time snapshot of all known sensor fields.
// The protocol multiplexes slow fields (band powers, roughly once per
// second) and fast fields (raw samples, hundreds per second) in one stream,
// so a Reading accumulates across packets: fields absent from a packet keep
// their previous value.
type Reading struct {
	SignalQuality int        `json:"signal_quality"` // 0 best .. 200 no contact
	Attention     int        `json:"attention"`      // 0-100 or NotAvailable
	Meditation    int        `json:"meditation"`     // 0-100 or NotAvailable
	Blink         int        `json:"blink"`          // 1-255 or NotAvailable
	Alpha         int        `json:"alpha"`          // mean of low/high alpha, or NotAvailable
	Bands         BandPowers `json:"bands"`
	Raw           int16      `json:"raw"`
}

// NewReading returns the zero-knowledge snapshot: no contact, all scalar
// metrics not available.
func NewReading() Reading {
	return Reading{
		SignalQuality: NoContact,
		Attention:     NotAvailable,
		Meditation:    NotAvailable,
		Blink:         NotAvailable,
		Alpha:         NotAvailable,
	}
}

// Update is the set of fields one packet changed. Nil fields were not
// present in the packet (sparse update semantics).
type Update struct {
	SignalQuality *int
	Attention     *int
	Meditation    *int
	Blink         *int
	Bands         *BandPowers
	Raw           *int16
}

// Empty reports whether the update carries no recognised fields.
func (u Update) Empty() bool {
	return u.SignalQuality == nil && u.Attention == nil && u.Meditation == nil &&
		u.Blink == nil && u.Bands == nil && u.Raw == nil
}

// Extract interprets one packet's records into an Update. Unrecognised
// record codes are ignored. Extract has no side effects; it never touches
// transport or mapping state.
func Extract(p Packet) Update {
	var u Update
	for _, rec := range p.Records {
		switch rec.Code {
		case CodePoorSignal:
			if len(rec.Value) == 1 {
				v := int(rec.Value[0])
				u.SignalQuality = &v
			}
		case CodeAttention:
			if len(rec.Value) == 1 {
				v := scalarOrSentinel(rec.Value[0])
				u.Attention = &v
			}
		case CodeMeditation:
			if len(rec.Value) == 1 {
				v := scalarOrSentinel(rec.Value[0])
				u.Meditation = &v
			}
		case CodeBlink:
			if len(rec.Value) == 1 {
				v := int(rec.Value[0])
				u.Blink = &v
			}
		case CodeRawValue:
			if len(rec.Value) == 2 {
				v := int16(binary.BigEndian.Uint16(rec.Value))
				u.Raw = &v
			}
		case CodeEEGPower:
			if len(rec.Value) == 24 {
				b := BandPowers{
					Delta:     uint24(rec.Value[0:3]),
					Theta:     uint24(rec.Value[3:6]),
					LowAlpha:  uint24(rec.Value[6:9]),
					HighAlpha: uint24(rec.Value[9:12]),
					LowBeta:   uint24(rec.Value[12:15]),
					HighBeta:  uint24(rec.Value[15:18]),
					LowGamma:  uint24(rec.Value[18:21]),
					MidGamma:  uint24(rec.Value[21:24]),
				}
				u.Bands = &b
			}
		}
	}
	return u
}

// scalarOrSentinel maps the headset's zero "unable to calculate" encoding to
// NotAvailable.
func scalarOrSentinel(b byte) int {
	if b == 0 {
		return NotAvailable
	}
	return int(b)
}

// Apply merges an update into a snapshot and returns the new snapshot.
// Fields absent from the update retain their previous value. The combined
// alpha magnitude is derived whenever band powers arrive.
func (r Reading) Apply(u Update) Reading {
	if u.SignalQuality != nil {
		r.SignalQuality = *u.SignalQuality
	}
	if u.Attention != nil {
		r.Attention = *u.Attention
	}
	if u.Meditation != nil {
		r.Meditation = *u.Meditation
	}
	if u.Blink != nil {
		r.Blink = *u.Blink
	}
	if u.Bands != nil {
		r.Bands = *u.Bands
		r.Alpha = int(r.Bands.LowAlpha+r.Bands.HighAlpha) / 2
	}
	if u.Raw != nil {
		r.Raw = *u.Raw
	}
	return r
}

func uint24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}
