package thinkgear

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewReadingDefaults(t *testing.T) {
	r := NewReading()
	if r.SignalQuality != NoContact {
		t.Errorf("SignalQuality = %d, want %d (no contact until proven otherwise)", r.SignalQuality, NoContact)
	}
	for name, v := range map[string]int{
		"Attention":  r.Attention,
		"Meditation": r.Meditation,
		"Blink":      r.Blink,
		"Alpha":      r.Alpha,
	} {
		if v != NotAvailable {
			t.Errorf("%s = %d, want NotAvailable", name, v)
		}
	}
}

func TestApplySparseMerge(t *testing.T) {
	r := NewReading()

	// A band-power packet arrives first.
	bands := BandPowers{LowAlpha: 40000, HighAlpha: 60000}
	r = r.Apply(Update{Bands: &bands})
	if r.Alpha != 50000 {
		t.Fatalf("Alpha = %d, want 50000", r.Alpha)
	}

	// A later packet carrying only attention must not disturb the bands.
	att := 70
	r = r.Apply(Update{Attention: &att})

	want := NewReading()
	want.Bands = bands
	want.Alpha = 50000
	want.Attention = 70
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("merged reading mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractMapsZeroToSentinel(t *testing.T) {
	p := Packet{Records: []Record{
		{Code: CodeAttention, Value: []byte{0}},
		{Code: CodeMeditation, Value: []byte{0}},
	}}
	u := Extract(p)
	if u.Attention == nil || *u.Attention != NotAvailable {
		t.Errorf("attention zero should extract as NotAvailable, got %v", u.Attention)
	}
	if u.Meditation == nil || *u.Meditation != NotAvailable {
		t.Errorf("meditation zero should extract as NotAvailable, got %v", u.Meditation)
	}
}

func TestExtractRawSample(t *testing.T) {
	p := Packet{Records: []Record{
		{Code: CodeRawValue, Value: []byte{0xFF, 0x38}}, // -200 big-endian
	}}
	u := Extract(p)
	if u.Raw == nil || *u.Raw != -200 {
		t.Errorf("raw = %v, want -200", u.Raw)
	}
}

func TestExtractSignalQuality(t *testing.T) {
	p := Packet{Records: []Record{{Code: CodePoorSignal, Value: []byte{120}}}}
	u := Extract(p)
	if u.SignalQuality == nil || *u.SignalQuality != 120 {
		t.Errorf("signal quality = %v, want 120", u.SignalQuality)
	}
}

func TestExtractIgnoresMalformedValues(t *testing.T) {
	p := Packet{Records: []Record{
		{Code: CodeRawValue, Value: []byte{0x01}},      // wrong length
		{Code: CodeEEGPower, Value: make([]byte, 23)},  // one byte short
		{Code: 0x99, Value: []byte{1, 2, 3}},           // unknown extended
	}}
	if u := Extract(p); !u.Empty() {
		t.Errorf("malformed records should extract nothing, got %+v", u)
	}
}
