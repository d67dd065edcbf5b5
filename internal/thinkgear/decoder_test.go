package thinkgear

import (
	"bytes"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// frame wraps a payload in sync bytes, length, and a valid checksum.
func frame(payload ...byte) []byte {
	out := []byte{Sync, Sync, byte(len(payload))}
	out = append(out, payload...)
	out = append(out, checksum(payload))
	return out
}

// bandRecord builds a 0x83 ASIC EEG power record with the given eight band
// magnitudes.
func bandRecord(bands ...uint32) []byte {
	if len(bands) != 8 {
		panic("bandRecord requires exactly 8 bands")
	}
	out := []byte{CodeEEGPower, 24}
	for _, b := range bands {
		out = append(out, byte(b>>16), byte(b>>8), byte(b))
	}
	return out
}

func decodeAll(t *testing.T, stream []byte) []Packet {
	t.Helper()
	d := NewDecoder(bytes.NewReader(stream))
	var packets []Packet
	for {
		p, err := d.Next()
		if err == io.EOF {
			return packets
		}
		if err != nil {
			t.Fatalf("Next() returned unexpected error: %v", err)
		}
		packets = append(packets, p)
	}
}

func TestDecoderValidFrame(t *testing.T) {
	// Attention 70, meditation 30, band powers with high-alpha 50000.
	payload := []byte{CodeAttention, 70, CodeMeditation, 30}
	payload = append(payload, bandRecord(1000, 2000, 40000, 50000, 500, 600, 70, 80)...)

	packets := decodeAll(t, frame(payload...))
	if len(packets) != 1 {
		t.Fatalf("decoded %d packets, want 1", len(packets))
	}

	got := NewReading().Apply(Extract(packets[0]))
	want := NewReading()
	want.Attention = 70
	want.Meditation = 30
	want.Bands = BandPowers{
		Delta: 1000, Theta: 2000,
		LowAlpha: 40000, HighAlpha: 50000,
		LowBeta: 500, HighBeta: 600,
		LowGamma: 70, MidGamma: 80,
	}
	want.Alpha = 45000
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reading mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoderResyncAfterBitFlip(t *testing.T) {
	good := frame(CodeAttention, 70)
	corrupt := frame(CodeAttention, 70)
	corrupt[4] ^= 0x01 // flip one payload bit; checksum no longer matches

	stream := append([]byte{}, corrupt...)
	stream = append(stream, frame(CodeMeditation, 30)...)
	stream = append(stream, good...)

	d := NewDecoder(bytes.NewReader(stream))
	var packets []Packet
	for {
		p, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() returned unexpected error: %v", err)
		}
		packets = append(packets, p)
	}

	// Exactly the corrupted frame is dropped; both later frames decode.
	if len(packets) != 2 {
		t.Fatalf("decoded %d packets, want 2", len(packets))
	}
	if packets[0].Records[0].Code != CodeMeditation {
		t.Errorf("first surviving record code = %#x, want meditation", packets[0].Records[0].Code)
	}
	if packets[1].Records[0].Code != CodeAttention {
		t.Errorf("second surviving record code = %#x, want attention", packets[1].Records[0].Code)
	}
	if d.Stats().ChecksumFailures == 0 {
		t.Error("expected checksum failure to be counted")
	}
}

func TestDecoderSyncBytesInsidePayload(t *testing.T) {
	// An unknown extended record whose value bytes contain the sync marker
	// twice. The declared length must win over the coincidental sync pair.
	payload := []byte{0x90, 4, Sync, Sync, 0x01, 0x02, CodeAttention, 55}
	stream := append(frame(payload...), frame(CodeMeditation, 44)...)

	packets := decodeAll(t, stream)
	if len(packets) != 2 {
		t.Fatalf("decoded %d packets, want 2", len(packets))
	}
	u := Extract(packets[0])
	if u.Attention == nil || *u.Attention != 55 {
		t.Errorf("attention after embedded sync bytes = %v, want 55", u.Attention)
	}
}

func TestDecoderFrameInsideCorruptedWindow(t *testing.T) {
	// A corrupted frame whose claimed payload fully contains a valid frame.
	// One-byte-discard resync must still find the inner frame.
	inner := frame(CodeAttention, 88)
	outer := []byte{Sync, Sync, byte(len(inner) + 2), 0x01}
	outer = append(outer, inner...)
	outer = append(outer, 0x02, 0x00) // filler + wrong checksum

	packets := decodeAll(t, outer)
	if len(packets) != 1 {
		t.Fatalf("decoded %d packets, want the inner frame", len(packets))
	}
	u := Extract(packets[0])
	if u.Attention == nil || *u.Attention != 88 {
		t.Errorf("inner frame attention = %v, want 88", u.Attention)
	}
}

func TestDecoderTruncatedStream(t *testing.T) {
	full := frame(CodeAttention, 70)
	for cut := 1; cut < len(full); cut++ {
		d := NewDecoder(bytes.NewReader(full[:cut]))
		if _, err := d.Next(); err != io.EOF {
			t.Errorf("cut=%d: Next() error = %v, want io.EOF", cut, err)
		}
	}
}

func TestDecoderSkipsLeadingGarbage(t *testing.T) {
	stream := append([]byte{0x00, 0x13, 0x37, Sync, 0x42}, frame(CodeMeditation, 61)...)
	packets := decodeAll(t, stream)
	if len(packets) != 1 {
		t.Fatalf("decoded %d packets, want 1", len(packets))
	}
	if d := NewDecoder(bytes.NewReader(stream)); d.Stats().SkippedBytes != 0 {
		t.Error("stats should start at zero")
	}
}

func TestDecoderRejectsOversizedLength(t *testing.T) {
	// 0xAA 0xAA 0xFF looks like a frame start with an impossible length;
	// the decoder must resync and find the real frame that follows.
	stream := append([]byte{Sync, Sync, 0xFF}, frame(CodeAttention, 12)...)
	packets := decodeAll(t, stream)
	if len(packets) != 1 {
		t.Fatalf("decoded %d packets, want 1", len(packets))
	}
}

func TestDecoderExtraSyncRun(t *testing.T) {
	// Extra sync bytes between the marker and the length byte are tolerated.
	payload := []byte{CodeAttention, 33}
	stream := []byte{Sync, Sync, Sync, Sync, byte(len(payload))}
	stream = append(stream, payload...)
	stream = append(stream, checksum(payload))

	packets := decodeAll(t, stream)
	if len(packets) != 1 {
		t.Fatalf("decoded %d packets, want 1", len(packets))
	}
}

func TestParseRecordsSkipsUnknownCodes(t *testing.T) {
	// Unknown simple code 0x07, unknown extended code 0x90 with 3 value
	// bytes, then a known record. All are carried; none abort the frame.
	payload := []byte{0x07, 0xBB, 0x90, 3, 1, 2, 3, CodeAttention, 42}
	records := parseRecords(payload)
	if len(records) != 3 {
		t.Fatalf("parsed %d records, want 3", len(records))
	}
	if records[0].Code != 0x07 || records[0].Extended() {
		t.Errorf("record 0 = %+v, want simple code 0x07", records[0])
	}
	if records[1].Code != 0x90 || len(records[1].Value) != 3 {
		t.Errorf("record 1 = %+v, want extended code 0x90 with 3 bytes", records[1])
	}
	if records[2].Code != CodeAttention || records[2].Value[0] != 42 {
		t.Errorf("record 2 = %+v, want attention 42", records[2])
	}
}

func TestParseRecordsTruncatedTail(t *testing.T) {
	// An extended record cut off by the payload end terminates parsing but
	// keeps the records before it.
	payload := []byte{CodeAttention, 42, 0x90, 10, 1, 2}
	records := parseRecords(payload)
	if len(records) != 1 || records[0].Code != CodeAttention {
		t.Fatalf("parsed %v, want only the attention record", records)
	}
}

func TestDecoderRestartableAcrossReads(t *testing.T) {
	// The decoder is driven per-call: packets interleaved across many short
	// reads decode identically to a single contiguous buffer.
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, frame(CodeAttention, byte(10+i))...)
	}
	d := NewDecoder(&chunkReader{data: stream, chunk: 3})
	for i := 0; i < 5; i++ {
		p, err := d.Next()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if got := p.Records[0].Value[0]; got != byte(10+i) {
			t.Errorf("packet %d attention = %d, want %d", i, got, 10+i)
		}
	}
	if _, err := d.Next(); err != io.EOF {
		t.Errorf("trailing Next() error = %v, want io.EOF", err)
	}
}

// chunkReader returns at most chunk bytes per Read call.
type chunkReader struct {
	data  []byte
	pos   int
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if rem := len(r.data) - r.pos; n > rem {
		n = rem
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}
