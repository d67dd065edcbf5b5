package serialport

import (
	"testing"
	"time"

	"go.bug.st/serial"
)

func TestNormalizeDefaults(t *testing.T) {
	opts, err := Options{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if opts.BaudRate != 57600 {
		t.Errorf("BaudRate = %d, want 57600", opts.BaudRate)
	}
	if opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Errorf("framing defaults = %d%s%d, want 8N1", opts.DataBits, opts.Parity, opts.StopBits)
	}
	if opts.ReadTimeout != time.Second {
		t.Errorf("ReadTimeout = %v, want 1s", opts.ReadTimeout)
	}
}

func TestNormalizeValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{"valid explicit", Options{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "none"}, true},
		{"even parity word", Options{Parity: "EVEN"}, true},
		{"odd parity letter", Options{Parity: "o"}, true},
		{"bad data bits", Options{DataBits: 9}, false},
		{"bad stop bits", Options{StopBits: 3}, false},
		{"bad parity", Options{Parity: "mark"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Normalize()
			if (err == nil) != tt.ok {
				t.Errorf("Normalize() error = %v, ok = %v", err, tt.ok)
			}
		})
	}
}

func TestMode(t *testing.T) {
	mode, err := Options{BaudRate: 115200, Parity: "E", StopBits: 2}.Mode()
	if err != nil {
		t.Fatalf("Mode() error: %v", err)
	}
	if mode.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", mode.BaudRate)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Parity = %v, want even", mode.Parity)
	}
	if mode.StopBits != serial.StopBits(2) {
		t.Errorf("StopBits = %v, want 2", mode.StopBits)
	}
}

func TestTestablePortFeedAndRead(t *testing.T) {
	p := NewTestablePort()
	p.Feed([]byte{1, 2, 3})

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	if err != nil || n != 3 {
		t.Fatalf("Read = (%d, %v), want (3, nil)", n, err)
	}

	if _, err := p.Write([]byte("x")); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if got := string(p.Written()); got != "x" {
		t.Errorf("Written() = %q, want %q", got, "x")
	}

	p.Close()
	if _, err := p.Read(buf); err != ErrClosed {
		t.Errorf("Read after close = %v, want ErrClosed", err)
	}
}

func TestTestablePortBlockingRead(t *testing.T) {
	p := NewTestablePort()
	p.BlockReads = true

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 4)
		n, err := p.Read(buf)
		if err != nil || n != 2 {
			t.Errorf("blocked Read = (%d, %v), want (2, nil)", n, err)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	p.Feed([]byte{9, 9})
	<-done
}

func TestReplayPortLoops(t *testing.T) {
	p := NewReplayPort([]byte{1, 2, 3}, 2, time.Millisecond)
	buf := make([]byte, 8)

	var got []byte
	for len(got) < 6 {
		n, err := p.Read(buf)
		if err != nil {
			t.Fatalf("Read error: %v", err)
		}
		got = append(got, buf[:n]...)
	}
	want := []byte{1, 2, 3, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("replayed bytes = %v, want prefix %v", got[:6], want)
		}
	}

	p.Close()
	if _, err := p.Read(buf); err != ErrClosed {
		t.Errorf("Read after close = %v, want ErrClosed", err)
	}
}
