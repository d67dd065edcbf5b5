package headset

import (
	"context"
	"testing"
	"time"

	"github.com/neuroflight/neuroflight/internal/serialport"
	"github.com/neuroflight/neuroflight/internal/testutil"
	"github.com/neuroflight/neuroflight/internal/thinkgear"
)

func frame(payload ...byte) []byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	out := []byte{thinkgear.Sync, thinkgear.Sync, byte(len(payload))}
	out = append(out, payload...)
	return append(out, ^sum)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	testutil.Eventually(t, 2*time.Second, cond, "decoded reading never observed")
}

func TestSessionMergesFrames(t *testing.T) {
	port := serialport.NewTestablePort()
	port.BlockReads = true
	s := NewSession(port)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	port.Feed(frame(thinkgear.CodePoorSignal, 10, thinkgear.CodeAttention, 70))
	waitFor(t, func() bool {
		r, _ := s.Snapshot()
		return r.Attention == 70
	})

	// A later frame updates only what it carries.
	port.Feed(frame(thinkgear.CodeMeditation, 30))
	waitFor(t, func() bool {
		r, _ := s.Snapshot()
		return r.Meditation == 30
	})

	r, received := s.Snapshot()
	if r.SignalQuality != 10 || r.Attention != 70 {
		t.Errorf("earlier fields lost across merge: %+v", r)
	}
	if received.IsZero() {
		t.Error("received time not set")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run() after Close error: %v", err)
	}
}

func TestSessionStartsWithNoContact(t *testing.T) {
	s := NewSession(serialport.NewTestablePort())
	r, received := s.Snapshot()
	if r.SignalQuality != thinkgear.NoContact {
		t.Errorf("initial signal quality = %d, want %d", r.SignalQuality, thinkgear.NoContact)
	}
	if r.Attention != thinkgear.NotAvailable {
		t.Errorf("initial attention = %d, want sentinel", r.Attention)
	}
	if !received.IsZero() {
		t.Error("received time should be zero before any frame")
	}
}

func TestSessionRunStopsOnContext(t *testing.T) {
	port := serialport.NewTestablePort()
	port.BlockReads = true
	s := NewSession(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	port.Close() // unblock the pending read

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancellation")
	}
}

func TestSessionCountsCorruptFrames(t *testing.T) {
	port := serialport.NewTestablePort()
	port.BlockReads = true
	s := NewSession(port)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	bad := frame(thinkgear.CodeAttention, 70)
	bad[len(bad)-1] ^= 0xFF
	port.Feed(bad)
	port.Feed(frame(thinkgear.CodeAttention, 42))

	waitFor(t, func() bool {
		r, _ := s.Snapshot()
		return r.Attention == 42
	})
	if stats := s.Stats(); stats.ChecksumFailures == 0 {
		t.Errorf("stats = %+v, want checksum failure recorded", stats)
	}

	s.Close()
	<-done
}
