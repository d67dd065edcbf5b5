// Package headset runs the read loop for a ThinkGear EEG headset attached to
// a serial port and keeps the latest merged reading available for sampling.
package headset

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/neuroflight/neuroflight/internal/serialport"
	"github.com/neuroflight/neuroflight/internal/telemetry"
	"github.com/neuroflight/neuroflight/internal/thinkgear"
)

// ErrSessionClosed is returned by Run after Close has been called.
var ErrSessionClosed = errors.New("headset: session closed")

// Session owns a serial port and decodes frames from it. Run is the single
// writer of the session's reading; Snapshot may be called from any goroutine.
type Session struct {
	port    serialport.Porter
	decoder *thinkgear.Decoder

	mu       sync.Mutex
	reading  thinkgear.Reading
	received time.Time
	closed   bool
}

// Open opens the named serial port with the given options and wraps it in a
// session.
func Open(path string, opts serialport.Options) (*Session, error) {
	port, err := serialport.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSession(port), nil
}

// NewSession wraps an already-open port. The session takes ownership and
// closes the port on Close.
func NewSession(port serialport.Porter) *Session {
	return &Session{
		port:    port,
		decoder: thinkgear.NewDecoder(port),
		reading: thinkgear.NewReading(),
	}
}

// Run decodes frames until the context is cancelled, the port is closed, or
// the stream ends. Each decoded frame is merged into the current reading.
// Run returns nil on context cancellation or clean EOF.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		packet, err := s.decoder.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, serialport.ErrClosed) {
				return nil
			}
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return ErrSessionClosed
			}
			return err
		}
		update := thinkgear.Extract(packet)
		if update.Empty() {
			continue
		}
		s.mu.Lock()
		s.reading = s.reading.Apply(update)
		s.received = time.Now()
		s.mu.Unlock()
	}
}

// Snapshot returns the latest merged reading and the time the last frame
// carrying data arrived. The zero time means no frame has arrived yet.
func (s *Session) Snapshot() (thinkgear.Reading, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reading, s.received
}

// Stats reports decoder counters for diagnostics.
func (s *Session) Stats() thinkgear.Stats {
	return s.decoder.Stats()
}

// Close closes the underlying port, which unblocks a pending Run.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	telemetry.Logf("headset: closing session")
	return s.port.Close()
}
