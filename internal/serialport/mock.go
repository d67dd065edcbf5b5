package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by port operations after Close.
var ErrClosed = errors.New("serial port closed")

// TestablePort implements Porter with scriptable behaviour for tests:
// buffered reads and writes, injectable errors, and optional blocking reads.
type TestablePort struct {
	mu       sync.Mutex
	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	// ReadErr is returned by the next Read call if set, then cleared.
	ReadErr error
	// WriteErr is returned by the next Write call if set, then cleared.
	WriteErr error

	// BlockReads causes Read on an empty buffer to wait for data or Close
	// instead of returning a zero-byte read.
	BlockReads bool

	closed   bool
	readCond *sync.Cond
}

// NewTestablePort returns an empty TestablePort.
func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

func (p *TestablePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	if p.ReadErr != nil {
		err := p.ReadErr
		p.ReadErr = nil
		return 0, err
	}
	if p.BlockReads {
		for !p.closed && p.readBuf.Len() == 0 {
			p.readCond.Wait()
		}
		if p.closed {
			return 0, ErrClosed
		}
	}
	return p.readBuf.Read(buf)
}

func (p *TestablePort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	if p.WriteErr != nil {
		err := p.WriteErr
		p.WriteErr = nil
		return 0, err
	}
	return p.writeBuf.Write(buf)
}

// Close marks the port closed and wakes any blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCond.Broadcast()
	return nil
}

// Feed appends data to be returned by subsequent Read calls.
func (p *TestablePort) Feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(data)
	p.readCond.Signal()
}

// Written returns everything written to the port so far.
func (p *TestablePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.writeBuf.Bytes()...)
}

// ReplayPort replays a recorded byte capture through Read at a fixed pace,
// looping when it reaches the end. It backs dev mode so the full pipeline
// can run without a headset.
type ReplayPort struct {
	mu     sync.Mutex
	data   []byte
	pos    int
	chunk  int
	pace   time.Duration
	closed bool
}

// NewReplayPort returns a port replaying data in chunks of chunkSize bytes,
// sleeping pace between chunks. Zero values choose a rate comparable to a
// real headset at 57600 baud.
func NewReplayPort(data []byte, chunkSize int, pace time.Duration) *ReplayPort {
	if chunkSize <= 0 {
		chunkSize = 32
	}
	if pace <= 0 {
		pace = 5 * time.Millisecond
	}
	return &ReplayPort{data: data, chunk: chunkSize, pace: pace}
}

func (p *ReplayPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if len(p.data) == 0 {
		p.mu.Unlock()
		return 0, ErrClosed
	}
	if p.pos >= len(p.data) {
		p.pos = 0 // loop the capture
	}
	n := p.chunk
	if n > len(buf) {
		n = len(buf)
	}
	if rem := len(p.data) - p.pos; n > rem {
		n = rem
	}
	copy(buf, p.data[p.pos:p.pos+n])
	p.pos += n
	pace := p.pace
	p.mu.Unlock()

	time.Sleep(pace)
	return n, nil
}

func (p *ReplayPort) Write(buf []byte) (int, error) {
	// Replayed headsets accept and ignore writes.
	return len(buf), nil
}

func (p *ReplayPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
