// Package telemetry is the write-only event and log sink for the control
// pipeline. The core writes to it every cycle and never reads from it.
package telemetry

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/neuroflight/neuroflight/internal/condition"
	"github.com/neuroflight/neuroflight/internal/mapper"
	"github.com/neuroflight/neuroflight/internal/thinkgear"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or
// mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil sets a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// NewRunID returns a unique identifier for one control run, attached to
// every event the run emits.
func NewRunID() string {
	return uuid.NewString()
}

// Event is one cycle's structured record: what was read, what it conditioned
// to, what was commanded, and what the safety gate decided. Optional fields
// are omitted for lifecycle-only events such as state transitions.
type Event struct {
	RunID       string                 `json:"run_id"`
	Time        time.Time              `json:"time"`
	Cycle       uint64                 `json:"cycle"`
	State       string                 `json:"state"`
	Reading     *thinkgear.Reading     `json:"reading,omitempty"`
	Conditioned *condition.Conditioned `json:"conditioned,omitempty"`
	Command     *mapper.Command        `json:"command,omitempty"`
	Verdict     string                 `json:"verdict,omitempty"`
	Faults      []string               `json:"faults,omitempty"`
}

// Sink receives structured events. Implementations must tolerate being
// called from the control loop's goroutine every cycle.
type Sink interface {
	Record(Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// JSONSink writes events as JSON lines. Encoding errors are logged, not
// returned: telemetry must never fail the control loop.
type JSONSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONSink returns a sink writing one JSON object per line to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{enc: json.NewEncoder(w)}
}

func (s *JSONSink) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(e); err != nil {
		Logf("telemetry: encode event: %v", err)
	}
}
