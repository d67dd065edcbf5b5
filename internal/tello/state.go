package tello

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// State is the vehicle telemetry broadcast on the state port, roughly ten
// times per second while the link is up.
type State struct {
	Battery    int           // percent
	Height     int           // cm above takeoff point
	FlightTime time.Duration // motors-on time
	Pitch      int           // degrees
	Roll       int           // degrees
	Yaw        int           // degrees
	LastSeen   time.Time     // set by the receiver, zero until first datagram
}

// Grounded reports whether the telemetry indicates the vehicle is on the
// ground.
func (s State) Grounded() bool {
	return s.Height <= 0
}

// ParseState parses a Tello state datagram of the form
// "pitch:0;roll:0;yaw:0;...;bat:87;h:10;...". Unknown keys are ignored so
// firmware revisions that add fields keep parsing. Keys with malformed
// integer values are skipped rather than failing the datagram.
func ParseState(payload string) (State, error) {
	var st State
	seen := false
	for _, item := range strings.Split(strings.TrimSpace(payload), ";") {
		key, value, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		seen = true
		switch key {
		case "bat":
			st.Battery = n
		case "h":
			st.Height = n
		case "time":
			st.FlightTime = time.Duration(n) * time.Second
		case "pitch":
			st.Pitch = n
		case "roll":
			st.Roll = n
		case "yaw":
			st.Yaw = n
		}
	}
	if !seen {
		return State{}, fmt.Errorf("no state fields in %q", payload)
	}
	return st, nil
}
