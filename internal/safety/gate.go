// Package safety decides, every cycle, whether the mapped velocity command
// may reach the vehicle. The gate is a strict priority override: if signal
// quality, battery, or link liveness is out of bounds the mapped intent is
// replaced by a hold, and by a land command once the fault has persisted
// beyond the grace period. Safety always wins over intent; there is no
// blending.
package safety

import (
	"fmt"
	"time"

	"github.com/neuroflight/neuroflight/internal/mapper"
)

// Action is the gate's verdict on one cycle.
type Action int

const (
	// Pass lets the mapped command through unchanged.
	Pass Action = iota
	// Hold overrides the command with hover while a fault is fresh.
	Hold
	// Land overrides the command and demands descent: the fault has
	// persisted beyond the grace period.
	Land
)

func (a Action) String() string {
	switch a {
	case Pass:
		return "pass"
	case Hold:
		return "hold"
	case Land:
		return "land"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Fault identifies one failed safety check.
type Fault string

const (
	FaultSignalQuality Fault = "signal_quality" // headset contact too poor to trust
	FaultBattery       Fault = "battery_low"
	FaultSensorStale   Fault = "sensor_stale"  // no headset data within the window
	FaultVehicleStale  Fault = "vehicle_stale" // no vehicle telemetry within the window
)

// Limits are the gate thresholds, immutable for a run.
type Limits struct {
	// MaxSignalQuality is the exclusive usable bound: quality must be
	// strictly below it (0 is perfect contact).
	MaxSignalQuality int
	// MinBattery is the minimum battery percentage.
	MinBattery int
	// SensorStaleAfter and VehicleStaleAfter bound how old the last data
	// from each link may be.
	SensorStaleAfter  time.Duration
	VehicleStaleAfter time.Duration
	// GracePeriod is how long faults are tolerated as Hold before the gate
	// escalates to Land.
	GracePeriod time.Duration
}

// Telemetry is the per-cycle input to the gate.
type Telemetry struct {
	SignalQuality   int
	Battery         int
	LastSensorData  time.Time
	LastVehicleData time.Time
}

// Verdict is the gate's output: the effective command and why.
type Verdict struct {
	Action  Action
	Command mapper.Command
	Faults  []Fault
}

// Evaluate runs all safety checks and returns the faults found. It is a pure
// function of its inputs.
func Evaluate(l Limits, now time.Time, t Telemetry) []Fault {
	var faults []Fault
	if t.SignalQuality >= l.MaxSignalQuality {
		faults = append(faults, FaultSignalQuality)
	}
	if t.Battery < l.MinBattery {
		faults = append(faults, FaultBattery)
	}
	if t.LastSensorData.IsZero() || now.Sub(t.LastSensorData) > l.SensorStaleAfter {
		faults = append(faults, FaultSensorStale)
	}
	if t.LastVehicleData.IsZero() || now.Sub(t.LastVehicleData) > l.VehicleStaleAfter {
		faults = append(faults, FaultVehicleStale)
	}
	return faults
}

// Override composes the effective command from the mapped command and the
// fault set: no faults passes the command through; any fault zeroes it, and
// a persisted fault escalates to Land. Pure, so it is testable independently
// of the rest of the pipeline.
func Override(cmd mapper.Command, faults []Fault, persisted bool) Verdict {
	if len(faults) == 0 {
		return Verdict{Action: Pass, Command: cmd}
	}
	action := Hold
	if persisted {
		action = Land
	}
	return Verdict{Action: action, Command: mapper.Command{}, Faults: faults}
}

// Gate tracks fault persistence across cycles. Its only state is the time
// the current fault run began.
type Gate struct {
	limits     Limits
	faultSince time.Time
}

// NewGate returns a gate with the given limits.
func NewGate(l Limits) *Gate {
	return &Gate{limits: l}
}

// Authorize validates the cycle's telemetry and returns the effective
// command. A fault-free cycle clears any running fault window.
func (g *Gate) Authorize(now time.Time, cmd mapper.Command, t Telemetry) Verdict {
	faults := Evaluate(g.limits, now, t)
	if len(faults) == 0 {
		g.faultSince = time.Time{}
		return Override(cmd, nil, false)
	}
	if g.faultSince.IsZero() {
		g.faultSince = now
	}
	persisted := now.Sub(g.faultSince) >= g.limits.GracePeriod
	return Override(cmd, faults, persisted)
}
