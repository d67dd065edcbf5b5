// Package mapper converts conditioned control scalars into a cylindrical
// velocity command under a configurable channel-to-axis assignment. Mapping
// is a pure function: the same conditioned input always yields the same
// command, and every axis is clamped to its configured maximum as a final
// safety net independent of upstream conditioning.
package mapper

import (
	"fmt"
	"math"

	"github.com/neuroflight/neuroflight/internal/condition"
)

// Command is a 3-DOF cylindrical velocity: radial (forward/backward),
// angular (yaw), vertical (up/down). Values carry the unit of the configured
// axis limits. The zero Command is the hover command.
type Command struct {
	Radial   float64 `json:"radial"`
	Angular  float64 `json:"angular"`
	Vertical float64 `json:"vertical"`
}

// IsZero reports whether the command is exactly hover.
func (c Command) IsZero() bool {
	return c.Radial == 0 && c.Angular == 0 && c.Vertical == 0
}

// Limits holds the per-axis maximum velocity magnitudes.
type Limits struct {
	Radial   float64
	Angular  float64
	Vertical float64
}

// Validate rejects non-positive axis limits.
func (l Limits) Validate() error {
	if l.Radial <= 0 || l.Angular <= 0 || l.Vertical <= 0 {
		return fmt.Errorf("axis limits must be positive, got %+v", l)
	}
	return nil
}

// Assignment maps each output axis to the control channel driving it.
// Exactly one channel per axis; the mapping must be bijective over the three
// channels. Chosen once at start and immutable during a run.
type Assignment struct {
	Radial   condition.Channel
	Angular  condition.Channel
	Vertical condition.Channel
}

// Named assignment policies.
const (
	PolicyDefault   = "default"   // alpha->radial, attention->angular, meditation->vertical
	PolicyAlternate = "alternate" // attention->radial, meditation->angular, alpha->vertical
)

// Policy resolves a named channel-to-axis assignment policy.
func Policy(name string) (Assignment, error) {
	switch name {
	case PolicyDefault:
		return Assignment{
			Radial:   condition.Alpha,
			Angular:  condition.Attention,
			Vertical: condition.Meditation,
		}, nil
	case PolicyAlternate:
		return Assignment{
			Radial:   condition.Attention,
			Angular:  condition.Meditation,
			Vertical: condition.Alpha,
		}, nil
	}
	return Assignment{}, fmt.Errorf("unknown assignment policy %q", name)
}

// Validate rejects assignments that are not a bijection over the channels.
func (a Assignment) Validate() error {
	seen := map[condition.Channel]bool{}
	for _, ch := range []condition.Channel{a.Radial, a.Angular, a.Vertical} {
		if seen[ch] {
			return fmt.Errorf("channel %s assigned to more than one axis", ch)
		}
		seen[ch] = true
	}
	return nil
}

// Map scales each axis's assigned conditioned scalar by the axis limit and
// clamps the result to [-max, +max]. Any non-finite intermediate falls back
// to the zero (hover) command: an invalid value must never reach the
// vehicle.
func Map(c condition.Conditioned, a Assignment, l Limits) Command {
	cmd := Command{
		Radial:   clamp(c.Value(a.Radial)*l.Radial, l.Radial),
		Angular:  clamp(c.Value(a.Angular)*l.Angular, l.Angular),
		Vertical: clamp(c.Value(a.Vertical)*l.Vertical, l.Vertical),
	}
	if !isFinite(cmd.Radial) || !isFinite(cmd.Angular) || !isFinite(cmd.Vertical) {
		return Command{}
	}
	return cmd
}

func clamp(v, max float64) float64 {
	if v > max {
		return max
	}
	if v < -max {
		return -max
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
