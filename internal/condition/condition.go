// Package condition turns raw sensor readings into bounded, smoothed control
// scalars. Each channel is clamped into a configured range, rescaled to the
// signed unit interval, blended with its previous value by exponential
// smoothing, and finally deadzone-filtered so idle sensor noise cannot drift
// the vehicle.
package condition

import (
	"fmt"
	"math"

	"github.com/neuroflight/neuroflight/internal/thinkgear"
)

// Channel identifies one control input derived from the headset.
type Channel int

const (
	Alpha Channel = iota
	Attention
	Meditation
	numChannels
)

func (c Channel) String() string {
	switch c {
	case Alpha:
		return "alpha"
	case Attention:
		return "attention"
	case Meditation:
		return "meditation"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Channels lists all control channels in order.
var Channels = []Channel{Alpha, Attention, Meditation}

// ChannelConfig bounds one channel's raw input range and its output
// deadzone. Deadzone is expressed in output units: conditioned values within
// that distance of neutral (zero) are snapped to exactly neutral.
type ChannelConfig struct {
	Min      float64
	Max      float64
	Deadzone float64
}

// Config holds the conditioning parameters for all channels. Smoothing is
// the exponential blend factor in [0,1): close to 1 responds slowly and
// smoothly, close to 0 responds immediately.
type Config struct {
	Smoothing float64
	Channels  [3]ChannelConfig // indexed by Channel
}

// Validate rejects configurations the conditioner cannot honour.
func (c Config) Validate() error {
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		return fmt.Errorf("smoothing factor %v out of range [0,1)", c.Smoothing)
	}
	for _, ch := range Channels {
		cc := c.Channels[ch]
		if cc.Max <= cc.Min {
			return fmt.Errorf("%s range [%v,%v] is empty", ch, cc.Min, cc.Max)
		}
		if cc.Deadzone < 0 || cc.Deadzone > 1 {
			return fmt.Errorf("%s deadzone %v out of range [0,1]", ch, cc.Deadzone)
		}
	}
	return nil
}

// State carries the smoothed per-channel values between cycles. The stored
// values are pre-deadzone so that small persistent signals are not trapped
// at neutral forever.
type State struct {
	values [numChannels]float64
}

// Conditioned is one cycle's output: per-channel scalars in [-1,1], already
// deadzone-filtered.
type Conditioned struct {
	Alpha      float64 `json:"alpha"`
	Attention  float64 `json:"attention"`
	Meditation float64 `json:"meditation"`
}

// Value returns the conditioned scalar for a channel.
func (c Conditioned) Value(ch Channel) float64 {
	switch ch {
	case Alpha:
		return c.Alpha
	case Attention:
		return c.Attention
	case Meditation:
		return c.Meditation
	}
	return 0
}

// Step conditions one reading. It is a pure function of (prev, r): the new
// state and output depend on nothing else, so a cycle's conditioned values
// derive only from readings available by that cycle.
//
// A channel whose raw value is the NotAvailable sentinel holds its previous
// smoothed value unchanged rather than snapping to an extreme; the headset
// dropping a metric for a moment must not lurch the vehicle.
func (c Config) Step(prev State, r thinkgear.Reading) (State, Conditioned) {
	next := prev
	raw := [numChannels]int{
		Alpha:      r.Alpha,
		Attention:  r.Attention,
		Meditation: r.Meditation,
	}

	var out Conditioned
	for _, ch := range Channels {
		cc := c.Channels[ch]
		v := prev.values[ch]
		if raw[ch] != thinkgear.NotAvailable {
			scaled := rescale(clamp(float64(raw[ch]), cc.Min, cc.Max), cc.Min, cc.Max)
			v = c.Smoothing*prev.values[ch] + (1-c.Smoothing)*scaled
		}
		next.values[ch] = v

		filtered := v
		if math.Abs(filtered) < cc.Deadzone {
			filtered = 0
		}
		switch ch {
		case Alpha:
			out.Alpha = filtered
		case Attention:
			out.Attention = filtered
		case Meditation:
			out.Meditation = filtered
		}
	}
	return next, out
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// rescale maps v from [min,max] onto [-1,1].
func rescale(v, min, max float64) float64 {
	return 2*(v-min)/(max-min) - 1
}
