// Package pilot runs the control loop: a fixed-cadence state machine that
// samples the headset, conditions the reading, maps it to a velocity command,
// and emits it to the vehicle once the safety gate authorizes it.
package pilot

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/neuroflight/neuroflight/internal/condition"
	"github.com/neuroflight/neuroflight/internal/config"
	"github.com/neuroflight/neuroflight/internal/mapper"
	"github.com/neuroflight/neuroflight/internal/safety"
	"github.com/neuroflight/neuroflight/internal/telemetry"
	"github.com/neuroflight/neuroflight/internal/thinkgear"
	"github.com/neuroflight/neuroflight/internal/timeutil"
)

// State is the control loop's lifecycle phase. Transitions only happen at
// cycle boundaries.
type State int

const (
	// Initializing opens both links and verifies battery before anything
	// can fly.
	Initializing State = iota
	// Calibrating conditions readings for a fixed window without sending
	// commands, to settle the smoothing state and measure a baseline.
	Calibrating
	// Active is the steady state: one command per tick.
	Active
	// Landing resends the land command until the vehicle confirms or the
	// landing timeout expires.
	Landing
	// Stopped means both sessions are released.
	Stopped
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Calibrating:
		return "calibrating"
	case Active:
		return "active"
	case Landing:
		return "landing"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Headset is the sensor session the pilot samples each cycle.
type Headset interface {
	Run(ctx context.Context) error
	Snapshot() (thinkgear.Reading, time.Time)
	Close() error
}

// Vehicle is the drone transport the pilot commands.
type Vehicle interface {
	Connect(ctx context.Context) (int, error)
	SendVelocity(radial, angular, vertical int) error
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
	Status() (battery, height int, lastSeen time.Time)
	Close() error
}

// Options carries the pilot's optional collaborators.
type Options struct {
	// Clock defaults to the real clock.
	Clock timeutil.Clock
	// Sink defaults to discarding events.
	Sink telemetry.Sink
}

// Pilot owns one flight run. Run drives the whole lifecycle; all other
// methods are safe to call concurrently.
type Pilot struct {
	cfg     config.Config
	headset Headset
	vehicle Vehicle
	clock   timeutil.Clock
	sink    telemetry.Sink

	runID string

	mu    sync.Mutex
	state State
}

// New wires a pilot. Zero-value Options select the real clock and no event
// sink.
func New(cfg config.Config, h Headset, v Vehicle, opts Options) *Pilot {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Sink == nil {
		opts.Sink = telemetry.NopSink{}
	}
	return &Pilot{
		cfg:     cfg,
		headset: h,
		vehicle: v,
		clock:   opts.Clock,
		sink:    opts.Sink,
		runID:   telemetry.NewRunID(),
		state:   Initializing,
	}
}

// RunID identifies this run in emitted telemetry.
func (p *Pilot) RunID() string { return p.runID }

// State reports the loop's current phase.
func (p *Pilot) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pilot) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pilot) transition(s State, cycle uint64) {
	p.setState(s)
	telemetry.Logf("pilot: state %s", s)
	p.sink.Record(telemetry.Event{
		RunID: p.runID,
		Time:  p.clock.Now(),
		Cycle: cycle,
		State: s.String(),
	})
}

// Run executes the full lifecycle and blocks until the run is stopped. It
// returns nil on a clean shutdown, or the error that forced the run down.
// Cancelling ctx requests a stop, observed at the next cycle boundary; the
// vehicle is always landed (best effort) before Run returns.
func (p *Pilot) Run(ctx context.Context) error {
	defer p.transition(Stopped, 0)
	defer p.closeSessions()

	// The reader outlives ctx so the landing phase still sees fresh sensor
	// data after a cancellation.
	readerCtx, stopReader := context.WithCancel(context.Background())
	defer stopReader()
	go func() {
		if err := p.headset.Run(readerCtx); err != nil {
			telemetry.Logf("pilot: headset reader: %v", err)
		}
	}()

	battery, err := p.vehicle.Connect(ctx)
	if err != nil {
		return fmt.Errorf("pilot: connect vehicle: %w", err)
	}
	if battery < p.cfg.MinBattery {
		return fmt.Errorf("pilot: battery %d%% below minimum %d%%, refusing to start", battery, p.cfg.MinBattery)
	}
	telemetry.Logf("pilot: vehicle connected, battery %d%%", battery)

	ticker := p.clock.NewTicker(p.cfg.CyclePeriod)
	defer ticker.Stop()

	p.transition(Calibrating, 0)
	condState, cancelled := p.calibrate(ctx, ticker)
	if cancelled {
		return p.landAndReport(0)
	}

	if p.cfg.AutoTakeoff {
		if err := p.vehicle.Takeoff(ctx); err != nil {
			landErr := p.landAndReport(0)
			if landErr != nil {
				return fmt.Errorf("pilot: takeoff: %w (land also failed: %v)", err, landErr)
			}
			return fmt.Errorf("pilot: takeoff: %w", err)
		}
	}

	p.transition(Active, 0)
	p.active(ctx, ticker, condState)
	return p.landAndReport(0)
}

// calibrate conditions readings for the calibration window without sending
// any commands, then logs the per-channel baseline. It returns the smoothing
// state reached and whether the run was cancelled mid-window.
func (p *Pilot) calibrate(ctx context.Context, ticker timeutil.Ticker) (condition.State, bool) {
	cond := p.cfg.Conditioning()
	var state condition.State
	deadline := p.clock.Now().Add(p.cfg.CalibrationPeriod)

	samples := map[condition.Channel][]float64{}
	var cycle uint64
	for {
		select {
		case <-ctx.Done():
			return state, true
		case now := <-ticker.C():
			if now.After(deadline) {
				p.logBaseline(samples)
				return state, false
			}
			reading, received := p.headset.Snapshot()
			var out condition.Conditioned
			state, out = cond.Step(state, reading)
			if !received.IsZero() {
				for _, ch := range condition.Channels {
					samples[ch] = append(samples[ch], out.Value(ch))
				}
			}
			cycle++
			p.sink.Record(telemetry.Event{
				RunID:       p.runID,
				Time:        now,
				Cycle:       cycle,
				State:       Calibrating.String(),
				Reading:     &reading,
				Conditioned: &out,
			})
		}
	}
}

func (p *Pilot) logBaseline(samples map[condition.Channel][]float64) {
	for _, ch := range condition.Channels {
		vals := samples[ch]
		if len(vals) == 0 {
			telemetry.Logf("pilot: calibration %s: no samples", ch)
			continue
		}
		mean := stat.Mean(vals, nil)
		sigma := 0.0
		if len(vals) > 1 {
			sigma = stat.StdDev(vals, nil)
		}
		telemetry.Logf("pilot: calibration %s: n=%d mean=%.4f stddev=%.4f", ch, len(vals), mean, sigma)
	}
}

// active runs the steady-state loop until cancellation or a land verdict.
func (p *Pilot) active(ctx context.Context, ticker timeutil.Ticker, condState condition.State) {
	cond := p.cfg.Conditioning()
	assignment := p.cfg.Assignment()
	limits := p.cfg.Limits()
	gate := safety.NewGate(p.cfg.Safety())

	var cycle uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			cycle++

			reading, lastSensor := p.headset.Snapshot()
			var out condition.Conditioned
			condState, out = cond.Step(condState, reading)
			cmd := mapper.Map(out, assignment, limits)

			vehicleBattery, _, lastVehicle := p.vehicle.Status()
			verdict := gate.Authorize(now, cmd, safety.Telemetry{
				SignalQuality:   reading.SignalQuality,
				Battery:         vehicleBattery,
				LastSensorData:  lastSensor,
				LastVehicleData: lastVehicle,
			})

			p.sink.Record(telemetry.Event{
				RunID:       p.runID,
				Time:        now,
				Cycle:       cycle,
				State:       Active.String(),
				Reading:     &reading,
				Conditioned: &out,
				Command:     &verdict.Command,
				Verdict:     verdict.Action.String(),
				Faults:      faultNames(verdict.Faults),
			})

			switch verdict.Action {
			case safety.Pass, safety.Hold:
				p.send(verdict.Command)
			case safety.Land:
				telemetry.Logf("pilot: safety gate demands landing: %v", verdict.Faults)
				return
			}
		}
	}
}

// send emits one velocity command. Send failures are logged and tolerated;
// a dead link shows up as vehicle staleness within its window.
func (p *Pilot) send(cmd mapper.Command) {
	err := p.vehicle.SendVelocity(
		int(math.Round(cmd.Radial)),
		int(math.Round(cmd.Angular)),
		int(math.Round(cmd.Vertical)),
	)
	if err != nil {
		telemetry.Logf("pilot: send velocity: %v", err)
	}
}

// landAndReport drives the landing phase and reports its outcome.
func (p *Pilot) landAndReport(cycle uint64) error {
	p.transition(Landing, cycle)
	if err := p.land(); err != nil {
		return fmt.Errorf("pilot: %w", err)
	}
	return nil
}

// land resends the land command until the vehicle acknowledges, reports
// itself grounded, or the landing timeout expires. It deliberately ignores
// the run context: a cancelled run must still land.
func (p *Pilot) land() error {
	deadline := p.clock.Now().Add(p.cfg.LandingTimeout)
	attempt := 0
	for {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.CyclePeriod*10)
		err := p.vehicle.Land(ctx)
		cancel()
		if err == nil {
			telemetry.Logf("pilot: landed (attempt %d)", attempt)
			return nil
		}
		if _, height, _ := p.vehicle.Status(); height <= 0 && attempt > 1 {
			telemetry.Logf("pilot: vehicle reports grounded after failed land ack")
			return nil
		}
		if p.clock.Now().After(deadline) {
			return fmt.Errorf("landing not confirmed within %v: %w", p.cfg.LandingTimeout, err)
		}
		telemetry.Logf("pilot: land attempt %d failed: %v", attempt, err)
		// Pace the retries so a fast-failing link cannot spin.
		timer := p.clock.NewTimer(p.cfg.CyclePeriod)
		<-timer.C()
	}
}

func (p *Pilot) closeSessions() {
	if err := p.headset.Close(); err != nil {
		telemetry.Logf("pilot: close headset: %v", err)
	}
	if err := p.vehicle.Close(); err != nil {
		telemetry.Logf("pilot: close vehicle: %v", err)
	}
}

func faultNames(faults []safety.Fault) []string {
	if len(faults) == 0 {
		return nil
	}
	names := make([]string, len(faults))
	for i, f := range faults {
		names[i] = string(f)
	}
	return names
}
