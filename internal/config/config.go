// Package config loads and validates the run configuration. A run's
// configuration is resolved once at startup (defaults, then an optional JSON
// file, then environment overrides) and is immutable afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/neuroflight/neuroflight/internal/condition"
	"github.com/neuroflight/neuroflight/internal/mapper"
	"github.com/neuroflight/neuroflight/internal/safety"
	"github.com/neuroflight/neuroflight/internal/serialport"
	"github.com/neuroflight/neuroflight/internal/tello"
)

// Config is the resolved configuration for one flight run.
type Config struct {
	// Sensor link.
	SensorPort string `env:"NEUROFLIGHT_SENSOR_PORT"`
	SensorBaud int    `env:"NEUROFLIGHT_SENSOR_BAUD"`

	// Vehicle link.
	DroneHost      string `env:"NEUROFLIGHT_DRONE_HOST"`
	DronePort      int    `env:"NEUROFLIGHT_DRONE_PORT"`
	DroneStatePort int    `env:"NEUROFLIGHT_DRONE_STATE_PORT"`

	// Channel input ranges. Attention and meditation are reported 0-100 by
	// the headset; alpha band power is an unscaled ASIC magnitude.
	AlphaMin      float64
	AlphaMax      float64
	AttentionMin  float64
	AttentionMax  float64
	MeditationMin float64
	MeditationMax float64

	// Smoothing is the exponential blend factor in [0,1).
	Smoothing float64

	// Per-axis deadzones in conditioned output units, and per-axis maximum
	// velocities in vehicle units.
	RadialDeadzone   float64
	AngularDeadzone  float64
	VerticalDeadzone float64
	MaxRadial        float64
	MaxAngular       float64
	MaxVertical      float64

	// AssignmentPolicy names the channel-to-axis mapping.
	AssignmentPolicy string

	// Safety thresholds.
	MaxSignalQuality int
	MinBattery       int

	CyclePeriod       time.Duration
	SensorStaleAfter  time.Duration
	VehicleStaleAfter time.Duration
	GracePeriod       time.Duration
	CalibrationPeriod time.Duration
	LandingTimeout    time.Duration

	// AutoTakeoff commands takeoff when the loop enters its active state.
	// Off by default so bench runs never spin motors.
	AutoTakeoff bool `env:"NEUROFLIGHT_AUTO_TAKEOFF"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		SensorPort: "/dev/rfcomm0",
		SensorBaud: 57600,

		DroneHost:      tello.DefaultHost,
		DronePort:      tello.DefaultPort,
		DroneStatePort: tello.DefaultStatePort,

		AlphaMin:      0,
		AlphaMax:      1_000_000,
		AttentionMin:  0,
		AttentionMax:  100,
		MeditationMin: 0,
		MeditationMax: 100,

		Smoothing: 0.7,

		RadialDeadzone:   0.1,
		AngularDeadzone:  0.1,
		VerticalDeadzone: 0.1,
		MaxRadial:        40,
		MaxAngular:       60,
		MaxVertical:      40,

		AssignmentPolicy: mapper.PolicyDefault,

		MaxSignalQuality: 50,
		MinBattery:       20,

		CyclePeriod:       50 * time.Millisecond,
		SensorStaleAfter:  time.Second,
		VehicleStaleAfter: 3 * time.Second,
		GracePeriod:       10 * time.Second,
		CalibrationPeriod: 10 * time.Second,
		LandingTimeout:    20 * time.Second,
	}
}

// fileConfig is the sparse JSON schema: omitted fields keep their defaults.
// Durations are strings like "50ms".
type fileConfig struct {
	SensorPort *string `json:"sensor_port,omitempty"`
	SensorBaud *int    `json:"sensor_baud,omitempty"`

	DroneHost      *string `json:"drone_host,omitempty"`
	DronePort      *int    `json:"drone_port,omitempty"`
	DroneStatePort *int    `json:"drone_state_port,omitempty"`

	AlphaMin      *float64 `json:"alpha_min,omitempty"`
	AlphaMax      *float64 `json:"alpha_max,omitempty"`
	AttentionMin  *float64 `json:"attention_min,omitempty"`
	AttentionMax  *float64 `json:"attention_max,omitempty"`
	MeditationMin *float64 `json:"meditation_min,omitempty"`
	MeditationMax *float64 `json:"meditation_max,omitempty"`

	Smoothing *float64 `json:"smoothing,omitempty"`

	RadialDeadzone   *float64 `json:"radial_deadzone,omitempty"`
	AngularDeadzone  *float64 `json:"angular_deadzone,omitempty"`
	VerticalDeadzone *float64 `json:"vertical_deadzone,omitempty"`
	MaxRadial        *float64 `json:"max_radial,omitempty"`
	MaxAngular       *float64 `json:"max_angular,omitempty"`
	MaxVertical      *float64 `json:"max_vertical,omitempty"`

	AssignmentPolicy *string `json:"assignment_policy,omitempty"`

	MaxSignalQuality *int `json:"max_signal_quality,omitempty"`
	MinBattery       *int `json:"min_battery,omitempty"`

	CyclePeriod       *string `json:"cycle_period,omitempty"`
	SensorStaleAfter  *string `json:"sensor_stale_after,omitempty"`
	VehicleStaleAfter *string `json:"vehicle_stale_after,omitempty"`
	GracePeriod       *string `json:"grace_period,omitempty"`
	CalibrationPeriod *string `json:"calibration_period,omitempty"`
	LandingTimeout    *string `json:"landing_timeout,omitempty"`

	AutoTakeoff *bool `json:"auto_takeoff,omitempty"`
}

// Load resolves the configuration: defaults, overlaid with the JSON file at
// path (skipped when path is empty), then environment variables. The result
// is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// maxFileSize bounds config files to 1MB.
const maxFileSize = 1 << 20

func applyFile(cfg *Config, path string) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return fc.apply(cfg)
}

func (fc fileConfig) apply(cfg *Config) error {
	setString(&cfg.SensorPort, fc.SensorPort)
	setInt(&cfg.SensorBaud, fc.SensorBaud)
	setString(&cfg.DroneHost, fc.DroneHost)
	setInt(&cfg.DronePort, fc.DronePort)
	setInt(&cfg.DroneStatePort, fc.DroneStatePort)

	setFloat(&cfg.AlphaMin, fc.AlphaMin)
	setFloat(&cfg.AlphaMax, fc.AlphaMax)
	setFloat(&cfg.AttentionMin, fc.AttentionMin)
	setFloat(&cfg.AttentionMax, fc.AttentionMax)
	setFloat(&cfg.MeditationMin, fc.MeditationMin)
	setFloat(&cfg.MeditationMax, fc.MeditationMax)

	setFloat(&cfg.Smoothing, fc.Smoothing)

	setFloat(&cfg.RadialDeadzone, fc.RadialDeadzone)
	setFloat(&cfg.AngularDeadzone, fc.AngularDeadzone)
	setFloat(&cfg.VerticalDeadzone, fc.VerticalDeadzone)
	setFloat(&cfg.MaxRadial, fc.MaxRadial)
	setFloat(&cfg.MaxAngular, fc.MaxAngular)
	setFloat(&cfg.MaxVertical, fc.MaxVertical)

	setString(&cfg.AssignmentPolicy, fc.AssignmentPolicy)

	setInt(&cfg.MaxSignalQuality, fc.MaxSignalQuality)
	setInt(&cfg.MinBattery, fc.MinBattery)

	if fc.AutoTakeoff != nil {
		cfg.AutoTakeoff = *fc.AutoTakeoff
	}

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"cycle_period", fc.CyclePeriod, &cfg.CyclePeriod},
		{"sensor_stale_after", fc.SensorStaleAfter, &cfg.SensorStaleAfter},
		{"vehicle_stale_after", fc.VehicleStaleAfter, &cfg.VehicleStaleAfter},
		{"grace_period", fc.GracePeriod, &cfg.GracePeriod},
		{"calibration_period", fc.CalibrationPeriod, &cfg.CalibrationPeriod},
		{"landing_timeout", fc.LandingTimeout, &cfg.LandingTimeout},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst, src *float64) {
	if src != nil {
		*dst = *src
	}
}

// Validate rejects configurations the pipeline cannot run with. It reuses
// the component validators so the config can never disagree with them.
func (c Config) Validate() error {
	if c.SensorPort == "" {
		return fmt.Errorf("sensor port must be set")
	}
	if c.DroneHost == "" {
		return fmt.Errorf("drone host must be set")
	}
	if _, err := mapper.Policy(c.AssignmentPolicy); err != nil {
		return err
	}
	if err := c.Conditioning().Validate(); err != nil {
		return err
	}
	if err := c.Limits().Validate(); err != nil {
		return err
	}
	if c.MaxSignalQuality <= 0 {
		return fmt.Errorf("max signal quality must be positive, got %d", c.MaxSignalQuality)
	}
	if c.MinBattery < 0 || c.MinBattery > 100 {
		return fmt.Errorf("min battery %d out of range [0,100]", c.MinBattery)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"cycle period", c.CyclePeriod},
		{"sensor staleness window", c.SensorStaleAfter},
		{"vehicle staleness window", c.VehicleStaleAfter},
		{"grace period", c.GracePeriod},
		{"calibration period", c.CalibrationPeriod},
		{"landing timeout", c.LandingTimeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.name, d.value)
		}
	}
	return nil
}

// Assignment resolves the configured channel-to-axis policy.
func (c Config) Assignment() mapper.Assignment {
	a, err := mapper.Policy(c.AssignmentPolicy)
	if err != nil {
		// Validate rejects unknown policies; keep a sane fallback anyway.
		a, _ = mapper.Policy(mapper.PolicyDefault)
	}
	return a
}

// Conditioning builds the conditioner configuration. Deadzones are configured
// per axis; each channel takes the deadzone of the axis it drives.
func (c Config) Conditioning() condition.Config {
	a := c.Assignment()
	cond := condition.Config{Smoothing: c.Smoothing}
	cond.Channels[condition.Alpha] = condition.ChannelConfig{Min: c.AlphaMin, Max: c.AlphaMax}
	cond.Channels[condition.Attention] = condition.ChannelConfig{Min: c.AttentionMin, Max: c.AttentionMax}
	cond.Channels[condition.Meditation] = condition.ChannelConfig{Min: c.MeditationMin, Max: c.MeditationMax}
	cond.Channels[a.Radial].Deadzone = c.RadialDeadzone
	cond.Channels[a.Angular].Deadzone = c.AngularDeadzone
	cond.Channels[a.Vertical].Deadzone = c.VerticalDeadzone
	return cond
}

// Limits builds the per-axis velocity scaling limits.
func (c Config) Limits() mapper.Limits {
	return mapper.Limits{Radial: c.MaxRadial, Angular: c.MaxAngular, Vertical: c.MaxVertical}
}

// Safety builds the gate thresholds.
func (c Config) Safety() safety.Limits {
	return safety.Limits{
		MaxSignalQuality:  c.MaxSignalQuality,
		MinBattery:        c.MinBattery,
		SensorStaleAfter:  c.SensorStaleAfter,
		VehicleStaleAfter: c.VehicleStaleAfter,
		GracePeriod:       c.GracePeriod,
	}
}

// SerialOptions builds the sensor port options.
func (c Config) SerialOptions() serialport.Options {
	return serialport.Options{BaudRate: c.SensorBaud}
}

// TelloOptions builds the vehicle transport options.
func (c Config) TelloOptions() tello.Options {
	return tello.Options{
		Host:      c.DroneHost,
		Port:      c.DronePort,
		StatePort: c.DroneStatePort,
	}
}
