// Command neuroflight flies a DJI Tello quadcopter from a NeuroSky ThinkGear
// EEG headset: frames are decoded off the serial link, conditioned into
// bounded control scalars, mapped onto cylindrical velocity axes, and sent to
// the drone once per cycle after the safety gate authorizes them.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neuroflight/neuroflight/internal/config"
	"github.com/neuroflight/neuroflight/internal/headset"
	"github.com/neuroflight/neuroflight/internal/pilot"
	"github.com/neuroflight/neuroflight/internal/serialport"
	"github.com/neuroflight/neuroflight/internal/telemetry"
	"github.com/neuroflight/neuroflight/internal/tello"
	"github.com/neuroflight/neuroflight/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file (optional)")
	devMode    = flag.Bool("dev", false, "Replay a recorded headset capture instead of opening hardware, and print commands instead of flying")
	fixture    = flag.String("fixture", "fixtures/thinkgear.bin", "Recorded ThinkGear byte capture for dev mode")
	eventsPath = flag.String("events", "", "Write per-cycle telemetry as JSON lines to this file ('-' for stdout)")
)

func main() {
	flag.Parse()
	log.Printf("neuroflight %s", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	sink, closeSink, err := openSink(*eventsPath)
	if err != nil {
		log.Fatalf("open events sink: %v", err)
	}
	defer closeSink()

	var session *headset.Session
	var vehicle pilot.Vehicle
	if *devMode {
		data, err := os.ReadFile(*fixture)
		if err != nil {
			log.Fatalf("read fixture: %v", err)
		}
		session = headset.NewSession(serialport.NewReplayPort(data, 0, 0))
		vehicle = &dryVehicle{}
		log.Printf("dev mode: replaying %d bytes from %s, commands printed only", len(data), *fixture)
	} else {
		session, err = headset.Open(cfg.SensorPort, cfg.SerialOptions())
		if err != nil {
			log.Fatalf("open headset port %s: %v", cfg.SensorPort, err)
		}
		vehicle = tello.NewClient(cfg.TelloOptions())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pilot.New(cfg, session, vehicle, pilot.Options{Sink: sink})
	telemetry.Logf("starting run %s", p.RunID())

	if err := p.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
	log.Print("shutdown complete")
}

func openSink(path string) (telemetry.Sink, func(), error) {
	switch path {
	case "":
		return telemetry.NopSink{}, func() {}, nil
	case "-":
		return telemetry.NewJSONSink(os.Stdout), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return telemetry.NewJSONSink(f), func() { f.Close() }, nil
}

// dryVehicle satisfies the vehicle interface without any hardware: commands
// are printed, telemetry is synthesised healthy.
type dryVehicle struct {
	battery int
}

func (v *dryVehicle) Connect(ctx context.Context) (int, error) {
	v.battery = 100
	return v.battery, nil
}

func (v *dryVehicle) SendVelocity(radial, angular, vertical int) error {
	fmt.Printf("rc radial=%d angular=%d vertical=%d\n", radial, angular, vertical)
	return nil
}

func (v *dryVehicle) Takeoff(ctx context.Context) error {
	fmt.Println("takeoff")
	return nil
}

func (v *dryVehicle) Land(ctx context.Context) error {
	fmt.Println("land")
	return nil
}

func (v *dryVehicle) Status() (battery, height int, lastSeen time.Time) {
	return v.battery, 0, time.Now()
}

func (v *dryVehicle) Close() error { return nil }
