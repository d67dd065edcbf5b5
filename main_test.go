package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/neuroflight/neuroflight/internal/telemetry"
)

func TestOpenSinkEmpty(t *testing.T) {
	sink, closeSink, err := openSink("")
	if err != nil {
		t.Fatalf("openSink(\"\") error: %v", err)
	}
	defer closeSink()
	if _, ok := sink.(telemetry.NopSink); !ok {
		t.Errorf("openSink(\"\") = %T, want NopSink", sink)
	}
}

func TestOpenSinkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	sink, closeSink, err := openSink(path)
	if err != nil {
		t.Fatalf("openSink(%q) error: %v", path, err)
	}
	sink.Record(telemetry.Event{RunID: "test", State: "active"})
	closeSink()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("no event written to sink file")
	}
}

func TestDryVehicle(t *testing.T) {
	v := &dryVehicle{}
	battery, err := v.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if battery != 100 {
		t.Errorf("battery = %d, want 100", battery)
	}
	if err := v.SendVelocity(1, 2, 3); err != nil {
		t.Errorf("SendVelocity() error: %v", err)
	}
	if err := v.Land(context.Background()); err != nil {
		t.Errorf("Land() error: %v", err)
	}
	if _, height, lastSeen := v.Status(); height != 0 || lastSeen.IsZero() {
		t.Error("dry vehicle telemetry should be grounded and fresh")
	}
}
